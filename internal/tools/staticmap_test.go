package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestCreateStaticMap_defaults(t *testing.T) {
	r, fc := newTestRegistry(t)
	fc.result = json.RawMessage(`{"type":"image","data":"aGk=","mimeType":"image/png"}`)

	out, err := r.Call(context.Background(), "create_static_map",
		json.RawMessage(`{"longitude":-0.1276,"latitude":51.5072}`))
	if err != nil {
		t.Fatal(err)
	}

	if fc.name != "static_map_image_tool" {
		t.Errorf("remote tool = %q", fc.name)
	}
	if fc.args["zoom"] != 14 {
		t.Errorf("default zoom = %v", fc.args["zoom"])
	}
	if fc.args["style"] != "mapbox/streets-v12" {
		t.Errorf("default style = %v", fc.args["style"])
	}
	size, _ := json.Marshal(fc.args["size"])
	if string(size) != `{"width":200,"height":200}` {
		t.Errorf("default size = %s", size)
	}
	if _, ok := fc.args["overlays"]; ok {
		t.Error("overlays set without markers")
	}

	var img struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(out, &img); err != nil || img.Type != "image" {
		t.Errorf("result = %s", out)
	}
}

func TestCreateStaticMap_validation(t *testing.T) {
	r, _ := newTestRegistry(t)

	cases := []struct {
		name string
		args string
	}{
		{"longitude out of range", `{"longitude":181,"latitude":0}`},
		{"latitude beyond mercator clamp", `{"longitude":0,"latitude":86}`},
		{"zoom too high", `{"longitude":0,"latitude":0,"zoom":23}`},
		{"width too large", `{"longitude":0,"latitude":0,"width":201}`},
		{"marker bad size", `{"longitude":0,"latitude":0,"markers":[{"longitude":0,"latitude":0,"size":"medium"}]}`},
		{"marker bad color", `{"longitude":0,"latitude":0,"markers":[{"longitude":0,"latitude":0,"color":"#ff0000"}]}`},
		{"marker out of range", `{"longitude":0,"latitude":0,"markers":[{"longitude":200,"latitude":0}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := r.Call(context.Background(), "create_static_map", json.RawMessage(tc.args)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCreateStaticMap_markers(t *testing.T) {
	r, fc := newTestRegistry(t)
	fc.result = json.RawMessage(`{"type":"image","data":"aGk=","mimeType":"image/png"}`)

	_, err := r.Call(context.Background(), "create_static_map", json.RawMessage(
		`{"longitude":2.35,"latitude":48.85,"markers":[{"longitude":2.29,"latitude":48.86,"label":"A","color":"ff0000"}]}`))
	if err != nil {
		t.Fatal(err)
	}

	overlays, ok := fc.args["overlays"].([]Marker)
	if !ok || len(overlays) != 1 {
		t.Fatalf("overlays = %v", fc.args["overlays"])
	}
	m := overlays[0]
	if m.Type != "marker" {
		t.Errorf("type = %q", m.Type)
	}
	if m.Size != "small" {
		t.Errorf("default size = %q", m.Size)
	}
	if m.Label != "a" {
		t.Errorf("label = %q, want lowercased", m.Label)
	}
	if m.Color != "ff0000" {
		t.Errorf("color = %q", m.Color)
	}
}

func TestNormalizeLabel(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"A", "a"},
		{"z", "z"},
		{"7", "7"},
		{"42", "42"},
		{"99", "99"},
		{"100", "1"},
		{"Hello", "h"},
		{"Ü", "ü"},
	}
	for _, tc := range cases {
		if got := normalizeLabel(tc.in); got != tc.want {
			t.Errorf("normalizeLabel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractImage(t *testing.T) {
	t.Run("wrapped in content array", func(t *testing.T) {
		got, err := extractImage(json.RawMessage(
			`{"content":[{"type":"image","data":"aGk=","mimeType":"image/png"}]}`))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(got), `"image"`) {
			t.Errorf("got %s", got)
		}
	})

	t.Run("direct image object", func(t *testing.T) {
		raw := json.RawMessage(`{"type":"image","data":"aGk=","mimeType":"image/png"}`)
		got, err := extractImage(raw)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != string(raw) {
			t.Errorf("got %s", got)
		}
	})

	t.Run("no image", func(t *testing.T) {
		_, err := extractImage(json.RawMessage(`{"content":[{"type":"text","text":"oops"}]}`))
		if err == nil || !strings.Contains(err.Error(), "no image") {
			t.Errorf("err = %v", err)
		}
	})
}
