package tools

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"
)

// fakeCaller records the last remote call and returns a canned result.
type fakeCaller struct {
	name   string
	args   map[string]any
	result json.RawMessage
	err    error
}

func (f *fakeCaller) CallTool(_ context.Context, name string, arguments map[string]any) (json.RawMessage, error) {
	f.name = name
	f.args = arguments
	if f.result == nil {
		return json.RawMessage(`{}`), f.err
	}
	return f.result, f.err
}

func newTestRegistry(t *testing.T) (*Registry, *fakeCaller) {
	t.Helper()
	fc := &fakeCaller{}
	return NewRegistry(fc, zap.NewNop()), fc
}

func TestRegistry_Definitions(t *testing.T) {
	r, _ := newTestRegistry(t)

	want := []string{
		"forward_geocode", "reverse_geocode", "search_poi", "get_directions",
		"create_static_map", "get_isochrone", "calculate_matrix",
	}
	defs := r.Definitions()
	if len(defs) != len(want) {
		t.Fatalf("got %d definitions, want %d", len(defs), len(want))
	}
	for i, name := range want {
		if defs[i].Name != name {
			t.Errorf("definition %d: got %q, want %q", i, defs[i].Name, name)
		}
		if defs[i].InputSchema["type"] != "object" {
			t.Errorf("%s: schema is not an object", name)
		}
	}
}

func TestCall_unknownTool(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.Call(context.Background(), "teleport", nil); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestForwardGeocode_argumentShaping(t *testing.T) {
	r, fc := newTestRegistry(t)

	_, err := r.Call(context.Background(), "forward_geocode",
		json.RawMessage(`{"query":"Berlin Hauptbahnhof"}`))
	if err != nil {
		t.Fatal(err)
	}

	if fc.name != "forward_geocode_tool" {
		t.Errorf("remote tool = %q", fc.name)
	}
	if fc.args["q"] != "Berlin Hauptbahnhof" {
		t.Errorf("q = %v", fc.args["q"])
	}
	if fc.args["limit"] != 5 {
		t.Errorf("default limit = %v, want 5", fc.args["limit"])
	}
}

func TestReverseGeocode_argumentShaping(t *testing.T) {
	r, fc := newTestRegistry(t)

	_, err := r.Call(context.Background(), "reverse_geocode",
		json.RawMessage(`{"longitude":-77.036,"latitude":38.895}`))
	if err != nil {
		t.Fatal(err)
	}
	if fc.name != "reverse_geocode_tool" {
		t.Errorf("remote tool = %q", fc.name)
	}
	if fc.args["longitude"] != -77.036 || fc.args["latitude"] != 38.895 {
		t.Errorf("coordinates = %v", fc.args)
	}
}

func TestSearchPOI_proximityOnlyWithBothCoordinates(t *testing.T) {
	r, fc := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.Call(ctx, "search_poi", json.RawMessage(`{"query":"coffee"}`)); err != nil {
		t.Fatal(err)
	}
	if _, ok := fc.args["proximity"]; ok {
		t.Error("proximity set without coordinates")
	}
	if fc.args["limit"] != 10 {
		t.Errorf("default limit = %v, want 10", fc.args["limit"])
	}

	if _, err := r.Call(ctx, "search_poi",
		json.RawMessage(`{"query":"coffee","latitude":40.758,"longitude":-73.985,"radius":500}`)); err != nil {
		t.Fatal(err)
	}
	prox, ok := fc.args["proximity"].(map[string]any)
	if !ok {
		t.Fatalf("proximity = %v", fc.args["proximity"])
	}
	if prox["longitude"] != -73.985 || prox["latitude"] != 40.758 {
		t.Errorf("proximity = %v", prox)
	}
	if fc.args["radius"] != 500 {
		t.Errorf("radius = %v", fc.args["radius"])
	}
}

func TestGetDirections_coordinateOrder(t *testing.T) {
	r, fc := newTestRegistry(t)

	_, err := r.Call(context.Background(), "get_directions", json.RawMessage(
		`{"start_longitude":-118.4,"start_latitude":33.94,"end_longitude":-118.33,"end_latitude":34.1}`))
	if err != nil {
		t.Fatal(err)
	}

	if fc.name != "directions_tool" {
		t.Errorf("remote tool = %q", fc.name)
	}
	if fc.args["profile"] != "driving-traffic" {
		t.Errorf("default profile = %v", fc.args["profile"])
	}
	coords, ok := fc.args["coordinates"].([][]float64)
	if !ok || len(coords) != 2 {
		t.Fatalf("coordinates = %v", fc.args["coordinates"])
	}
	// Coordinates are [longitude, latitude] pairs, start first.
	if coords[0][0] != -118.4 || coords[0][1] != 33.94 {
		t.Errorf("start = %v", coords[0])
	}
	if coords[1][0] != -118.33 || coords[1][1] != 34.1 {
		t.Errorf("end = %v", coords[1])
	}
}

func TestGetIsochrone_defaults(t *testing.T) {
	r, fc := newTestRegistry(t)

	_, err := r.Call(context.Background(), "get_isochrone",
		json.RawMessage(`{"longitude":-122.68,"latitude":45.52}`))
	if err != nil {
		t.Fatal(err)
	}

	if fc.args["profile"] != "driving" {
		t.Errorf("default profile = %v", fc.args["profile"])
	}
	minutes, ok := fc.args["contours_minutes"].([]int)
	if !ok || len(minutes) != 3 || minutes[0] != 5 || minutes[2] != 15 {
		t.Errorf("contours_minutes = %v", fc.args["contours_minutes"])
	}
	center, ok := fc.args["coordinates"].(map[string]any)
	if !ok || center["longitude"] != -122.68 {
		t.Errorf("coordinates = %v", fc.args["coordinates"])
	}
}

func TestCalculateMatrix(t *testing.T) {
	r, fc := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Call(ctx, "calculate_matrix", json.RawMessage(
		`{"origins":[{"longitude":1,"latitude":2}],"destinations":[{"longitude":3,"latitude":4}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if fc.name != "matrix_tool" {
		t.Errorf("remote tool = %q", fc.name)
	}
	sources, ok := fc.args["sources"].([]Coordinate)
	if !ok || len(sources) != 1 || sources[0].Longitude != 1 {
		t.Errorf("sources = %v", fc.args["sources"])
	}

	if _, err := r.Call(ctx, "calculate_matrix",
		json.RawMessage(`{"origins":[],"destinations":[]}`)); err == nil {
		t.Error("expected error for empty origins/destinations")
	}
}
