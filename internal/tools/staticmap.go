package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Static map parameter bounds enforced before the call goes out. The
// server enforces the same limits; validating here turns a remote error
// into an immediate, explainable one.
const (
	maxAbsLongitude = 180
	maxAbsLatitude  = 85.0511 // Web Mercator clamp
	maxZoom         = 22
	maxImageSize    = 200
	defaultZoom     = 14
	defaultStyle    = "mapbox/streets-v12"
)

var hexColorRe = regexp.MustCompile(`^[0-9a-fA-F]{3}([0-9a-fA-F]{3})?$`)

// Marker is one marker overlay on a static map.
type Marker struct {
	Type      string  `json:"type"`
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Size      string  `json:"size,omitempty"`
	Label     string  `json:"label,omitempty"`
	Color     string  `json:"color,omitempty"`
}

// staticMapParams is the validated argument set for the static map tool.
type staticMapParams struct {
	Center struct {
		Longitude float64 `json:"longitude"`
		Latitude  float64 `json:"latitude"`
	} `json:"center"`
	Zoom int `json:"zoom"`
	Size struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"size"`
	Style    string   `json:"style"`
	Overlays []Marker `json:"overlays,omitempty"`
}

func validateCoordinate(lon, lat float64) error {
	if lon < -maxAbsLongitude || lon > maxAbsLongitude {
		return fmt.Errorf("longitude %v out of range [-180, 180]", lon)
	}
	if lat < -maxAbsLatitude || lat > maxAbsLatitude {
		return fmt.Errorf("latitude %v out of range [-85.0511, 85.0511]", lat)
	}
	return nil
}

// normalizeMarker applies the marker conventions the render service
// accepts: size small/large, hex color without '#', and a label reduced
// to a single lowercase character or a number below 100.
func normalizeMarker(m Marker) (Marker, error) {
	if err := validateCoordinate(m.Longitude, m.Latitude); err != nil {
		return Marker{}, fmt.Errorf("marker: %w", err)
	}
	m.Type = "marker"
	if m.Size == "" {
		m.Size = "small"
	}
	if m.Size != "small" && m.Size != "large" {
		return Marker{}, fmt.Errorf("marker size must be %q or %q, got %q", "small", "large", m.Size)
	}
	if m.Color != "" && !hexColorRe.MatchString(m.Color) {
		return Marker{}, fmt.Errorf("marker color must be 3 or 6 digit hex without #, got %q", m.Color)
	}
	m.Label = normalizeLabel(m.Label)
	return m, nil
}

func normalizeLabel(label string) string {
	if label == "" {
		return ""
	}
	label = strings.ToLower(label)
	if len([]rune(label)) == 1 {
		return label
	}
	if n, err := strconv.Atoi(label); err == nil && n >= 0 && n < 100 {
		return label
	}
	return string([]rune(label)[0])
}

func (r *Registry) createStaticMap(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Longitude float64  `json:"longitude"`
		Latitude  float64  `json:"latitude"`
		Zoom      *int     `json:"zoom"`
		Width     int      `json:"width"`
		Height    int      `json:"height"`
		Style     string   `json:"style"`
		Markers   []Marker `json:"markers"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	var params staticMapParams
	if err := validateCoordinate(in.Longitude, in.Latitude); err != nil {
		return nil, err
	}
	params.Center.Longitude = in.Longitude
	params.Center.Latitude = in.Latitude

	params.Zoom = defaultZoom
	if in.Zoom != nil {
		params.Zoom = *in.Zoom
	}
	if params.Zoom < 0 || params.Zoom > maxZoom {
		return nil, fmt.Errorf("zoom %d out of range [0, %d]", params.Zoom, maxZoom)
	}

	if in.Width == 0 {
		in.Width = maxImageSize
	}
	if in.Height == 0 {
		in.Height = maxImageSize
	}
	if in.Width < 1 || in.Width > maxImageSize || in.Height < 1 || in.Height > maxImageSize {
		return nil, fmt.Errorf("image size %dx%d out of range [1, %d]", in.Width, in.Height, maxImageSize)
	}
	params.Size.Width = in.Width
	params.Size.Height = in.Height

	params.Style = in.Style
	if params.Style == "" {
		params.Style = defaultStyle
	}

	for _, m := range in.Markers {
		marker, err := normalizeMarker(m)
		if err != nil {
			return nil, err
		}
		params.Overlays = append(params.Overlays, marker)
	}

	r.logger.Info("creating static map",
		zap.Int("zoom", params.Zoom),
		zap.String("style", params.Style),
		zap.Int("markers", len(params.Overlays)),
	)

	arguments := map[string]any{
		"center": params.Center,
		"zoom":   params.Zoom,
		"size":   params.Size,
		"style":  params.Style,
	}
	if len(params.Overlays) > 0 {
		arguments["overlays"] = params.Overlays
	}

	result, err := r.caller.CallTool(ctx, remoteStaticMap, arguments)
	if err != nil {
		return nil, err
	}
	return extractImage(result)
}

// extractImage flattens the server's tool result to the image object.
// Servers either wrap the image in an MCP content array or return it
// directly.
func extractImage(result json.RawMessage) (json.RawMessage, error) {
	var wrapped struct {
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(result, &wrapped); err == nil && len(wrapped.Content) > 0 {
		if imageType(wrapped.Content[0]) {
			return wrapped.Content[0], nil
		}
	}
	if imageType(result) {
		return result, nil
	}
	return nil, fmt.Errorf("map generation failed: no image in tool result")
}

func imageType(raw json.RawMessage) bool {
	var probe struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(raw, &probe) == nil && probe.Type == "image"
}
