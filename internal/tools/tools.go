// Package tools defines the geospatial tool registry: one descriptor and
// one typed handler per remote tool, constructed at startup and handed to
// the agent runtime (or the CLI) as plain data.
//
// Each handler shapes its arguments into the convention the remote tool
// expects and delegates the actual work to the protocol client; there is
// no geospatial logic on this side of the wire.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Remote tool names exposed by the Mapbox MCP server.
const (
	remoteForwardGeocode = "forward_geocode_tool"
	remoteReverseGeocode = "reverse_geocode_tool"
	remotePOISearch      = "poi_search_tool"
	remoteDirections     = "directions_tool"
	remoteStaticMap      = "static_map_image_tool"
	remoteIsochrone      = "isochrone_tool"
	remoteMatrix         = "matrix_tool"
)

// Caller is the slice of the protocol client the registry needs.
type Caller interface {
	CallTool(ctx context.Context, name string, arguments map[string]any) (json.RawMessage, error)
}

// Definition describes one tool to the agent runtime.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Handler executes one tool call. args is the raw argument object chosen
// by the agent; the result is the structured tool output.
type Handler func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Registry maps tool names to their definitions and handlers.
type Registry struct {
	caller   Caller
	logger   *zap.Logger
	defs     []Definition
	handlers map[string]Handler
}

// NewRegistry builds the full geospatial tool registry backed by caller.
func NewRegistry(caller Caller, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		caller:   caller,
		logger:   logger,
		handlers: make(map[string]Handler),
	}

	r.register(Definition{
		Name:        "forward_geocode",
		Description: "Convert an address or place name to geographic coordinates.",
		InputSchema: objectSchema(map[string]any{
			"query": prop("string", "Address or place name to geocode"),
			"limit": prop("integer", "Maximum number of results (default 5)"),
		}, "query"),
	}, r.forwardGeocode)

	r.register(Definition{
		Name:        "reverse_geocode",
		Description: "Convert geographic coordinates to the nearest address.",
		InputSchema: objectSchema(map[string]any{
			"longitude": prop("number", "Longitude coordinate"),
			"latitude":  prop("number", "Latitude coordinate"),
		}, "longitude", "latitude"),
	}, r.reverseGeocode)

	r.register(Definition{
		Name:        "search_poi",
		Description: "Search for points of interest, optionally near a location.",
		InputSchema: objectSchema(map[string]any{
			"query":     prop("string", "Search query, e.g. \"coffee shops\""),
			"latitude":  prop("number", "Optional center latitude for proximity search"),
			"longitude": prop("number", "Optional center longitude for proximity search"),
			"radius":    prop("integer", "Optional search radius in meters"),
			"limit":     prop("integer", "Maximum number of results (default 10)"),
		}, "query"),
	}, r.searchPOI)

	r.register(Definition{
		Name:        "get_directions",
		Description: "Get turn-by-turn directions between two points.",
		InputSchema: objectSchema(map[string]any{
			"start_longitude": prop("number", "Starting point longitude"),
			"start_latitude":  prop("number", "Starting point latitude"),
			"end_longitude":   prop("number", "Destination longitude"),
			"end_latitude":    prop("number", "Destination latitude"),
			"profile":         enumProp("Travel mode", "driving-traffic", "driving", "walking", "cycling"),
		}, "start_longitude", "start_latitude", "end_longitude", "end_latitude"),
	}, r.getDirections)

	r.register(Definition{
		Name:        "create_static_map",
		Description: "Render a static map image centered on a point, optionally with markers.",
		InputSchema: objectSchema(map[string]any{
			"longitude": prop("number", "Center longitude (-180 to 180)"),
			"latitude":  prop("number", "Center latitude (-85.0511 to 85.0511)"),
			"zoom":      prop("integer", "Zoom level 0-22 (default 14)"),
			"width":     prop("integer", "Image width in pixels, 1-200 (default 200)"),
			"height":    prop("integer", "Image height in pixels, 1-200 (default 200)"),
			"style":     prop("string", "Map style (default mapbox/streets-v12)"),
			"markers": map[string]any{
				"type":        "array",
				"description": "Optional markers to overlay on the map",
				"items": objectSchema(map[string]any{
					"longitude": prop("number", "Marker longitude"),
					"latitude":  prop("number", "Marker latitude"),
					"size":      enumProp("Marker size", "small", "large"),
					"label":     prop("string", "Single character or number label"),
					"color":     prop("string", "3 or 6 digit hex color without #"),
				}, "longitude", "latitude"),
			},
		}, "longitude", "latitude"),
	}, r.createStaticMap)

	r.register(Definition{
		Name:        "get_isochrone",
		Description: "Compute areas reachable from a point within time limits.",
		InputSchema: objectSchema(map[string]any{
			"longitude": prop("number", "Starting point longitude"),
			"latitude":  prop("number", "Starting point latitude"),
			"profile":   enumProp("Travel mode", "driving", "walking", "cycling"),
			"minutes": map[string]any{
				"type":        "array",
				"description": "Time limits in minutes (default [5, 10, 15])",
				"items":       map[string]any{"type": "integer"},
			},
		}, "longitude", "latitude"),
	}, r.getIsochrone)

	r.register(Definition{
		Name:        "calculate_matrix",
		Description: "Calculate a travel time and distance matrix between multiple points.",
		InputSchema: objectSchema(map[string]any{
			"origins":      coordListSchema("Origin points"),
			"destinations": coordListSchema("Destination points"),
			"profile":      enumProp("Travel mode", "driving-traffic", "driving", "walking", "cycling"),
		}, "origins", "destinations"),
	}, r.calculateMatrix)

	return r
}

func (r *Registry) register(def Definition, h Handler) {
	r.defs = append(r.defs, def)
	r.handlers[def.Name] = h
}

// Definitions returns the descriptors for every registered tool.
func (r *Registry) Definitions() []Definition { return r.defs }

// Call dispatches a tool call by name.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %q", name)
	}
	return h(ctx, args)
}

// ── handlers ─────────────────────────────────────────────────────────────────

func (r *Registry) forwardGeocode(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.Limit == 0 {
		in.Limit = 5
	}
	r.logger.Info("forward geocoding", zap.String("query", in.Query), zap.Int("limit", in.Limit))

	return r.caller.CallTool(ctx, remoteForwardGeocode, map[string]any{
		"q":     in.Query,
		"limit": in.Limit,
	})
}

func (r *Registry) reverseGeocode(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Longitude float64 `json:"longitude"`
		Latitude  float64 `json:"latitude"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	r.logger.Info("reverse geocoding",
		zap.Float64("longitude", in.Longitude),
		zap.Float64("latitude", in.Latitude),
	)

	return r.caller.CallTool(ctx, remoteReverseGeocode, map[string]any{
		"longitude": in.Longitude,
		"latitude":  in.Latitude,
	})
}

func (r *Registry) searchPOI(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Query     string   `json:"query"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Radius    *int     `json:"radius"`
		Limit     int      `json:"limit"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.Limit == 0 {
		in.Limit = 10
	}

	arguments := map[string]any{
		"q":     in.Query,
		"limit": in.Limit,
	}
	if in.Latitude != nil && in.Longitude != nil {
		arguments["proximity"] = map[string]any{
			"longitude": *in.Longitude,
			"latitude":  *in.Latitude,
		}
	}
	if in.Radius != nil {
		arguments["radius"] = *in.Radius
	}
	r.logger.Info("searching POIs",
		zap.String("query", in.Query),
		zap.Bool("has_location", in.Latitude != nil),
		zap.Int("limit", in.Limit),
	)

	return r.caller.CallTool(ctx, remotePOISearch, arguments)
}

func (r *Registry) getDirections(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		StartLongitude float64 `json:"start_longitude"`
		StartLatitude  float64 `json:"start_latitude"`
		EndLongitude   float64 `json:"end_longitude"`
		EndLatitude    float64 `json:"end_latitude"`
		Profile        string  `json:"profile"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.Profile == "" {
		in.Profile = "driving-traffic"
	}
	r.logger.Info("getting directions", zap.String("profile", in.Profile))

	return r.caller.CallTool(ctx, remoteDirections, map[string]any{
		"profile": in.Profile,
		"coordinates": [][]float64{
			{in.StartLongitude, in.StartLatitude},
			{in.EndLongitude, in.EndLatitude},
		},
	})
}

func (r *Registry) getIsochrone(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Longitude float64 `json:"longitude"`
		Latitude  float64 `json:"latitude"`
		Profile   string  `json:"profile"`
		Minutes   []int   `json:"minutes"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.Profile == "" {
		in.Profile = "driving"
	}
	if len(in.Minutes) == 0 {
		in.Minutes = []int{5, 10, 15}
	}
	r.logger.Info("getting isochrone",
		zap.String("profile", in.Profile),
		zap.Ints("minutes", in.Minutes),
	)

	return r.caller.CallTool(ctx, remoteIsochrone, map[string]any{
		"coordinates": map[string]any{
			"longitude": in.Longitude,
			"latitude":  in.Latitude,
		},
		"profile":          in.Profile,
		"contours_minutes": in.Minutes,
	})
}

func (r *Registry) calculateMatrix(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Origins      []Coordinate `json:"origins"`
		Destinations []Coordinate `json:"destinations"`
		Profile      string       `json:"profile"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if len(in.Origins) == 0 || len(in.Destinations) == 0 {
		return nil, fmt.Errorf("calculate_matrix requires at least one origin and one destination")
	}
	if in.Profile == "" {
		in.Profile = "driving-traffic"
	}
	r.logger.Info("calculating matrix",
		zap.Int("origins", len(in.Origins)),
		zap.Int("destinations", len(in.Destinations)),
		zap.String("profile", in.Profile),
	)

	return r.caller.CallTool(ctx, remoteMatrix, map[string]any{
		"profile":      in.Profile,
		"sources":      in.Origins,
		"destinations": in.Destinations,
	})
}

// Coordinate is a longitude/latitude pair as the matrix tool expects it.
type Coordinate struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// ── schema helpers ───────────────────────────────────────────────────────────

func decodeArgs(args json.RawMessage, into any) error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(args, into); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func enumProp(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}

func coordListSchema(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"description": description,
		"items": objectSchema(map[string]any{
			"longitude": prop("number", "Longitude"),
			"latitude":  prop("number", "Latitude"),
		}, "longitude", "latitude"),
	}
}
