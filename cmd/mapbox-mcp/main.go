package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lionkeng/mapbox-mcp-server/internal/config"
	"github.com/lionkeng/mapbox-mcp-server/internal/tools"
	"github.com/lionkeng/mapbox-mcp-server/pkg/auth"
	"github.com/lionkeng/mapbox-mcp-server/pkg/mcp"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile   string
	serverURL string
	verbose   bool

	cfg    *config.Config
	cfgErr error
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mapbox-mcp",
	Short: "Client for the Mapbox MCP tool server",
	Long: `mapbox-mcp talks to a remote Mapbox MCP server: it mints its own
bearer tokens from a shared secret, lists the server's geospatial tools,
and calls them (geocoding, POI search, directions, isochrones, matrices,
static maps).

Configuration comes from mapbox-mcp.yaml or environment variables; at
minimum MCP_SERVER_URL and JWT_SECRET must be set.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg, cfgErr = config.Load(cfgFile)
		if cfgErr == nil && serverURL != "" {
			cfg.ServerURL = serverURL
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default mapbox-mcp.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "MCP server URL (overrides MCP_SERVER_URL)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")

	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(geocodeCmd)
	rootCmd.AddCommand(reverseCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(directionsCmd)
	rootCmd.AddCommand(isochroneCmd)
	rootCmd.AddCommand(matrixCmd)
	rootCmd.AddCommand(staticmapCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func newLogger() *zap.Logger {
	if verbose {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	return zap.NewNop()
}

func newClient() (*mcp.Client, error) {
	if cfgErr != nil {
		return nil, cfgErr
	}
	issuer, err := auth.NewIssuer(auth.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		Subject:  cfg.Subject,
		TTL:      cfg.TokenTTL,
	})
	if err != nil {
		return nil, err
	}

	opts := []mcp.Option{
		mcp.WithTimeout(cfg.RequestTimeout),
		mcp.WithLogger(newLogger()),
	}
	if cfg.RefreshThreshold > 0 {
		opts = append(opts, mcp.WithRefreshThreshold(cfg.RefreshThreshold))
	}
	if cfg.RateLimitRPS > 0 {
		opts = append(opts, mcp.WithRateLimit(cfg.RateLimitRPS, int(cfg.RateLimitRPS)*2))
	}
	return mcp.New(cfg.ServerURL, issuer, opts...)
}

func newRegistry() (*tools.Registry, *mcp.Client, error) {
	c, err := newClient()
	if err != nil {
		return nil, nil, err
	}
	return tools.NewRegistry(c, newLogger()), c, nil
}

// runTool shapes args, runs one registry tool, and prints the result.
func runTool(name string, args map[string]any) error {
	registry, c, err := newRegistry()
	if err != nil {
		return err
	}
	defer c.Close() //nolint:errcheck

	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	result, err := registry.Call(context.Background(), name, raw)
	if err != nil {
		return err
	}
	return printJSON(json.RawMessage(result))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseCoord(s, what string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", what, s, err)
	}
	return v, nil
}

// ── tools ────────────────────────────────────────────────────────────────────

var toolsFormat string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools the remote server exposes",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		list, err := c.ListTools(context.Background())
		if err != nil {
			return err
		}

		if toolsFormat == "json" {
			return printJSON(list)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDESCRIPTION")
		for _, tool := range list {
			fmt.Fprintf(w, "%s\t%s\n", tool.Name, tool.Description)
		}
		return w.Flush()
	},
}

func init() {
	toolsCmd.Flags().StringVar(&toolsFormat, "format", "text", "Output format: text or json")
}

// ── call ─────────────────────────────────────────────────────────────────────

var callArgs string

var callCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Call a remote tool directly with raw JSON arguments",
	Long: `call invokes a tool by its remote name, bypassing the local argument
shaping. Useful for tools the friendly subcommands do not cover:

  mapbox-mcp call forward_geocode_tool --args '{"q": "Berlin", "limit": 3}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		var arguments map[string]any
		if callArgs != "" {
			if err := json.Unmarshal([]byte(callArgs), &arguments); err != nil {
				return fmt.Errorf("invalid --args: %w", err)
			}
		}
		result, err := c.CallTool(context.Background(), args[0], arguments)
		if err != nil {
			return err
		}
		return printJSON(json.RawMessage(result))
	},
}

func init() {
	callCmd.Flags().StringVar(&callArgs, "args", "", "Tool arguments as a JSON object")
}

// ── geocode / reverse ────────────────────────────────────────────────────────

var geocodeLimit int

var geocodeCmd = &cobra.Command{
	Use:   "geocode <query>",
	Short: "Convert an address or place name to coordinates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool("forward_geocode", map[string]any{
			"query": args[0],
			"limit": geocodeLimit,
		})
	},
}

var reverseCmd = &cobra.Command{
	Use:   "reverse <longitude> <latitude>",
	Short: "Convert coordinates to the nearest address",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lon, err := parseCoord(args[0], "longitude")
		if err != nil {
			return err
		}
		lat, err := parseCoord(args[1], "latitude")
		if err != nil {
			return err
		}
		return runTool("reverse_geocode", map[string]any{
			"longitude": lon,
			"latitude":  lat,
		})
	},
}

func init() {
	geocodeCmd.Flags().IntVar(&geocodeLimit, "limit", 5, "Maximum number of results")
}

// ── search ───────────────────────────────────────────────────────────────────

var (
	searchLat    float64
	searchLon    float64
	searchRadius int
	searchLimit  int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search for points of interest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := map[string]any{
			"query": args[0],
			"limit": searchLimit,
		}
		if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
			a["latitude"] = searchLat
			a["longitude"] = searchLon
		}
		if searchRadius > 0 {
			a["radius"] = searchRadius
		}
		return runTool("search_poi", a)
	},
}

func init() {
	searchCmd.Flags().Float64Var(&searchLat, "lat", 0, "Center latitude for proximity search")
	searchCmd.Flags().Float64Var(&searchLon, "lon", 0, "Center longitude for proximity search")
	searchCmd.Flags().IntVar(&searchRadius, "radius", 0, "Search radius in meters")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of results")
}

// ── directions ───────────────────────────────────────────────────────────────

var directionsProfile string

var directionsCmd = &cobra.Command{
	Use:   "directions <start-lon> <start-lat> <end-lon> <end-lat>",
	Short: "Get directions between two points",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		coords := make([]float64, 4)
		names := []string{"start longitude", "start latitude", "end longitude", "end latitude"}
		for i, arg := range args {
			v, err := parseCoord(arg, names[i])
			if err != nil {
				return err
			}
			coords[i] = v
		}
		return runTool("get_directions", map[string]any{
			"start_longitude": coords[0],
			"start_latitude":  coords[1],
			"end_longitude":   coords[2],
			"end_latitude":    coords[3],
			"profile":         directionsProfile,
		})
	},
}

func init() {
	directionsCmd.Flags().StringVar(&directionsProfile, "profile", "driving-traffic", "Travel mode: driving-traffic, driving, walking, cycling")
}

// ── isochrone ────────────────────────────────────────────────────────────────

var (
	isoProfile string
	isoMinutes []int
)

var isochroneCmd = &cobra.Command{
	Use:   "isochrone <longitude> <latitude>",
	Short: "Compute areas reachable within time limits",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lon, err := parseCoord(args[0], "longitude")
		if err != nil {
			return err
		}
		lat, err := parseCoord(args[1], "latitude")
		if err != nil {
			return err
		}
		return runTool("get_isochrone", map[string]any{
			"longitude": lon,
			"latitude":  lat,
			"profile":   isoProfile,
			"minutes":   isoMinutes,
		})
	},
}

func init() {
	isochroneCmd.Flags().StringVar(&isoProfile, "profile", "driving", "Travel mode: driving, walking, cycling")
	isochroneCmd.Flags().IntSliceVar(&isoMinutes, "minutes", []int{5, 10, 15}, "Time limits in minutes")
}

// ── matrix ───────────────────────────────────────────────────────────────────

var (
	matrixOrigins      []string
	matrixDestinations []string
	matrixProfile      string
)

func parseCoordPairs(pairs []string, what string) ([]map[string]float64, error) {
	out := make([]map[string]float64, 0, len(pairs))
	for _, pair := range pairs {
		parts := strings.SplitN(pair, ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid %s %q: expected lon,lat", what, pair)
		}
		lon, err := parseCoord(strings.TrimSpace(parts[0]), "longitude")
		if err != nil {
			return nil, err
		}
		lat, err := parseCoord(strings.TrimSpace(parts[1]), "latitude")
		if err != nil {
			return nil, err
		}
		out = append(out, map[string]float64{"longitude": lon, "latitude": lat})
	}
	return out, nil
}

var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "Calculate a travel time and distance matrix",
	Long: `matrix computes travel times and distances between every origin and
every destination:

  mapbox-mcp matrix --origin -122.42,37.78 --origin -122.45,37.91 --destination -122.48,37.73`,
	RunE: func(cmd *cobra.Command, args []string) error {
		origins, err := parseCoordPairs(matrixOrigins, "origin")
		if err != nil {
			return err
		}
		destinations, err := parseCoordPairs(matrixDestinations, "destination")
		if err != nil {
			return err
		}
		return runTool("calculate_matrix", map[string]any{
			"origins":      origins,
			"destinations": destinations,
			"profile":      matrixProfile,
		})
	},
}

func init() {
	matrixCmd.Flags().StringArrayVar(&matrixOrigins, "origin", nil, "Origin as lon,lat (repeatable)")
	matrixCmd.Flags().StringArrayVar(&matrixDestinations, "destination", nil, "Destination as lon,lat (repeatable)")
	matrixCmd.Flags().StringVar(&matrixProfile, "profile", "driving-traffic", "Travel mode: driving-traffic, driving, walking, cycling")

	_ = matrixCmd.MarkFlagRequired("origin")
	_ = matrixCmd.MarkFlagRequired("destination")
}

// ── staticmap ────────────────────────────────────────────────────────────────

var (
	mapZoom   int
	mapWidth  int
	mapHeight int
	mapStyle  string
	mapOut    string
)

var staticmapCmd = &cobra.Command{
	Use:   "staticmap <longitude> <latitude>",
	Short: "Render a static map image and write it to a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lon, err := parseCoord(args[0], "longitude")
		if err != nil {
			return err
		}
		lat, err := parseCoord(args[1], "latitude")
		if err != nil {
			return err
		}

		registry, c, err := newRegistry()
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		raw, err := json.Marshal(map[string]any{
			"longitude": lon,
			"latitude":  lat,
			"zoom":      mapZoom,
			"width":     mapWidth,
			"height":    mapHeight,
			"style":     mapStyle,
		})
		if err != nil {
			return err
		}
		result, err := registry.Call(context.Background(), "create_static_map", raw)
		if err != nil {
			return err
		}

		var image struct {
			Data     string `json:"data"`
			MimeType string `json:"mimeType"`
		}
		if err := json.Unmarshal(result, &image); err != nil {
			return fmt.Errorf("decode image result: %w", err)
		}
		data, err := base64.StdEncoding.DecodeString(image.Data)
		if err != nil {
			return fmt.Errorf("decode image data: %w", err)
		}
		if err := os.WriteFile(mapOut, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("✓ Wrote %s (%d bytes, %s)\n", mapOut, len(data), image.MimeType)
		return nil
	},
}

func init() {
	staticmapCmd.Flags().IntVar(&mapZoom, "zoom", 14, "Zoom level 0-22")
	staticmapCmd.Flags().IntVar(&mapWidth, "width", 200, "Image width in pixels (max 200)")
	staticmapCmd.Flags().IntVar(&mapHeight, "height", 200, "Image height in pixels (max 200)")
	staticmapCmd.Flags().StringVar(&mapStyle, "style", "mapbox/streets-v12", "Map style")
	staticmapCmd.Flags().StringVar(&mapOut, "out", "map.png", "Output file")
}

// ── token ────────────────────────────────────────────────────────────────────

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token and print its claims",
	Long: `token mints a fresh JWT with the configured secret and prints both
the compact token and its decoded claims, for debugging server-side
rejections.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgErr != nil {
			return cfgErr
		}
		issuer, err := auth.NewIssuer(auth.Config{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.Issuer,
			Audience: cfg.Audience,
			Subject:  cfg.Subject,
			TTL:      cfg.TokenTTL,
		})
		if err != nil {
			return err
		}

		token, err := issuer.Issue(nil, tokenTTL)
		if err != nil {
			return err
		}

		claims, err := issuer.Verify(token)
		if err != nil {
			return err
		}

		fmt.Println(token)
		fmt.Println()
		fmt.Printf("  Issuer:      %s\n", claims.Issuer)
		fmt.Printf("  Subject:     %s\n", claims.Subject)
		fmt.Printf("  Audience:    %s\n", strings.Join(claims.Audience, ", "))
		fmt.Printf("  Permissions: %s\n", strings.Join(claims.Permissions, ", "))
		fmt.Printf("  Issued:      %s\n", formatClaimTime(claims.IssuedAt))
		fmt.Printf("  Expires:     %s\n", formatClaimTime(claims.ExpiresAt))
		return nil
	},
}

func formatClaimTime(d *jwt.NumericDate) string {
	if d == nil {
		return "-"
	}
	return d.Time.Format(time.RFC3339)
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default: configured TTL)")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mapbox-mcp %s\n", version)
	},
}
