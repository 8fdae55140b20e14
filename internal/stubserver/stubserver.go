// Package stubserver is a self-contained sandbox rendition of the remote
// Mapbox MCP endpoint. It speaks the same wire protocol as the hosted
// server (JSON-RPC 2.0 over POST /mcp, SSE for notifications) but answers
// every tool call from canned fixtures, so the client, the CLI, and agent
// integrations can be exercised without a Mapbox access token.
//
// Authentication is real: requests must carry a bearer token minted with
// the same shared secret the stub was started with.
package stubserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lionkeng/mapbox-mcp-server/internal/metrics"
	"github.com/lionkeng/mapbox-mcp-server/pkg/auth"
	"github.com/lionkeng/mapbox-mcp-server/pkg/mcp"
)

// Server serves the sandbox MCP endpoint.
type Server struct {
	issuer *auth.Issuer
	logger *zap.Logger
	router *gin.Engine

	mu       sync.RWMutex
	fixtures map[string]json.RawMessage
}

// New builds the sandbox server. Tokens presented by clients are verified
// against issuer, so the client and the stub must share a secret.
func New(issuer *auth.Issuer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		issuer:   issuer,
		logger:   logger,
		fixtures: defaultFixtures(),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Accept", "Mcp-Session-Id"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})
	router.Use(metrics.PrometheusMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.MetricsHandler())
	router.POST("/mcp", s.handleRPC)

	s.router = router
	return s
}

// Handler exposes the underlying router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Run blocks serving on addr.
func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("sandbox MCP server listening", zap.String("addr", addr))
	return srv.ListenAndServe()
}

// SetFixture replaces the canned result for one remote tool.
func (s *Server) SetFixture(tool string, result json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixtures[tool] = result
}

func (s *Server) fixture(tool string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.fixtures[tool]
	return f, ok
}

// rpcRequest mirrors the inbound JSON-RPC envelope. Params stays raw so
// each method can decode its own shape.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

func (s *Server) handleRPC(c *gin.Context) {
	claims, ok := s.authorize(c)
	if !ok {
		return
	}
	if c.GetHeader("mcp-session-id") == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing mcp-session-id header"})
		return
	}

	var req rpcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if req.JSONRPC != mcp.Version {
		s.writeError(c, req.ID, -32600, fmt.Sprintf("unsupported jsonrpc version %q", req.JSONRPC))
		return
	}

	s.logger.Debug("rpc request",
		zap.String("method", req.Method),
		zap.String("id", req.ID),
		zap.String("subject", claims.Subject),
	)

	// A request without an id is a notification: the caller wants a
	// server-sent event stream rather than a single response.
	if req.ID == "" {
		s.streamEvents(c, req.Method)
		return
	}

	switch req.Method {
	case "tools/list":
		s.writeResult(c, req.ID, gin.H{"tools": toolCatalog()})
	case "tools/call":
		s.handleToolCall(c, req)
	default:
		s.writeError(c, req.ID, -32601, "Method not found")
	}
}

func (s *Server) authorize(c *gin.Context) (*auth.Claims, bool) {
	header := c.GetHeader("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return nil, false
	}
	claims, err := s.issuer.Verify(token)
	if err != nil {
		s.logger.Warn("token rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return nil, false
	}
	return claims, true
}

func (s *Server) handleToolCall(c *gin.Context, req rpcRequest) {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(c, req.ID, -32602, fmt.Sprintf("invalid tool call params: %v", err))
		return
	}

	fixture, ok := s.fixture(params.Name)
	if !ok {
		s.writeError(c, req.ID, -32602, fmt.Sprintf("unknown tool %q", params.Name))
		return
	}

	s.logger.Info("tool call",
		zap.String("tool", params.Name),
		zap.Int("arguments", len(params.Arguments)),
	)
	s.writeResult(c, req.ID, json.RawMessage(fixture))
}

func (s *Server) writeResult(c *gin.Context, id string, result any) {
	c.JSON(http.StatusOK, gin.H{
		"jsonrpc": mcp.Version,
		"id":      id,
		"result":  result,
	})
}

func (s *Server) writeError(c *gin.Context, id string, code int, message string) {
	c.JSON(http.StatusOK, gin.H{
		"jsonrpc": mcp.Version,
		"id":      id,
		"error":   gin.H{"code": code, "message": message},
	})
}

// streamEvents answers a notification with a short server-sent event
// sequence: a couple of progress frames and a final message.
func (s *Server) streamEvents(c *gin.Context, method string) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	write := func(event string, id int, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\nid: %d\ndata: %s\n\n", event, id, data)
		flusher.Flush()
	}

	write("message", 1, gin.H{
		"method": "notifications/progress",
		"params": gin.H{"progress": 0, "total": 2},
	})
	write("message", 2, gin.H{
		"method": "notifications/progress",
		"params": gin.H{"progress": 1, "total": 2},
	})
	write("message", 3, gin.H{
		"method": method,
		"params": gin.H{"progress": 2, "total": 2, "done": true},
	})
}

// toolCatalog lists the remote tools the sandbox understands, in the
// shape tools/list returns them.
func toolCatalog() []mcp.Tool {
	return []mcp.Tool{
		{Name: "forward_geocode_tool", Description: "Convert an address or place name to coordinates."},
		{Name: "reverse_geocode_tool", Description: "Convert coordinates to the nearest address."},
		{Name: "poi_search_tool", Description: "Search points of interest near a location."},
		{Name: "directions_tool", Description: "Turn-by-turn directions between coordinates."},
		{Name: "static_map_image_tool", Description: "Render a static map image."},
		{Name: "isochrone_tool", Description: "Reachable area within travel time limits."},
		{Name: "matrix_tool", Description: "Travel time and distance matrix."},
	}
}

func defaultFixtures() map[string]json.RawMessage {
	return map[string]json.RawMessage{
		"forward_geocode_tool": json.RawMessage(`{
			"type": "FeatureCollection",
			"features": [{
				"type": "Feature",
				"geometry": {"type": "Point", "coordinates": [-0.1276, 51.5072]},
				"properties": {"name": "London", "full_address": "London, Greater London, England, United Kingdom"}
			}]
		}`),
		"reverse_geocode_tool": json.RawMessage(`{
			"type": "FeatureCollection",
			"features": [{
				"type": "Feature",
				"geometry": {"type": "Point", "coordinates": [-77.0366, 38.8951]},
				"properties": {"full_address": "1600 Pennsylvania Avenue NW, Washington, DC 20500, United States"}
			}]
		}`),
		"poi_search_tool": json.RawMessage(`{
			"type": "FeatureCollection",
			"features": [
				{"type": "Feature", "geometry": {"type": "Point", "coordinates": [-73.9857, 40.7484]}, "properties": {"name": "Blue Bottle Coffee", "category": "coffee shop"}},
				{"type": "Feature", "geometry": {"type": "Point", "coordinates": [-73.9870, 40.7500]}, "properties": {"name": "Stumptown Coffee", "category": "coffee shop"}}
			]
		}`),
		"directions_tool": json.RawMessage(`{
			"routes": [{
				"distance": 18204.5,
				"duration": 1421.9,
				"geometry": "u{~vFvyys@fS]",
				"legs": [{"summary": "I-405 North", "steps": []}]
			}],
			"code": "Ok"
		}`),
		"static_map_image_tool": json.RawMessage(`{
			"content": [{
				"type": "image",
				"data": "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg==",
				"mimeType": "image/png"
			}]
		}`),
		"isochrone_tool": json.RawMessage(`{
			"type": "FeatureCollection",
			"features": [
				{"type": "Feature", "properties": {"contour": 5},  "geometry": {"type": "Polygon", "coordinates": [[[-122.69, 45.51], [-122.67, 45.51], [-122.67, 45.53], [-122.69, 45.51]]]}},
				{"type": "Feature", "properties": {"contour": 10}, "geometry": {"type": "Polygon", "coordinates": [[[-122.71, 45.50], [-122.65, 45.50], [-122.65, 45.54], [-122.71, 45.50]]]}}
			]
		}`),
		"matrix_tool": json.RawMessage(`{
			"durations": [[0, 573.1], [594.4, 0]],
			"distances": [[0, 4853.2], [5012.8, 0]],
			"code": "Ok"
		}`),
	}
}
