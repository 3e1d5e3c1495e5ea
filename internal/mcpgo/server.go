package mcpgo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/padoca-app/bakery-costing-mcp-server/internal/auth"
	"github.com/padoca-app/bakery-costing-mcp-server/internal/catalog"
	"github.com/padoca-app/bakery-costing-mcp-server/internal/rollup"
	"github.com/padoca-app/bakery-costing-mcp-server/internal/types"
)

// responseRecorder wraps http.ResponseWriter to capture response details
type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	bytesWritten  int
	headerWritten bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.headerWritten {
		return // Prevent duplicate WriteHeader calls
	}
	r.statusCode = code
	r.headerWritten = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if !r.headerWritten {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(data)
	r.bytesWritten += n
	return n, err
}

// Server wraps the mark3labs MCP server with authentication
type Server struct {
	mcpServer *server.MCPServer
	catalog   *catalog.Service
	auth      *auth.BearerTokenAuth
	log       *slog.Logger

	// Health check caching to prevent DOS attacks
	healthMu        sync.RWMutex
	lastHealthCheck time.Time
	lastHealthError error
}

// ProductsResponse represents the response from list_products
type ProductsResponse struct {
	Found      bool                   `json:"found"`
	Count      int                    `json:"count"`
	Attributes []string               `json:"attributes"`
	Products   []types.ProductSummary `json:"products"`
}

// BreakdownResponse represents the response from get_product_breakdown
type BreakdownResponse struct {
	Found     bool                    `json:"found"`
	Breakdown *types.ProductBreakdown `json:"breakdown,omitempty"`
}

// IngredientCostsResponse represents the response from list_ingredient_costs
type IngredientCostsResponse struct {
	Count       int                    `json:"count"`
	Ingredients []types.IngredientCost `json:"ingredients"`
}

// RefreshResponse represents the response from refresh_rollup
type RefreshResponse struct {
	Refreshed  bool     `json:"refreshed"`
	Products   int      `json:"products"`
	Attributes []string `json:"attributes"`
}

// NewServer creates a new MCP server with the mark3labs SDK
func NewServer(svc *catalog.Service, authenticator *auth.BearerTokenAuth, logger *slog.Logger) *Server {
	// Create MCP server
	mcpServer := server.NewMCPServer(
		"Bakery Costing MCP Server",
		"1.0.0",
		server.WithToolCapabilities(false), // Tools don't change dynamically
		server.WithRecovery(),              // Recover from panics
		server.WithLogging(),               // Enable logging
	)

	s := &Server{
		mcpServer: mcpServer,
		catalog:   svc,
		auth:      authenticator,
		log:       logger,
	}

	// Add tools
	s.addTools()

	return s
}

// checkHealthWithCache checks health with 10-second caching to prevent DOS attacks
func (s *Server) checkHealthWithCache(ctx context.Context) error {
	const cacheDuration = 10 * time.Second

	s.healthMu.RLock()
	if time.Since(s.lastHealthCheck) < cacheDuration {
		err := s.lastHealthError
		s.healthMu.RUnlock()
		s.log.Debug("Health check: using cached result",
			"cached_error", err != nil,
			"cache_age", time.Since(s.lastHealthCheck))
		return err
	}
	s.healthMu.RUnlock()

	// Need to perform actual health check
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	// Double-check in case another goroutine updated while waiting for write lock
	if time.Since(s.lastHealthCheck) < cacheDuration {
		s.log.Debug("Health check: using cached result after lock",
			"cached_error", s.lastHealthError != nil,
			"cache_age", time.Since(s.lastHealthCheck))
		return s.lastHealthError
	}

	// Perform actual health check
	s.log.Debug("Health check: checking snapshot readability")
	err := s.catalog.HealthCheck(ctx)
	s.lastHealthCheck = time.Now()
	s.lastHealthError = err

	return err
}

func (s *Server) addTools() {
	// Unified catalog table: every final product and base with cost,
	// price, margin and nutrient totals
	listTool := mcp.NewTool("list_products",
		mcp.WithDescription("List the full product catalog with rolled-up cost, market price, profit, margin percentage, price multiplier, margin band and nutrient totals per product. Optionally filter by kind."),
		mcp.WithString("kind",
			mcp.Description("Filter by product kind: 'final' for sellable products, 'base' for intermediate recipes. Omit to list both."),
			mcp.Enum("final", "base"),
		),
		mcp.WithOutputSchema[ProductsResponse](),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.mcpServer.AddTool(listTool, s.handleListProducts)

	// Per-product drill-down
	breakdownTool := mcp.NewTool("get_product_breakdown",
		mcp.WithDescription("Get the full cost breakdown for one product: its recipe lines with per-line contributions, and the composition of every base recipe it uses traced down to master ingredients."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.MinLength(1), // must be at least 1 char
			mcp.Description("Product name as it appears in the catalog. Matching is case-insensitive."),
		),
		mcp.WithOutputSchema[BreakdownResponse](),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.mcpServer.AddTool(breakdownTool, s.handleGetProductBreakdown)

	// Master ingredient cost table
	costsTool := mcp.NewTool("list_ingredient_costs",
		mcp.WithDescription("List every master ingredient with its package unit and normalized per-unit cost (package price divided by package quantity)."),
		mcp.WithOutputSchema[IngredientCostsResponse](),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.mcpServer.AddTool(costsTool, s.handleListIngredientCosts)

	// Force recomputation
	refreshTool := mcp.NewTool("refresh_rollup",
		mcp.WithDescription("Discard the cached rollup, re-download the workbook snapshot and recompute the whole catalog. Use after the workbook has been edited."),
		mcp.WithOutputSchema[RefreshResponse](),
	)

	s.mcpServer.AddTool(refreshTool, s.handleRefreshRollup)
}

func (s *Server) handleListProducts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleListProducts: Starting tool call",
		"arguments", request.GetArguments())

	kind := request.GetString("kind", "")
	if kind != "" && kind != string(rollup.KindFinal) && kind != string(rollup.KindBase) {
		s.log.Warn("handleListProducts: Invalid 'kind' parameter", "kind", kind)
		return mcp.NewToolResultError("Parameter 'kind' must be 'final' or 'base'"), nil
	}

	res, err := s.catalog.Rollup(ctx)
	if err != nil {
		s.log.Error("Catalog rollup failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Rollup failed: %v", err)), nil
	}

	summaries := make([]types.ProductSummary, 0, len(res.Products))
	for _, p := range res.Products {
		if kind != "" && string(p.Kind) != kind {
			continue
		}
		summaries = append(summaries, types.FromProduct(p))
	}

	// Prepare structured response
	response := ProductsResponse{
		Found:      len(summaries) > 0,
		Count:      len(summaries),
		Attributes: res.Attributes,
		Products:   summaries,
	}

	// Create fallback text for backwards compatibility
	responseJSON, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		s.log.Error("handleListProducts: Failed to marshal response", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal response: %v", err)), nil
	}

	s.log.Debug("handleListProducts: Returning structured result",
		"found", response.Found,
		"count", response.Count,
		"response_size", len(responseJSON))

	// Return both structured content and text fallback for maximum compatibility
	return mcp.NewToolResultStructured(response, string(responseJSON)), nil
}

func (s *Server) handleGetProductBreakdown(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleGetProductBreakdown: Starting tool call",
		"arguments", request.GetArguments())

	// Extract arguments
	name, err := request.RequireString("name")
	if err != nil {
		s.log.Warn("handleGetProductBreakdown: Missing 'name' parameter", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Missing required parameter 'name': %v", err)), nil
	}

	// Validate minimum length
	if len(name) < 1 {
		s.log.Warn("handleGetProductBreakdown: Invalid 'name' parameter", "length", len(name))
		return mcp.NewToolResultError("Parameter 'name' must be at least 1 character long"), nil
	}

	s.log.Debug("MCP GetProductBreakdown called", "name", name)

	res, err := s.catalog.Rollup(ctx)
	if err != nil {
		s.log.Error("Catalog rollup failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Rollup failed: %v", err)), nil
	}

	breakdown, found := types.BuildBreakdown(res, name)

	// Prepare structured response
	response := BreakdownResponse{
		Found:     found,
		Breakdown: breakdown,
	}

	// Create fallback text for backwards compatibility
	responseJSON, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		s.log.Error("handleGetProductBreakdown: Failed to marshal response", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal response: %v", err)), nil
	}

	s.log.Debug("handleGetProductBreakdown: Returning structured result",
		"found", response.Found,
		"response_size", len(responseJSON))

	// Return both structured content and text fallback for maximum compatibility
	return mcp.NewToolResultStructured(response, string(responseJSON)), nil
}

func (s *Server) handleListIngredientCosts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleListIngredientCosts: Starting tool call",
		"arguments", request.GetArguments())

	res, err := s.catalog.Rollup(ctx)
	if err != nil {
		s.log.Error("Catalog rollup failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Rollup failed: %v", err)), nil
	}

	ingredients := types.IngredientCosts(res)

	// Prepare structured response
	response := IngredientCostsResponse{
		Count:       len(ingredients),
		Ingredients: ingredients,
	}

	// Create fallback text for backwards compatibility
	responseJSON, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		s.log.Error("handleListIngredientCosts: Failed to marshal response", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal response: %v", err)), nil
	}

	s.log.Debug("handleListIngredientCosts: Returning structured result",
		"count", response.Count,
		"response_size", len(responseJSON))

	// Return both structured content and text fallback for maximum compatibility
	return mcp.NewToolResultStructured(response, string(responseJSON)), nil
}

func (s *Server) handleRefreshRollup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleRefreshRollup: Starting tool call")

	res, err := s.catalog.ForceRefresh(ctx)
	if err != nil {
		s.log.Error("Forced refresh failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Refresh failed: %v", err)), nil
	}

	// Prepare structured response
	response := RefreshResponse{
		Refreshed:  true,
		Products:   len(res.Products),
		Attributes: res.Attributes,
	}

	// Create fallback text for backwards compatibility
	responseJSON, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		s.log.Error("handleRefreshRollup: Failed to marshal response", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal response: %v", err)), nil
	}

	s.log.Info("handleRefreshRollup: Catalog recomputed",
		"products", response.Products,
		"attributes", len(response.Attributes))

	// Return both structured content and text fallback for maximum compatibility
	return mcp.NewToolResultStructured(response, string(responseJSON)), nil
}

// ServeHTTP serves the MCP server over HTTP with authentication
func (s *Server) ServeHTTP(addr string) error {
	// Create a custom HTTP handler that includes authentication
	mux := http.NewServeMux()

	// Health endpoint (no auth required)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		// Use cached health check to prevent DOS attacks
		ctx := r.Context()
		if err := s.checkHealthWithCache(ctx); err != nil {
			s.log.Error("Health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "healthy",
		})
	})

	// Create the streamable HTTP server
	streamableServer := server.NewStreamableHTTPServer(
		s.mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true), // Stateless for better OpenAI compatibility
	)

	// MCP endpoint with authentication and enhanced error logging
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Add recovery middleware for better error handling
		defer func() {
			if recovery := recover(); recovery != nil {
				s.log.Error("MCP endpoint panic recovered",
					"panic", recovery,
					"method", r.Method,
					"url", r.URL.String(),
					"remote_addr", r.RemoteAddr)
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Internal Server Error"))
			}
		}()

		s.log.Debug("MCP request received",
			"method", r.Method,
			"url", r.URL.String(),
			"content_type", r.Header.Get("Content-Type"),
			"content_length", r.ContentLength,
			"remote_addr", r.RemoteAddr)

		// Check authentication for all non-health endpoints
		if !s.auth.IsAuthorized(r) {
			s.auth.SetUnauthorizedHeaders(w)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized"))
			s.log.Warn("Unauthorized MCP request", "remote_addr", r.RemoteAddr, "user_agent", r.UserAgent())
			return
		}

		// Create a custom ResponseWriter to capture response details
		recorder := &responseRecorder{ResponseWriter: w}

		// Forward to the streamable HTTP server
		streamableServer.ServeHTTP(recorder, r)

		s.log.Debug("MCP response sent",
			"status_code", recorder.statusCode,
			"response_size", recorder.bytesWritten,
			"content_type", recorder.Header().Get("Content-Type"))
	})

	s.log.Info("Starting MCP server", "addr", addr)
	return http.ListenAndServe(addr, mux)
}

// ServeStdio serves the MCP server over stdio (no auth required for local use)
func (s *Server) ServeStdio() error {
	s.log.Info("Starting MCP server in stdio mode")
	return server.ServeStdio(s.mcpServer)
}
