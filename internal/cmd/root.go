package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/padoca-app/bakery-costing-mcp-server/internal/auth"
	"github.com/padoca-app/bakery-costing-mcp-server/internal/catalog"
	"github.com/padoca-app/bakery-costing-mcp-server/internal/config"
	"github.com/padoca-app/bakery-costing-mcp-server/internal/mcpgo"
	"github.com/padoca-app/bakery-costing-mcp-server/internal/source"
	"github.com/padoca-app/bakery-costing-mcp-server/internal/version"
	"github.com/padoca-app/bakery-costing-mcp-server/internal/workbook"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "bakery-costing-mcp-server",
	Short:   "Bakery costing MCP server with DuckDB",
	Version: version.String(),
	Long: `Bakery costing MCP server rolls the bakery's recipe workbook up into a
costed product catalog and serves it via a remote MCP server, using DuckDB
to query the worksheet snapshots.

The server operates in three modes:

1. STDIO Mode (--stdio): For local Claude Desktop integration
   - Uses stdio pipes for communication
   - No authentication required
   - Perfect for local development and Claude Desktop

2. HTTP Mode (default): For remote deployment over the internet
   - Exposes HTTP endpoints with JSON-RPC 2.0
   - Requires Bearer token authentication (except /health)
   - Ideal for shared/remote MCP server deployments

3. Fetch Sheets Mode (--fetch-sheets): Download the workbook and exit
   - Downloads/updates the worksheet CSV snapshots from Google Sheets
   - Exits after download completion (does not start server)
   - Useful for pre-populating the snapshot cache

The server downloads and caches the bakery workbook's worksheets
(master ingredients, base recipes, final recipes, market prices) and
provides MCP-compliant endpoints for catalog costing, margin analysis,
nutrition rollups and per-product recipe breakdowns.

Available MCP Tools:
- list_products: The costed catalog with margins and nutrient totals
- get_product_breakdown: Per-product recipe and base composition drill-down
- list_ingredient_costs: Normalized per-unit ingredient cost table
- refresh_rollup: Re-download the workbook and recompute everything

Authentication (HTTP Mode Only):
Bearer token authentication is required for all MCP endpoints except /health.
Use the AUTH_TOKEN environment variable to set the token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Check if we should only fetch the worksheets
		fetchSheets, _ := cmd.Flags().GetBool("fetch-sheets")
		if fetchSheets {
			return runFetchSheetsMode(cmd, args)
		}

		// Check if we should run in stdio mode (for Claude Desktop)
		stdio, _ := cmd.Flags().GetBool("stdio")

		if stdio {
			return runStdioMode(cmd, args)
		} else {
			return runHTTPMode(cmd, args)
		}
	},
}

func init() {
	rootCmd.Flags().Bool("stdio", false, "Run in stdio mode for local Claude Desktop integration (default: HTTP mode for remote deployment)")
	rootCmd.Flags().Bool("fetch-sheets", false, "Fetch the workbook snapshots and exit (useful for downloading the worksheets without starting the server)")
}

// runFetchSheetsMode fetches the workbook snapshots and exits
func runFetchSheetsMode(cmd *cobra.Command, args []string) error {
	// Setup logger for fetch mode
	logger := config.NewTextLogger(os.Stdout)

	// Load configuration
	cfg := config.Load()

	logger.Info("🗄️  Starting workbook fetch",
		"mode", "fetch-sheets",
		"description", "Download and cache the bakery workbook snapshots",
		"sheet_id", cfg.SheetID,
		"target_dir", cfg.DataDir)

	workbookManager := workbook.NewManager(cfg, logger)

	// Ensure the snapshots are available (this will download if needed)
	ctx := context.Background()
	if err := workbookManager.EnsureSnapshot(ctx); err != nil {
		logger.Error("Failed to fetch workbook", "error", err)
		return err
	}

	logger.Info("✅ Workbook fetch completed successfully",
		"data_dir", cfg.DataDir,
		"metadata_path", cfg.MetadataPath)

	return nil
}

// runStdioMode runs the MCP server in stdio mode for Claude Desktop
func runStdioMode(cmd *cobra.Command, args []string) error {
	// Use a logger that writes to stderr to avoid interfering with stdio MCP communication
	logger := config.NewLogger(true) // true for stdio mode

	// Load configuration
	cfg := config.Load()

	logger.Info("🔌 Starting Bakery Costing MCP Server in STDIO mode",
		"mode", "stdio",
		"description", "Local MCP server for Claude Desktop integration",
		"auth", "not required for stdio mode",
		"transport", "stdio pipes")

	svc, err := buildCatalogService(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	// Create auth (not needed for stdio but required by constructor)
	authenticator := auth.NewBearerTokenAuth(cfg.AuthToken)

	// Create MCP server
	mcpSrv := mcpgo.NewServer(svc, authenticator, logger)

	// Run the MCP server on stdio transport (no auth needed for local use)
	return mcpSrv.ServeStdio()
}

// runHTTPMode runs the MCP server in HTTP mode for remote deployment
func runHTTPMode(cmd *cobra.Command, args []string) error {
	// Setup structured logging for HTTP mode
	logger := config.NewLogger(false) // false for HTTP mode

	// Load configuration
	cfg := config.Load()

	logger.Info("🌐 Starting Bakery Costing MCP Server in HTTP mode",
		"mode", "http",
		"description", "Remote MCP server with API key authentication",
		"auth", "Bearer token required (except /health endpoint)",
		"transport", "HTTP/JSON-RPC 2.0",
		"port", cfg.Port)

	svc, err := buildCatalogService(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	// Create auth
	authenticator := auth.NewBearerTokenAuth(cfg.AuthToken)

	// Create MCP server
	mcpSrv := mcpgo.NewServer(svc, authenticator, logger)

	// Run the MCP server on HTTP transport with auth
	return mcpSrv.ServeHTTP(":" + cfg.Port)
}

// buildCatalogService wires the workbook manager, the worksheet source and
// the catalog service, and primes the snapshot cache.
func buildCatalogService(cfg *config.Config, logger *slog.Logger) (*catalog.Service, error) {
	workbookManager := workbook.NewManager(cfg, logger)

	// Ensure the worksheet snapshots are available
	ctx := context.Background()
	if err := workbookManager.EnsureSnapshot(ctx); err != nil {
		logger.Error("Failed to ensure workbook snapshots", "error", err)
		return nil, err
	}

	// Create the worksheet source
	src, err := source.NewSource(cfg.DataDir, logger)
	if err != nil {
		logger.Error("Failed to create worksheet source", "error", err)
		return nil, err
	}

	// Verify the snapshots are readable
	if err := src.HealthCheck(ctx); err != nil {
		logger.Error("Failed to read worksheet snapshots", "error", err)
		src.Close()
		return nil, err
	}

	return catalog.New(src, workbookManager, cfg, logger), nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// Run is the main entry point for the CLI application
func Run() error {
	return Execute()
}
