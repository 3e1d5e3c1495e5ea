package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultNutrientColumns are the nutrient attributes probed in the master
// ingredient worksheet. Columns absent from the worksheet are skipped by the
// rollup, so this list is a superset of what any given workbook carries.
var DefaultNutrientColumns = []string{
	"CALORIAS_KCAL",
	"PROTEINAS_G",
	"CARBOIDRATOS_G",
	"GORDURAS_G",
}

// Config holds all configuration for the costing server
type Config struct {
	// Auth
	AuthToken string

	// Workbook source
	SheetID       string
	SheetsBaseURL string
	DataDir       string
	MetadataPath  string
	LockFile      string
	// DisableFetch skips remote snapshot refreshes and serves whatever
	// snapshots already exist on disk.
	DisableFetch bool

	// Rollup behavior
	RefreshIntervalMinutes int
	NutrientColumns        []string

	// Server
	Port string
}

// Load reads configuration from environment variables
func Load() *Config {
	dataDir := getEnv("DATA_DIR", "./data")

	refreshMinutes := 10
	if m := os.Getenv("REFRESH_INTERVAL_MINUTES"); m != "" {
		if parsed, err := strconv.Atoi(m); err == nil {
			refreshMinutes = parsed
		}
	}

	return &Config{
		AuthToken:              getEnv("AUTH_TOKEN", "super-secret-token"),
		SheetID:                getEnv("SHEET_ID", ""),
		SheetsBaseURL:          getEnv("SHEETS_BASE_URL", "https://docs.google.com/spreadsheets/d"),
		DataDir:                dataDir,
		MetadataPath:           getEnv("METADATA_PATH", filepath.Join(dataDir, "metadata.json")),
		LockFile:               getEnv("LOCK_FILE", filepath.Join(dataDir, "refresh.lock")),
		DisableFetch:           os.Getenv("DISABLE_FETCH") == "true",
		RefreshIntervalMinutes: refreshMinutes,
		NutrientColumns:        parseNutrientColumns(os.Getenv("NUTRIENT_COLUMNS")),
		Port:                   getEnv("PORT", "8080"),
	}
}

// RefreshInterval returns the snapshot and rollup refresh interval as a
// duration. A stale cached rollup may be served for up to this long.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMinutes) * time.Minute
}

func parseNutrientColumns(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return DefaultNutrientColumns
	}
	var cols []string
	for _, c := range strings.Split(raw, ",") {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		return DefaultNutrientColumns
	}
	return cols
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
