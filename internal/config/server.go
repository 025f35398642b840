package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

type ServerConfig struct {
	Port        string
	SourceMode  string // "live", "file" or "demo"
	Strict      bool
	APIKey      string
	DataDir     string
	DataDate    string // only resolved when SourceMode is "file"
	ConfigPath  string
	CORSOrigins []string
}

func LoadServerConfig() (*ServerConfig, error) {
	cfg := &ServerConfig{
		Port:        getEnvOrDefault("PORT", "8080"),
		SourceMode:  strings.ToLower(getEnvOrDefault("SOURCE_MODE", "live")),
		Strict:      getEnvOrDefault("STRICT", "false") == "true",
		APIKey:      getEnvOrDefault("HEATSEEKER_API_KEY", os.Getenv("POLYGON_API_KEY")),
		DataDir:     getEnvOrDefault("DATA_DIR", "./data"),
		DataDate:    getEnvOrDefault("DATA_DATE", ""),
		ConfigPath:  getEnvOrDefault("HEATSEEKER_CONFIG", ""),
		CORSOrigins: splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
	}

	switch cfg.SourceMode {
	case "live", "demo":
	case "file":
		// Auto-detect latest date if DATA_DATE is empty or "latest"
		if cfg.DataDate == "" || cfg.DataDate == "latest" {
			detected, err := DetectLatestDate(cfg.DataDir)
			if err != nil {
				return nil, fmt.Errorf("failed to detect latest date in %s: %w", cfg.DataDir, err)
			}
			cfg.DataDate = detected
		}
	default:
		return nil, fmt.Errorf("invalid SOURCE_MODE: %s (must be 'live', 'file' or 'demo')", cfg.SourceMode)
	}

	return cfg, nil
}

// DetectLatestDate scans the data directory for date folders and returns the most recent one
func DetectLatestDate(dataDir string) (string, error) {
	datePattern := regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return "", fmt.Errorf("reading data directory: %w", err)
	}

	var dates []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if datePattern.MatchString(name) {
			// Verify it's not empty (has at least one ticker folder inside)
			subEntries, err := os.ReadDir(filepath.Join(dataDir, name))
			if err == nil && len(subEntries) > 0 {
				dates = append(dates, name)
			}
		}
	}

	if len(dates) == 0 {
		return "", fmt.Errorf("no date folders found in %s", dataDir)
	}

	// YYYY-MM-DD sorts lexicographically
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	return dates[0], nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
