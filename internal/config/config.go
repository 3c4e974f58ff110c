// Package config provides XML-based configuration management for local and
// air-gapped deployment.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"FairLens"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Upload intake configuration
	Intake IntakeConfig `xml:"Intake"`

	// Assistant (conversational service) configuration
	Assistant AssistantConfig `xml:"Assistant"`

	// Analysis service configuration
	Analysis AnalysisConfig `xml:"Analysis"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains the upload cache location
type StorageConfig struct {
	DataDirectory  string `xml:"DataDirectory"`
	CacheDirectory string `xml:"CacheDirectory"`
}

// IntakeConfig tunes the upload processing policy
type IntakeConfig struct {
	SizeThresholdBytes   int64 `xml:"SizeThresholdBytes"`
	PreviewByteBudget    int   `xml:"PreviewByteBudget"`
	PreviewCharBudget    int   `xml:"PreviewCharBudget"`
	MaxPreviewRows       int   `xml:"MaxPreviewRows"`
	MaxPreviewCols       int   `xml:"MaxPreviewCols"`
	HeuristicStepPercent int   `xml:"HeuristicStepPercent"`
	HeuristicIntervalMs  int   `xml:"HeuristicIntervalMs"`
}

// AssistantConfig points at the conversational service
type AssistantConfig struct {
	BaseURL            string `xml:"BaseURL"`
	HardTimeoutSeconds int    `xml:"HardTimeoutSeconds"`
	ErrorGateSeconds   int    `xml:"ErrorGateSeconds"`
	PresetsFile        string `xml:"PresetsFile"`
}

// AnalysisConfig points at the analysis service
type AnalysisConfig struct {
	BaseURL        string `xml:"BaseURL"`
	TimeoutSeconds int    `xml:"TimeoutSeconds"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	PrettyLogging        bool   `xml:"PrettyLogging"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			// Zero disables the per-connection deadlines; uploads, SSE
			// streams, and assistant calls all outlive a 30s window.
			ReadTimeout:  0,
			WriteTimeout: 0,
			IdleTimeout:  120,
			BodyLimit:    "512M",
		},
		Storage: StorageConfig{
			DataDirectory:  "./data",
			CacheDirectory: "./data/cache",
		},
		Intake: IntakeConfig{
			SizeThresholdBytes:   1 << 20,
			PreviewByteBudget:    64 << 10,
			PreviewCharBudget:    4000,
			MaxPreviewRows:       50,
			MaxPreviewCols:       30,
			HeuristicStepPercent: 5,
			HeuristicIntervalMs:  200,
		},
		Assistant: AssistantConfig{
			BaseURL:            "http://localhost:8000/api",
			HardTimeoutSeconds: 120,
			ErrorGateSeconds:   4,
			PresetsFile:        "./data/defaults/presets.yaml",
		},
		Analysis: AnalysisConfig{
			BaseURL:        "http://localhost:8000/api",
			TimeoutSeconds: 300,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			PrettyLogging:        false,
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &AppConfig{}
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- FairLens Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}

	if base := os.Getenv("ANALYSIS_BASE_URL"); base != "" {
		c.Analysis.BaseURL = base
	}

	if base := os.Getenv("ASSISTANT_BASE_URL"); base != "" {
		c.Assistant.BaseURL = base
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.CacheDirectory) {
		c.Storage.CacheDirectory = filepath.Join(configDir, c.Storage.CacheDirectory)
	}
	if !filepath.IsAbs(c.Assistant.PresetsFile) {
		c.Assistant.PresetsFile = filepath.Join(configDir, c.Assistant.PresetsFile)
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetCacheDir returns the absolute upload cache directory path
func (c *AppConfig) GetCacheDir() string {
	return c.Storage.CacheDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.CacheDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
