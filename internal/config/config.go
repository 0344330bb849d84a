package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/a3tai/mcp-pdf-signer/internal/pdf/wrapper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Delivery channels
	DeliveryDownload = "download"
	DeliverySubmit   = "submit"
	DeliveryManual   = "manual"

	// Default values
	DefaultPort          = 8080
	DefaultHost          = "127.0.0.1"
	DefaultLogLevel      = "info"
	DefaultMaxFileSize   = 100 * 1024 * 1024 // 100MB
	DefaultMaxUploadSize = 2 * 1024 * 1024   // 2MB
	DefaultMaxDimension  = 1200
	DefaultOversample    = 4.0
	DefaultFetchTimeout  = 30 * time.Second
	DefaultCacheSize     = 32
	DefaultCacheTTL      = time.Hour

	// Directory permissions
	DefaultDirPerm = 0o750

	envPrefix = "MCP_SIGN"
)

// Config holds all configuration for the signing server
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// Template configuration
	TemplateDirectory string
	MaxFileSize       int64 // Maximum template or document size in bytes
	FetchTimeout      time.Duration
	Inspector         string // Library that counts pages of templates without a page count

	// Rendering
	MaxUploadSize int64 // Maximum uploaded signature image size in bytes
	MaxDimension  int   // Uploaded signatures are downscaled to fit this many pixels
	Oversample    float64

	// Delivery
	Delivery        string
	OutputDirectory string
	SubmitURL       string

	// Document cache; RedisURL switches from the in-process LRU to Redis
	CacheSize int
	RedisURL  string
	CacheTTL  time.Duration

	// Application configuration
	Version    string
	ServerName string
	LogLevel   string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:              ModeStdio, // Default to stdio mode for MCP compatibility
		Host:              DefaultHost,
		Port:              DefaultPort,
		TemplateDirectory: currentDir,
		MaxFileSize:       DefaultMaxFileSize,
		FetchTimeout:      DefaultFetchTimeout,
		Inspector:         string(wrapper.LibraryPDFCPU),
		MaxUploadSize:     DefaultMaxUploadSize,
		MaxDimension:      DefaultMaxDimension,
		Oversample:        DefaultOversample,
		Delivery:          DeliveryDownload,
		CacheSize:         DefaultCacheSize,
		CacheTTL:          DefaultCacheTTL,
		Version:           "1.0.0",
		ServerName:        "mcp-pdf-signer",
		LogLevel:          DefaultLogLevel,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)

	for _, dir := range []*string{&cfg.TemplateDirectory, &cfg.OutputDirectory} {
		if *dir == "" {
			continue
		}
		if expandedPath, err := filepath.Abs(*dir); err == nil {
			*dir = expandedPath
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("dir", cfg.TemplateDirectory)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("maxupload", cfg.MaxUploadSize)
	viper.SetDefault("maxdimension", cfg.MaxDimension)
	viper.SetDefault("oversample", cfg.Oversample)
	viper.SetDefault("delivery", cfg.Delivery)
	viper.SetDefault("outdir", cfg.OutputDirectory)
	viper.SetDefault("submiturl", cfg.SubmitURL)
	viper.SetDefault("fetchtimeout", cfg.FetchTimeout)
	viper.SetDefault("inspector", cfg.Inspector)
	viper.SetDefault("cachesize", cfg.CacheSize)
	viper.SetDefault("redisurl", cfg.RedisURL)
	viper.SetDefault("cachettl", cfg.CacheTTL)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP server")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("dir", cfg.TemplateDirectory, "Directory containing templates and documents")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum template or document size in bytes")
	pflag.Int64("maxupload", cfg.MaxUploadSize, "Maximum uploaded signature image size in bytes")
	pflag.Int("maxdimension", cfg.MaxDimension, "Longest side of an uploaded signature after downscaling, in pixels")
	pflag.Float64("oversample", cfg.Oversample, "Pixels rendered per PDF point for signature images")
	pflag.String("delivery", cfg.Delivery, "Delivery channel for signed documents (download, submit, manual)")
	pflag.String("outdir", cfg.OutputDirectory, "Directory signed documents are written to (defaults to the system temp dir)")
	pflag.String("submiturl", cfg.SubmitURL, "Endpoint signed documents are posted to (submit delivery only)")
	pflag.Duration("fetchtimeout", cfg.FetchTimeout, "Timeout for fetching template documents by URL")
	pflag.String("inspector", cfg.Inspector, "Library used to count pages of bare documents (pdfcpu, ledongthuc)")
	pflag.Int("cachesize", cfg.CacheSize, "Number of fetched documents kept in memory")
	pflag.String("redisurl", cfg.RedisURL, "Redis URL for a shared document cache (redis://host:port/db)")
	pflag.Duration("cachettl", cfg.CacheTTL, "Expiry of documents in the Redis cache")
}

var flagNames = []string{
	"mode", "host", "port", "dir", "loglevel", "maxfilesize",
	"maxupload", "maxdimension", "oversample",
	"delivery", "outdir", "submiturl",
	"fetchtimeout", "inspector", "cachesize", "redisurl", "cachettl",
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, name := range flagNames {
		_ = viper.BindPFlag(name, pflag.Lookup(name))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nMCP PDF Signer - A Model Context Protocol server for filling and signing PDF documents\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                         "+
			"# stdio mode, current directory (default)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --dir=/path/to/templates                "+
			"# stdio mode with custom directory\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --outdir=/srv/signed      # HTTP API\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --delivery=submit --submiturl=https://example.com/signed\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  %s_MODE        Server mode\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_HOST        Server host\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_PORT        Server port\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_DIR         Template directory\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_LOGLEVEL    Log level\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_DELIVERY    Delivery channel\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_SUBMITURL   Submission endpoint\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_REDISURL    Shared document cache\n", envPrefix)
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.TemplateDirectory = viper.GetString("dir")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.MaxUploadSize = viper.GetInt64("maxupload")
	cfg.MaxDimension = viper.GetInt("maxdimension")
	cfg.Oversample = viper.GetFloat64("oversample")
	cfg.Delivery = viper.GetString("delivery")
	cfg.OutputDirectory = viper.GetString("outdir")
	cfg.SubmitURL = viper.GetString("submiturl")
	cfg.FetchTimeout = viper.GetDuration("fetchtimeout")
	cfg.Inspector = viper.GetString("inspector")
	cfg.CacheSize = viper.GetInt("cachesize")
	cfg.RedisURL = viper.GetString("redisurl")
	cfg.CacheTTL = viper.GetDuration("cachettl")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Port only matters in server mode
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.TemplateDirectory == "" {
		return errors.New("template directory cannot be empty")
	}
	if err := ensureDir(c.TemplateDirectory); err != nil {
		return err
	}
	if c.OutputDirectory != "" {
		if err := ensureDir(c.OutputDirectory); err != nil {
			return err
		}
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}
	if c.MaxUploadSize <= 0 {
		return errors.New("maximum upload size must be positive")
	}
	if c.MaxDimension <= 0 {
		return errors.New("maximum dimension must be positive")
	}
	if c.Oversample < 1 {
		return errors.New("oversample must be at least 1")
	}
	if c.FetchTimeout <= 0 {
		return errors.New("fetch timeout must be positive")
	}
	if c.CacheSize < 0 {
		return errors.New("cache size cannot be negative")
	}
	if !slices.Contains(wrapper.SupportedLibraries(), wrapper.LibraryType(c.Inspector)) {
		return fmt.Errorf("invalid inspector: %s (must be one of: %v)", c.Inspector, wrapper.SupportedLibraries())
	}

	switch c.Delivery {
	case DeliveryDownload, DeliveryManual:
	case DeliverySubmit:
		if c.SubmitURL == "" {
			return errors.New("submit delivery requires a submit URL")
		}
	default:
		return fmt.Errorf("invalid delivery: %s (must be one of: download, submit, manual)", c.Delivery)
	}
	if c.SubmitURL != "" {
		u, err := url.Parse(c.SubmitURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid submit URL: %s", c.SubmitURL)
		}
	}

	if c.RedisURL != "" && c.CacheTTL <= 0 {
		return errors.New("cache TTL must be positive when Redis is used")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// ensureDir creates dir when it does not exist yet
func ensureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access directory %s: %w", dir, err)
	}
	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, TemplateDirectory: %s, LogLevel: %s, MaxFileSize: %d, Delivery: %s, Cache: %s}",
		c.Mode, c.Host, c.Port, c.TemplateDirectory, c.LogLevel, c.MaxFileSize, c.Delivery, c.cacheKind())
}

func (c *Config) cacheKind() string {
	if c.RedisURL != "" {
		return "redis"
	}
	return "lru"
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
