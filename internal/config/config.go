// Package config holds the process configuration of the connector CLI.
// Values come from flags, ITSM_* environment variables, an optional .env
// file and an optional plain config file, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"go.uber.org/zap"

	"github.com/nucleus/itsm-core/internal/connector/servicenow"
	"github.com/nucleus/itsm-core/internal/contenttype"
	"github.com/nucleus/itsm-core/internal/core"
	"github.com/nucleus/itsm-core/internal/mapping"
)

// EnvPrefix prefixes the environment variable of every flag.
const EnvPrefix = "ITSM"

// Config is the connector configuration.
type Config struct {
	BaseURL     string
	Username    string
	Password    string
	AccessToken string
	Tenant      string

	CatalogID  string
	CategoryID string
	ItemID     string

	PageSize        int
	RelatedPageSize int
	DateOffset      time.Duration
	RateLimit       float64
	Timeout         time.Duration
	MaxRetries      int
	JoinConcurrency int

	LinkRequestItems   bool
	GenericCatalogItem string

	// ContentTypesFile and MappingsFile replace the built-in hierarchy and
	// field mappings when set.
	ContentTypesFile string
	MappingsFile     string

	LogLevel string
	LogJSON  bool
}

// RegisterFlags binds c to flags of fs.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.BaseURL, "base-url", "", "Instance URL, e.g. https://acme.service-now.com")
	fs.StringVar(&c.Username, "username", "", "Basic auth user")
	fs.StringVar(&c.Password, "password", "", "Basic auth password")
	fs.StringVar(&c.AccessToken, "access-token", "", "OAuth access token (takes precedence over basic auth)")
	fs.StringVar(&c.Tenant, "tenant", "", "Tenant whose field mapping overrides apply")
	fs.StringVar(&c.CatalogID, "catalog-id", "", "Service catalog whose categories are listed")
	fs.StringVar(&c.CategoryID, "category-id", "", "Service catalog category whose items are listed")
	fs.StringVar(&c.ItemID, "item-id", "", "Single service catalog item to read")
	fs.IntVar(&c.PageSize, "page-size", servicenow.DefaultPageSize, "Primary records per request")
	fs.IntVar(&c.RelatedPageSize, "related-page-size", servicenow.DefaultRelatedPageSize, "Related records per join request")
	fs.DurationVar(&c.DateOffset, "date-offset", 0, "Shift applied to date range bounds")
	fs.Float64Var(&c.RateLimit, "rate-limit", 10, "Requests per second")
	fs.DurationVar(&c.Timeout, "timeout", 30*time.Second, "Per request timeout")
	fs.IntVar(&c.MaxRetries, "max-retries", 3, "Retries for 429 and 5xx responses, negative disables")
	fs.IntVar(&c.JoinConcurrency, "join-concurrency", 4, "Join passes run at once per page")
	fs.BoolVar(&c.LinkRequestItems, "link-request-items", false, "Create a request item for every created request")
	fs.StringVar(&c.GenericCatalogItem, "generic-catalog-item", servicenow.DefaultCatalogItem, "Catalog item attached to linked request items")
	fs.StringVar(&c.ContentTypesFile, "content-types", "", "YAML content type hierarchy")
	fs.StringVar(&c.MappingsFile, "mappings", "", "YAML field mapping table")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug, info, warn or error")
	fs.BoolVar(&c.LogJSON, "log-json", false, "Log as JSON")
}

// RegisterConfigFileFlag adds the -config flag read by ParseOptions.
func RegisterConfigFileFlag(fs *flag.FlagSet) {
	if fs.Lookup("config") == nil {
		fs.String("config", "", "Config file, one \"flag value\" pair per line")
	}
}

// ParseOptions are the ff options shared by every command.
func ParseOptions() []ff.Option {
	return []ff.Option{
		ff.WithEnvVarPrefix(EnvPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithAllowMissingConfigFile(true),
	}
}

// Parse reads args, environment and the optional config file into the
// flags of fs.
func Parse(fs *flag.FlagSet, args []string) error {
	RegisterConfigFileFlag(fs)
	return ff.Parse(fs, args, ParseOptions()...)
}

// LoadDotEnv loads the first readable .env file of paths into the
// environment. Variables already set win.
func LoadDotEnv(paths ...string) (string, error) {
	for _, p := range paths {
		err := godotenv.Load(p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("load %s: %w", p, err)
		}
	}
	return "", nil
}

// Validate checks the settings the connector cannot start without.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return &core.ConfigurationError{Reason: "base-url is required"}
	}
	if c.AccessToken == "" && (c.Username == "" || c.Password == "") {
		return &core.ConfigurationError{Reason: "set access-token or username and password"}
	}
	if c.PageSize < 0 || c.RelatedPageSize < 0 {
		return &core.ConfigurationError{Reason: "page sizes must not be negative"}
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return &core.ConfigurationError{Reason: "log-level", Err: err}
	}
	return nil
}

// ServiceNow returns the adapter configuration.
func (c *Config) ServiceNow() *servicenow.Config {
	return &servicenow.Config{
		BaseURL:            c.BaseURL,
		AccessToken:        c.AccessToken,
		Username:           c.Username,
		Password:           c.Password,
		Tenant:             c.Tenant,
		CatalogID:          c.CatalogID,
		CategoryID:         c.CategoryID,
		ItemID:             c.ItemID,
		PageSize:           c.PageSize,
		RelatedPageSize:    c.RelatedPageSize,
		DateOffset:         c.DateOffset,
		RateLimit:          c.RateLimit,
		Timeout:            c.Timeout,
		MaxRetries:         c.MaxRetries,
		JoinConcurrency:    c.JoinConcurrency,
		LinkRequestItems:   c.LinkRequestItems,
		GenericCatalogItem: c.GenericCatalogItem,
	}
}

// AdapterOptions loads the configured hierarchy and mapping files.
func (c *Config) AdapterOptions(logger *zap.Logger) ([]servicenow.Option, error) {
	opts := []servicenow.Option{servicenow.WithLogger(logger)}
	if c.ContentTypesFile != "" {
		reg, err := contenttype.LoadFile(c.ContentTypesFile)
		if err != nil {
			return nil, &core.ConfigurationError{Reason: "content types", Err: err}
		}
		opts = append(opts, servicenow.WithRegistry(reg))
	}
	if c.MappingsFile != "" {
		table, err := mapping.LoadFile(c.MappingsFile)
		if err != nil {
			return nil, &core.ConfigurationError{Reason: "mappings", Err: err}
		}
		opts = append(opts, servicenow.WithMappings(table))
	}
	return opts, nil
}

// Logger builds the process logger.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	if c.LogJSON {
		zc = zap.NewProductionConfig()
	}
	zc.Level = level
	return zc.Build()
}
