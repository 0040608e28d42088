package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/atelier/internal/export"
	"github.com/starford/atelier/internal/gallery"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Export targets.
const (
	ExportTargetDir = "dir"
	ExportTargetS3  = "s3"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Remote   RemoteConfig      `yaml:"remote"`
	Identity IdentityConfig    `yaml:"identity"`
	Gallery  GalleryConfig     `yaml:"gallery"`
	Cache    CacheConfig       `yaml:"cache"`
	Export   ExportConfig      `yaml:"export"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Remote.Validate(); err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	if err := c.Identity.Validate(); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if err := c.Gallery.Validate(); err != nil {
		return fmt.Errorf("gallery: %w", err)
	}
	if err := c.Export.Validate(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
	// UploadDir stages files posted to the generation endpoints.
	// Empty means the OS temp dir.
	UploadDir string `yaml:"upload_dir"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// RemoteConfig points at the remote collection API.
type RemoteConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	Burst     int           `yaml:"burst"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, validation.By(absoluteURL)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RateLimit, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.Min(0)),
	)
}

// IdentityConfig supplies the bearer token and acting user.
//
// Exactly one of Token and TokenFile must be set. TokenFile is watched and
// reloaded on change. When UserID is empty it is read from the token's sub
// claim.
type IdentityConfig struct {
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
	UserID    string `yaml:"user_id"`
}

// Validate validates the identity configuration.
func (c *IdentityConfig) Validate() error {
	switch {
	case c.Token == "" && c.TokenFile == "":
		return errors.New("token or token_file is required")
	case c.Token != "" && c.TokenFile != "":
		return errors.New("token and token_file are mutually exclusive")
	}
	return nil
}

// GalleryConfig tunes the mounted views.
type GalleryConfig struct {
	PageSize    int           `yaml:"page_size"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	// RefreshInterval re-fetches mounted views while serving. Zero disables.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// Validate validates the gallery configuration.
func (c *GalleryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PageSize, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.CallTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RefreshInterval, validation.Min(time.Duration(0))),
	)
}

// CacheConfig holds the SQLite snapshot cache location. An empty path
// disables the cache.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether a cache path is configured.
func (c *CacheConfig) Enabled() bool { return c.Path != "" }

// ExportConfig selects where exports are saved.
type ExportConfig struct {
	Target string         `yaml:"target"`
	Dir    string         `yaml:"dir"`
	S3     S3ExportConfig `yaml:"s3"`
}

// S3ExportConfig holds bucket export settings.
type S3ExportConfig struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Validate validates the export configuration.
func (c *ExportConfig) Validate() error {
	if c.Target == "" {
		c.Target = ExportTargetDir
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Target, validation.In(ExportTargetDir, ExportTargetS3)),
		validation.Field(&c.Dir, validation.When(c.Target == ExportTargetDir, validation.Required)),
	); err != nil {
		return err
	}
	if c.Target != ExportTargetS3 {
		return nil
	}
	return validation.ValidateStruct(&c.S3,
		validation.Field(&c.S3.Bucket, validation.Required),
		validation.Field(&c.S3.Endpoint, validation.By(absoluteURL)),
	)
}

// S3Config converts the bucket settings for the export package.
func (c *ExportConfig) S3Config() export.S3Config {
	return export.S3Config{
		Bucket:    c.S3.Bucket,
		Prefix:    c.S3.Prefix,
		Region:    c.S3.Region,
		Endpoint:  c.S3.Endpoint,
		AccessKey: c.S3.AccessKey,
		SecretKey: c.S3.SecretKey,
	}
}

func absoluteURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
}

// AuthConfig holds authentication configuration for the local HTTP surface.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Remote: RemoteConfig{
			BaseURL:   "http://localhost:3000",
			Timeout:   30 * time.Second,
			RateLimit: 5,
			Burst:     10,
		},
		Gallery: GalleryConfig{
			PageSize:    gallery.DefaultPageSize,
			CallTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Path: "./atelier.db",
		},
		Export: ExportConfig{
			Target: ExportTargetDir,
			Dir:    "./exports",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
