package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Cuffsss/studio/internal"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"

	AuthModeJWT    = "jwt"
	AuthModeRemote = "remote"

	devSessionSecret = "dev-session-secret-change-me"
)

type Config struct {
	Env            string
	LogLevel       string
	HTTPAddr       string
	StorageBackend string
	DataDir        string
	PostgresDSN    string

	AuthMode      string
	RemoteAuthURL string
	SessionSecret string
	SessionTTL    time.Duration

	CheckupIntervalMinutes int
	AlarmIntervalMinutes   int

	SendGridAPIKey  string
	NotifyFromEmail string
}

var (
	cfg     *Config
	loadErr error
	once    sync.Once
)

// SetDefaults registers every key with its default value. Keys match the
// environment variable names.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8088")
	v.SetDefault("STORAGE_BACKEND", BackendFile)
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("AUTH_MODE", AuthModeJWT)
	v.SetDefault("REMOTE_AUTH_URL", "")
	v.SetDefault("SESSION_SECRET", devSessionSecret)
	v.SetDefault("SESSION_TTL", 7*24*time.Hour)
	v.SetDefault("CHECKUP_INTERVAL_MINUTES", 10)
	v.SetDefault("ALARM_INTERVAL_MINUTES", 2)
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("NOTIFY_FROM_EMAIL", "noreply@localhost")
}

// AddFlags declares the command-line overrides. Flag names are the lower-case,
// dash-separated form of their key.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", ":8088", "listen address")
	fs.String("storage-backend", BackendFile, "storage backend (file|postgres)")
	fs.String("data-dir", "data", "directory for JSON data files")
	fs.String("log-level", "info", "log level (debug|info|warn|error)")
	fs.String("auth-mode", AuthModeJWT, "session validation (jwt|remote)")
}

// BindFlags maps every flag in fs onto its viper key.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if bindErr := v.BindPFlag(key, f); bindErr != nil && err == nil {
			err = bindErr
		}
	})
	return err
}

// Load reads .env (when present), the environment and flags once per process.
func Load(fs *pflag.FlagSet) (*Config, error) {
	once.Do(func() {
		if _, err := os.Stat(".env"); err == nil {
			if err := godotenv.Load(".env"); err != nil {
				loadErr = fmt.Errorf("config: .env: %w", err)
				return
			}
		}
		v := viper.New()
		SetDefaults(v)
		v.AutomaticEnv()
		if fs != nil {
			if err := BindFlags(v, fs); err != nil {
				loadErr = fmt.Errorf("config: flags: %w", err)
				return
			}
		}
		cfg, loadErr = New(v)
	})
	return cfg, loadErr
}

func New(v *viper.Viper) (*Config, error) {
	c := &Config{
		Env:                    v.GetString("APP_ENV"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		HTTPAddr:               v.GetString("HTTP_ADDR"),
		StorageBackend:         strings.ToLower(v.GetString("STORAGE_BACKEND")),
		DataDir:                v.GetString("DATA_DIR"),
		PostgresDSN:            v.GetString("POSTGRES_DSN"),
		AuthMode:               strings.ToLower(v.GetString("AUTH_MODE")),
		RemoteAuthURL:          v.GetString("REMOTE_AUTH_URL"),
		SessionSecret:          v.GetString("SESSION_SECRET"),
		SessionTTL:             v.GetDuration("SESSION_TTL"),
		CheckupIntervalMinutes: v.GetInt("CHECKUP_INTERVAL_MINUTES"),
		AlarmIntervalMinutes:   v.GetInt("ALARM_INTERVAL_MINUTES"),
		SendGridAPIKey:         v.GetString("SENDGRID_API_KEY"),
		NotifyFromEmail:        v.GetString("NOTIFY_FROM_EMAIL"),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Env {
	case "development", "staging", "production":
	default:
		errs = append(errs, errors.New("APP_ENV must be one of: development, staging, production"))
	}
	switch c.StorageBackend {
	case BackendFile:
		if c.DataDir == "" {
			errs = append(errs, errors.New("DATA_DIR is required when STORAGE_BACKEND=file"))
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required when STORAGE_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be file or postgres, got %q", c.StorageBackend))
	}
	switch c.AuthMode {
	case AuthModeJWT:
	case AuthModeRemote:
		if c.RemoteAuthURL == "" {
			errs = append(errs, errors.New("REMOTE_AUTH_URL is required when AUTH_MODE=remote"))
		}
		// Alert e-mails are addressed to locally stored users, which remote
		// identities are not.
		if c.SendGridAPIKey != "" {
			errs = append(errs, errors.New("SENDGRID_API_KEY cannot be used with AUTH_MODE=remote"))
		}
	default:
		errs = append(errs, fmt.Errorf("AUTH_MODE must be jwt or remote, got %q", c.AuthMode))
	}
	if c.SessionSecret == "" || (c.Env == "production" && c.SessionSecret == devSessionSecret) {
		errs = append(errs, errors.New("SESSION_SECRET must be set"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.CheckupIntervalMinutes < 1 || c.AlarmIntervalMinutes < 1 {
		errs = append(errs, errors.New("CHECKUP_INTERVAL_MINUTES and ALARM_INTERVAL_MINUTES must be at least 1"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// DefaultSettings seeds a user's settings until they save their own.
func (c *Config) DefaultSettings() internal.Settings {
	return internal.Settings{
		CheckupIntervalMinutes: c.CheckupIntervalMinutes,
		AlarmIntervalMinutes:   c.AlarmIntervalMinutes,
		NotificationsEnabled:   true,
	}
}

func (c *Config) SecureCookies() bool {
	return c.Env == "production"
}
