package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/intentmarket/internal/address"
	"github.com/starford/intentmarket/internal/api"
	"github.com/starford/intentmarket/internal/program"
	"github.com/starford/intentmarket/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = api.AuthModeDisabled
	AuthModeToken    = api.AuthModeToken
	AuthModeJWT      = api.AuthModeJWT
)

// minJWTSecretLen is the shortest accepted HS256 secret, in bytes.
const minJWTSecretLen = 32

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Ledger  LedgerConfig      `yaml:"ledger"`
	Storage StorageConfig     `yaml:"storage"`
	Auth    AuthConfig        `yaml:"auth"`
	Events  EventsConfig      `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Ledger.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Events.Validate()
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

// LedgerConfig holds the program id and the match ownership policy.
type LedgerConfig struct {
	// ProgramID is a hex public key. Empty selects program.DefaultID.
	ProgramID  string `yaml:"program_id"`
	MatchOwner string `yaml:"match_owner"`
}

// Validate validates the ledger configuration.
func (c *LedgerConfig) Validate() error {
	if c.MatchOwner == "" {
		c.MatchOwner = string(program.OwnerIntentA)
	}
	policies := make([]any, len(program.Policies))
	for i, p := range program.Policies {
		policies[i] = string(p)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.ProgramID, validation.By(func(any) error {
			_, err := c.ProgramPubkey()
			return err
		})),
		validation.Field(&c.MatchOwner, validation.In(policies...)),
	)
}

// ProgramPubkey returns the configured program id.
func (c *LedgerConfig) ProgramPubkey() (address.Pubkey, error) {
	if c.ProgramID == "" {
		return program.DefaultID, nil
	}
	return address.Parse(c.ProgramID)
}

// Policy returns the match ownership policy.
func (c *LedgerConfig) Policy() program.OwnerPolicy {
	return program.OwnerPolicy(c.MatchOwner)
}

// StorageConfig selects and configures the account store backend.
type StorageConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	FS       FSConfig       `yaml:"fs"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// Validate validates the storage configuration and the selected backend.
func (c *StorageConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(
			storage.DriverMemory, storage.DriverSQLite, storage.DriverFS, storage.DriverPostgres)),
	); err != nil {
		return err
	}
	switch c.Driver {
	case storage.DriverSQLite:
		return c.SQLite.Validate()
	case storage.DriverFS:
		return c.FS.Validate()
	case storage.DriverPostgres:
		return c.Postgres.Validate()
	}
	return nil
}

// Options converts the configuration for storage.Open.
func (c *StorageConfig) Options() storage.Options {
	return storage.Options{
		Driver:      c.Driver,
		SQLitePath:  c.SQLite.Path,
		FSPath:      c.FS.Path,
		PostgresDSN: c.Postgres.DSN,
	}
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// FSConfig holds the account directory of the file backend.
type FSConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the FS configuration.
func (c *FSConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// PostgresConfig holds the Postgres connection string.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// Validate validates the Postgres configuration.
func (c *PostgresConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DSN, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
//   - "jwt": Bearer HS256 JWT; JWTSecret must be at least 32 bytes.
type AuthConfig struct {
	Mode      string `yaml:"mode"`
	Token     string `yaml:"token"`
	JWTSecret string `yaml:"jwt_secret"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken, AuthModeJWT)),
	); err != nil {
		return err
	}
	switch {
	case c.Mode == AuthModeToken && c.Token == "":
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	case c.Mode == AuthModeJWT && len(c.JWTSecret) < minJWTSecretLen:
		return fmt.Errorf("auth: mode is %q but jwt_secret is shorter than %d bytes", AuthModeJWT, minJWTSecretLen)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken || c.Mode == AuthModeJWT
}

// Settings converts the configuration for api.AuthMiddleware.
func (c *AuthConfig) Settings() api.AuthSettings {
	return api.AuthSettings{Mode: c.Mode, Token: c.Token, JWTSecret: []byte(c.JWTSecret)}
}

// EventsConfig configures the SSE broker.
type EventsConfig struct {
	// Throttle is the minimum interval between ledger.updated summaries.
	Throttle time.Duration `yaml:"throttle"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	if c.Throttle < 0 {
		return errors.New("events: throttle must not be negative")
	}
	return nil
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
		Ledger: LedgerConfig{
			MatchOwner: string(program.OwnerIntentA),
		},
		Storage: StorageConfig{
			Driver: storage.DriverSQLite,
			SQLite: SQLiteConfig{Path: "./intentmarket.db"},
			FS:     FSConfig{Path: "./accounts"},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Events: EventsConfig{
			Throttle: 2 * time.Second,
		},
	}
}
