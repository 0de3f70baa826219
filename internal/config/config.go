package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/medconnect/telemed/internal/domain/availability"
)

type Config struct {
	Env             string        `mapstructure:"ENV"`
	APIBaseURL      string        `mapstructure:"API_BASE_URL"`
	APIToken        string        `mapstructure:"API_TOKEN"`
	HTTPTimeout     time.Duration `mapstructure:"HTTP_TIMEOUT"`
	ClinicTimezone  string        `mapstructure:"CLINIC_TIMEZONE"`
	SlotStartHour   int           `mapstructure:"SLOT_START_HOUR"`
	SlotEndHour     int           `mapstructure:"SLOT_END_HOUR"`
	SlotStepMinutes int           `mapstructure:"SLOT_STEP_MINUTES"`
	Port            string        `mapstructure:"PORT"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSigningKey   string        `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer       string        `mapstructure:"JWT_ISSUER"`
}

var keys = []string{
	"ENV", "API_BASE_URL", "API_TOKEN", "HTTP_TIMEOUT",
	"CLINIC_TIMEZONE", "SLOT_START_HOUR", "SLOT_END_HOUR", "SLOT_STEP_MINUTES",
	"PORT", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"JWT_SIGNING_KEY", "JWT_ISSUER",
}

// Load reads .env from the working directory if present, then the
// environment. Environment values win.
func Load() (*Config, error) {
	return load(".env")
}

func load(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(file)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("API_BASE_URL", "http://localhost:8000")
	v.SetDefault("HTTP_TIMEOUT", "15s")
	v.SetDefault("CLINIC_TIMEZONE", "Europe/Moscow")
	v.SetDefault("SLOT_START_HOUR", 6)
	v.SetDefault("SLOT_END_HOUR", 24)
	v.SetDefault("SLOT_STEP_MINUTES", 30)
	v.SetDefault("PORT", "8000")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("JWT_ISSUER", "telemed")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// GridSpec builds the slot grid from the SLOT_* and CLINIC_TIMEZONE settings.
func (c *Config) GridSpec() (availability.GridSpec, error) {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return availability.GridSpec{}, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	grid := availability.GridSpec{
		Location:    loc,
		StartHour:   c.SlotStartHour,
		EndHour:     c.SlotEndHour,
		StepMinutes: c.SlotStepMinutes,
	}
	if err := grid.Validate(); err != nil {
		return availability.GridSpec{}, err
	}
	return grid, nil
}

// Validate checks that the configuration is safe to run. Outside development
// the sandbox server refuses unsigned tokens, so JWT_SIGNING_KEY is required.
func (c *Config) Validate() error {
	if _, err := c.GridSpec(); err != nil {
		return err
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if !c.IsDev() && c.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
