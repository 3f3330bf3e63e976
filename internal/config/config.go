package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                   string   `mapstructure:"PORT"`
	Env                    string   `mapstructure:"ENV"`
	DatabaseURL            string   `mapstructure:"DATABASE_URL"`
	DBMaxConns             int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns             int32    `mapstructure:"DB_MIN_CONNS"`
	SupabaseURL            string   `mapstructure:"SUPABASE_URL"`
	SupabaseServiceRoleKey string   `mapstructure:"SUPABASE_SERVICE_ROLE_KEY"`
	SupabaseJWTSecret      string   `mapstructure:"SUPABASE_JWT_SECRET"`
	SupabaseJWKSURL        string   `mapstructure:"SUPABASE_JWKS_URL"`
	LicenseBucket          string   `mapstructure:"LICENSE_BUCKET"`
	ResendAPIKey           string   `mapstructure:"RESEND_API_KEY"`
	ResendBaseURL          string   `mapstructure:"RESEND_BASE_URL"`
	EmailFrom              string   `mapstructure:"EMAIL_FROM"`
	CORSOrigins            []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS           float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst         int      `mapstructure:"RATE_LIMIT_BURST"`
	OTPTTLMinutes          int      `mapstructure:"OTP_TTL_MINUTES"`
	ClinicTimezone         string   `mapstructure:"CLINIC_TIMEZONE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("LICENSE_BUCKET", "licenses")
	v.SetDefault("RESEND_BASE_URL", "https://api.resend.com")
	v.SetDefault("EMAIL_FROM", "ZynCure <no-reply@zyncure.app>")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("OTP_TTL_MINUTES", 5)
	v.SetDefault("CLINIC_TIMEZONE", "UTC")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"SUPABASE_URL", "SUPABASE_SERVICE_ROLE_KEY", "SUPABASE_JWT_SECRET",
		"SUPABASE_JWKS_URL", "LICENSE_BUCKET", "RESEND_API_KEY", "RESEND_BASE_URL", "EMAIL_FROM",
		"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "OTP_TTL_MINUTES",
		"CLINIC_TIMEZONE",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ENV=development, DevAuthMiddleware accepts unauthenticated requests as admin.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// OTPTTL is how long an issued one-time code stays valid.
func (c *Config) OTPTTL() time.Duration {
	if c.OTPTTLMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.OTPTTLMinutes) * time.Minute
}

// Validate checks that the configuration is safe to run. Outside development
// a token verification key (JWT secret or JWKS URL) is mandatory, and
// production additionally needs the email provider key and the Supabase
// service credentials used by the OTP functions.
func (c *Config) Validate() error {
	if !c.IsDev() && c.SupabaseJWTSecret == "" && c.SupabaseJWKSURL == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET or SUPABASE_JWKS_URL must be set when ENV=%q", c.Env)
	}
	if c.IsProduction() {
		if c.ResendAPIKey == "" {
			return fmt.Errorf("RESEND_API_KEY is required in production")
		}
		if c.SupabaseURL == "" || c.SupabaseServiceRoleKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required in production")
		}
	}
	if c.ClinicTimezone != "" {
		if _, err := time.LoadLocation(c.ClinicTimezone); err != nil {
			return fmt.Errorf("CLINIC_TIMEZONE: %w", err)
		}
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}

// Location returns the zone appointment dates and times are interpreted in.
func (c *Config) Location() *time.Location {
	if c.ClinicTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
