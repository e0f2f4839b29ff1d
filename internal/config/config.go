package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	App struct {
		Env string
	}
	Server struct {
		Addr string
		// proxies whose X-Forwarded-For is honored; empty trusts none
		TrustedProxies []string
	}
	Database struct {
		Path string
	}
	Auth struct {
		JWTSecret  string
		BcryptCost int
	}
	Log struct {
		Level string
	}
	RateLimit struct {
		Login struct {
			RPS   float64
			Burst int
		}
	}
	CORS struct {
		AllowOrigin string
	}
}

// IsProduction reports whether the process runs in the production environment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.App.Env), "production")
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv(".env")

	v := viper.New()
	v.SetEnvPrefix("MARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.env", "development")
	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.trustedproxies", []string{})
	v.SetDefault("database.path", "data/market.db")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.bcryptcost", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("ratelimit.login.rps", 1.0)
	v.SetDefault("ratelimit.login.burst", 5)
	v.SetDefault("cors.alloworigin", "*")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// AUTH_SECRET is the name older deployments used for the signing key.
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		cfg.Auth.JWTSecret = os.Getenv("AUTH_SECRET")
	}

	return cfg, nil
}

// loadDotEnv fills unset environment variables from path, if it exists.
func loadDotEnv(path string) {
	_ = godotenv.Load(path)
}
