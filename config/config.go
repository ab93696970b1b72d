// Package config builds voxcache components from environment variables.
//
// Values come from the process environment first, then from .env files
// (joho/godotenv), and are parsed into Config with caarlos0/env.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/unkn0wn-root/voxcache"
	"github.com/unkn0wn-root/voxcache/codec"
)

// Config is the flat environment-facing configuration.
//
// Enumerated values: VOXCACHE_SIZING is sample or bytes. VOXCACHE_TIER is none,
// ristretto, bigcache, gocache or redis, and VOXCACHE_TIER_CODEC is json, msgpack
// or cbor. VOXCACHE_SESSIONS is local or redis. VOXCACHE_LOG_BACKEND is zap,
// logrus, slog or none; VOXCACHE_LOG_FILE (zap only) is rotated with lumberjack.
// VOXCACHE_TIER_MAX_FRAME caps decoded primitive lists, and a positive
// VOXCACHE_HOOK_QUEUE delivers hooks asynchronously.
type Config struct {
	ByteBudget int64  `env:"VOXCACHE_BYTE_BUDGET" envDefault:"1073741824"`
	Sizing     string `env:"VOXCACHE_SIZING" envDefault:"sample"`
	Disabled   bool   `env:"VOXCACHE_DISABLED"`

	Tier         string        `env:"VOXCACHE_TIER" envDefault:"none"`
	TierTTL      time.Duration `env:"VOXCACHE_TIER_TTL" envDefault:"10m"`
	TierMaxBytes int64         `env:"VOXCACHE_TIER_MAX_BYTES" envDefault:"268435456"`
	TierCodec    string        `env:"VOXCACHE_TIER_CODEC" envDefault:"json"`
	TierMaxFrame int           `env:"VOXCACHE_TIER_MAX_FRAME" envDefault:"0"`

	RedisAddr     string `env:"VOXCACHE_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"VOXCACHE_REDIS_PASSWORD"`
	RedisDB       int    `env:"VOXCACHE_REDIS_DB"`
	RedisPrefix   string `env:"VOXCACHE_REDIS_PREFIX"`

	Sessions         string        `env:"VOXCACHE_SESSIONS" envDefault:"local"`
	SessionNamespace string        `env:"VOXCACHE_SESSION_NAMESPACE" envDefault:"default"`
	SessionTTL       time.Duration `env:"VOXCACHE_SESSION_TTL" envDefault:"24h"`

	LogBackend string `env:"VOXCACHE_LOG_BACKEND" envDefault:"zap"`
	LogLevel   string `env:"VOXCACHE_LOG_LEVEL" envDefault:"info"`
	LogFile    string `env:"VOXCACHE_LOG_FILE"`

	Metrics          bool   `env:"VOXCACHE_METRICS"`
	MetricsNamespace string `env:"VOXCACHE_METRICS_NAMESPACE" envDefault:"voxcache"`
	LogHooks         bool   `env:"VOXCACHE_LOG_HOOKS"`
	HookQueue        int    `env:"VOXCACHE_HOOK_QUEUE"`
}

// Load reads paths (default ".env"; missing files are skipped) and the process
// environment, which wins over file values. Earlier files win over later ones.
func Load(paths ...string) (Config, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	vars := map[string]string{}
	for _, p := range paths {
		m, err := godotenv.Read(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", p, err)
		}
		for k, v := range m {
			if _, seen := vars[k]; !seen {
				vars[k] = v
			}
		}
	}
	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		vars[k] = v
	}

	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.ByteBudget < 0 {
		errs = append(errs, fmt.Errorf("VOXCACHE_BYTE_BUDGET must be >= 0, got %d", c.ByteBudget))
	}
	if _, err := c.sizing(); err != nil {
		errs = append(errs, err)
	}
	if !oneOf(c.Tier, "none", "ristretto", "bigcache", "gocache", "redis") {
		errs = append(errs, fmt.Errorf("VOXCACHE_TIER: unknown tier %q", c.Tier))
	}
	if !oneOf(c.TierCodec, codec.Names...) {
		errs = append(errs, fmt.Errorf("VOXCACHE_TIER_CODEC: unknown codec %q", c.TierCodec))
	}
	if c.Tier == "ristretto" && c.TierMaxBytes <= 0 {
		errs = append(errs, errors.New("VOXCACHE_TIER_MAX_BYTES must be > 0 for ristretto"))
	}
	if !oneOf(c.Sessions, "local", "redis") {
		errs = append(errs, fmt.Errorf("VOXCACHE_SESSIONS: unknown store %q", c.Sessions))
	}
	if !oneOf(c.LogBackend, "zap", "logrus", "slog", "none") {
		errs = append(errs, fmt.Errorf("VOXCACHE_LOG_BACKEND: unknown backend %q", c.LogBackend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) sizing() (voxcache.Sizing, error) {
	switch c.Sizing {
	case "", "sample":
		return voxcache.SizeBySample, nil
	case "bytes":
		return voxcache.SizeByBytes, nil
	default:
		return 0, fmt.Errorf("VOXCACHE_SIZING: unknown mode %q", c.Sizing)
	}
}

func (c Config) usesRedis() bool { return c.Tier == "redis" || c.Sessions == "redis" }

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
