package config

import (
	"context"
	"errors"
	"fmt"
	stdslog "log/slog"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/voxcache"
	"github.com/unkn0wn-root/voxcache/codec"
	"github.com/unkn0wn-root/voxcache/genstore"
	asynchook "github.com/unkn0wn-root/voxcache/hooks/async"
	voxlogrus "github.com/unkn0wn-root/voxcache/log/logrus"
	voxslog "github.com/unkn0wn-root/voxcache/log/slog"
	voxzap "github.com/unkn0wn-root/voxcache/log/zap"
	"github.com/unkn0wn-root/voxcache/promhooks"
	"github.com/unkn0wn-root/voxcache/provider"
	"github.com/unkn0wn-root/voxcache/provider/bigcache"
	"github.com/unkn0wn-root/voxcache/provider/gocache"
	voxredis "github.com/unkn0wn-root/voxcache/provider/redis"
	"github.com/unkn0wn-root/voxcache/provider/ristretto"
	"github.com/unkn0wn-root/voxcache/session"
	"github.com/unkn0wn-root/voxcache/sloghooks"
)

// NewLogger builds the configured logger. close flushes it and releases files.
func (c Config) NewLogger() (voxcache.Logger, func() error, error) {
	nop := func() error { return nil }
	switch c.LogBackend {
	case "none":
		return voxcache.NopLogger{}, nop, nil
	case "logrus":
		lvl, err := logrus.ParseLevel(c.LogLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("config: log level: %w", err)
		}
		base := logrus.New()
		base.SetOutput(os.Stderr)
		base.SetFormatter(&logrus.JSONFormatter{})
		base.SetLevel(lvl)
		return voxlogrus.LogrusLogger{E: logrus.NewEntry(base)}, nop, nil
	case "slog":
		var lvl stdslog.Level
		if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return nil, nil, fmt.Errorf("config: log level: %w", err)
		}
		h := stdslog.NewJSONHandler(os.Stderr, &stdslog.HandlerOptions{Level: lvl})
		return voxslog.Logger{L: stdslog.New(h)}, nop, nil
	}

	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("config: log level: %w", err)
	}
	if c.LogFile != "" {
		zl, closeFile := voxzap.NewRotating(voxzap.FileConfig{Path: c.LogFile, Compress: true}, lvl)
		return voxzap.ZapLogger{L: zl}, closeFile, nil
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zl, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, nil, fmt.Errorf("config: zap: %w", err)
	}
	flush := func() error {
		_ = zl.Sync() // stderr sync fails on some platforms
		return nil
	}
	return voxzap.ZapLogger{L: zl}, flush, nil
}

// NewRedisClient returns a lazily connecting client. The caller owns it.
func (c Config) NewRedisClient() goredis.UniversalClient {
	return goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:    []string{c.RedisAddr},
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
}

// NewTier builds the spill tier, or nil for "none". rdb is only used by "redis".
func (c Config) NewTier(ctx context.Context, rdb goredis.UniversalClient) (provider.Provider, error) {
	switch c.Tier {
	case "none":
		return nil, nil
	case "ristretto":
		return ristretto.New(ristretto.DefaultConfig(c.TierMaxBytes))
	case "bigcache":
		return bigcache.New(ctx, bigcache.Config{
			LifeWindow:         c.TierTTL,
			CleanWindow:        c.TierTTL / 2,
			HardMaxCacheSizeMB: int(c.TierMaxBytes >> 20),
		})
	case "gocache":
		return gocache.New(gocache.Config{DefaultTTL: c.TierTTL, CleanupInterval: c.TierTTL}), nil
	case "redis":
		if rdb == nil {
			return nil, voxredis.ErrNilClient
		}
		return voxredis.New(voxredis.Config{Client: rdb, Prefix: c.RedisPrefix})
	default:
		return nil, fmt.Errorf("config: unknown tier %q", c.Tier)
	}
}

// PrimitiveCodec is the codec for primitive lists written to the tier.
func (c Config) PrimitiveCodec() (codec.Codec[[]voxcache.Primitive], error) {
	return codec.ByName[[]voxcache.Primitive](c.TierCodec, c.TierMaxFrame)
}

// NewGenStore builds the session generation store. rdb is only used by "redis".
func (c Config) NewGenStore(rdb goredis.UniversalClient) (genstore.GenStore, error) {
	if c.Sessions == "redis" {
		if rdb == nil {
			return nil, errors.New("config: redis sessions need a client")
		}
		return genstore.NewRedisGenStore(rdb, c.SessionNamespace, c.SessionTTL), nil
	}
	return genstore.NewLocalGenStore(time.Hour, c.SessionTTL), nil
}

// Runtime is a fully wired cache store and session registry.
type Runtime struct {
	Config   Config
	Logger   voxcache.Logger
	Store    *voxcache.Store
	Sessions *session.Registry
	Metrics  *promhooks.Hooks // nil unless VOXCACHE_METRICS is set

	closers []func(context.Context) error
}

// Build wires every component described by c.
func Build(ctx context.Context, c Config, loaders voxcache.Loaders) (rt *Runtime, err error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	rt = &Runtime{Config: c}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
			rt = nil
		}
	}()

	logger, closeLog, err := c.NewLogger()
	if err != nil {
		return nil, err
	}
	rt.Logger = logger
	rt.closers = append(rt.closers, func(context.Context) error { return closeLog() })

	var rdb goredis.UniversalClient
	if c.usesRedis() {
		rdb = c.NewRedisClient()
		rt.closers = append(rt.closers, func(context.Context) error { return rdb.Close() })
	}

	gens, err := c.NewGenStore(rdb)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, gens.Close)
	rt.Sessions = session.NewRegistry(session.Options{Store: gens, Logger: logger})
	rt.closers = append(rt.closers, rt.Sessions.Close)

	var hooks []voxcache.Hooks
	if c.Metrics {
		rt.Metrics = promhooks.New(c.MetricsNamespace)
		hooks = append(hooks, rt.Metrics)
	}
	if c.LogHooks {
		hooks = append(hooks, sloghooks.New(stdslog.Default(), sloghooks.Options{MissEvery: 100}))
	}
	h := voxcache.MultiHooks(hooks...)
	if c.HookQueue > 0 {
		ah := asynchook.New(h, 1, c.HookQueue)
		rt.closers = append(rt.closers, func(context.Context) error {
			ah.Close()
			return nil
		})
		h = ah
	}

	tier, err := c.NewTier(ctx, rdb)
	if err != nil {
		return nil, err
	}
	prims, err := c.PrimitiveCodec()
	if err != nil {
		return nil, err
	}
	sizing, _ := c.sizing()

	rt.Store, err = voxcache.NewStore(voxcache.StoreOptions{
		Loaders:        loaders,
		ByteBudget:     c.ByteBudget,
		Sizing:         sizing,
		Logger:         logger,
		Hooks:          h,
		Disabled:       c.Disabled,
		Tier:           tier,
		TierTTL:        c.TierTTL,
		PrimitiveCodec: prims,
	})
	if err != nil {
		if tier != nil {
			_ = tier.Close(ctx)
		}
		return nil, err
	}
	rt.closers = append(rt.closers, rt.Store.Close)
	return rt, nil
}

// Close releases everything Build created, in reverse order.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i](ctx))
	}
	rt.closers = nil
	return errors.Join(errs...)
}
