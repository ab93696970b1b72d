// Package zap adapts go.uber.org/zap to voxcache.Logger.
package zap

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/unkn0wn-root/voxcache"
)

var _ voxcache.Logger = ZapLogger{}

type ZapLogger struct{ L *zap.Logger }

func (z ZapLogger) Debug(msg string, f voxcache.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f voxcache.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f voxcache.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f voxcache.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f voxcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}

// FileConfig describes a rotating JSON log file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int // default 10
	MaxBackups int // default 5
	MaxAgeDays int // default 30
	Compress   bool
}

// NewRotating builds a JSON logger writing to a lumberjack-rotated file at level.
// The returned close func flushes and closes the file.
func NewRotating(fc FileConfig, level zapcore.Level) (*zap.Logger, func() error) {
	rotator := &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    orDefault(fc.MaxSizeMB, 10),
		MaxBackups: orDefault(fc.MaxBackups, 5),
		MaxAge:     orDefault(fc.MaxAgeDays, 30),
		Compress:   fc.Compress,
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(rotator), level)
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return l, func() error {
		_ = l.Sync()
		return rotator.Close()
	}
}

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}
