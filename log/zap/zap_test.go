package zap

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/voxcache"
)

func TestZapLoggerForwardsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := ZapLogger{L: zap.New(core)}

	l.Warn("load failed", voxcache.Fields{"kind": "mesh", "err": errors.New("boom")})
	l.Debug("evicted", nil)

	if logs.Len() != 2 {
		t.Fatalf("entries=%d", logs.Len())
	}
	e := logs.All()[0]
	if e.Level != zapcore.WarnLevel || e.Message != "load failed" {
		t.Fatalf("entry=%+v", e)
	}
	ctx := e.ContextMap()
	if ctx["kind"] != "mesh" || ctx["err"] != "boom" {
		t.Fatalf("fields=%v", ctx)
	}
}

func TestNewRotatingWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxcache.log")
	zl, closeFn := NewRotating(FileConfig{Path: path}, zapcore.InfoLevel)
	l := ZapLogger{L: zl}

	l.Debug("dropped", nil)
	l.Info("capacity derived", voxcache.Fields{"maxEntries": 4})
	if err := closeFn(); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if !strings.Contains(s, `"msg":"capacity derived"`) || !strings.Contains(s, `"maxEntries":4`) {
		t.Fatalf("log file=%s", s)
	}
	if strings.Contains(s, "dropped") {
		t.Fatalf("debug entry written at info level")
	}
}
