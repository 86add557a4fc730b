package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"info":  zapcore.InfoLevel,
		"":      zapcore.InfoLevel,
		"loud":  zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFileCoreWritesJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tileforge.log")

	if err := InitWithFileConfig("debug", FileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1}, false); err != nil {
		t.Fatalf("init: %v", err)
	}
	Named("generation").Info("job finished", zap.String("config", "Lab"), zap.Int64("seed", 42))
	Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(b)
	for _, want := range []string{`"logger":"generation"`, `"config":"Lab"`, `"seed":42`, `"msg":"job finished"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line missing %s: %s", want, line)
		}
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatalf("OrNop(nil) returned nil")
	}
	l := zap.NewExample()
	if OrNop(l) != l {
		t.Fatalf("OrNop should return the given logger")
	}
}
