package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"tileforge.ai/internal/sim/biome"
	"tileforge.ai/internal/sim/generation"
)

// JSONLZstdWriter appends JSON lines to one zstd file per UTC hour.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f, w.enc = f, enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// GenerationLogger writes one entry per finished dungeon job.
type GenerationLogger struct {
	w   *JSONLZstdWriter
	log *zap.Logger
}

var _ generation.Recorder = (*GenerationLogger)(nil)

func NewGenerationLogger(dataDir string, log *zap.Logger) *GenerationLogger {
	return &GenerationLogger{
		w:   NewJSONLZstdWriter(filepath.Join(dataDir, "generations"), "generations"),
		log: orNop(log),
	}
}

func (l *GenerationLogger) RecordGeneration(rec generation.Record) {
	if err := l.w.Write(rec); err != nil {
		l.log.Warn("generation log write failed", zap.String("job", rec.JobID), zap.Error(err))
	}
}

func (l *GenerationLogger) Close() error { return l.w.Close() }

// ChunkEntry is one chunk log line.
type ChunkEntry struct {
	At string `json:"at"`
	biome.ChunkEvent
}

// ChunkLogger writes chunk load and unload events.
type ChunkLogger struct {
	w   *JSONLZstdWriter
	log *zap.Logger
}

var _ biome.Recorder = (*ChunkLogger)(nil)

func NewChunkLogger(dataDir string, log *zap.Logger) *ChunkLogger {
	return &ChunkLogger{
		w:   NewJSONLZstdWriter(filepath.Join(dataDir, "chunks"), "chunks"),
		log: orNop(log),
	}
}

func (l *ChunkLogger) RecordChunk(ev biome.ChunkEvent) {
	e := ChunkEntry{At: l.w.now().UTC().Format(time.RFC3339), ChunkEvent: ev}
	if err := l.w.Write(e); err != nil {
		l.log.Warn("chunk log write failed", zap.String("map", ev.MapID), zap.Error(err))
	}
}

func (l *ChunkLogger) Close() error { return l.w.Close() }

func orNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
