package r2s3

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type Uploader interface {
	PutFile(ctx context.Context, objectKey, localPath string) error
}

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	Enqueued      uint64 `json:"enqueued"`
	Dropped       uint64 `json:"dropped"`
	Uploaded      uint64 `json:"uploaded"`
	Failed        uint64 `json:"failed"`
	LastSuccessAt int64  `json:"last_success_unix,omitempty"`
}

// Mirror copies files under dataDir to the bucket in the background. The
// object key is the path relative to dataDir, under prefix.
type Mirror struct {
	up      Uploader
	dataDir string
	prefix  string
	log     *zap.Logger

	jobs    chan string
	wg      sync.WaitGroup
	retries int
	backoff time.Duration

	enqueued    atomic.Uint64
	dropped     atomic.Uint64
	uploaded    atomic.Uint64
	failed      atomic.Uint64
	lastSuccess atomic.Int64
}

func NewMirror(up Uploader, dataDir, prefix string, workers int, log *zap.Logger) *Mirror {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Mirror{
		up:      up,
		dataDir: dataDir,
		prefix:  strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		log:     log,
		jobs:    make(chan string, 256),
		retries: 4,
		backoff: 200 * time.Millisecond,
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for p := range m.jobs {
				m.uploadOne(p)
			}
		}()
	}
	return m
}

// Enqueue schedules localPath for upload. It never blocks; a full queue
// drops the file.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil {
		return
	}
	m.enqueued.Add(1)
	select {
	case m.jobs <- localPath:
	default:
		m.dropped.Add(1)
		m.log.Warn("mirror queue full, dropping", zap.String("path", localPath))
	}
}

// Close waits for queued uploads to finish.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	close(m.jobs)
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(m.jobs),
		Enqueued:      m.enqueued.Load(),
		Dropped:       m.dropped.Load(),
		Uploaded:      m.uploaded.Load(),
		Failed:        m.failed.Load(),
		LastSuccessAt: m.lastSuccess.Load(),
	}
}

func (m *Mirror) uploadOne(localPath string) {
	key, err := m.objectKey(localPath)
	if err != nil {
		m.failed.Add(1)
		m.log.Warn("mirror skip", zap.String("path", localPath), zap.Error(err))
		return
	}
	var lastErr error
	for attempt := 1; attempt <= m.retries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		lastErr = m.up.PutFile(ctx, key, localPath)
		cancel()
		if lastErr == nil {
			break
		}
		if attempt < m.retries {
			time.Sleep(time.Duration(attempt*attempt) * m.backoff)
		}
	}
	if lastErr != nil {
		m.failed.Add(1)
		m.log.Error("mirror upload failed", zap.String("key", key), zap.Error(lastErr))
		return
	}
	m.uploaded.Add(1)
	m.lastSuccess.Store(time.Now().Unix())
	m.log.Debug("mirror uploaded", zap.String("key", key))
}

func (m *Mirror) objectKey(localPath string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	base, err := filepath.Abs(m.dataDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside data dir %s", abs, base)
	}
	if m.prefix != "" {
		return path.Join(m.prefix, rel), nil
	}
	return rel, nil
}
