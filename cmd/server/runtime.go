package main

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"tileforge.ai/internal/persistence/archive"
	"tileforge.ai/internal/persistence/indexdb"
	"tileforge.ai/internal/persistence/r2s3"
	"tileforge.ai/internal/persistence/snapshot"
	"tileforge.ai/internal/sim/biome"
	"tileforge.ai/internal/sim/generation"
)

// generationTee fans generation records out to every recorder.
type generationTee []generation.Recorder

func (t generationTee) RecordGeneration(rec generation.Record) {
	for _, r := range t {
		if r != nil {
			r.RecordGeneration(rec)
		}
	}
}

type chunkTee []biome.Recorder

func (t chunkTee) RecordChunk(ev biome.ChunkEvent) {
	for _, r := range t {
		if r != nil {
			r.RecordChunk(ev)
		}
	}
}

// snapshotWriter persists snapshots the world emits and fans the files out
// to the index, the milestone archive and the bucket mirror.
type snapshotWriter struct {
	dataDir      string
	keep         int
	archiveEvery uint64

	idx    *indexdb.SQLiteIndex
	mirror *r2s3.Mirror
	log    *zap.Logger
}

func (s *snapshotWriter) dir() string { return filepath.Join(s.dataDir, "snapshots") }

func (s *snapshotWriter) run(ctx context.Context, ch <-chan snapshot.SnapshotV1) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			s.write(snap)
		}
	}
}

func (s *snapshotWriter) write(snap snapshot.SnapshotV1) (string, error) {
	path := archive.SnapshotPath(s.dir(), snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		s.log.Error("snapshot write failed", zap.Uint64("tick", snap.Header.Tick), zap.Error(err))
		return "", err
	}
	s.log.Info("snapshot written", zap.String("path", path), zap.Int("maps", len(snap.Maps)), zap.Int("biomes", len(snap.Biomes)))
	if s.idx != nil {
		s.idx.RecordSnapshot(path, snap)
	}
	s.mirror.Enqueue(path)

	if dst, ok, err := archive.ArchiveMilestone(s.dataDir, path, snap, s.archiveEvery); err != nil {
		s.log.Warn("snapshot archive failed", zap.Error(err))
	} else if ok {
		s.mirror.Enqueue(dst)
		s.mirror.Enqueue(filepath.Join(filepath.Dir(dst), "meta.json"))
	}

	removed, err := archive.Prune(s.dir(), s.keep)
	if err != nil {
		s.log.Warn("snapshot prune failed", zap.Error(err))
	}
	if len(removed) > 0 {
		s.log.Debug("snapshots pruned", zap.Strings("paths", removed))
	}
	return path, nil
}
