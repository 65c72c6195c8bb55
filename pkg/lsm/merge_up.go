package lsm

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	storeerrors "github.com/kkli08/veloxdb/pkg/errors"
	"github.com/kkli08/veloxdb/pkg/logging"
	"github.com/kkli08/veloxdb/pkg/merge"
	"github.com/kkli08/veloxdb/pkg/pagemanager"
	"github.com/kkli08/veloxdb/pkg/sstable"
)

// mergeUp installs s at level, growing the level/levelMax vectors as
// needed. If the level is empty, s is simply renamed into place. Otherwise
// s is merged with the level's existing SSTable into a fresh file; if the
// merged result exceeds the level's capacity, the level is cleared and the
// merge recurses one level up, otherwise the merged SSTable is installed.
//
// Tombstones are always retained across a merge (dropTombstones=false):
// this coordinator has no fixed notion of a "bottommost" level, since
// levelMax grows without an upper bound, so dropping tombstones here could
// resurrect a deleted key if a still-lower level is populated later.
func (l *LSM) mergeUp(level int, s *sstable.SSTable) error {
	l.mu.Lock()
	l.growLevelsLocked(level)
	existing := l.levels[level]
	capacity := l.levelMax[level]
	l.mu.Unlock()

	if existing == nil {
		newPath := filepath.Join(l.dir, fmt.Sprintf("L%d_SSTable_%d.sst", level, l.fileSeq.Add(1)))
		if err := os.Rename(s.Path(), newPath); err != nil {
			return storeerrors.New("lsm.mergeUp", "sstable", storeerrors.ErrIo, err.Error())
		}
		if err := s.Rename(newPath); err != nil {
			return err
		}
		l.installLevel(level, &levelState{sst: s})
		l.metrics.SetLevelEntries(level, s.NumEntries())
		l.log.Info("installed level", logging.LevelIndex(level), logging.Path(newPath))
		return nil
	}

	start := time.Now()
	scratchPath := merge.ScratchPath(l.dir)
	leafMins, err := merge.Merge(existing.sst, s, scratchPath, false)
	if err != nil {
		return err
	}

	leafPM, err := pagemanager.Open(scratchPath, l.cfg.PageSize, l.cfg.CompressPages)
	if err != nil {
		return err
	}

	mergedPath := filepath.Join(l.dir, fmt.Sprintf("L%d_SSTable_%d.sst", level, l.fileSeq.Add(1)))
	targetPM, err := pagemanager.Open(mergedPath, l.cfg.PageSize, l.cfg.CompressPages)
	if err != nil {
		return err
	}

	merged, err := sstable.BuildFromLeaves(targetPM, leafPM, leafMins)
	if err != nil {
		return err
	}
	merged.ConfigureCache(l.cfg.BufferPoolSize, policyFor(l.cfg.CachePolicy))

	if err := leafPM.Close(); err != nil {
		return err
	}
	if err := os.Remove(scratchPath); err != nil {
		return storeerrors.New("lsm.mergeUp", "scratch file", storeerrors.ErrIo, err.Error())
	}

	l.metrics.RecordMerge(level, time.Since(start), merged.NumEntries())
	l.log.Info("merged level", logging.LevelIndex(level), logging.Count(merged.NumEntries()), logging.Path(mergedPath))

	oldExistingPath, oldNewPath := existing.sst.Path(), s.Path()

	if merged.NumEntries() > capacity {
		l.installLevel(level, nil)
		if err := closeAndRemove(existing.sst, oldExistingPath); err != nil {
			return err
		}
		if err := closeAndRemove(s, oldNewPath); err != nil {
			return err
		}
		return l.mergeUp(level+1, merged)
	}

	l.installLevel(level, &levelState{sst: merged})
	l.metrics.SetLevelEntries(level, merged.NumEntries())

	if err := closeAndRemove(existing.sst, oldExistingPath); err != nil {
		return err
	}
	return closeAndRemove(s, oldNewPath)
}

// growLevelsLocked extends levels/levelMax so index level is valid,
// growing levelMax geometrically by the configured growth ratio. Callers
// must hold l.mu.
func (l *LSM) growLevelsLocked(level int) {
	for len(l.levels) <= level {
		l.levels = append(l.levels, nil)
	}
	for len(l.levelMax) <= level {
		l.levelMax = append(l.levelMax, l.levelMax[len(l.levelMax)-1]*l.cfg.GrowthRatio)
	}
}

// installLevel swaps levels[level] via a copy-on-write slice replacement,
// so that a reader holding a snapshot taken under RLock before this call
// never observes the mutation — it keeps seeing the prior handle until it
// takes a fresh snapshot. Deleting the superseded file afterward is safe
// because the reader's already-open PageManager file handle remains valid
// after an unlink.
func (l *LSM) installLevel(level int, ls *levelState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := make([]*levelState, len(l.levels))
	copy(next, l.levels)
	next[level] = ls
	l.levels = next
}

func closeAndRemove(sst *sstable.SSTable, path string) error {
	if err := sst.Close(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return storeerrors.New("lsm.mergeUp", "sstable file", storeerrors.ErrIo, err.Error())
	}
	return nil
}
