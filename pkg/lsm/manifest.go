package lsm

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	storeerrors "github.com/kkli08/veloxdb/pkg/errors"
)

const manifestFilename = "manifest.lsm"

// manifestEntry is one level's row in the manifest: its index, the
// filename of its SSTable (empty if the level holds none), and its entry
// capacity. Grounded on the teacher's binary.Write(..., LittleEndian, ...)
// discipline throughout sstable_io.go.
type manifestEntry struct {
	LevelIndex    int32
	Filename      string
	LevelCapacity uint64
}

func manifestPath(dir string) string {
	return filepath.Join(dir, manifestFilename)
}

// writeManifestLocked serializes the current levels/levelMax state to the
// store's manifest file. Callers must hold l.mu.
func (l *LSM) writeManifestLocked() error {
	entries := make([]manifestEntry, 0, len(l.levels)-1)
	for i := 1; i < len(l.levels); i++ {
		filename := ""
		if l.levels[i] != nil {
			filename = filepath.Base(l.levels[i].sst.Path())
		}
		entries = append(entries, manifestEntry{
			LevelIndex:    int32(i),
			Filename:      filename,
			LevelCapacity: uint64(l.levelMax[i]),
		})
	}
	return writeManifest(manifestPath(l.dir), entries)
}

func writeManifest(path string, entries []manifestEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return storeerrors.New("lsm.writeManifest", "manifest", storeerrors.ErrIo, err.Error())
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, uint64(len(entries))); err != nil {
		return storeerrors.New("lsm.writeManifest", "manifest", storeerrors.ErrIo, err.Error())
	}
	for _, e := range entries {
		if err := binary.Write(f, binary.LittleEndian, e.LevelIndex); err != nil {
			return storeerrors.New("lsm.writeManifest", "manifest", storeerrors.ErrIo, err.Error())
		}
		if err := binary.Write(f, binary.LittleEndian, uint64(len(e.Filename))); err != nil {
			return storeerrors.New("lsm.writeManifest", "manifest", storeerrors.ErrIo, err.Error())
		}
		if _, err := f.WriteString(e.Filename); err != nil {
			return storeerrors.New("lsm.writeManifest", "manifest", storeerrors.ErrIo, err.Error())
		}
		if err := binary.Write(f, binary.LittleEndian, e.LevelCapacity); err != nil {
			return storeerrors.New("lsm.writeManifest", "manifest", storeerrors.ErrIo, err.Error())
		}
	}
	return f.Sync()
}

// readManifest parses the manifest at path. A missing file surfaces the
// raw os.IsNotExist-satisfying error so Open can distinguish "no manifest
// yet" from a real failure; any other parse failure is ErrCorruptManifest.
func readManifest(path string) ([]manifestEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var numLevels uint64
	if err := binary.Read(f, binary.LittleEndian, &numLevels); err != nil {
		return nil, storeerrors.New("lsm.readManifest", "manifest", storeerrors.ErrCorruptManifest, err.Error())
	}

	entries := make([]manifestEntry, numLevels)
	for i := range entries {
		var levelIndex int32
		if err := binary.Read(f, binary.LittleEndian, &levelIndex); err != nil {
			return nil, storeerrors.New("lsm.readManifest", "manifest", storeerrors.ErrCorruptManifest, err.Error())
		}

		var nameLen uint64
		if err := binary.Read(f, binary.LittleEndian, &nameLen); err != nil {
			return nil, storeerrors.New("lsm.readManifest", "manifest", storeerrors.ErrCorruptManifest, err.Error())
		}
		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(f, nameBuf); err != nil {
			return nil, storeerrors.New("lsm.readManifest", "manifest", storeerrors.ErrCorruptManifest, err.Error())
		}

		var capacity uint64
		if err := binary.Read(f, binary.LittleEndian, &capacity); err != nil {
			return nil, storeerrors.New("lsm.readManifest", "manifest", storeerrors.ErrCorruptManifest, err.Error())
		}

		entries[i] = manifestEntry{LevelIndex: levelIndex, Filename: string(nameBuf), LevelCapacity: capacity}
	}
	return entries, nil
}
