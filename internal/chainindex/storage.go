package chainindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ErrInconsistentStorage marks a chain-storage file that does not satisfy
// the commit invariant (hashes_len == index == len(hashes)) or cannot be
// parsed at all. Callers discard the file and rebuild from scratch.
var ErrInconsistentStorage = errors.New("chainindex: inconsistent chain storage")

// storageRecord is the on-disk schema. Field order matters: hashes_len and
// index are declared last so they land in the final bytes of the file,
// letting an external tool sanity-check a partial write by looking at the
// tail alone. Both carry the same value in a committed file.
type storageRecord struct {
	Coin      string   `json:"coin"`
	MaxFileID int      `json:"max_file_id"`
	Hashes    []string `json:"hashes"`
	HashesLen int      `json:"hashes_len"`
	Index     int      `json:"index"`
}

// Save writes the index and the highest block-file id it was built from to
// path atomically: the record goes to a temp file in the same directory
// which is then renamed over path, so a crash mid-write never leaves a
// half-committed file under the real name.
func Save(path string, idx Index, maxFileID int) error {
	rec := storageRecord{
		Coin:      idx.Coin,
		MaxFileID: maxFileID,
		Hashes:    make([]string, len(idx.Hashes)),
		HashesLen: len(idx.Hashes),
		Index:     len(idx.Hashes),
	}
	for i, h := range idx.Hashes {
		rec.Hashes[i] = h.String()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal chain storage: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create chain storage temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write chain storage: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close chain storage temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit chain storage: %w", err)
	}
	return nil
}

// Load reads a previously saved index from path. Any parse failure or
// violation of the commit invariant is reported as ErrInconsistentStorage
// so callers can fall back to a full rebuild; a read failure, including a
// missing file, is returned wrapped, so errors.Is(err, os.ErrNotExist)
// identifies the missing-file case.
func Load(path string) (Index, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Index{}, 0, fmt.Errorf("read chain storage %s: %w", path, err)
	}

	var rec storageRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Index{}, 0, fmt.Errorf("%w: %v", ErrInconsistentStorage, err)
	}

	if rec.HashesLen != rec.Index || rec.HashesLen != len(rec.Hashes) {
		return Index{}, 0, fmt.Errorf("%w: hashes_len=%d index=%d len=%d",
			ErrInconsistentStorage, rec.HashesLen, rec.Index, len(rec.Hashes))
	}

	idx := Index{Coin: rec.Coin, Hashes: make([]chainhash.Hash, len(rec.Hashes))}
	for i, s := range rec.Hashes {
		h, err := chainhash.NewHashFromStr(s)
		if err != nil {
			return Index{}, 0, fmt.Errorf("%w: hash %d: %v", ErrInconsistentStorage, i, err)
		}
		idx.Hashes[i] = *h
	}

	return idx, rec.MaxFileID, nil
}
