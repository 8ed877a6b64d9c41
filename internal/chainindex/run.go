package chainindex

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"go.uber.org/zap"

	"github.com/blockparser/blockparser/internal/blockfile"
)

// Build runs Phases A-C end to end: load any prior chain storage, scan
// (only the new tail of) the corpus, select the canonical chain, and
// persist it. An unparseable or inconsistent storage file is discarded and
// the corpus re-scanned in full; that is the only error it recovers from.
// Any other failure to read the storage file is returned.
func (b *Builder) Build(ctx context.Context, dir, storagePath string, logger *zap.Logger) (Index, error) {
	var (
		stored    Index
		resumed   bool
		minFileID int
	)

	if storagePath != "" {
		idx, maxFileID, err := Load(storagePath)
		switch {
		case err == nil && idx.Coin == b.Profile.Name:
			stored = idx
			resumed = true
			minFileID = maxFileID + 1
			logger.Info("resuming from chain storage",
				zap.String("path", storagePath),
				zap.Int("watermark", idx.Watermark()),
				zap.Int("max_file_id", maxFileID))
		case err == nil:
			logger.Warn("chain storage belongs to a different coin, rebuilding",
				zap.String("stored_coin", idx.Coin),
				zap.String("coin", b.Profile.Name))
		case errors.Is(err, ErrInconsistentStorage):
			logger.Warn("discarding inconsistent chain storage", zap.Error(err))
		case errors.Is(err, os.ErrNotExist):
			logger.Info("no chain storage found, building from scratch",
				zap.String("path", storagePath))
		default:
			return Index{}, err
		}
	}

	headers, err := b.CollectHeaders(ctx, dir, minFileID)
	if err != nil {
		return Index{}, err
	}

	if resumed {
		seedStoredChain(headers, stored)
	}

	idx, err := b.SelectCanonicalChain(headers)
	if err != nil {
		return Index{}, err
	}

	if storagePath != "" {
		files, err := blockfile.ListFiles(dir)
		if err != nil {
			return Index{}, fmt.Errorf("list block files: %w", err)
		}
		maxFileID := -1
		for _, f := range files {
			if f.ID > maxFileID {
				maxFileID = f.ID
			}
		}
		if err := Save(storagePath, idx, maxFileID); err != nil {
			return Index{}, err
		}
	}

	logger.Info("canonical chain selected",
		zap.Int("height", idx.Watermark()),
		zap.Int("headers_scanned", len(headers)))

	return idx, nil
}

// seedStoredChain injects synthetic header entries for a previously
// committed chain so the backward walk from a new tip can cross into the
// resumed prefix without re-hashing the files that produced it. Synthetic
// entries carry FileID -1; the decode pass identifies canonical records by
// hash while scanning, so it never needs the location of a resumed header.
func seedStoredChain(headers map[chainhash.Hash]HeaderEntry, stored Index) {
	var prev chainhash.Hash
	for i, h := range stored.Hashes {
		if _, ok := headers[h]; ok {
			prev = h
			continue
		}
		e := HeaderEntry{FileID: -1, Hash: h}
		if i > 0 {
			e.PrevHash = prev
		}
		headers[h] = e
		prev = h
	}
}
