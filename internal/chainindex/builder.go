package chainindex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/blockparser/blockparser/internal/blockfile"
	"github.com/blockparser/blockparser/internal/coinprofile"
	"github.com/blockparser/blockparser/internal/decoder"
	"github.com/blockparser/blockparser/pkg/safe"
	"github.com/blockparser/blockparser/pkg/workerpool"
)

// ErrMissingGenesis is returned when no header matching the coin profile's
// genesis hash was found in the scanned corpus.
var ErrMissingGenesis = errors.New("chainindex: genesis header not found")

// ErrNoCanonicalChain is returned when no tip candidate can walk back to
// genesis at all.
var ErrNoCanonicalChain = errors.New("chainindex: no candidate branch reaches genesis")

// Builder collects headers from a block-file corpus and selects the
// canonical chain.
type Builder struct {
	Profile *coinprofile.Profile
	Workers int
}

// CollectHeaders runs Phase A: a parallel, per-file header scan producing
// a hash-keyed table of HeaderEntry. Files with an ID below minFileID are
// skipped entirely,
// supporting resumed runs that only need to re-scan newly appended files.
func (b *Builder) CollectHeaders(ctx context.Context, dir string, minFileID int) (map[chainhash.Hash]HeaderEntry, error) {
	files, err := blockfile.ListFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("list block files: %w", err)
	}

	var pending []blockfile.FileEntry
	for _, f := range files {
		if f.ID < minFileID {
			continue
		}
		pending = append(pending, f)
	}

	headers := make(map[chainhash.Hash]HeaderEntry)
	var mu sync.Mutex

	workers := b.Workers
	if workers < 1 {
		workers = 1
	}

	scanFile := func(_ context.Context, f blockfile.FileEntry) error {
		local := make(map[chainhash.Hash]HeaderEntry)
		var scanErr error

		blockfile.ScanFile(f.Path, f.ID, b.Profile.Magic)(func(rec blockfile.Record, err error) bool {
			if err != nil {
				scanErr = err
				return false
			}
			if len(rec.Raw) < 80 {
				return true
			}

			hdr, hash, err := decoder.DecodeHeader(rec.Raw)
			if err != nil {
				scanErr = fmt.Errorf("decode header in %s at offset %d: %w", f.Path, rec.Offset, err)
				return false
			}

			size, err := safe.Uint32(len(rec.Raw))
			if err != nil {
				scanErr = fmt.Errorf("block size in %s at offset %d: %w", f.Path, rec.Offset, err)
				return false
			}

			local[hash] = HeaderEntry{
				FileID:   f.ID,
				Offset:   rec.Offset,
				Size:     size,
				Hash:     hash,
				PrevHash: hdr.PrevHash,
				Bits:     hdr.Bits,
			}
			return true
		})
		if scanErr != nil {
			return scanErr
		}

		mu.Lock()
		for h, e := range local {
			headers[h] = e
		}
		mu.Unlock()
		return nil
	}

	if err := workerpool.Process(ctx, workers, pending, scanFile, nil); err != nil {
		return nil, fmt.Errorf("collect headers: %w", err)
	}

	return headers, nil
}

// candidate is one tip-to-genesis walk result.
type candidate struct {
	tip    chainhash.Hash
	chain  []chainhash.Hash // genesis..tip, ascending
	work   *big.Int
}

// SelectCanonicalChain runs Phase B: finds every tip candidate (a hash that
// is nobody's prev_hash), walks each backward to genesis, and picks the
// winner by walk length, then accumulated work, then lexicographically
// greatest tip hash.
func (b *Builder) SelectCanonicalChain(headers map[chainhash.Hash]HeaderEntry) (Index, error) {
	genesisHash, err := chainhash.NewHashFromStr(b.Profile.GenesisHash)
	if err != nil {
		return Index{}, fmt.Errorf("parse genesis hash: %w", err)
	}
	if _, ok := headers[*genesisHash]; !ok {
		return Index{}, ErrMissingGenesis
	}

	referenced := make(map[chainhash.Hash]bool, len(headers))
	for _, e := range headers {
		referenced[e.PrevHash] = true
	}

	var candidates []candidate
	for hash := range headers {
		if referenced[hash] {
			continue // not a tip: some other header names it as prev_hash
		}

		chain, ok := walkToGenesis(headers, hash, *genesisHash)
		if !ok {
			continue
		}

		candidates = append(candidates, candidate{
			tip:   hash,
			chain: chain,
			work:  accumulatedWork(headers, chain),
		})
	}

	if len(candidates) == 0 {
		return Index{}, ErrNoCanonicalChain
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if betterCandidate(c, best) {
			best = c
		}
	}

	return Index{Coin: b.Profile.Name, Hashes: best.chain}, nil
}

func walkToGenesis(headers map[chainhash.Hash]HeaderEntry, tip, genesis chainhash.Hash) ([]chainhash.Hash, bool) {
	var reversed []chainhash.Hash
	cur := tip
	for {
		reversed = append(reversed, cur)
		if cur == genesis {
			break
		}
		entry, ok := headers[cur]
		if !ok {
			return nil, false
		}
		if cur == entry.PrevHash {
			return nil, false
		}
		cur = entry.PrevHash
	}

	chain := make([]chainhash.Hash, len(reversed))
	for i, h := range reversed {
		chain[len(reversed)-1-i] = h
	}
	return chain, true
}

func accumulatedWork(headers map[chainhash.Hash]HeaderEntry, chain []chainhash.Hash) *big.Int {
	total := big.NewInt(0)
	for _, h := range chain {
		entry, ok := headers[h]
		if !ok {
			continue
		}
		total.Add(total, workFromBits(entry.Bits))
	}
	return total
}

// betterCandidate reports whether a should replace best as the canonical
// chain, per the tie-break order: walk length, then accumulated work, then
// lexicographically greatest tip hash.
func betterCandidate(a, best candidate) bool {
	if len(a.chain) != len(best.chain) {
		return len(a.chain) > len(best.chain)
	}
	if cmp := a.work.Cmp(best.work); cmp != 0 {
		return cmp > 0
	}
	return bytes.Compare(a.tip[:], best.tip[:]) > 0
}
