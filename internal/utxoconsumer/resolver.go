package utxoconsumer

import (
	"context"
	"fmt"

	"github.com/blockparser/blockparser/internal/utxoconsumer/model"
)

// OutputSource is the repository slice the resolver needs.
type OutputSource interface {
	OutputsLookupByTxIDs(ctx context.Context, coin, network string, txids []string) (map[string][]model.OutputLookup, error)
}

// resolverBatchSize controls how many txids are fetched in one repository
// call. It is a var to allow overriding in tests.
var resolverBatchSize = 1000

// Resolver resolves spent outpoints to the value and addresses of the
// outputs they consume. Outputs created during the current run are seeded
// into a local cache, since their rows may still be in flight to the
// repository; anything older falls back to a batched repository lookup.
type Resolver struct {
	source  OutputSource
	coin    string
	network string
	local   map[string][]model.OutputLookup
}

// NewResolver constructs a Resolver for a specific coin/network.
func NewResolver(source OutputSource, coin, network string) *Resolver {
	return &Resolver{
		source:  source,
		coin:    coin,
		network: network,
		local:   make(map[string][]model.OutputLookup),
	}
}

// Seed caches the outputs of a transaction processed in this run.
func (r *Resolver) Seed(txid string, outputs []model.OutputLookup) {
	r.local[txid] = outputs
}

// ResolveBatch returns outputs for many transactions, consulting the local
// cache first and fetching the misses from the repository in chunks.
// Repository results are cached too, for reuse across later blocks.
func (r *Resolver) ResolveBatch(ctx context.Context, txids []string) (map[string][]model.OutputLookup, error) {
	result := make(map[string][]model.OutputLookup, len(txids))

	seen := make(map[string]struct{}, len(txids))
	missing := make([]string, 0, len(txids))

	for _, txid := range txids {
		if _, dup := seen[txid]; dup {
			continue
		}
		seen[txid] = struct{}{}

		if outputs, ok := r.local[txid]; ok {
			result[txid] = outputs
			continue
		}
		missing = append(missing, txid)
	}

	size := resolverBatchSize
	if size <= 0 {
		size = 1000
	}
	for start := 0; start < len(missing); start += size {
		end := start + size
		if end > len(missing) {
			end = len(missing)
		}

		fromRepo, err := r.source.OutputsLookupByTxIDs(ctx, r.coin, r.network, missing[start:end])
		if err != nil {
			return nil, fmt.Errorf("query outputs for txids: %w", err)
		}
		for txid, outputs := range fromRepo {
			result[txid] = outputs
			r.local[txid] = outputs
		}
		for _, txid := range missing[start:end] {
			if _, ok := result[txid]; !ok {
				result[txid] = nil
			}
		}
	}

	return result, nil
}
