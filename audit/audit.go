// Package audit is the append-only settlement ledger: one record per
// executed payment attempt, success or failure. Appends are best-effort;
// payment outcomes never depend on audit durability.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cygnuslabs/cygnus/types"
)

// Ledger stores settlement records. Append must be safe to call from the
// execution path: implementations report internal failures through their own
// logging, never through the returned error state of a payment.
type Ledger interface {
	Append(ctx context.Context, record *types.SettlementRecord) error
	// List returns records newest first.
	List(ctx context.Context, limit, offset int) ([]types.SettlementRecord, error)
	// Rankings aggregates successful settlements per source key, most
	// trades first.
	Rankings(ctx context.Context, limit int) ([]RankingRow, error)
}

// RankingRow is one per-agent aggregate over successful settlements.
type RankingRow struct {
	SourceKey string
	Trades    int
	Volume    string
}

// Normalize fills the identity and timestamp fields a caller usually leaves
// blank.
func Normalize(record *types.SettlementRecord) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
}

// Disabled is the ledger used when no persistent store is configured:
// appends vanish, reads report the storage as unavailable.
type Disabled struct{}

func (Disabled) Append(context.Context, *types.SettlementRecord) error {
	return nil
}

func (Disabled) List(context.Context, int, int) ([]types.SettlementRecord, error) {
	return nil, types.NewError(types.ErrStorageUnavailable, "no persistent store configured")
}

func (Disabled) Rankings(context.Context, int) ([]RankingRow, error) {
	return nil, types.NewError(types.ErrStorageUnavailable, "no persistent store configured")
}
