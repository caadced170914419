package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cygnuslabs/cygnus/types"
)

func TestNormalize(t *testing.T) {
	t.Run("fills blanks", func(t *testing.T) {
		record := &types.SettlementRecord{Kind: types.KindTransfer}
		Normalize(record)

		_, err := uuid.Parse(record.ID)
		assert.NoError(t, err)
		assert.False(t, record.CreatedAt.IsZero())
		assert.Equal(t, time.UTC, record.CreatedAt.Location())
	})

	t.Run("preserves caller values", func(t *testing.T) {
		at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		record := &types.SettlementRecord{ID: "fixed-id", CreatedAt: at}
		Normalize(record)

		assert.Equal(t, "fixed-id", record.ID)
		assert.Equal(t, at, record.CreatedAt)
	})
}

func TestDisabledLedger(t *testing.T) {
	var ledger Ledger = Disabled{}

	assert.NoError(t, ledger.Append(context.Background(), &types.SettlementRecord{}))

	_, err := ledger.List(context.Background(), 50, 0)
	require.Error(t, err)
	var terr *types.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, types.ErrStorageUnavailable, terr.Code)

	_, err = ledger.Rankings(context.Background(), 10)
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, types.ErrStorageUnavailable, terr.Code)
}
