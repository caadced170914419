package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"

	"github.com/cygnuslabs/cygnus/logger"
	"github.com/cygnuslabs/cygnus/types"
)

// Horizon implements LedgerGateway against a Horizon endpoint. Every round
// trip goes through a circuit breaker so a flapping endpoint fails fast
// instead of tying up callers.
type Horizon struct {
	client  *horizonclient.Client
	breaker *gobreaker.CircuitBreaker
	log     logger.Logger
}

// NewHorizon builds a gateway for the given Horizon URL.
func NewHorizon(url string, log logger.Logger) *Horizon {
	if log == nil {
		log = logger.NoopLogger{}
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "horizon",
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("horizon breaker state changed", logger.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})

	return &Horizon{
		client: &horizonclient.Client{
			HorizonURL: url,
			HTTP:       &http.Client{Timeout: 30 * time.Second},
		},
		breaker: breaker,
		log:     log,
	}
}

func (h *Horizon) LoadAccount(ctx context.Context, accountID string) (txnbuild.Account, error) {
	res, err := h.do(ctx, func() (any, error) {
		return h.client.AccountDetail(horizonclient.AccountRequest{AccountID: accountID})
	})
	if err != nil {
		return nil, &types.Error{
			Code:    types.ErrAccountUnavailable,
			Message: fmt.Sprintf("load account %s: %v", accountID, err),
			Data:    horizonDiagnostics(err),
		}
	}
	account := res.(hProtocol.Account)
	return &account, nil
}

func (h *Horizon) FetchBaseFee(ctx context.Context) (int64, error) {
	res, err := h.do(ctx, func() (any, error) {
		return h.client.FeeStats()
	})
	if err != nil {
		return 0, &types.Error{
			Code:    types.ErrAccountUnavailable,
			Message: fmt.Sprintf("fetch base fee: %v", err),
			Data:    horizonDiagnostics(err),
		}
	}
	stats := res.(hProtocol.FeeStats)
	fee := int64(stats.LastLedgerBaseFee)
	if fee < txnbuild.MinBaseFee {
		fee = txnbuild.MinBaseFee
	}
	return fee, nil
}

// Submit sends a signed transaction exactly once. The network rejects
// sequence reuse, so a rejected envelope must never be retried here.
func (h *Horizon) Submit(ctx context.Context, tx *txnbuild.Transaction) (*TxResult, error) {
	res, err := h.do(ctx, func() (any, error) {
		return h.client.SubmitTransaction(tx)
	})
	if err != nil {
		return nil, &types.Error{
			Code:    types.ErrSubmitRejected,
			Message: fmt.Sprintf("submit transaction: %v", err),
			Data:    horizonDiagnostics(err),
		}
	}
	submitted := res.(hProtocol.Transaction)
	return &TxResult{
		Hash:       submitted.Hash,
		Ledger:     submitted.Ledger,
		Successful: submitted.Successful,
		ResultXDR:  submitted.ResultXdr,
	}, nil
}

func (h *Horizon) GetTransaction(ctx context.Context, hash string) (*TxRecord, error) {
	res, err := h.do(ctx, func() (any, error) {
		return h.client.TransactionDetail(hash)
	})
	if err != nil {
		var herr *horizonclient.Error
		if errors.As(err, &herr) && herr.Problem.Status == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	tx := res.(hProtocol.Transaction)
	return &TxRecord{
		Hash:       tx.Hash,
		Successful: tx.Successful,
		Ledger:     tx.Ledger,
	}, nil
}

// ListLiquidityPools pages through on-ledger liquidity pools.
func (h *Horizon) ListLiquidityPools(ctx context.Context, limit int, cursor string) ([]LiquidityPool, error) {
	if limit <= 0 {
		limit = 10
	}
	res, err := h.do(ctx, func() (any, error) {
		return h.client.LiquidityPools(horizonclient.LiquidityPoolsRequest{
			Limit:  uint(limit),
			Cursor: cursor,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list liquidity pools: %w", err)
	}
	page := res.(hProtocol.LiquidityPoolsPage)
	pools := make([]LiquidityPool, 0, len(page.Embedded.Records))
	for _, record := range page.Embedded.Records {
		pools = append(pools, poolFromHorizon(record))
	}
	return pools, nil
}

// GetLiquidityPool fetches one pool by its hex ID.
func (h *Horizon) GetLiquidityPool(ctx context.Context, poolID string) (*LiquidityPool, error) {
	res, err := h.do(ctx, func() (any, error) {
		return h.client.LiquidityPoolDetail(horizonclient.LiquidityPoolRequest{LiquidityPoolID: poolID})
	})
	if err != nil {
		var herr *horizonclient.Error
		if errors.As(err, &herr) && herr.Problem.Status == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get liquidity pool %s: %w", poolID, err)
	}
	pool := poolFromHorizon(res.(hProtocol.LiquidityPool))
	return &pool, nil
}

func poolFromHorizon(p hProtocol.LiquidityPool) LiquidityPool {
	reserves := make([]PoolReserve, 0, len(p.Reserves))
	for _, r := range p.Reserves {
		reserves = append(reserves, PoolReserve{Asset: r.Asset, Amount: r.Amount})
	}
	return LiquidityPool{
		ID:              p.ID,
		PagingToken:     p.PagingToken(),
		FeeBP:           p.FeeBP,
		Type:            p.Type,
		TotalTrustlines: p.TotalTrustlines,
		TotalShares:     p.TotalShares,
		Reserves:        reserves,
	}
}

func (h *Horizon) do(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := h.breaker.Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, fmt.Errorf("horizon unavailable: %w", err)
	}
	return res, err
}

// horizonDiagnostics lifts the Horizon problem payload (result codes
// included) out of an error so failures keep the raw network diagnostics.
func horizonDiagnostics(err error) map[string]any {
	var herr *horizonclient.Error
	if !errors.As(err, &herr) {
		return nil
	}
	diag := map[string]any{
		"title":  herr.Problem.Title,
		"status": herr.Problem.Status,
		"detail": herr.Problem.Detail,
	}
	for k, v := range herr.Problem.Extras {
		diag[k] = v
	}
	return diag
}
