// Package gateway wraps the ledger network's read/submit endpoints. It holds
// no business logic; retries and breaker behavior live here, never in callers.
package gateway

import (
	"context"
	"errors"

	"github.com/stellar/go/txnbuild"
)

// ErrNotFound is returned by GetTransaction when the ledger has no record of
// the hash.
var ErrNotFound = errors.New("transaction not found")

// TxResult is the outcome of a successful submission.
type TxResult struct {
	Hash       string `json:"hash"`
	Ledger     int32  `json:"ledger"`
	Successful bool   `json:"successful"`
	ResultXDR  string `json:"result_xdr,omitempty"`
}

// TxRecord is a transaction looked up by hash.
type TxRecord struct {
	Hash       string `json:"hash"`
	Successful bool   `json:"successful"`
	Ledger     int32  `json:"ledger"`
}

// LedgerGateway is the read/submit surface the payment pipeline and the gate
// depend on. The account sequence is always reloaded fresh; nothing here
// caches sequence state.
type LedgerGateway interface {
	LoadAccount(ctx context.Context, accountID string) (txnbuild.Account, error)
	FetchBaseFee(ctx context.Context) (int64, error)
	Submit(ctx context.Context, tx *txnbuild.Transaction) (*TxResult, error)
	GetTransaction(ctx context.Context, hash string) (*TxRecord, error)
}

// PoolReserve is one asset side of a liquidity pool.
type PoolReserve struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// LiquidityPool is the read-only pool view served to callers.
type LiquidityPool struct {
	ID              string        `json:"id"`
	PagingToken     string        `json:"pagingToken"`
	FeeBP           uint32        `json:"feeBp"`
	Type            string        `json:"type"`
	TotalTrustlines uint64        `json:"totalTrustlines"`
	TotalShares     string        `json:"totalShares"`
	Reserves        []PoolReserve `json:"reserves"`
}

// PoolGateway exposes on-ledger liquidity pools. Read-only: swaps against
// pools are a separate concern.
type PoolGateway interface {
	ListLiquidityPools(ctx context.Context, limit int, cursor string) ([]LiquidityPool, error)
	GetLiquidityPool(ctx context.Context, poolID string) (*LiquidityPool, error)
}

// SimulateResult carries the simulation output needed to prepare a contract
// invocation. Error holds the raw simulation diagnostics untouched.
type SimulateResult struct {
	TransactionData string   `json:"transactionData"`
	MinResourceFee  int64    `json:"minResourceFee"`
	Auth            []string `json:"auth"`
	LatestLedger    int64    `json:"latestLedger"`
	Error           string   `json:"error,omitempty"`
}

// SendResult is the immediate response to a prepared-transaction send.
type SendResult struct {
	Hash           string `json:"hash"`
	Status         string `json:"status"`
	ErrorResultXDR string `json:"errorResultXdr,omitempty"`
}

// Contract transaction terminal statuses as reported by the execution
// endpoint.
const (
	ContractStatusNotFound = "NOT_FOUND"
	ContractStatusSuccess  = "SUCCESS"
	ContractStatusFailed   = "FAILED"

	SendStatusPending = "PENDING"
)

// TxStatus is one poll of a contract transaction.
type TxStatus struct {
	Status        string `json:"status"`
	ResultXDR     string `json:"resultXdr,omitempty"`
	ResultMetaXDR string `json:"resultMetaXdr,omitempty"`
	Ledger        int64  `json:"ledger,omitempty"`
}

// Health is the contract endpoint's health report.
type Health struct {
	Status       string `json:"status"`
	LatestLedger int64  `json:"latestLedger,omitempty"`
	Passphrase   string `json:"passphrase,omitempty"`
}

// ContractGateway wraps the smart-contract execution endpoint: simulate to
// estimate resources, send a prepared transaction, poll it to a terminal
// status.
type ContractGateway interface {
	Simulate(ctx context.Context, envelopeXDR string) (*SimulateResult, error)
	Send(ctx context.Context, envelopeXDR string) (*SendResult, error)
	GetTransaction(ctx context.Context, hash string) (*TxStatus, error)
	Health(ctx context.Context) (*Health, error)
}
