package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cygnuslabs/cygnus/analytics"
	"github.com/cygnuslabs/cygnus/audit"
	"github.com/cygnuslabs/cygnus/executor"
	"github.com/cygnuslabs/cygnus/gate"
	"github.com/cygnuslabs/cygnus/gateway"
	"github.com/cygnuslabs/cygnus/txbuilder"
	"github.com/cygnuslabs/cygnus/types"
)

type fakeLedger struct{}

func (fakeLedger) LoadAccount(ctx context.Context, accountID string) (txnbuild.Account, error) {
	return &txnbuild.SimpleAccount{AccountID: accountID, Sequence: 1}, nil
}

func (fakeLedger) FetchBaseFee(ctx context.Context) (int64, error) {
	return txnbuild.MinBaseFee, nil
}

func (fakeLedger) Submit(ctx context.Context, tx *txnbuild.Transaction) (*gateway.TxResult, error) {
	return &gateway.TxResult{
		Hash:       "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2",
		Ledger:     500,
		Successful: true,
	}, nil
}

func (fakeLedger) GetTransaction(ctx context.Context, hash string) (*gateway.TxRecord, error) {
	return &gateway.TxRecord{Hash: hash, Successful: true}, nil
}

type fakeContracts struct{}

func (fakeContracts) Simulate(ctx context.Context, envelopeXDR string) (*gateway.SimulateResult, error) {
	return &gateway.SimulateResult{MinResourceFee: 1000}, nil
}

func (fakeContracts) Send(ctx context.Context, envelopeXDR string) (*gateway.SendResult, error) {
	return &gateway.SendResult{Hash: "feedfacefeedfacefeedfacefeedfacefeedfacefeedfacefeedfacefeedface", Status: gateway.SendStatusPending}, nil
}

func (fakeContracts) GetTransaction(ctx context.Context, hash string) (*gateway.TxStatus, error) {
	return &gateway.TxStatus{Status: gateway.ContractStatusSuccess, Ledger: 1234}, nil
}

func (fakeContracts) Health(ctx context.Context) (*gateway.Health, error) {
	return &gateway.Health{Status: "healthy", LatestLedger: 1234}, nil
}

type memoryAudit struct {
	records []types.SettlementRecord
}

func (m *memoryAudit) Append(ctx context.Context, record *types.SettlementRecord) error {
	m.records = append(m.records, *record)
	return nil
}

func (m *memoryAudit) List(ctx context.Context, limit, offset int) ([]types.SettlementRecord, error) {
	return m.records, nil
}

func (m *memoryAudit) Rankings(ctx context.Context, limit int) ([]audit.RankingRow, error) {
	counts := map[string]int{}
	for _, r := range m.records {
		if r.Status == types.StatusSuccess && r.SourcePublicKey != "" {
			counts[r.SourcePublicKey]++
		}
	}
	var rows []audit.RankingRow
	for key, trades := range counts {
		rows = append(rows, audit.RankingRow{SourceKey: key, Trades: trades, Volume: "100"})
	}
	return rows, nil
}

type fakePools struct {
	pools []gateway.LiquidityPool
	err   error
}

func (f *fakePools) ListLiquidityPools(ctx context.Context, limit int, cursor string) ([]gateway.LiquidityPool, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pools, nil
}

func (f *fakePools) GetLiquidityPool(ctx context.Context, poolID string) (*gateway.LiquidityPool, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.pools {
		if f.pools[i].ID == poolID {
			return &f.pools[i], nil
		}
	}
	return nil, gateway.ErrNotFound
}

func newTestServer(t *testing.T, auditLedger audit.Ledger) (http.Handler, *executor.Executor) {
	return newTestServerWithPools(t, auditLedger, &fakePools{})
}

func newTestServerWithPools(t *testing.T, auditLedger audit.Ledger, pools gateway.PoolGateway) (http.Handler, *executor.Executor) {
	t.Helper()
	builder := txbuilder.New(fakeLedger{}, fakeContracts{}, types.NetworkTestnet)
	exec := executor.New(builder, auditLedger, nil, nil, keypair.MustRandom().Seed())

	g := gate.New(gate.Config{
		Enabled:   true,
		AmountXLM: "1",
		Network:   types.NetworkTestnet,
	}, fakeLedger{})

	rankings := analytics.New(auditLedger, analytics.WithCacheTTL(0))
	h := NewHandlers(exec, auditLedger, g, fakeContracts{}, pools, rankings, nil)
	return NewRouter(h), exec
}

func postJSON(t *testing.T, srv http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw)))
	return rec
}

func TestNativePayment(t *testing.T) {
	srv, exec := newTestServer(t, audit.Disabled{})
	defer exec.Flush()

	rec := postJSON(t, srv, "/payments/native", NativePaymentRequest{
		Destination: keypair.MustRandom().Address(),
		Amount:      "1.5",
		Memo:        "invoice 7",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var result executor.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Len(t, result.Hash, 64)
}

func TestNativePaymentMalformedBody(t *testing.T) {
	srv, exec := newTestServer(t, audit.Disabled{})
	defer exec.Flush()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/native", bytes.NewReader([]byte("{not json"))))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, types.ErrInvalidIntent, body["error"])
}

func TestNativePaymentValidation(t *testing.T) {
	srv, exec := newTestServer(t, audit.Disabled{})
	defer exec.Flush()

	rec := postJSON(t, srv, "/payments/native", NativePaymentRequest{
		Destination: "too-short",
		Amount:      "1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNativePaymentWithSteps(t *testing.T) {
	srv, exec := newTestServer(t, audit.Disabled{})
	defer exec.Flush()

	rec := postJSON(t, srv, "/payments/native/with-steps", NativePaymentRequest{
		Destination: keypair.MustRandom().Address(),
		Amount:      "2",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Success bool            `json:"success"`
		Steps   []executor.Step `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Len(t, body.Steps, 6)
	assert.Equal(t, executor.StepDone, body.Steps[len(body.Steps)-1].Status)
}

func TestClaimableBalance(t *testing.T) {
	srv, exec := newTestServer(t, audit.Disabled{})
	defer exec.Flush()

	window := int64(3600)
	rec := postJSON(t, srv, "/payments/claimable", ClaimableBalanceRequest{
		Claimant:                       keypair.MustRandom().Address(),
		Amount:                         "10",
		PredicateBeforeRelativeSeconds: &window,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTimeBoundPayment(t *testing.T) {
	srv, exec := newTestServer(t, audit.Disabled{})
	defer exec.Flush()

	rec := postJSON(t, srv, "/payments/time-bound", TimeBoundPaymentRequest{
		Destination:     keypair.MustRandom().Address(),
		Amount:          "1",
		ValidForSeconds: 600,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInvokeContract(t *testing.T) {
	srv, exec := newTestServer(t, audit.Disabled{})
	defer exec.Flush()

	rec := postJSON(t, srv, "/soroban/invoke", InvokeContractRequest{
		ContractID:   "CA3D5KRYM6CB7OWQ6TWYRR3Z4T7GNZLKERYNZGGA5SOAOPIFY6YQGAXE",
		FunctionName: "increment",
		SourceSecret: keypair.MustRandom().Seed(),
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var result executor.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, gateway.ContractStatusSuccess, result.Status)
}

func TestListTransactions(t *testing.T) {
	store := &memoryAudit{records: []types.SettlementRecord{
		{ID: "r1", Kind: types.KindTransfer, Status: types.StatusSuccess},
	}}
	srv, exec := newTestServer(t, store)
	defer exec.Flush()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/transactions?limit=10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Transactions []types.SettlementRecord `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Transactions, 1)
	assert.Equal(t, "r1", body.Transactions[0].ID)
}

func TestListTransactionsStorageDisabled(t *testing.T) {
	srv, exec := newTestServer(t, audit.Disabled{})
	defer exec.Flush()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/transactions", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, types.ErrStorageUnavailable, body["error"])
}

func TestAgentRankings(t *testing.T) {
	store := &memoryAudit{records: []types.SettlementRecord{
		{SourcePublicKey: "GABC", Status: types.StatusSuccess, Amount: "10"},
		{SourcePublicKey: "GABC", Status: types.StatusSuccess, Amount: "5"},
		{SourcePublicKey: "GDEF", Status: types.StatusFailed, Amount: "7"},
	}}
	srv, exec := newTestServer(t, store)
	defer exec.Flush()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/agents/rankings?limit=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var rankings []types.AgentRanking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rankings))
	require.Len(t, rankings, 1)
	assert.Equal(t, "GABC", rankings[0].AgentID)
	assert.Equal(t, 2, rankings[0].TradesCount)
	assert.Equal(t, 1, rankings[0].Rank)
}

func TestAgentRankingsDemoFallback(t *testing.T) {
	srv, exec := newTestServer(t, audit.Disabled{})
	defer exec.Flush()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/agents/rankings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var rankings []types.AgentRanking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rankings))
	require.NotEmpty(t, rankings)
	assert.Equal(t, "Alpha Trader", rankings[0].Label)
}

func TestListLiquidityPools(t *testing.T) {
	pools := &fakePools{pools: []gateway.LiquidityPool{
		{ID: "pool-1", FeeBP: 30, TotalShares: "1000.0", Reserves: []gateway.PoolReserve{
			{Asset: "native", Amount: "500.0"},
		}},
	}}
	srv, exec := newTestServerWithPools(t, audit.Disabled{}, pools)
	defer exec.Flush()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stellar/liquidity-pools", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		LiquidityPools []gateway.LiquidityPool `json:"liquidityPools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.LiquidityPools, 1)
	assert.Equal(t, "pool-1", body.LiquidityPools[0].ID)
}

func TestGetLiquidityPool(t *testing.T) {
	pools := &fakePools{pools: []gateway.LiquidityPool{{ID: "pool-1"}}}
	srv, exec := newTestServerWithPools(t, audit.Disabled{}, pools)
	defer exec.Flush()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stellar/liquidity-pools/pool-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stellar/liquidity-pools/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLiquidityPoolsUpstreamFailure(t *testing.T) {
	pools := &fakePools{err: errors.New("horizon unavailable")}
	srv, exec := newTestServerWithPools(t, audit.Disabled{}, pools)
	defer exec.Flush()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stellar/liquidity-pools", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestPaymentRequirements(t *testing.T) {
	srv, exec := newTestServer(t, audit.Disabled{})
	defer exec.Flush()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x402/requirements", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var req gate.Requirements
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &req))
	assert.Equal(t, "native", req.Asset)
	assert.EqualValues(t, 300, req.TimeoutSeconds)
}

func TestPremiumRequiresPayment(t *testing.T) {
	srv, exec := newTestServer(t, audit.Disabled{})
	defer exec.Flush()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x402/premium", nil))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(gate.HeaderPaymentRequirements))
}

func TestSorobanHealth(t *testing.T) {
	srv, exec := newTestServer(t, audit.Disabled{})
	defer exec.Flush()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/soroban/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var health gateway.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
}

func TestHealthz(t *testing.T) {
	srv, exec := newTestServer(t, audit.Disabled{})
	defer exec.Flush()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
