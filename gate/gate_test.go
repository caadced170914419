package gate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cygnuslabs/cygnus/gateway"
	"github.com/cygnuslabs/cygnus/types"
)

type fakeLedger struct {
	record *gateway.TxRecord
	err    error
	calls  int
}

func (f *fakeLedger) LoadAccount(ctx context.Context, accountID string) (txnbuild.Account, error) {
	return nil, gateway.ErrNotFound
}

func (f *fakeLedger) FetchBaseFee(ctx context.Context) (int64, error) {
	return txnbuild.MinBaseFee, nil
}

func (f *fakeLedger) Submit(ctx context.Context, tx *txnbuild.Transaction) (*gateway.TxResult, error) {
	return nil, gateway.ErrNotFound
}

func (f *fakeLedger) GetTransaction(ctx context.Context, hash string) (*gateway.TxRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.record != nil {
		return f.record, nil
	}
	return &gateway.TxRecord{Hash: hash, Successful: true}, nil
}

func proofToken(hash string, paidAt int64) string {
	body, _ := json.Marshal(map[string]any{
		"transaction_hash": hash,
		"paid_at":          paidAt,
	})
	return base64.StdEncoding.EncodeToString(body)
}

func enabledConfig() Config {
	return Config{
		Enabled:   true,
		AmountXLM: "1",
		Network:   types.NetworkTestnet,
	}
}

func TestRequirementsPayeeFallback(t *testing.T) {
	kp := keypair.MustRandom()

	t.Run("configured payout wins", func(t *testing.T) {
		cfg := enabledConfig()
		cfg.PayTo = kp.Address()
		cfg.SigningKey = keypair.MustRandom().Seed()
		g := New(cfg, &fakeLedger{})
		assert.Equal(t, kp.Address(), g.Requirements().PayTo)
	})

	t.Run("derived from signing key", func(t *testing.T) {
		cfg := enabledConfig()
		cfg.SigningKey = kp.Seed()
		g := New(cfg, &fakeLedger{})
		assert.Equal(t, kp.Address(), g.Requirements().PayTo)
	})

	t.Run("placeholder when nothing configured", func(t *testing.T) {
		g := New(enabledConfig(), &fakeLedger{})
		assert.Equal(t, placeholderPayTo, g.Requirements().PayTo)
	})
}

func TestRequirementsShape(t *testing.T) {
	g := New(enabledConfig(), &fakeLedger{})
	req := g.Requirements()

	assert.Equal(t, "1", req.Amount)
	assert.Equal(t, "native", req.Asset)
	assert.Equal(t, types.NetworkTestnet, req.Network)
	assert.EqualValues(t, 300, req.TimeoutSeconds)
	assert.InDelta(t, time.Now().Unix(), req.CreatedAt, 2)
}

func TestVerifyFreshnessBoundary(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ledger := &fakeLedger{}
	g := New(enabledConfig(), ledger, WithClock(func() time.Time { return now }))

	hash := "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2"

	assert.True(t, g.Verify(context.Background(), proofToken(hash, now.Unix()-300)))
	assert.False(t, g.Verify(context.Background(), proofToken(hash, now.Unix()-301)))
}

func TestVerifyFailsClosed(t *testing.T) {
	ledger := &fakeLedger{}
	g := New(enabledConfig(), ledger)

	cases := []struct {
		name  string
		token string
	}{
		{"not base64", "%%%not-base64%%%"},
		{"not json", base64.StdEncoding.EncodeToString([]byte("hello"))},
		{"missing hash", base64.StdEncoding.EncodeToString([]byte(`{"paid_at": 1700000000}`))},
		{"missing paid_at", base64.StdEncoding.EncodeToString([]byte(`{"transaction_hash": "abc"}`))},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, g.Verify(context.Background(), tc.token))
		})
	}
	// none of the malformed inputs should have reached the ledger
	assert.Zero(t, ledger.calls)
}

func TestVerifyCamelCaseAliases(t *testing.T) {
	g := New(enabledConfig(), &fakeLedger{})
	body, _ := json.Marshal(map[string]any{
		"transactionHash": "abc123",
		"paidAt":          time.Now().Unix(),
	})
	assert.True(t, g.Verify(context.Background(), base64.StdEncoding.EncodeToString(body)))
}

func TestVerifyUnknownTransaction(t *testing.T) {
	ledger := &fakeLedger{err: gateway.ErrNotFound}
	g := New(enabledConfig(), ledger)
	assert.False(t, g.Verify(context.Background(), proofToken("abc", time.Now().Unix())))
}

func TestVerifyStrictMatch(t *testing.T) {
	cfg := enabledConfig()
	cfg.StrictMatch = true
	ledger := &fakeLedger{record: &gateway.TxRecord{Hash: "abc", Successful: false}}
	g := New(cfg, ledger)
	assert.False(t, g.Verify(context.Background(), proofToken("abc", time.Now().Unix())))

	ledger.record.Successful = true
	assert.True(t, g.Verify(context.Background(), proofToken("abc", time.Now().Unix())))
}

func protectedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "premium")
	})
}

func TestMiddlewareDeniesWithChallenge(t *testing.T) {
	g := New(enabledConfig(), &fakeLedger{})
	srv := g.Middleware(protectedHandler())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/premium", nil))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	raw, err := base64.StdEncoding.DecodeString(rec.Header().Get(HeaderPaymentRequirements))
	require.NoError(t, err)
	var req Requirements
	require.NoError(t, json.Unmarshal(raw, &req))
	assert.Equal(t, "1", req.Amount)
	assert.Equal(t, "native", req.Asset)
	assert.EqualValues(t, 300, req.TimeoutSeconds)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Payment Required", body["error"])
	assert.Contains(t, body, "requirements")
}

func TestMiddlewareAllowsWithReceipt(t *testing.T) {
	g := New(enabledConfig(), &fakeLedger{})
	srv := g.Middleware(protectedHandler())

	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set(HeaderPayment, proofToken("abc", time.Now().Unix()))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "premium", rec.Body.String())

	raw, err := base64.StdEncoding.DecodeString(rec.Header().Get(HeaderPaymentResponse))
	require.NoError(t, err)
	var receipt map[string]any
	require.NoError(t, json.Unmarshal(raw, &receipt))
	assert.Equal(t, "settled", receipt["status"])
	assert.Equal(t, "x402", receipt["protocol"])
}

func TestMiddlewareAcceptsSignatureHeader(t *testing.T) {
	g := New(enabledConfig(), &fakeLedger{})
	srv := g.Middleware(protectedHandler())

	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set(HeaderPaymentSignature, proofToken("abc", time.Now().Unix()))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareDisabledPassesThrough(t *testing.T) {
	cfg := enabledConfig()
	cfg.Enabled = false
	ledger := &fakeLedger{}
	g := New(cfg, ledger)
	srv := g.Middleware(protectedHandler())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/premium", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, ledger.calls)
}
