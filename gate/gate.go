// Package gate implements the x402 payment gate: a stateless HTTP
// challenge/response protocol that requires proof of an on-ledger payment
// before releasing a guarded resource.
package gate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/stellar/go/keypair"

	"github.com/cygnuslabs/cygnus/gateway"
	"github.com/cygnuslabs/cygnus/logger"
	"github.com/cygnuslabs/cygnus/metrics"
	"github.com/cygnuslabs/cygnus/types"
)

// Header names (x402-style).
const (
	HeaderPaymentRequirements = "Payment-Requirements"
	HeaderPayment             = "X-PAYMENT"
	HeaderPaymentSignature    = "PAYMENT-SIGNATURE"
	HeaderPaymentResponse     = "PAYMENT-RESPONSE"
)

// DefaultMaxAge bounds proof replay: proofs older than this are rejected
// regardless of what the ledger says.
const DefaultMaxAge = 300 * time.Second

// placeholderPayTo is used when neither a payout account nor a signing key
// is configured.
const placeholderPayTo = "GPLACEHOLDER402PAYTOXXXXXXXXXXXXXX"

// Requirements is the challenge issued with a 402 response. Regenerated per
// challenge, never persisted; CreatedAt anchors the freshness check.
type Requirements struct {
	Amount         string       `json:"amount"`
	Asset          string       `json:"asset"`
	Network        types.Network `json:"network"`
	PayTo          string       `json:"payTo"`
	TimeoutSeconds int64        `json:"timeoutSeconds"`
	CreatedAt      int64        `json:"createdAt"`
}

// proof is the decoded client payment proof. Both alias spellings are
// accepted.
type proof struct {
	TransactionHash  string `json:"transaction_hash"`
	TransactionHash2 string `json:"transactionHash"`
	PaidAt           int64  `json:"paid_at"`
	PaidAt2          int64  `json:"paidAt"`
}

func (p *proof) hash() string {
	if p.TransactionHash != "" {
		return p.TransactionHash
	}
	return p.TransactionHash2
}

func (p *proof) paidAt() int64 {
	if p.PaidAt != 0 {
		return p.PaidAt
	}
	return p.PaidAt2
}

// Config controls the gate.
type Config struct {
	// Enabled gates requests; when false every request is allowed through.
	Enabled bool

	// AmountXLM is the required payment amount, as a decimal string.
	AmountXLM string

	Network types.Network

	// PayTo is the payout account. When empty it is derived from
	// SigningKey, then falls back to a fixed placeholder.
	PayTo string

	// SigningKey is the agent secret used to derive PayTo when it is not
	// configured directly.
	SigningKey string

	// MaxAge bounds proof freshness; zero means DefaultMaxAge.
	MaxAge time.Duration

	// StrictMatch additionally requires the proof transaction to have
	// succeeded on the ledger, not merely to exist.
	StrictMatch bool
}

// Gate verifies payment proofs against the ledger. Stateless across calls.
type Gate struct {
	cfg     Config
	ledger  gateway.LedgerGateway
	log     logger.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

func WithLogger(l logger.Logger) Option {
	return func(g *Gate) { g.log = l }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(g *Gate) { g.metrics = r }
}

// WithClock overrides the time source. Tests use this to pin the freshness
// window.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New builds a gate over the given ledger gateway.
func New(cfg Config, ledger gateway.LedgerGateway, opts ...Option) *Gate {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	g := &Gate{
		cfg:     cfg,
		ledger:  ledger,
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Requirements issues a fresh challenge. Payee resolution: configured
// payout account, then the account derived from the signing key, then a
// fixed placeholder.
func (g *Gate) Requirements() Requirements {
	payTo := g.cfg.PayTo
	if payTo == "" && g.cfg.SigningKey != "" {
		if kp, err := keypair.ParseFull(g.cfg.SigningKey); err == nil {
			payTo = kp.Address()
		}
	}
	if payTo == "" {
		payTo = placeholderPayTo
	}
	return Requirements{
		Amount:         g.cfg.AmountXLM,
		Asset:          "native",
		Network:        g.cfg.Network,
		PayTo:          payTo,
		TimeoutSeconds: int64(g.cfg.MaxAge / time.Second),
		CreatedAt:      g.now().Unix(),
	}
}

// Verify checks a proof token: decode, freshness, then one ledger lookup.
// Fails closed on every malformed input. It confirms only that the
// transaction exists within the freshness window; amount, payee, and asset
// are not matched against the requirements unless StrictMatch tightens the
// existence check to successful transactions.
func (g *Gate) Verify(ctx context.Context, token string) bool {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return false
	}
	var p proof
	if err := json.Unmarshal(raw, &p); err != nil {
		return false
	}

	hash := p.hash()
	paidAt := p.paidAt()
	if hash == "" || paidAt <= 0 {
		return false
	}
	if g.now().Unix()-paidAt > int64(g.cfg.MaxAge/time.Second) {
		return false
	}

	record, err := g.ledger.GetTransaction(ctx, hash)
	if err != nil {
		return false
	}
	if g.cfg.StrictMatch && !record.Successful {
		return false
	}
	return true
}

// EncodeRequirements encodes requirements for the challenge header.
func EncodeRequirements(req Requirements) string {
	body, _ := json.Marshal(req)
	return base64.StdEncoding.EncodeToString(body)
}

// EncodeReceipt encodes a settlement receipt for the response header.
func EncodeReceipt(receipt map[string]any) string {
	body, _ := json.Marshal(receipt)
	return base64.StdEncoding.EncodeToString(body)
}
