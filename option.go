package cygnus

import (
	"github.com/cygnuslabs/cygnus/audit"
	"github.com/cygnuslabs/cygnus/gateway"
	"github.com/cygnuslabs/cygnus/logger"
	"github.com/cygnuslabs/cygnus/metrics"
)

// Option customizes an Agent at construction time.
type Option func(*options)

type options struct {
	log       logger.Logger
	metrics   metrics.Recorder
	audit     audit.Ledger
	ledger    gateway.LedgerGateway
	contracts gateway.ContractGateway
}

// WithLogger replaces the default zap logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics replaces the default Prometheus recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) { o.metrics = r }
}

// WithAuditLedger replaces the settlement store. Useful for tests or for
// running without Postgres.
func WithAuditLedger(l audit.Ledger) Option {
	return func(o *options) { o.audit = l }
}

// WithLedgerGateway replaces the Horizon-backed gateway.
func WithLedgerGateway(g gateway.LedgerGateway) Option {
	return func(o *options) { o.ledger = g }
}

// WithContractGateway replaces the Soroban RPC gateway.
func WithContractGateway(g gateway.ContractGateway) Option {
	return func(o *options) { o.contracts = g }
}
