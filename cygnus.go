// Package cygnus assembles the payment agent: transaction building and
// execution against Horizon and Soroban RPC, the x402 pay-to-unlock gate,
// and the settlement audit trail.
package cygnus

import (
	"context"

	"github.com/cygnuslabs/cygnus/analytics"
	"github.com/cygnuslabs/cygnus/audit"
	"github.com/cygnuslabs/cygnus/config"
	"github.com/cygnuslabs/cygnus/executor"
	"github.com/cygnuslabs/cygnus/gate"
	"github.com/cygnuslabs/cygnus/gateway"
	"github.com/cygnuslabs/cygnus/logger"
	"github.com/cygnuslabs/cygnus/metrics"
	"github.com/cygnuslabs/cygnus/txbuilder"
)

// Agent bundles the executor, the x402 gate and the audit ledger behind a
// single constructor so callers wire one thing.
type Agent struct {
	Executor  *executor.Executor
	Gate      *gate.Gate
	Audit     audit.Ledger
	Analytics *analytics.Analytics

	// Pools is nil when the configured ledger gateway cannot read
	// liquidity pools.
	Pools gateway.PoolGateway

	Log logger.Logger

	pg *audit.Postgres
}

// New builds an Agent from configuration. The audit ledger degrades to a
// disabled store when no DATABASE_URL is configured; payments still execute.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Agent, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	log := o.log
	if log == nil {
		log = logger.NewZapLogger(cfg.LogLevel)
	}
	rec := o.metrics
	if rec == nil {
		rec = metrics.NewPrometheusRecorder(nil)
	}

	ledger := o.ledger
	if ledger == nil {
		ledger = gateway.NewHorizon(cfg.HorizonURL, log)
	}
	contracts := o.contracts
	if contracts == nil {
		contracts = gateway.NewSorobanRPC(cfg.SorobanRPCURL, log)
	}

	agent := &Agent{Log: log}

	auditLedger := o.audit
	if auditLedger == nil {
		if cfg.DatabaseURL == "" {
			log.Warn("no database configured, settlement audit disabled", nil)
			auditLedger = audit.Disabled{}
		} else {
			pg, err := audit.NewPostgres(ctx, cfg.DatabaseURL, log)
			if err != nil {
				return nil, err
			}
			if err := pg.EnsureSchema(ctx); err != nil {
				pg.Close()
				return nil, err
			}
			agent.pg = pg
			auditLedger = pg
		}
	}
	agent.Audit = auditLedger

	builder := txbuilder.New(ledger, contracts, cfg.Network())
	agent.Executor = executor.New(builder, auditLedger, log, rec, cfg.AgentSecretKey)
	agent.Analytics = analytics.New(auditLedger, analytics.WithLogger(log))
	if pools, ok := ledger.(gateway.PoolGateway); ok {
		agent.Pools = pools
	}

	agent.Gate = gate.New(gate.Config{
		Enabled:    cfg.X402Enabled,
		AmountXLM:  cfg.X402AmountXLM,
		Network:    cfg.Network(),
		PayTo:      cfg.X402PayTo,
		SigningKey: cfg.AgentSecretKey,
	}, ledger, gate.WithLogger(log), gate.WithMetrics(rec))

	return agent, nil
}

// Close drains pending audit writes and releases the database pool.
func (a *Agent) Close() {
	a.Executor.Flush()
	if a.pg != nil {
		a.pg.Close()
	}
}
