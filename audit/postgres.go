package audit

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cygnuslabs/cygnus/logger"
	"github.com/cygnuslabs/cygnus/types"
)

//go:embed schema.sql
var schemaSQL string

// Postgres is the pgx-backed settlement ledger.
type Postgres struct {
	db  *pgxpool.Pool
	log logger.Logger
}

// NewPostgres connects a pool to the given DSN.
func NewPostgres(ctx context.Context, dsn string, log logger.Logger) (*Postgres, error) {
	if log == nil {
		log = logger.NoopLogger{}
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect audit store: %w", err)
	}
	return &Postgres{db: pool, log: log}, nil
}

// EnsureSchema creates the settlement table and its secondary indexes.
// Statements run one at a time; the extended protocol does not accept
// multi-statement strings.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure audit schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Close() {
	p.db.Close()
}

// Append inserts one settlement record. Insert failures are logged and
// swallowed so the execution path stays unaffected.
func (p *Postgres) Append(ctx context.Context, record *types.SettlementRecord) error {
	Normalize(record)

	var payload []byte
	if record.ResultPayload != nil {
		var err error
		if payload, err = json.Marshal(record.ResultPayload); err != nil {
			p.log.Warn("audit payload not serializable", logger.Fields{"error": err.Error()})
			payload = nil
		}
	}

	query := `
		INSERT INTO agent_transactions
			(id, kind, source_public_key, recipient_public_key, amount, memo,
			 transaction_hash, status, error_message, result_payload, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, NULLIF($9, ''), $10, $11)
	`
	_, err := p.db.Exec(ctx, query,
		record.ID,
		record.Kind.String(),
		record.SourcePublicKey,
		record.RecipientPublicKey,
		record.Amount,
		record.Memo,
		record.TransactionHash,
		string(record.Status),
		record.ErrorMessage,
		payload,
		record.CreatedAt,
	)
	if err != nil {
		p.log.Warn("failed to record settlement", logger.Fields{
			"kind":  record.Kind.String(),
			"error": err.Error(),
		})
	}
	return nil
}

// Rankings aggregates successful settlements per source key: trade count and
// summed volume, most active agents first.
func (p *Postgres) Rankings(ctx context.Context, limit int) ([]RankingRow, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT source_public_key,
		       COUNT(*),
		       COALESCE(SUM(amount::numeric), 0)::text
		FROM agent_transactions
		WHERE status = 'success' AND source_public_key <> ''
		GROUP BY source_public_key
		ORDER BY COUNT(*) DESC
		LIMIT $1
	`
	rows, err := p.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("aggregate rankings: %w", err)
	}
	defer rows.Close()

	var out []RankingRow
	for rows.Next() {
		var r RankingRow
		if err := rows.Scan(&r.SourceKey, &r.Trades, &r.Volume); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// List returns settlement records newest first.
func (p *Postgres) List(ctx context.Context, limit, offset int) ([]types.SettlementRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, kind, source_public_key, recipient_public_key, amount,
		       COALESCE(memo, ''), COALESCE(transaction_hash, ''), status,
		       COALESCE(error_message, ''), result_payload, created_at
		FROM agent_transactions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := p.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var records []types.SettlementRecord
	for rows.Next() {
		var r types.SettlementRecord
		var kind, status string
		var payload []byte
		if err := rows.Scan(
			&r.ID, &kind, &r.SourcePublicKey, &r.RecipientPublicKey, &r.Amount,
			&r.Memo, &r.TransactionHash, &status, &r.ErrorMessage, &payload, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		r.Kind = types.PaymentKind(kind)
		r.Status = types.SettlementStatus(status)
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &r.ResultPayload)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
