// Package types defines the payment intents, settlement records, and the
// closed error taxonomy shared by every cygnus component.
package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/strkey"
)

// PaymentKind enumerates the payment shapes the agent can execute.
type PaymentKind string

const (
	KindTransfer            PaymentKind = "transfer"
	KindConditionalTransfer PaymentKind = "conditional_transfer"
	KindTimeBoundTransfer   PaymentKind = "time_bound_transfer"
	KindContractInvoke      PaymentKind = "contract_invoke"
)

func (k PaymentKind) IsValid() bool {
	switch k {
	case KindTransfer, KindConditionalTransfer, KindTimeBoundTransfer, KindContractInvoke:
		return true
	}
	return false
}

func (k PaymentKind) String() string {
	return string(k)
}

// ContractParam is one argument to a contract invocation. Type selects the
// SCVal conversion: address, symbol, string, bool, u32, i64, i128.
type ContractParam struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// PaymentIntent describes one payment the agent should execute. It is a
// value type; construct it once and do not mutate it afterwards.
type PaymentIntent struct {
	Kind        PaymentKind `json:"kind"`
	Destination string      `json:"destination"`
	Amount      string      `json:"amount"`
	Memo        string      `json:"memo,omitempty"`

	// SourceSecret overrides the configured agent signing key for this
	// intent only. Never persisted.
	SourceSecret string `json:"-"`

	// time_bound_transfer
	ValidForSeconds int64 `json:"validForSeconds,omitempty"`

	// conditional_transfer claim predicate. Relative wins if both are set.
	PredicateBeforeRelativeSeconds *int64 `json:"predicateBeforeRelativeSeconds,omitempty"`
	PredicateBeforeAbsoluteTime    *int64 `json:"predicateBeforeAbsoluteTime,omitempty"`

	// contract_invoke
	ContractID   string          `json:"contractId,omitempty"`
	FunctionName string          `json:"functionName,omitempty"`
	Parameters   []ContractParam `json:"parameters,omitempty"`
}

// memo text operations are capped at 28 bytes by the network
const maxMemoBytes = 28

// Validate checks the intent shape without touching the network.
func (p *PaymentIntent) Validate() error {
	if !p.Kind.IsValid() {
		return &Error{Code: ErrInvalidIntent, Message: fmt.Sprintf("unknown payment kind: %q", p.Kind)}
	}

	if p.Kind == KindContractInvoke {
		if !strkey.IsValidContractAddress(p.ContractID) {
			return &Error{Code: ErrInvalidIntent, Message: fmt.Sprintf("invalid contract id: %q", p.ContractID)}
		}
		if p.FunctionName == "" {
			return &Error{Code: ErrInvalidIntent, Message: "function name is required"}
		}
		return nil
	}

	if err := ValidateAmount(p.Amount); err != nil {
		return err
	}
	if !strkey.IsValidEd25519PublicKey(p.Destination) {
		return &Error{Code: ErrInvalidIntent, Message: fmt.Sprintf("invalid destination account: %q", p.Destination)}
	}
	if len(p.Memo) > maxMemoBytes {
		return &Error{Code: ErrInvalidIntent, Message: "memo exceeds 28 bytes"}
	}
	if p.Kind == KindTimeBoundTransfer {
		if p.ValidForSeconds < 1 || p.ValidForSeconds > 86400 {
			return &Error{Code: ErrInvalidIntent, Message: "validForSeconds must be between 1 and 86400"}
		}
	}
	return nil
}

// ValidateAmount rejects non-numeric, non-positive, and over-precise amounts.
// Amounts are decimal strings; the ledger carries at most 7 decimal places.
func ValidateAmount(amount string) error {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return &Error{Code: ErrInvalidIntent, Message: fmt.Sprintf("malformed amount: %q", amount)}
	}
	if !d.IsPositive() {
		return &Error{Code: ErrInvalidIntent, Message: fmt.Sprintf("amount must be positive: %q", amount)}
	}
	if d.Exponent() < -7 {
		return &Error{Code: ErrInvalidIntent, Message: fmt.Sprintf("amount exceeds 7 decimal places: %q", amount)}
	}
	return nil
}

// SettlementStatus is the terminal status of a settlement record.
type SettlementStatus string

const (
	StatusSuccess SettlementStatus = "success"
	StatusFailed  SettlementStatus = "failed"
)

// AgentRanking is one row of the agent leaderboard: settlement activity
// aggregated per source key, ordered by trade count.
type AgentRanking struct {
	Rank        int    `json:"rank"`
	AgentID     string `json:"agentId"`
	Label       string `json:"label"`
	TradesCount int    `json:"tradesCount"`
	ProfitXLM   string `json:"profitXlm"`
	VolumeXLM   string `json:"volumeXlm"`
}

// SettlementRecord is the append-only audit row written once per executed
// payment attempt, success or failure.
type SettlementRecord struct {
	ID                 string           `json:"id"`
	Kind               PaymentKind      `json:"kind"`
	SourcePublicKey    string           `json:"source_public_key"`
	RecipientPublicKey string           `json:"recipient_public_key"`
	Amount             string           `json:"amount"`
	Memo               string           `json:"memo,omitempty"`
	TransactionHash    string           `json:"transaction_hash,omitempty"`
	Status             SettlementStatus `json:"status"`
	ErrorMessage       string           `json:"error_message,omitempty"`
	ResultPayload      map[string]any   `json:"result_payload,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}
