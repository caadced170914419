package api

import "github.com/cygnuslabs/cygnus/types"

// NativePaymentRequest is the body for plain and traced transfers.
type NativePaymentRequest struct {
	Destination string `json:"destination" validate:"required,len=56"`
	Amount      string `json:"amount" validate:"required"`
	Memo        string `json:"memo,omitempty" validate:"max=28"`
}

// ClaimableBalanceRequest creates a conditional transfer the claimant can
// collect within the predicate window.
type ClaimableBalanceRequest struct {
	Claimant                       string `json:"claimant" validate:"required,len=56"`
	Amount                         string `json:"amount" validate:"required"`
	PredicateBeforeRelativeSeconds *int64 `json:"predicate_before_relative_seconds,omitempty" validate:"omitempty,min=1"`
}

// TimeBoundPaymentRequest is a transfer valid only for the next
// valid_for_seconds.
type TimeBoundPaymentRequest struct {
	Destination     string `json:"destination" validate:"required,len=56"`
	Amount          string `json:"amount" validate:"required"`
	ValidForSeconds int64  `json:"valid_for_seconds" validate:"required,min=1,max=86400"`
}

// InvokeContractRequest invokes a contract function with typed parameters.
type InvokeContractRequest struct {
	ContractID   string                `json:"contract_id" validate:"required,len=56"`
	FunctionName string                `json:"function_name" validate:"required"`
	Parameters   []types.ContractParam `json:"parameters"`
	SourceSecret string                `json:"source_secret" validate:"required,len=56"`
}
