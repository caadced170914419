// Package executor drives a payment intent through build, sign, submit, and
// settlement tracking, classifying the outcome into the closed error set.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stellar/go/keypair"

	"github.com/cygnuslabs/cygnus/audit"
	"github.com/cygnuslabs/cygnus/gateway"
	"github.com/cygnuslabs/cygnus/logger"
	"github.com/cygnuslabs/cygnus/metrics"
	"github.com/cygnuslabs/cygnus/txbuilder"
	"github.com/cygnuslabs/cygnus/types"
)

// Result is the structured outcome of one execution. ErrorCode is one of
// the types error codes; it is empty on success.
type Result struct {
	Success   bool           `json:"success"`
	Hash      string         `json:"hash,omitempty"`
	Status    string         `json:"status,omitempty"`
	Payload   map[string]any `json:"result,omitempty"`
	ErrorCode string         `json:"error,omitempty"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Executor owns the payment pipeline for one signing identity. Concurrent
// executions for the same identity are not serialized here; conflicting
// sequence numbers are rejected by the network itself.
type Executor struct {
	Builder   *txbuilder.Builder
	Ledger    gateway.LedgerGateway
	Contracts gateway.ContractGateway
	Audit     audit.Ledger
	Log       logger.Logger
	Metrics   metrics.Recorder

	// AgentSecret signs intents that carry no SourceSecret override.
	AgentSecret string

	PollInterval time.Duration
	PollDeadline time.Duration

	auditTimeout time.Duration
	auditWG      sync.WaitGroup
}

// New wires an executor with the default poll cadence (3s interval, 60s
// deadline).
func New(builder *txbuilder.Builder, auditLedger audit.Ledger, log logger.Logger, rec metrics.Recorder, agentSecret string) *Executor {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	if auditLedger == nil {
		auditLedger = audit.Disabled{}
	}
	return &Executor{
		Builder:      builder,
		Ledger:       builder.Ledger,
		Contracts:    builder.Contracts,
		Audit:        auditLedger,
		Log:          log,
		Metrics:      rec,
		AgentSecret:  agentSecret,
		PollInterval: 3 * time.Second,
		PollDeadline: 60 * time.Second,
		auditTimeout: 5 * time.Second,
	}
}

// Execute runs the pipeline silently: pass/fail plus the network-assigned
// hash, no per-phase visibility.
func (e *Executor) Execute(ctx context.Context, intent *types.PaymentIntent) *Result {
	start := time.Now()
	result := e.executeSilent(ctx, intent)
	e.observe(intent, result, time.Since(start))
	return result
}

// ExecuteTraced runs the same pipeline for ledger payment kinds while
// emitting a step per phase in fixed order; the first failing phase marks
// its step error and halts, so the steps list reflects exactly what ran.
func (e *Executor) ExecuteTraced(ctx context.Context, intent *types.PaymentIntent) (*Result, []Step) {
	start := time.Now()
	result, steps := e.executeTraced(ctx, intent)
	e.observe(intent, result, time.Since(start))
	return result, steps
}

func (e *Executor) executeSilent(ctx context.Context, intent *types.PaymentIntent) *Result {
	kp, result := e.signingKey(intent)
	if result != nil {
		e.appendRecord(intent, "", result)
		return result
	}

	if intent.Kind == types.KindContractInvoke {
		result = e.executeInvoke(ctx, intent, kp)
		e.appendRecord(intent, kp.Address(), result)
		return result
	}

	signed, err := e.Builder.Build(ctx, intent, kp)
	if err != nil {
		result = failedResult(err)
		e.appendRecord(intent, kp.Address(), result)
		return result
	}

	submitted, err := e.Ledger.Submit(ctx, signed.Tx)
	if err != nil {
		result = failedResult(err)
		e.appendRecord(intent, kp.Address(), result)
		return result
	}

	result = successResult(submitted)
	e.appendRecord(intent, kp.Address(), result)
	return result
}

func (e *Executor) executeTraced(ctx context.Context, intent *types.PaymentIntent) (*Result, []Step) {
	tr := &trace{enabled: true}

	if intent.Kind == types.KindContractInvoke {
		// Traced mode covers ledger payments; contract invocations report
		// progress through the poll status instead.
		result := failedResult(types.NewError(types.ErrInvalidIntent, "traced execution does not support contract invocations"))
		e.appendRecord(intent, "", result)
		return result, tr.steps
	}

	tr.begin(StepKeyLoad, "Load agent key", fmt.Sprintf("Network: %s", e.Builder.Network))
	kp, result := e.signingKey(intent)
	if result != nil {
		tr.fail(result.Message)
		e.appendRecord(intent, "", result)
		return result, tr.steps
	}
	tr.done(fmt.Sprintf("Source: %s", abbreviate(kp.Address())))

	tr.begin(StepGatewayConnect, "Connect to Horizon", "")
	baseFee, err := e.Ledger.FetchBaseFee(ctx)
	if err != nil {
		return e.failTraced(tr, intent, kp, err)
	}
	tr.done(fmt.Sprintf("Base fee: %d stroops", baseFee))

	tr.begin(StepAccountLoad, "Load source account", "")
	account, err := e.Ledger.LoadAccount(ctx, kp.Address())
	if err != nil {
		return e.failTraced(tr, intent, kp, err)
	}
	tr.done("Account loaded")

	tr.begin(StepBuild, "Build transaction", fmt.Sprintf("Pay %s XLM to %s", intent.Amount, abbreviate(intent.Destination)))
	if err := intent.Validate(); err != nil {
		return e.failTraced(tr, intent, kp, err)
	}
	if err := e.Builder.CheckNetwork(); err != nil {
		return e.failTraced(tr, intent, kp, err)
	}
	tx, err := e.Builder.BuildUnsigned(intent, account, baseFee)
	if err != nil {
		return e.failTraced(tr, intent, kp, err)
	}
	tr.done("Payment op + memo (if any) added")

	tr.begin(StepSign, "Sign transaction", "")
	signed, err := e.Builder.Sign(tx, kp)
	if err != nil {
		return e.failTraced(tr, intent, kp, err)
	}
	tr.done("Signed with agent key")

	tr.begin(StepSubmit, "Submit to network", "")
	submitted, err := e.Ledger.Submit(ctx, signed.Tx)
	if err != nil {
		return e.failTraced(tr, intent, kp, err)
	}
	tr.done(fmt.Sprintf("Success. Hash: %s", submitted.Hash))

	result = successResult(submitted)
	e.appendRecord(intent, kp.Address(), result)
	return result, tr.steps
}

func (e *Executor) failTraced(tr *trace, intent *types.PaymentIntent, kp *keypair.Full, err error) (*Result, []Step) {
	result := failedResult(err)
	tr.fail(result.Message)
	e.appendRecord(intent, kp.Address(), result)
	return result, tr.steps
}

// executeInvoke sends a prepared contract transaction and polls it to a
// terminal status. On deadline the hash is still reported; the transaction
// may land later.
func (e *Executor) executeInvoke(ctx context.Context, intent *types.PaymentIntent, kp *keypair.Full) *Result {
	signed, err := e.Builder.Build(ctx, intent, kp)
	if err != nil {
		return failedResult(err)
	}

	sent, err := e.Contracts.Send(ctx, signed.EnvelopeXDR)
	if err != nil {
		return failedResult(&types.Error{Code: types.ErrSendFailed, Message: fmt.Sprintf("send transaction: %v", err)})
	}
	hash := sent.Hash
	if hash == "" {
		hash = signed.Hash
	}
	if sent.Status != gateway.SendStatusPending {
		result := failedResult(&types.Error{
			Code:    types.ErrSendFailed,
			Message: fmt.Sprintf("send rejected with status %s", sent.Status),
			Data: map[string]any{
				"status":         sent.Status,
				"errorResultXdr": sent.ErrorResultXDR,
			},
		})
		result.Hash = hash
		result.Status = sent.Status
		return result
	}

	return e.pollInvoke(ctx, hash)
}

func (e *Executor) pollInvoke(ctx context.Context, hash string) *Result {
	deadline := time.NewTimer(e.PollDeadline)
	defer deadline.Stop()
	ticker := time.NewTicker(e.PollInterval)
	defer ticker.Stop()

	for {
		status, err := e.Contracts.GetTransaction(ctx, hash)
		if err != nil {
			// transient RPC failure; keep polling until the deadline
			e.Log.Warn("contract status poll failed", logger.Fields{"hash": hash, "error": err.Error()})
		} else if status.Status != gateway.ContractStatusNotFound {
			if status.Status == gateway.ContractStatusSuccess {
				return &Result{
					Success: true,
					Hash:    hash,
					Status:  status.Status,
					Payload: map[string]any{
						"hash":          hash,
						"ledger":        status.Ledger,
						"resultMetaXdr": status.ResultMetaXDR,
					},
				}
			}
			result := failedResult(&types.Error{
				Code:    types.ErrSubmitRejected,
				Message: fmt.Sprintf("transaction reached terminal status %s", status.Status),
				Data:    map[string]any{"resultXdr": status.ResultXDR},
			})
			result.Hash = hash
			result.Status = status.Status
			return result
		}

		select {
		case <-ctx.Done():
			result := failedResult(types.NewError(types.ErrTimeout, ctx.Err().Error()))
			result.Hash = hash
			result.Status = "timeout"
			return result
		case <-deadline.C:
			result := failedResult(types.NewError(types.ErrTimeout, "transaction not found within deadline"))
			result.Hash = hash
			result.Status = "timeout"
			return result
		case <-ticker.C:
		}
	}
}

// signingKey resolves the key for this intent: the intent override first,
// then the configured agent key.
func (e *Executor) signingKey(intent *types.PaymentIntent) (*keypair.Full, *Result) {
	secret := intent.SourceSecret
	if secret == "" {
		secret = e.AgentSecret
	}
	if secret == "" {
		return nil, failedResult(types.NewError(types.ErrConfigMissing, "no signing key configured"))
	}
	kp, err := txbuilder.ParseSigningKey(secret)
	if err != nil {
		return nil, failedResult(err)
	}
	return kp, nil
}

// appendRecord writes the settlement record for this attempt. Fire and
// forget: the write gets its own timeout and can never alter the payment
// outcome.
func (e *Executor) appendRecord(intent *types.PaymentIntent, source string, result *Result) {
	record := &types.SettlementRecord{
		Kind:               intent.Kind,
		SourcePublicKey:    source,
		RecipientPublicKey: recipientOf(intent),
		Amount:             amountOf(intent),
		Memo:               intent.Memo,
		TransactionHash:    result.Hash,
		Status:             types.StatusFailed,
		ErrorMessage:       result.Message,
		ResultPayload:      result.Payload,
	}
	if result.Success {
		record.Status = types.StatusSuccess
		record.ErrorMessage = ""
	}
	audit.Normalize(record)

	e.auditWG.Add(1)
	go func() {
		defer e.auditWG.Done()
		defer func() {
			if r := recover(); r != nil {
				e.Log.Error("settlement write panicked", logger.Fields{"panic": fmt.Sprint(r)})
				e.Metrics.IncCounter("audit_write_failed", map[string]string{"kind": intent.Kind.String()})
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), e.auditTimeout)
		defer cancel()
		if err := e.Audit.Append(ctx, record); err != nil {
			e.Log.Warn("failed to record settlement", logger.Fields{
				"kind":  intent.Kind.String(),
				"error": err.Error(),
			})
			e.Metrics.IncCounter("audit_write_failed", map[string]string{"kind": intent.Kind.String()})
		}
	}()
}

// Flush waits for in-flight settlement writes. Call on shutdown.
func (e *Executor) Flush() {
	e.auditWG.Wait()
}

func (e *Executor) observe(intent *types.PaymentIntent, result *Result, elapsed time.Duration) {
	outcome := "payment_failed"
	if result.Success {
		outcome = "payment_succeeded"
	}
	labels := map[string]string{"kind": intent.Kind.String()}
	e.Metrics.IncCounter(outcome, labels)
	e.Metrics.ObserveLatency("execute", elapsed, labels)

	e.Log.Info("payment executed", logger.Fields{
		"kind":    intent.Kind.String(),
		"success": result.Success,
		"hash":    result.Hash,
		"error":   result.ErrorCode,
	})
}

func successResult(submitted *gateway.TxResult) *Result {
	return &Result{
		Success: true,
		Hash:    submitted.Hash,
		Payload: map[string]any{
			"hash":       submitted.Hash,
			"ledger":     submitted.Ledger,
			"successful": submitted.Successful,
		},
	}
}

// failedResult classifies an error into the closed code set. Context
// cancellations map to timeout; anything untyped is a submit rejection.
func failedResult(err error) *Result {
	var terr *types.Error
	if errors.As(err, &terr) {
		return &Result{
			Success:   false,
			ErrorCode: terr.Code,
			Message:   terr.Message,
			Data:      terr.Data,
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Result{Success: false, ErrorCode: types.ErrTimeout, Message: err.Error()}
	}
	return &Result{Success: false, ErrorCode: types.ErrSubmitRejected, Message: err.Error()}
}

func recipientOf(intent *types.PaymentIntent) string {
	if intent.Kind == types.KindContractInvoke {
		return intent.ContractID
	}
	return intent.Destination
}

func amountOf(intent *types.PaymentIntent) string {
	if intent.Kind == types.KindContractInvoke {
		return "0"
	}
	return intent.Amount
}

func abbreviate(addr string) string {
	if len(addr) < 12 {
		return addr
	}
	return addr[:8] + "..." + addr[len(addr)-4:]
}
