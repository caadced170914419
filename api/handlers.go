// Package api exposes the payment pipeline and the x402 gate over HTTP.
// Routing and serialization only; all business logic lives below it.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/cygnuslabs/cygnus/analytics"
	"github.com/cygnuslabs/cygnus/audit"
	"github.com/cygnuslabs/cygnus/executor"
	"github.com/cygnuslabs/cygnus/gate"
	"github.com/cygnuslabs/cygnus/gateway"
	"github.com/cygnuslabs/cygnus/logger"
	"github.com/cygnuslabs/cygnus/types"
)

// Handlers carries the collaborators the HTTP surface calls into.
type Handlers struct {
	Exec      *executor.Executor
	Audit     audit.Ledger
	Gate      *gate.Gate
	Contracts gateway.ContractGateway
	Pools     gateway.PoolGateway
	Rankings  *analytics.Analytics
	Log       logger.Logger

	validate *validator.Validate
}

// NewHandlers wires the HTTP surface. Pools may be nil when no pool-capable
// gateway is configured; the pool routes then answer 503.
func NewHandlers(exec *executor.Executor, auditLedger audit.Ledger, g *gate.Gate, contracts gateway.ContractGateway, pools gateway.PoolGateway, rankings *analytics.Analytics, log logger.Logger) *Handlers {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rankings == nil {
		rankings = analytics.New(auditLedger, analytics.WithLogger(log))
	}
	return &Handlers{
		Exec:      exec,
		Audit:     auditLedger,
		Gate:      g,
		Contracts: contracts,
		Pools:     pools,
		Rankings:  rankings,
		Log:       log,
		validate:  validator.New(),
	}
}

type tracedResponse struct {
	*executor.Result
	Steps []executor.Step `json:"steps"`
}

func (h *Handlers) nativePayment(w http.ResponseWriter, r *http.Request) {
	var req NativePaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	result := h.Exec.Execute(r.Context(), &types.PaymentIntent{
		Kind:        types.KindTransfer,
		Destination: req.Destination,
		Amount:      req.Amount,
		Memo:        req.Memo,
	})
	writeJSON(w, statusFor(result), result)
}

func (h *Handlers) nativePaymentWithSteps(w http.ResponseWriter, r *http.Request) {
	var req NativePaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, steps := h.Exec.ExecuteTraced(r.Context(), &types.PaymentIntent{
		Kind:        types.KindTransfer,
		Destination: req.Destination,
		Amount:      req.Amount,
		Memo:        req.Memo,
	})
	writeJSON(w, statusFor(result), tracedResponse{Result: result, Steps: steps})
}

func (h *Handlers) claimableBalance(w http.ResponseWriter, r *http.Request) {
	var req ClaimableBalanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	result := h.Exec.Execute(r.Context(), &types.PaymentIntent{
		Kind:                           types.KindConditionalTransfer,
		Destination:                    req.Claimant,
		Amount:                         req.Amount,
		PredicateBeforeRelativeSeconds: req.PredicateBeforeRelativeSeconds,
	})
	writeJSON(w, statusFor(result), result)
}

func (h *Handlers) timeBoundPayment(w http.ResponseWriter, r *http.Request) {
	var req TimeBoundPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	result := h.Exec.Execute(r.Context(), &types.PaymentIntent{
		Kind:            types.KindTimeBoundTransfer,
		Destination:     req.Destination,
		Amount:          req.Amount,
		ValidForSeconds: req.ValidForSeconds,
	})
	writeJSON(w, statusFor(result), result)
}

func (h *Handlers) invokeContract(w http.ResponseWriter, r *http.Request) {
	var req InvokeContractRequest
	if !h.decode(w, r, &req) {
		return
	}
	result := h.Exec.Execute(r.Context(), &types.PaymentIntent{
		Kind:         types.KindContractInvoke,
		ContractID:   req.ContractID,
		FunctionName: req.FunctionName,
		Parameters:   req.Parameters,
		SourceSecret: req.SourceSecret,
	})
	writeJSON(w, statusFor(result), result)
}

func (h *Handlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	records, err := h.Audit.List(r.Context(), limit, offset)
	if err != nil {
		var terr *types.Error
		if errors.As(err, &terr) && terr.Code == types.ErrStorageUnavailable {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error":   terr.Code,
				"message": terr.Message,
			})
			return
		}
		h.Log.Error("list settlements failed", logger.Fields{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal"})
		return
	}
	if records == nil {
		records = []types.SettlementRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": records})
}

func (h *Handlers) agentRankings(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	writeJSON(w, http.StatusOK, h.Rankings.Rankings(r.Context(), limit))
}

func (h *Handlers) listLiquidityPools(w http.ResponseWriter, r *http.Request) {
	if h.Pools == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "liquidity pools not available"})
		return
	}
	limit := queryInt(r, "limit", 10)
	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}
	pools, err := h.Pools.ListLiquidityPools(r.Context(), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"liquidityPools": pools})
}

func (h *Handlers) getLiquidityPool(w http.ResponseWriter, r *http.Request) {
	if h.Pools == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "liquidity pools not available"})
		return
	}
	pool, err := h.Pools.GetLiquidityPool(r.Context(), chi.URLParam(r, "poolID"))
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "liquidity pool not found"})
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (h *Handlers) paymentRequirements(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Gate.Requirements())
}

// premiumResource is the example paywalled endpoint; the gate middleware in
// front of it is what enforces payment.
func (h *Handlers) premiumResource(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Premium content (paid via x402)",
		"receipt": map[string]any{"status": "settled", "protocol": "x402"},
	})
}

func (h *Handlers) sorobanHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.Contracts.Health(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (h *Handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// decode parses and validates a JSON body, answering 400 itself when the
// body is unusable.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   types.ErrInvalidIntent,
			"message": "malformed request body",
		})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   types.ErrInvalidIntent,
			"message": err.Error(),
		})
		return false
	}
	return true
}

// statusFor maps an execution result onto an HTTP status. Missing
// configuration is a service problem, not a caller problem.
func statusFor(result *executor.Result) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.ErrorCode {
	case types.ErrConfigMissing:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
