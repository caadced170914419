package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the full HTTP surface: the payment endpoints, the audit
// listing, the x402 gate, contract health and operational endpoints.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/payments", func(r chi.Router) {
		r.Post("/native", h.nativePayment)
		r.Post("/native/with-steps", h.nativePaymentWithSteps)
		r.Post("/claimable", h.claimableBalance)
		r.Post("/time-bound", h.timeBoundPayment)
		r.Get("/transactions", h.listTransactions)
	})

	r.Post("/soroban/invoke", h.invokeContract)
	r.Get("/soroban/health", h.sorobanHealth)

	r.Get("/agents/rankings", h.agentRankings)

	r.Route("/stellar/liquidity-pools", func(r chi.Router) {
		r.Get("/", h.listLiquidityPools)
		r.Get("/{poolID}", h.getLiquidityPool)
	})

	r.Route("/x402", func(r chi.Router) {
		r.Get("/requirements", h.paymentRequirements)
		r.With(h.Gate.Middleware).Get("/premium", h.premiumResource)
	})

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
