package gate

import (
	"encoding/json"
	"net/http"
)

// Middleware wraps a handler behind the payment gate. Disabled gates pass
// everything through. A valid proof allows the request and attaches a
// settlement receipt header; everything else gets the same 402 challenge,
// with no hint of why the proof was rejected.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get(HeaderPayment)
		if token == "" {
			token = r.Header.Get(HeaderPaymentSignature)
		}

		if token != "" && g.Verify(r.Context(), token) {
			g.metrics.IncCounter("gate_allowed", map[string]string{"kind": "x402"})
			w.Header().Set(HeaderPaymentResponse, EncodeReceipt(map[string]any{
				"status":   "settled",
				"protocol": "x402",
			}))
			next.ServeHTTP(w, r)
			return
		}

		g.metrics.IncCounter("gate_denied", map[string]string{"kind": "x402"})
		requirements := g.Requirements()
		w.Header().Set(HeaderPaymentRequirements, EncodeRequirements(requirements))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":        "Payment Required",
			"requirements": requirements,
		})
	})
}
