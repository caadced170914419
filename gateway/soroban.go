package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/cygnuslabs/cygnus/logger"
)

// SorobanRPC implements ContractGateway over the Soroban JSON-RPC endpoint.
type SorobanRPC struct {
	client *resty.Client
	log    logger.Logger
}

// NewSorobanRPC builds a contract gateway for the given RPC URL.
func NewSorobanRPC(url string, log logger.Logger) *SorobanRPC {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if !strings.HasPrefix(url, "http") {
		url = "https://" + url
	}
	return &SorobanRPC{
		client: resty.New().
			SetBaseURL(url).
			SetTimeout(30 * time.Second).
			SetRetryCount(0),
		log: log,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (s *SorobanRPC) call(ctx context.Context, method string, params any, out any) error {
	var envelope rpcEnvelope
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}).
		SetResult(&envelope).
		Post("")
	if err != nil {
		return fmt.Errorf("soroban rpc %s: %w", method, err)
	}
	if resp.IsError() {
		return fmt.Errorf("soroban rpc %s: http %d", method, resp.StatusCode())
	}
	if envelope.Error != nil {
		return fmt.Errorf("soroban rpc %s: %s (code %d)", method, envelope.Error.Message, envelope.Error.Code)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("soroban rpc %s: decode result: %w", method, err)
	}
	return nil
}

type simulateResponse struct {
	TransactionData string `json:"transactionData"`
	MinResourceFee  string `json:"minResourceFee"`
	Results         []struct {
		Auth []string `json:"auth"`
		XDR  string   `json:"xdr"`
	} `json:"results"`
	LatestLedger int64  `json:"latestLedger"`
	Error        string `json:"error"`
}

func (s *SorobanRPC) Simulate(ctx context.Context, envelopeXDR string) (*SimulateResult, error) {
	var resp simulateResponse
	if err := s.call(ctx, "simulateTransaction", map[string]string{"transaction": envelopeXDR}, &resp); err != nil {
		return nil, err
	}

	result := &SimulateResult{
		TransactionData: resp.TransactionData,
		LatestLedger:    resp.LatestLedger,
		Error:           resp.Error,
	}
	if resp.MinResourceFee != "" {
		fee, err := strconv.ParseInt(resp.MinResourceFee, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("soroban rpc simulateTransaction: bad minResourceFee %q", resp.MinResourceFee)
		}
		result.MinResourceFee = fee
	}
	for _, r := range resp.Results {
		result.Auth = append(result.Auth, r.Auth...)
	}
	return result, nil
}

func (s *SorobanRPC) Send(ctx context.Context, envelopeXDR string) (*SendResult, error) {
	var resp SendResult
	if err := s.call(ctx, "sendTransaction", map[string]string{"transaction": envelopeXDR}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *SorobanRPC) GetTransaction(ctx context.Context, hash string) (*TxStatus, error) {
	var resp TxStatus
	if err := s.call(ctx, "getTransaction", map[string]string{"hash": hash}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health reports RPC health plus the latest ledger and network passphrase, so
// one probe answers all three questions a caller usually has.
func (s *SorobanRPC) Health(ctx context.Context) (*Health, error) {
	var health struct {
		Status string `json:"status"`
	}
	if err := s.call(ctx, "getHealth", nil, &health); err != nil {
		return nil, err
	}

	out := &Health{Status: health.Status}

	var ledger struct {
		Sequence int64 `json:"sequence"`
	}
	if err := s.call(ctx, "getLatestLedger", nil, &ledger); err == nil {
		out.LatestLedger = ledger.Sequence
	}

	var net struct {
		Passphrase string `json:"passphrase"`
	}
	if err := s.call(ctx, "getNetwork", nil, &net); err == nil {
		out.Passphrase = net.Passphrase
	}

	return out, nil
}
