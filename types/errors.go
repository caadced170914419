package types

// Error codes. This is the full set of failure classifications the execution
// and audit paths can produce; call sites switch on these rather than on
// error text.
const (
	ErrConfigMissing = "config_missing"
	ErrInvalidIntent = "invalid_intent"
	// ErrAccountUnavailable covers every read the network must answer before
	// a transaction can be built: the source account itself, and the fee
	// stats needed to price it.
	ErrAccountUnavailable = "account_unavailable"
	ErrNetworkMismatch    = "network_mismatch"
	ErrSubmitRejected     = "submit_rejected"
	ErrPrepareFailed      = "prepare_failed"
	ErrSendFailed         = "send_failed"
	ErrTimeout            = "timeout"
	ErrStorageUnavailable = "storage_unavailable"
)

// Error is the structured error carried inside execution results. Data holds
// the raw ledger diagnostics verbatim when the network rejected an operation.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds an Error with no diagnostic payload.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}
