// Package txbuilder turns payment intents into signed, network-ready
// transactions. It is the only place operation assembly and signing happen.
package txbuilder

import (
	"context"
	"fmt"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"

	"github.com/cygnuslabs/cygnus/gateway"
	"github.com/cygnuslabs/cygnus/types"
)

// DefaultTimeoutSeconds bounds the validity window of transfers that carry no
// explicit window of their own.
const DefaultTimeoutSeconds = 300

// claimableTimeoutSeconds bounds claimable-balance creation; the balance
// itself stays claimable per its predicate, only the creating transaction
// expires.
const claimableTimeoutSeconds = 60

// SignedTransaction is a single-use signed envelope. It must be submitted at
// most once; the network rejects sequence reuse.
type SignedTransaction struct {
	Tx                *txnbuild.Transaction
	Hash              string
	EnvelopeXDR       string
	NetworkPassphrase string
}

// Builder builds transactions for one configured network.
type Builder struct {
	Ledger    gateway.LedgerGateway
	Contracts gateway.ContractGateway

	Network    types.Network
	Passphrase string
}

// New builds a Builder whose signing passphrase matches the configured
// network.
func New(ledger gateway.LedgerGateway, contracts gateway.ContractGateway, net types.Network) *Builder {
	return &Builder{
		Ledger:     ledger,
		Contracts:  contracts,
		Network:    net,
		Passphrase: net.Passphrase(),
	}
}

// Build validates the intent, loads the source account and fee from the
// gateway, assembles the kind-specific operation, and signs. No gateway call
// happens for an invalid intent.
func (b *Builder) Build(ctx context.Context, intent *types.PaymentIntent, kp *keypair.Full) (*SignedTransaction, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if err := b.CheckNetwork(); err != nil {
		return nil, err
	}

	if intent.Kind == types.KindContractInvoke {
		return b.buildInvoke(ctx, intent, kp)
	}

	baseFee, err := b.Ledger.FetchBaseFee(ctx)
	if err != nil {
		return nil, err
	}
	account, err := b.Ledger.LoadAccount(ctx, kp.Address())
	if err != nil {
		return nil, err
	}
	tx, err := b.BuildUnsigned(intent, account, baseFee)
	if err != nil {
		return nil, err
	}
	return b.Sign(tx, kp)
}

// CheckNetwork rejects a builder whose signing passphrase disagrees with its
// configured network.
func (b *Builder) CheckNetwork() error {
	if !b.Network.IsValid() || b.Passphrase != b.Network.Passphrase() {
		return &types.Error{
			Code:    types.ErrNetworkMismatch,
			Message: fmt.Sprintf("signing passphrase does not match network %q", b.Network),
		}
	}
	return nil
}

// BuildUnsigned assembles the unsigned transaction for ledger payment kinds.
// Pure: no network access.
func (b *Builder) BuildUnsigned(intent *types.PaymentIntent, account txnbuild.Account, baseFee int64) (*txnbuild.Transaction, error) {
	var op txnbuild.Operation
	timeout := int64(DefaultTimeoutSeconds)

	switch intent.Kind {
	case types.KindTransfer:
		op = &txnbuild.Payment{
			Destination: intent.Destination,
			Amount:      intent.Amount,
			Asset:       txnbuild.NativeAsset{},
		}

	case types.KindTimeBoundTransfer:
		op = &txnbuild.Payment{
			Destination: intent.Destination,
			Amount:      intent.Amount,
			Asset:       txnbuild.NativeAsset{},
		}
		timeout = intent.ValidForSeconds

	case types.KindConditionalTransfer:
		predicate := claimPredicate(intent)
		op = &txnbuild.CreateClaimableBalance{
			Amount:       intent.Amount,
			Asset:        txnbuild.NativeAsset{},
			Destinations: []txnbuild.Claimant{txnbuild.NewClaimant(intent.Destination, &predicate)},
		}
		timeout = claimableTimeoutSeconds

	default:
		return nil, types.NewError(types.ErrInvalidIntent, fmt.Sprintf("kind %q is not a ledger payment", intent.Kind))
	}

	params := txnbuild.TransactionParams{
		SourceAccount:        account,
		IncrementSequenceNum: true,
		BaseFee:              baseFee,
		Operations:           []txnbuild.Operation{op},
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(timeout)},
	}
	if intent.Memo != "" {
		params.Memo = txnbuild.MemoText(intent.Memo)
	}

	tx, err := txnbuild.NewTransaction(params)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidIntent, fmt.Sprintf("build transaction: %v", err))
	}
	return tx, nil
}

// claimPredicate maps the intent's predicate fields to a claim predicate.
// Relative takes precedence; with neither set the balance is always
// claimable.
func claimPredicate(intent *types.PaymentIntent) xdr.ClaimPredicate {
	if intent.PredicateBeforeRelativeSeconds != nil {
		return txnbuild.BeforeRelativeTimePredicate(*intent.PredicateBeforeRelativeSeconds)
	}
	if intent.PredicateBeforeAbsoluteTime != nil {
		return txnbuild.BeforeAbsoluteTimePredicate(*intent.PredicateBeforeAbsoluteTime)
	}
	return txnbuild.UnconditionalPredicate
}

// Sign signs with the builder's network passphrase and captures the
// submission hash.
func (b *Builder) Sign(tx *txnbuild.Transaction, kp *keypair.Full) (*SignedTransaction, error) {
	signed, err := tx.Sign(b.Passphrase, kp)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidIntent, fmt.Sprintf("sign transaction: %v", err))
	}
	hash, err := signed.HashHex(b.Passphrase)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidIntent, fmt.Sprintf("hash transaction: %v", err))
	}
	envelope, err := signed.Base64()
	if err != nil {
		return nil, types.NewError(types.ErrInvalidIntent, fmt.Sprintf("encode transaction: %v", err))
	}
	return &SignedTransaction{
		Tx:                signed,
		Hash:              hash,
		EnvelopeXDR:       envelope,
		NetworkPassphrase: b.Passphrase,
	}, nil
}

// buildInvoke builds an invocation, simulates it for resource estimation,
// folds the simulation back into the operation, and signs the prepared
// transaction.
func (b *Builder) buildInvoke(ctx context.Context, intent *types.PaymentIntent, kp *keypair.Full) (*SignedTransaction, error) {
	account, err := b.Ledger.LoadAccount(ctx, kp.Address())
	if err != nil {
		return nil, err
	}
	// Sequence snapshot: the simulate and prepared builds must consume the
	// same sequence number.
	seq, err := account.GetSequenceNumber()
	if err != nil {
		return nil, types.NewError(types.ErrAccountUnavailable, fmt.Sprintf("read sequence: %v", err))
	}
	source := txnbuild.SimpleAccount{AccountID: account.GetAccountID(), Sequence: seq}

	op, err := b.invokeOperation(intent)
	if err != nil {
		return nil, err
	}

	draft := source
	unprepared, err := b.invokeTransaction(&draft, op, txnbuild.MinBaseFee)
	if err != nil {
		return nil, err
	}
	envelope, err := unprepared.Base64()
	if err != nil {
		return nil, types.NewError(types.ErrPrepareFailed, fmt.Sprintf("encode transaction: %v", err))
	}

	sim, err := b.Contracts.Simulate(ctx, envelope)
	if err != nil {
		return nil, &types.Error{Code: types.ErrPrepareFailed, Message: fmt.Sprintf("simulate: %v", err)}
	}
	if sim.Error != "" {
		return nil, &types.Error{
			Code:    types.ErrPrepareFailed,
			Message: "simulation rejected the invocation",
			Data: map[string]any{
				"error":        sim.Error,
				"latestLedger": sim.LatestLedger,
			},
		}
	}

	if err := applySimulation(op, sim); err != nil {
		return nil, err
	}

	prepared := source
	tx, err := b.invokeTransaction(&prepared, op, txnbuild.MinBaseFee+sim.MinResourceFee)
	if err != nil {
		return nil, err
	}
	return b.Sign(tx, kp)
}

func (b *Builder) invokeOperation(intent *types.PaymentIntent) (*txnbuild.InvokeHostFunction, error) {
	contract, err := scAddress(intent.ContractID)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidIntent, err.Error())
	}

	args := make([]xdr.ScVal, 0, len(intent.Parameters))
	for _, p := range intent.Parameters {
		val, err := scValFromParam(p)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidIntent, err.Error())
		}
		args = append(args, val)
	}

	return &txnbuild.InvokeHostFunction{
		HostFunction: xdr.HostFunction{
			Type: xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
			InvokeContract: &xdr.InvokeContractArgs{
				ContractAddress: *contract,
				FunctionName:    xdr.ScSymbol(intent.FunctionName),
				Args:            args,
			},
		},
	}, nil
}

func (b *Builder) invokeTransaction(source txnbuild.Account, op *txnbuild.InvokeHostFunction, fee int64) (*txnbuild.Transaction, error) {
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        source,
		IncrementSequenceNum: true,
		BaseFee:              fee,
		Operations:           []txnbuild.Operation{op},
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(DefaultTimeoutSeconds)},
	})
	if err != nil {
		return nil, types.NewError(types.ErrInvalidIntent, fmt.Sprintf("build invocation: %v", err))
	}
	return tx, nil
}

// applySimulation patches the simulated footprint, auth entries, and resource
// fee extension into the operation.
func applySimulation(op *txnbuild.InvokeHostFunction, sim *gateway.SimulateResult) error {
	if sim.TransactionData != "" {
		var data xdr.SorobanTransactionData
		if err := xdr.SafeUnmarshalBase64(sim.TransactionData, &data); err != nil {
			return types.NewError(types.ErrPrepareFailed, fmt.Sprintf("decode transaction data: %v", err))
		}
		op.Ext = xdr.TransactionExt{V: 1, SorobanData: &data}
	}

	if len(sim.Auth) > 0 {
		auth := make([]xdr.SorobanAuthorizationEntry, 0, len(sim.Auth))
		for _, a := range sim.Auth {
			var entry xdr.SorobanAuthorizationEntry
			if err := xdr.SafeUnmarshalBase64(a, &entry); err != nil {
				return types.NewError(types.ErrPrepareFailed, fmt.Sprintf("decode auth entry: %v", err))
			}
			auth = append(auth, entry)
		}
		op.Auth = auth
	}
	return nil
}

// ParseSigningKey loads a signing keypair from its secret seed.
func ParseSigningKey(secret string) (*keypair.Full, error) {
	if !strkey.IsValidEd25519SecretSeed(secret) {
		return nil, types.NewError(types.ErrConfigMissing, "signing key is not a valid secret seed")
	}
	kp, err := keypair.ParseFull(secret)
	if err != nil {
		return nil, types.NewError(types.ErrConfigMissing, fmt.Sprintf("parse signing key: %v", err))
	}
	return kp, nil
}
