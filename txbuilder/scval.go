package txbuilder

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"

	"github.com/cygnuslabs/cygnus/types"
)

// scValFromParam converts one invocation parameter into its host value.
// Supported types: address, symbol, string, bool, u32, i64, i128.
func scValFromParam(p types.ContractParam) (xdr.ScVal, error) {
	switch p.Type {
	case "address":
		addr, err := scAddress(p.Value)
		if err != nil {
			return xdr.ScVal{}, err
		}
		return xdr.ScVal{Type: xdr.ScValTypeScvAddress, Address: addr}, nil

	case "symbol":
		sym := xdr.ScSymbol(p.Value)
		return xdr.ScVal{Type: xdr.ScValTypeScvSymbol, Sym: &sym}, nil

	case "string":
		str := xdr.ScString(p.Value)
		return xdr.ScVal{Type: xdr.ScValTypeScvString, Str: &str}, nil

	case "bool":
		b, err := strconv.ParseBool(p.Value)
		if err != nil {
			return xdr.ScVal{}, fmt.Errorf("bad bool parameter %q", p.Value)
		}
		return xdr.ScVal{Type: xdr.ScValTypeScvBool, B: &b}, nil

	case "u32":
		v, err := strconv.ParseUint(p.Value, 10, 32)
		if err != nil {
			return xdr.ScVal{}, fmt.Errorf("bad u32 parameter %q", p.Value)
		}
		u := xdr.Uint32(v)
		return xdr.ScVal{Type: xdr.ScValTypeScvU32, U32: &u}, nil

	case "i64":
		v, err := strconv.ParseInt(p.Value, 10, 64)
		if err != nil {
			return xdr.ScVal{}, fmt.Errorf("bad i64 parameter %q", p.Value)
		}
		i := xdr.Int64(v)
		return xdr.ScVal{Type: xdr.ScValTypeScvI64, I64: &i}, nil

	case "i128":
		parts, err := int128Parts(p.Value)
		if err != nil {
			return xdr.ScVal{}, err
		}
		return xdr.ScVal{Type: xdr.ScValTypeScvI128, I128: parts}, nil

	default:
		return xdr.ScVal{}, fmt.Errorf("unsupported parameter type %q", p.Type)
	}
}

func scAddress(value string) (*xdr.ScAddress, error) {
	switch {
	case strkey.IsValidEd25519PublicKey(value):
		accountID, err := xdr.AddressToAccountId(value)
		if err != nil {
			return nil, fmt.Errorf("bad account address %q: %w", value, err)
		}
		return &xdr.ScAddress{
			Type:      xdr.ScAddressTypeScAddressTypeAccount,
			AccountId: &accountID,
		}, nil

	case strkey.IsValidContractAddress(value):
		raw, err := strkey.Decode(strkey.VersionByteContract, value)
		if err != nil {
			return nil, fmt.Errorf("bad contract address %q: %w", value, err)
		}
		var hash xdr.ContractId
		copy(hash[:], raw)
		return &xdr.ScAddress{
			Type:       xdr.ScAddressTypeScAddressTypeContract,
			ContractId: &hash,
		}, nil

	default:
		return nil, fmt.Errorf("bad address parameter %q", value)
	}
}

var (
	i128Min = new(big.Int).Lsh(big.NewInt(-1), 127)
	i128Max = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	two128  = new(big.Int).Lsh(big.NewInt(1), 128)
	mask64  = new(big.Int).SetUint64(^uint64(0))
)

func int128Parts(value string) (*xdr.Int128Parts, error) {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("bad i128 parameter %q", value)
	}
	if v.Cmp(i128Min) < 0 || v.Cmp(i128Max) > 0 {
		return nil, fmt.Errorf("i128 parameter out of range: %q", value)
	}
	// two's complement over 128 bits
	if v.Sign() < 0 {
		v = new(big.Int).Add(v, two128)
	}
	lo := new(big.Int).And(v, mask64).Uint64()
	hi := new(big.Int).Rsh(v, 64).Uint64()
	return &xdr.Int128Parts{
		Hi: xdr.Int64(hi),
		Lo: xdr.Uint64(lo),
	}, nil
}
