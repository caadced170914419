package types

import "github.com/stellar/go/network"

// Network represents the Stellar networks the agent can operate on.
type Network string

const (
	NetworkTestnet Network = "testnet"
	NetworkPubnet  Network = "pubnet"
)

// Passphrase returns the network passphrase used for signing.
func (n Network) Passphrase() string {
	if n == NetworkPubnet {
		return network.PublicNetworkPassphrase
	}
	return network.TestNetworkPassphrase
}

func (n Network) IsValid() bool {
	return n == NetworkTestnet || n == NetworkPubnet
}

func (n Network) String() string {
	return string(n)
}
