// Package identity manages creation, encryption and loading of the local
// development wallet.
//
// It enforces passphrase policy, generates an Ed25519 key pair, derives the
// wallet's account address from it, and persists the seed via the
// domain.WalletStore. A loaded Wallet is the domain.Signer handed to
// session and setup flows.
package identity
