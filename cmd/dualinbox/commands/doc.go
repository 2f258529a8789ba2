// Package commands defines the dualinbox CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - init         Create the local development wallet
//   - fingerprint  Print the wallet address and key fingerprint
//   - setup        Register an address with both protocols
//   - prefs        Print the legacy consent preferences of an address or name
//   - demo         Run two local identities through every service
//
// # Implementation
//
// The root command loads and validates the TOML configuration and applies
// flag overrides before any subcommand runs. Subcommands that touch the
// local store build the dependency graph with app.NewWire and close it when
// they return.
package commands
