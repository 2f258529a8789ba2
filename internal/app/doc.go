// Package app wires application dependencies for the CLI.
//
// It builds the store, protocol clients and services from a validated
// config.Config, exposing them via the Wire struct for commands to use.
package app
