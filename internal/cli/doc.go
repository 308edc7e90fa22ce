// Package cli defines the Cobra command tree for the keyhub CLI. Each file
// in this package registers one top-level command (install, reindex, call,
// etc.) with the root command. Command implementations delegate to
// internal/registry for business logic and only handle flag parsing, I/O
// formatting, and user interaction.
package cli
