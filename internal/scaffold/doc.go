// Package scaffold generates new add-on packages from embedded templates. It
// powers the "keyhub new" command, producing a manifest and a JavaScript
// entry point that exports a stub for every capability the add-on type
// conventionally declares.
package scaffold
