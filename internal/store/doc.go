// Package store is the registry's persistent index of installed add-ons,
// backed by SQLite (modernc.org/sqlite, no cgo).
//
// Three tables are kept: addons (one row per installed package, keyed by its
// unique name), software (external programs an add-on declares) and
// executables (binaries of a software entry). Deleting an add-on cascades to
// its software and executables.
package store
