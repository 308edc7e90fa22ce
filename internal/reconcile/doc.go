// Package reconcile synchronizes the registry store with the add-ons
// directory on disk.
//
// A full Reindex computes which packages were added, updated or removed since
// the last pass. ReindexOne is the scoped, upsert-only variant the installer
// runs after placing a single package.
package reconcile
