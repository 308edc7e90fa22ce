// Package installer places add-on packages under the registry's add-ons
// directory, by copy or by symlink, and removes them again.
//
// Sources are either local directories or package names resolved through a
// fetcher.Fetcher. After a package is in place the installer runs a scoped,
// upsert-only reindex of that one package so the store reflects it without a
// full directory walk.
package installer
