// Package fetcher resolves add-on sources to package directories.
//
// The installer never talks to a package manager directly; it asks a
// Fetcher. Local serves directories already on disk and HTTP downloads
// tarballs from an npm-style package index.
package fetcher
