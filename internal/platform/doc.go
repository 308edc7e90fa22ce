// Package platform provides cross-platform filesystem operations used to
// place add-on packages: directory symlinks for development installs, tree
// copies for regular installs, and permission management. On Unix systems it
// uses native symlinks and chmod directly. On Windows it falls back to
// copying the tree with a .target sidecar when developer mode symlinks are
// unavailable.
package platform
