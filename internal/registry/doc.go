// Package registry ties a registry root together: the SQLite store, the
// add-ons directory and its reconciler, the installer, the loader, and the
// capability gateway. It is the surface the CLI and embedding hosts use.
//
// Layout of a registry root:
//
//	<root>/keyhub-registry.db     registry store
//	<root>/addons/<name>/         installed packages (copied or symlinked)
//	<root>/addons/.staging-*      in-flight installs, never indexed
//	<root>/software/<name>/       per add-on software folder
package registry
