// Package loader brings installed add-ons into the process and exposes
// their declared capabilities as a Handle.
//
// Two kinds of entry point are supported. JavaScript files are evaluated as
// CommonJS modules in an embedded goja VM, one VM per loaded handle. Entry
// points of the form "builtin:<id>" name Go factories registered in a
// Builtins set by the host application.
//
// Every add-on receives a host object, exposed to JavaScript as keyhub:
//
//	keyhub.package      {name, version, type, dir}
//	keyhub.properties   the load Context, e.g. {projectDir}
//	keyhub.logger       debug/info/warn/error, logged as "add-on:<name>"
//	keyhub.software     executables(softwareName) -> [{name, path, arch, os, ...}]
//
// Capability functions are called as fn(keyhub, ...args). Returned promises
// are settled before the call returns.
package loader
