// Package capability models the invokable surface of a loaded add-on.
//
// Capabilities are addressed by dotted paths and stored in a Tree. A bound
// Capability can only be executed through a Gateway, which logs, times and
// counts each call and converts failures into coded errors.
package capability
