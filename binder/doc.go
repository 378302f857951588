// Package binder couples an instruction's parameter schema to one node's
// stored values.
//
// Bind produces a FormModel with one Field per ParamSpec, resolving each value
// by precedence: the node's stored value, then the schema default, then the
// type's zero value. Path-reference parameters additionally fall back to the
// legacy keys "sourceDataPath" and "sheetPath".
//
// UpdateValue writes every edit through to the graph immediately, so a
// snapshot taken at any moment reflects the latest edit. Validate reports
// client-side FieldErrors; they are advisory and distinct from the engine's
// server-side validation.
package binder
