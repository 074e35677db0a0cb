// Package ident implements component identifiers and their codec.
//
// An identifier is either a plain string or a wildcard dictionary mapping
// non-empty string keys to literal values (string, number, boolean) or to
// one of three wildcard markers:
//
//   - ALL matches every live value for the key and makes a binding
//     multi-valued.
//   - MATCH matches one value that is shared by every binding of a callback
//     invocation.
//   - ALLSMALLER matches values ordered strictly before a reference value.
//
// Stringify produces the canonical form used as a map key throughout the
// engine: keys sorted, literals rendered as JSON, markers rendered bare:
//
//	{"index":MATCH,"type":"btn"}
//
// Parse accepts that form and the wire form, where markers are wrapped in a
// single-element array (["MATCH"]).
package ident
