// Package value provides the document value model shared by every other
// package: the Document type, the Missing sentinel and the JSON encoding used
// both for stored bodies and for values inlined into statement text.
//
// This package imports nothing internal except dberr, which keeps it the
// foundational layer with no circular dependencies.
//
// Missing vs null:
//
//	doc := value.Document{"note": nil}            // stores "note": null
//	doc := value.Document{"note": value.Missing}  // omits "note" on insert,
//	                                              // UNSETs it on update
//
// Missing may appear at any depth. StripMissing removes it everywhere and
// Encode always strips before serializing, so the sentinel never reaches a
// stored document or a compiled statement.
package value
