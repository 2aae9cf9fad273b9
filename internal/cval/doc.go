// Package cval defines the content value model: an algebraic tree of
// mappings, sequences, and scalars that represents arbitrary nested
// resource content independently of how it arrived on the wire.
//
// Values round-trip through JSON without loss: numbers keep their
// literal decimal form, mapping key order is irrelevant, and sequence
// element order is preserved. This is the input type for content
// identity computation, where byte-reproducibility matters.
package cval
