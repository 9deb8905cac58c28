// Package protocol implements the versioned JSON envelope schema and its
// validation rules. It handles envelope construction with sequence/corr
// invariants, wire encoding, and type-discriminated client payload decoding.
package protocol
