// Package ir defines the immutable data model shared by every layer of the
// engine: flag declarations and their value domains, predicates, effects,
// rules, and the canonical serialization used for content-addressed table
// hashes.
//
// Everything in this package is a value type. Rules and flag declarations
// are frozen once the table compiles; mutable runtime state (element flag
// values, running transitions) lives in the state and engine packages.
package ir
