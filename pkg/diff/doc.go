// Package diff computes the field-level changes to persist for a set of
// dirty record instances.
//
// The package does not track object state itself. The persistence
// framework is the oracle: it classifies each instance as created,
// updated, or deleted and supplies per-field previous/pending values.
// This package only consumes that classification, compares tracked
// fields through their serialized forms, and emits pending changes in a
// stable order. Any serialization failure fails the whole computation;
// a transaction never gets a partial change set.
package diff
