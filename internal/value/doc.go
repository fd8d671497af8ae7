// Package value provides the sealed value types carried by import payloads
// and the canonical encoding used to compare them.
//
// Payloads arrive as JSON, YAML or CUE documents. They are converted into
// Value trees once, at the boundary, so that the comparator works on a single
// closed set of shapes:
//   - Null, String, Int, Bool for scalars
//   - List and Map for containers
//
// Floats are deliberately absent: non-integral numbers are carried as their
// decimal string form, which is how the settings side table stores them.
package value
