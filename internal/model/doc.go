// Package model defines the importable entity kinds and their in-memory form.
//
// Each Kind has a Schema naming its natural key, its declared properties
// and, where it owns one, its entry collection. model imports only value
// and settings; storage and import logic live in the packages above it.
//
// Conventions:
//   - UID is the identity across systems; ID is a storage surrogate only
//   - Natural keys are unique per kind
//   - Entries are keyed by name within their owner
package model
