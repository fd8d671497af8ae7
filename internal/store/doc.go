// Package store defines the storage collaborator of the importer and the
// helpers shared by its backends.
//
// Backends:
//   - store/sqlite: durable SQLite storage, the default
//   - store/kvstore: BadgerDB storage, on disk or in memory
//
// Both satisfy the contract suite in store/storetest.
//
// # Identity
//
// Entities are unique per (kind, natural key); a collision on Persist is
// ErrDuplicateKey. UIDs are indexed but deliberately not unique: storage
// reports every holder of a UID and the importer treats more than one as
// an integrity violation.
//
// # Encoding
//
// Properties and entry values are stored as RFC 8785 canonical JSON, so the
// stored text of equal values is byte-identical. Settings are text with a
// format: list and map values are kept as canonical JSON marked "json".
// UIDs are stored in their 16-byte binary form.
package store
