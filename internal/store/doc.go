// Package store provides persistent credential storage using SQLite.
//
// One credential record exists per chat, holding the serialized provider
// token as an opaque blob. Create is idempotent (an existing record wins),
// Update rewrites the blob atomically, and Delete is the revoke path.
//
// SQLiteStore is the production implementation; MockStore is an in-memory
// stand-in for tests.
package store
