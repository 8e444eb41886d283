// Package business provides reference implementations of the business-data
// store that governance jobs read from and purge.
//
// The production assessment tool owns its own database; the governance
// service only sees it through governance.BusinessStore. This package
// implements that interface on SQLite (modernc.org/sqlite, no cgo) and in
// memory so the service runs standalone and tests exercise real storage.
//
// Every purgeable table carries a nullable deleted_at column. Soft-deleted
// rows are invisible to the List methods, can be restored with Recover,
// and are the only rows HardDelete will remove.
//
// The store also holds two retention-managed tables, operational_logs and
// temp_data, exposed as governance.Sweepable targets for the TTL sweeper.
package business
