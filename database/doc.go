// Package database owns the process-wide Bun connection: configuration,
// connection management for mysql, postgres and sqlite, query hooks for
// logging and metrics, schema migrations for registered models, SQL seed
// files and driver error classification.
package database
