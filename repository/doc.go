// Package repository provides a generic repository built on Bun: finds with
// criteria, partial updates, soft and hard deletes, pagination, association
// population, and per-entity SQL and XML mapped queries loaded from disk or
// an embedded file system.
package repository
