// Package inmemory provides process-local implementations of the repository interfaces.
//
// They follow the same contracts as the MongoDB adapters, including the unique constraints
// on calendar sync records, and back the "memory" database driver and the service tests.
package inmemory
