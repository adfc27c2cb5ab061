// Package database opens the PostgreSQL pool backing the connection
// event journal.
package database
