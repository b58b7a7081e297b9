// Package storage keeps an optional, append-only audit trail of reply
// outcomes. Nothing is read back at runtime: trigger counts stay in memory.
package storage
