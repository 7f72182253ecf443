/*
Package state persists per-account engagement records between runs.

An [AccountState] is loaded once at the start of an account's run, mutated in memory, and saved once at the end as a complete snapshot. Two [Store] backends are provided: [FileStore] writes one JSON document per account into a directory, and [SQLStore] keeps the same documents in a sqlite or postgres table.
*/
package state

import (
	"context"
	"regexp"
)

type Store interface {
	// Load returns the stored state for handle, or an empty state if there is no record. A missing record is not an error.
	Load(ctx context.Context, handle string) (*AccountState, error)

	// Save overwrites any prior record for handle with the full snapshot.
	Save(ctx context.Context, handle string, st *AccountState) error
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// StorageKey maps an account handle to a key which is safe as a file name or primary key.
func StorageKey(handle string) string {
	return unsafeKeyChars.ReplaceAllString(handle, "_")
}
