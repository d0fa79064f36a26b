// Package snapshot implements persistence for the pending alarm set.
//
// The FileRepository stores and loads the alarms as a JSON array on disk and
// exposes a Repository interface that the engine's store depends on. Writes
// are atomic (write-then-rename) so a crash never truncates the snapshot.
package snapshot
