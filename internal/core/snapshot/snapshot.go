// Package snapshot keeps the pre-patch state of run configurations for the
// duration of one launch attempt.
package snapshot

import (
	"fmt"
	"sort"
	"sync"

	"mirrord.dev/launch/internal/core/runconfig"
)

// SavedStartup holds the startup descriptor fields captured before a script
// rewrite. A nil field was not captured and is left alone on restore.
type SavedStartup struct {
	UseDefault        bool
	Script            *string
	ProgramParameters *string
	VMParameters      *string
}

// CaptureStartup captures every rewritable field of desc
func CaptureStartup(desc runconfig.StartupDescriptor) *SavedStartup {
	script, args, vmArgs := desc.Script, desc.ProgramParameters, desc.VMParameters
	return &SavedStartup{
		UseDefault:        desc.UseDefault,
		Script:            &script,
		ProgramParameters: &args,
		VMParameters:      &vmArgs,
	}
}

// ApplyTo writes the captured fields back into desc
func (s *SavedStartup) ApplyTo(desc *runconfig.StartupDescriptor) {
	desc.UseDefault = s.UseDefault
	if s.Script != nil {
		desc.Script = *s.Script
	}
	if s.ProgramParameters != nil {
		desc.ProgramParameters = *s.ProgramParameters
	}
	if s.VMParameters != nil {
		desc.VMParameters = *s.VMParameters
	}
}

// Snapshot is the state of a run configuration before it was patched
type Snapshot struct {
	Environment runconfig.EnvironmentVariables
	Startup     *SavedStartup
}

// String implements the Stringer interface
func (s Snapshot) String() string {
	return fmt.Sprintf("Snapshot{Environment: %d vars, Startup captured: %t}", len(s.Environment), s.Startup != nil)
}

// Store maps launch IDs to snapshots. Operations on different IDs never
// contend on a shared lock.
type Store struct {
	entries sync.Map // runconfig.LaunchID -> Snapshot
}

// NewStore creates an empty snapshot store
func NewStore() *Store {
	return &Store{}
}

// Put stores the snapshot for id, replacing any earlier one
func (s *Store) Put(id runconfig.LaunchID, snap Snapshot) {
	snap.Environment = snap.Environment.Clone()
	s.entries.Store(id, snap)
}

// TakeAndRemove removes and returns the snapshot for id
func (s *Store) TakeAndRemove(id runconfig.LaunchID) (Snapshot, bool) {
	v, ok := s.entries.LoadAndDelete(id)
	if !ok {
		return Snapshot{}, false
	}
	return v.(Snapshot), true
}

// Has reports whether a snapshot is held for id
func (s *Store) Has(id runconfig.LaunchID) bool {
	_, ok := s.entries.Load(id)
	return ok
}

// Pending returns the IDs that are patched and not yet restored, sorted
func (s *Store) Pending() []runconfig.LaunchID {
	var ids []runconfig.LaunchID
	s.entries.Range(func(key, _ any) bool {
		ids = append(ids, key.(runconfig.LaunchID))
		return true
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of held snapshots
func (s *Store) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
