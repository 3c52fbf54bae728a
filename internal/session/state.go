// Package session owns the portal's single Session State: who is signed in
// and where the bootstrap sequence stands.
package session

import (
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/domain"
)

// SnapshotVersion is the version number written into persisted snapshots.
const SnapshotVersion = 0

// State is the full session state. IsAuthenticated is true iff User is set.
type State struct {
	User            *domain.User `json:"user"`
	IsAuthenticated bool         `json:"isAuthenticated"`
	IsLoading       bool         `json:"isLoading"`
	IsInitialized   bool         `json:"isInitialized"`
}

// IsAdmin reports whether the signed-in user is an admin, staff or superuser.
func (s State) IsAdmin() bool { return domain.IsAdmin(s.User) }

// IsDoctor reports whether the signed-in user is a doctor.
func (s State) IsDoctor() bool { return domain.IsDoctor(s.User) }

// IsPatient reports whether the signed-in user is a patient.
func (s State) IsPatient() bool { return domain.IsPatient(s.User) }

// HasActiveSubscription reports whether the signed-in user has an active subscription.
func (s State) HasActiveSubscription() bool { return domain.HasActiveSubscription(s.User) }

// Ready reports whether bootstrap has resolved and nothing is loading.
func (s State) Ready() bool { return s.IsInitialized && !s.IsLoading }

func (s State) clone() State {
	s.User = s.User.Clone()
	return s
}

// Snapshot is the persisted form of State. It never carries IsLoading.
type Snapshot struct {
	State   SnapshotState `json:"state"`
	Version int           `json:"version"`
}

// SnapshotState is the persisted subset of State.
type SnapshotState struct {
	User            *domain.User `json:"user"`
	IsAuthenticated bool         `json:"isAuthenticated"`
	IsInitialized   bool         `json:"isInitialized"`
}

// ToSnapshot maps a full state to its persisted form.
func ToSnapshot(s State) Snapshot {
	return Snapshot{
		State: SnapshotState{
			User:            s.User.Clone(),
			IsAuthenticated: s.User != nil,
			IsInitialized:   s.IsInitialized,
		},
		Version: SnapshotVersion,
	}
}

// FromSnapshot maps a persisted snapshot back to a full state. IsLoading is
// always false and IsAuthenticated follows the presence of a user, whatever
// the snapshot claims.
func FromSnapshot(snap Snapshot) State {
	return State{
		User:            snap.State.User.Clone(),
		IsAuthenticated: snap.State.User != nil,
		IsLoading:       false,
		IsInitialized:   snap.State.IsInitialized,
	}
}
