package registry

import (
	"context"
	"errors"
	"time"

	"repcall/internal/destinations"
)

// Call is one outbound telephony session, from initiation to hangup.
//
// Invariants:
// - (provider, provider_call_id) is unique.
// - connected_at, if set, is >= created_at.
// - ended_at, if set, is >= connected_at, or >= created_at if the call
//   never connected.
//
// The row is created when the provider accepts the outbound call and
// deleted when the hangup webhook is processed; the selection log keeps
// the durable audit trail.
type Call struct {
	ID             string `json:"id" db:"id"`
	Provider       string `json:"provider" db:"provider"`
	ProviderCallID string `json:"provider_call_id" db:"provider_call_id"`

	UserLanguage string `json:"user_language" db:"user_language"`
	// UserID is opaque and already hashed by the API layer.
	UserID        string `json:"user_id" db:"user_id"`
	DestinationID string `json:"destination_id" db:"destination_id"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty" db:"connected_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	// Destination is eager-loaded by Get; the IVR bridge step needs the
	// phone contact without another lookup.
	Destination destinations.Destination `json:"destination"`
}

// Connected reports whether the call was ever bridged to a destination.
func (c Call) Connected() bool {
	return c.ConnectedAt != nil
}

type CreateParams struct {
	Provider       string
	ProviderCallID string
	UserLanguage   string
	UserID         string
	DestinationID  string
}

var (
	ErrDuplicateCall   = errors.New("registry: duplicate (provider, provider_call_id)")
	ErrCallNotFound    = errors.New("registry: call not found")
	ErrDestinationBusy = errors.New("registry: destination already in a call")
)

// Store is the persistent record of active calls. The durable store is
// the single source of truth: no process-wide call list exists, so
// multiple workers and restarts see the same state.
type Store interface {
	// Create registers a call. Fails with ErrDuplicateCall if the
	// (provider, providerCallID) pair already exists.
	Create(ctx context.Context, p CreateParams) (Call, error)

	// Get resolves a call by the provider's id, eager-loading the
	// destination and its contacts. Fails with ErrCallNotFound.
	Get(ctx context.Context, providerCallID, provider string) (Call, error)

	// Connect marks the call bridged (connected_at = now). The
	// destination's busy state is re-checked under the same lock that
	// serializes concurrent bridges; if another call connected to the
	// destination since the caller last looked, Connect fails with
	// ErrDestinationBusy and leaves the call untouched.
	Connect(ctx context.Context, call Call) error

	// End marks the call finished (ended_at = now).
	End(ctx context.Context, call Call) error

	// Remove deletes the call record entirely.
	Remove(ctx context.Context, call Call) error

	// Reassign deletes the call and re-creates it against another
	// destination under the same provider call id, atomically.
	Reassign(ctx context.Context, call Call, newDestinationID string) (Call, error)

	// DestinationInCall reports whether the destination currently has a
	// connected, not-yet-ended call. This is the serialization point
	// preventing two simultaneous bridges to the same destination.
	DestinationInCall(ctx context.Context, destinationID string) (bool, error)
}
