package selectlog

import "time"

// Event is an immutable, append-only record of a destination selection.
//
// Invariants:
// - Events are never updated or deleted by this service.
// - destination_id and kind are required; user and call ids are optional
//   (a WEB_SUGGESTED event has no call yet).
//
// Retention/cleanup is an external concern; swayability statistics read
// this table elsewhere.
type Event struct {
	ID            string `json:"id" db:"id"`
	DestinationID string `json:"destination_id" db:"destination_id"`

	Kind Kind `json:"kind" db:"kind"`

	// UserID is the opaque hashed identifier of the user, if known.
	UserID string `json:"user_id,omitempty" db:"user_id"`
	// CallID is the internal call id, if the event belongs to a call.
	CallID string `json:"call_id,omitempty" db:"call_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Kind string

const (
	KindWebSuggested             Kind = "WEB_SUGGESTED"
	KindIVRSuggested             Kind = "IVR_SUGGESTED"
	KindCallingUser              Kind = "CALLING_USER"
	KindInMenu                   Kind = "IN_MENU"
	KindCallingDestination       Kind = "CALLING_DESTINATION"
	KindDestinationConnected     Kind = "DESTINATION_CONNECTED"
	KindFinishedShortCall        Kind = "FINISHED_SHORT_CALL"
	KindFinishedCall             Kind = "FINISHED_CALL"
	KindCallAborted              Kind = "CALL_ABORTED"
	KindCallingUserFailed        Kind = "CALLING_USER_FAILED"
	KindCallingDestinationFailed Kind = "CALLING_DESTINATION_FAILED"
)
