package selectlog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for selection events.
//
// It MUST be append-only. No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

var ErrInvalidEvent = errors.New("selectlog: invalid event")

// Service appends selection events. Storage errors propagate to the
// caller unrecovered; callers are responsible for not double-logging
// within one transition.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Log(ctx context.Context, kind Kind, destinationID, userID, callID string) error {
	if s.repo == nil {
		return errors.New("selectlog: repository not configured")
	}
	if destinationID == "" || kind == "" {
		return ErrInvalidEvent
	}
	return s.repo.Append(ctx, Event{
		ID:            uuid.NewString(),
		DestinationID: destinationID,
		Kind:          kind,
		UserID:        userID,
		CallID:        callID,
		CreatedAt:     s.clock().UTC(),
	})
}
