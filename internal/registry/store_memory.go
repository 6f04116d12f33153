package registry

import (
	"context"
	"sync"
	"time"

	"repcall/internal/destinations"

	"github.com/google/uuid"
)

// MemoryStore implements Store in memory for tests. It mirrors the SQL
// store's contract, including eager destination loading on Get.
type MemoryStore struct {
	mu    sync.Mutex
	calls map[string]*Call // keyed by provider + "\x00" + providerCallID
	dests destinations.Repository
	clock func() time.Time
}

func NewMemoryStore(dests destinations.Repository) *MemoryStore {
	return &MemoryStore{
		calls: make(map[string]*Call),
		dests: dests,
		clock: time.Now,
	}
}

// SetClock overrides the store clock for deterministic tests.
func (s *MemoryStore) SetClock(clock func() time.Time) { s.clock = clock }

func key(provider, providerCallID string) string {
	return provider + "\x00" + providerCallID
}

func (s *MemoryStore) Create(ctx context.Context, p CreateParams) (Call, error) {
	s.mu.Lock()
	k := key(p.Provider, p.ProviderCallID)
	if _, exists := s.calls[k]; exists {
		s.mu.Unlock()
		return Call{}, ErrDuplicateCall
	}
	call := &Call{
		ID:             uuid.NewString(),
		Provider:       p.Provider,
		ProviderCallID: p.ProviderCallID,
		UserLanguage:   p.UserLanguage,
		UserID:         p.UserID,
		DestinationID:  p.DestinationID,
		CreatedAt:      s.clock().UTC(),
	}
	s.calls[k] = call
	s.mu.Unlock()

	return s.loaded(ctx, *call)
}

func (s *MemoryStore) Get(ctx context.Context, providerCallID, provider string) (Call, error) {
	s.mu.Lock()
	call, ok := s.calls[key(provider, providerCallID)]
	if !ok {
		s.mu.Unlock()
		return Call{}, ErrCallNotFound
	}
	snapshot := *call
	s.mu.Unlock()

	return s.loaded(ctx, snapshot)
}

func (s *MemoryStore) Connect(ctx context.Context, call Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[key(call.Provider, call.ProviderCallID)]
	if !ok {
		return ErrCallNotFound
	}
	for _, other := range s.calls {
		if other.DestinationID == call.DestinationID && other.ConnectedAt != nil && other.EndedAt == nil {
			return ErrDestinationBusy
		}
	}
	now := s.clock().UTC()
	c.ConnectedAt = &now
	return nil
}

func (s *MemoryStore) End(ctx context.Context, call Call) error {
	return s.mutate(call, func(c *Call) {
		now := s.clock().UTC()
		c.EndedAt = &now
	})
}

func (s *MemoryStore) Remove(ctx context.Context, call Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(call.Provider, call.ProviderCallID)
	if _, ok := s.calls[k]; !ok {
		return ErrCallNotFound
	}
	delete(s.calls, k)
	return nil
}

func (s *MemoryStore) Reassign(ctx context.Context, call Call, newDestinationID string) (Call, error) {
	s.mu.Lock()
	k := key(call.Provider, call.ProviderCallID)
	if _, ok := s.calls[k]; !ok {
		s.mu.Unlock()
		return Call{}, ErrCallNotFound
	}
	next := &Call{
		ID:             uuid.NewString(),
		Provider:       call.Provider,
		ProviderCallID: call.ProviderCallID,
		UserLanguage:   call.UserLanguage,
		UserID:         call.UserID,
		DestinationID:  newDestinationID,
		CreatedAt:      s.clock().UTC(),
	}
	s.calls[k] = next
	snapshot := *next
	s.mu.Unlock()

	return s.loaded(ctx, snapshot)
}

func (s *MemoryStore) DestinationInCall(ctx context.Context, destinationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c.DestinationID == destinationID && c.ConnectedAt != nil && c.EndedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) mutate(call Call, fn func(*Call)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[key(call.Provider, call.ProviderCallID)]
	if !ok {
		return ErrCallNotFound
	}
	fn(c)
	return nil
}

func (s *MemoryStore) loaded(ctx context.Context, c Call) (Call, error) {
	if s.dests == nil {
		return c, nil
	}
	dest, err := s.dests.Get(ctx, c.DestinationID)
	if err != nil {
		return Call{}, err
	}
	c.Destination = dest
	return c, nil
}
