package destinations

import (
	"context"
	"math/rand"
	"sync"
)

// MemoryRepo is an in-memory Repository for tests.
type MemoryRepo struct {
	mu   sync.Mutex
	by   map[string]Destination
	ids  []string
	rand *rand.Rand
}

func NewMemoryRepo(seed int64, dests ...Destination) *MemoryRepo {
	r := &MemoryRepo{
		by:   make(map[string]Destination),
		rand: rand.New(rand.NewSource(seed)),
	}
	for _, d := range dests {
		r.by[d.ID] = d
		r.ids = append(r.ids, d.ID)
	}
	return r
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Destination, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.by[id]
	if !ok {
		return Destination{}, ErrNotFound
	}
	return d, nil
}

func (r *MemoryRepo) PickRandom(ctx context.Context, exclude []string) (Destination, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}
	var candidates []string
	for _, id := range r.ids {
		if !excluded[id] {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return Destination{}, ErrNoAlternative
	}
	return r.by[candidates[r.rand.Intn(len(candidates))]], nil
}
