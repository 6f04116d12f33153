package ivr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Flow names an audio sequence the engine can ask for.
type Flow string

const (
	FlowMainMenu      Flow = "main_menu"
	FlowConnecting    Flow = "connecting"
	FlowUnavailable   Flow = "unavailable"
	FlowTryAgainLater Flow = "try_again_later"
	FlowArguments     Flow = "arguments"
)

// flowClips lists the ordered clip names per flow. Clip files live in
// the audio directory as <name>.<language>.ogg.
var flowClips = map[Flow][]string{
	FlowMainMenu:      {"campaign_greeting", "main_menu_connect", "main_menu_arguments"},
	FlowConnecting:    {"connect_shortly"},
	FlowUnavailable:   {"destination_unavailable", "alternative_offer"},
	FlowTryAgainLater: {"try_again_later"},
}

// Medialist is one assembled audio sequence, addressed by an opaque id.
// It lives only as long as the IVR step that references it; expiry is
// the garbage collection.
type Medialist struct {
	ID       string   `json:"id"`
	Format   string   `json:"format"`
	Mimetype string   `json:"mimetype"`
	Paths    []string `json:"paths"`
}

var ErrMedialistNotFound = errors.New("ivr: medialist not found")

// MedialistStore holds medialists between the webhook that creates one
// and the provider's fetch of the audio.
type MedialistStore interface {
	Put(ctx context.Context, ml Medialist) error
	Get(ctx context.Context, id string) (Medialist, error)
}

// RedisMedialistStore stores medialists as JSON values with a TTL, so
// any worker can serve the audio fetch regardless of which one handled
// the webhook.
type RedisMedialistStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisMedialistStore(client *redis.Client, ttl time.Duration) *RedisMedialistStore {
	return &RedisMedialistStore{client: client, ttl: ttl}
}

func medialistKey(id string) string { return "medialist:" + id }

func (s *RedisMedialistStore) Put(ctx context.Context, ml Medialist) error {
	payload, err := json.Marshal(ml)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, medialistKey(ml.ID), payload, s.ttl).Err()
}

func (s *RedisMedialistStore) Get(ctx context.Context, id string) (Medialist, error) {
	payload, err := s.client.Get(ctx, medialistKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Medialist{}, ErrMedialistNotFound
	}
	if err != nil {
		return Medialist{}, err
	}
	var ml Medialist
	if err := json.Unmarshal(payload, &ml); err != nil {
		return Medialist{}, err
	}
	return ml, nil
}

// MemoryMedialistStore implements MedialistStore for tests.
type MemoryMedialistStore struct {
	mu sync.Mutex
	by map[string]Medialist
}

func NewMemoryMedialistStore() *MemoryMedialistStore {
	return &MemoryMedialistStore{by: make(map[string]Medialist)}
}

func (s *MemoryMedialistStore) Put(ctx context.Context, ml Medialist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.by[ml.ID] = ml
	return nil
}

func (s *MemoryMedialistStore) Get(ctx context.Context, id string) (Medialist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ml, ok := s.by[id]
	if !ok {
		return Medialist{}, ErrMedialistNotFound
	}
	return ml, nil
}

// MediaBuilder assembles the audio for a flow and returns the medialist
// id the provider can fetch it under.
type MediaBuilder interface {
	Build(ctx context.Context, flow Flow, language string) (string, error)
}

// Builder resolves clip names to files in the audio directory, falling
// back to the configured fallback language when a clip has no recording
// in the caller's language.
type Builder struct {
	store            MedialistStore
	dir              string
	fallbackLanguage string

	mu   sync.Mutex
	rand *rand.Rand
}

func NewBuilder(store MedialistStore, dir, fallbackLanguage string) *Builder {
	return &Builder{
		store:            store,
		dir:              dir,
		fallbackLanguage: fallbackLanguage,
		rand:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *Builder) Build(ctx context.Context, flow Flow, language string) (string, error) {
	var paths []string
	var err error
	if flow == FlowArguments {
		paths, err = b.argumentClips(language)
	} else {
		paths, err = b.namedClips(flow, language)
	}
	if err != nil {
		return "", err
	}

	ml := Medialist{
		ID:       uuid.NewString(),
		Format:   "ogg",
		Mimetype: "audio/ogg",
		Paths:    paths,
	}
	if err := b.store.Put(ctx, ml); err != nil {
		return "", err
	}
	return ml.ID, nil
}

func (b *Builder) namedClips(flow Flow, language string) ([]string, error) {
	names, ok := flowClips[flow]
	if !ok {
		return nil, fmt.Errorf("ivr: unknown flow %q", flow)
	}
	paths := make([]string, 0, len(names))
	for _, name := range names {
		p, err := b.resolveClip(name, language)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// argumentClips collects every argument_* recording for the language and
// shuffles them, so repeated listeners hear the campaign's talking
// points in a different order each time.
func (b *Builder) argumentClips(language string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(b.dir, "argument_*."+language+".ogg"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 && language != b.fallbackLanguage {
		paths, err = filepath.Glob(filepath.Join(b.dir, "argument_*."+b.fallbackLanguage+".ogg"))
		if err != nil {
			return nil, err
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("ivr: no argument clips for language %q", language)
	}
	sort.Strings(paths)
	b.mu.Lock()
	b.rand.Shuffle(len(paths), func(i, j int) { paths[i], paths[j] = paths[j], paths[i] })
	b.mu.Unlock()
	return paths, nil
}

func (b *Builder) resolveClip(name, language string) (string, error) {
	p := filepath.Join(b.dir, name+"."+language+".ogg")
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}
	p = filepath.Join(b.dir, name+"."+b.fallbackLanguage+".ogg")
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("ivr: no recording for clip %q in %q or fallback %q", name, language, b.fallbackLanguage)
}
