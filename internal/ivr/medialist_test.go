package ivr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeClip(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}
	return p
}

func TestBuild_ResolvesLanguageWithFallback(t *testing.T) {
	dir := t.TempDir()
	writeClip(t, dir, "campaign_greeting.de.ogg", "a")
	writeClip(t, dir, "main_menu_connect.de.ogg", "b")
	// No German recording for this one; the English fallback serves.
	writeClip(t, dir, "main_menu_arguments.en.ogg", "c")

	store := NewMemoryMedialistStore()
	b := NewBuilder(store, dir, "en")

	id, err := b.Build(context.Background(), FlowMainMenu, "de")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ml, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(ml.Paths) != 3 {
		t.Fatalf("expected 3 clips, got %+v", ml.Paths)
	}
	if !strings.HasSuffix(ml.Paths[0], "campaign_greeting.de.ogg") {
		t.Fatalf("expected german clip first, got %q", ml.Paths[0])
	}
	if !strings.HasSuffix(ml.Paths[2], "main_menu_arguments.en.ogg") {
		t.Fatalf("expected fallback clip, got %q", ml.Paths[2])
	}
	if ml.Mimetype != "audio/ogg" {
		t.Fatalf("unexpected mimetype %q", ml.Mimetype)
	}
}

func TestBuild_MissingClipFails(t *testing.T) {
	store := NewMemoryMedialistStore()
	b := NewBuilder(store, t.TempDir(), "en")

	if _, err := b.Build(context.Background(), FlowTryAgainLater, "de"); err == nil {
		t.Fatalf("expected error for missing recording")
	}
}

func TestBuild_ArgumentsCollectsAndShuffles(t *testing.T) {
	dir := t.TempDir()
	a := writeClip(t, dir, "argument_1.de.ogg", "a")
	b := writeClip(t, dir, "argument_2.de.ogg", "b")
	c := writeClip(t, dir, "argument_3.de.ogg", "c")

	store := NewMemoryMedialistStore()
	builder := NewBuilder(store, dir, "en")

	id, err := builder.Build(context.Background(), FlowArguments, "de")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ml, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	want := map[string]bool{a: true, b: true, c: true}
	if len(ml.Paths) != len(want) {
		t.Fatalf("expected %d clips, got %+v", len(want), ml.Paths)
	}
	for _, p := range ml.Paths {
		if !want[p] {
			t.Fatalf("unexpected clip %q", p)
		}
	}
}

func TestBuild_ArgumentsFallBackToDefaultLanguage(t *testing.T) {
	dir := t.TempDir()
	writeClip(t, dir, "argument_1.en.ogg", "a")

	store := NewMemoryMedialistStore()
	builder := NewBuilder(store, dir, "en")

	id, err := builder.Build(context.Background(), FlowArguments, "sv")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ml, _ := store.Get(context.Background(), id)
	if len(ml.Paths) != 1 || !strings.HasSuffix(ml.Paths[0], "argument_1.en.ogg") {
		t.Fatalf("expected english fallback, got %+v", ml.Paths)
	}
}

func TestMemoryStore_UnknownID(t *testing.T) {
	store := NewMemoryMedialistStore()
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrMedialistNotFound) {
		t.Fatalf("expected ErrMedialistNotFound, got %v", err)
	}
}
