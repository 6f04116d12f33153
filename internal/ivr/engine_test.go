package ivr

import (
	"context"
	"strings"
	"testing"
	"time"

	"repcall/internal/destinations"
	"repcall/internal/elks"
	"repcall/internal/registry"
	"repcall/internal/selectlog"
)

type stubMedia struct {
	built []Flow
}

func (s *stubMedia) Build(ctx context.Context, flow Flow, language string) (string, error) {
	s.built = append(s.built, flow)
	return "ml-" + string(flow), nil
}

type fixture struct {
	engine *Engine
	reg    *registry.MemoryStore
	events *selectlog.MemoryRepo
	media  *stubMedia
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := destinations.NewMemoryRepo(7,
		destinations.Destination{
			ID: "dest-1", Name: "Mierscheid", Country: "de",
			Contacts: []destinations.Contact{{ID: 1, DestinationID: "dest-1", Type: "phone", Value: "+491110001"}},
		},
		destinations.Destination{
			ID: "dest-2", Name: "Kiesewetter", Country: "de",
			Contacts: []destinations.Contact{{ID: 2, DestinationID: "dest-2", Type: "phone", Value: "+492220002"}},
		},
	)
	reg := registry.NewMemoryStore(repo)
	events := selectlog.NewMemoryRepo()
	media := &stubMedia{}
	engine := NewEngine(reg, repo, selectlog.NewService(events), media, nil, Config{
		PhoneBaseURL:           "https://example.org/phone",
		MenuTimeout:            5,
		MenuRepeat:             2,
		ShortCallThreshold:     10 * time.Second,
		AltDestinationAttempts: 3,
	})
	return &fixture{engine: engine, reg: reg, events: events, media: media}
}

func (f *fixture) startCall(t *testing.T, providerCallID, destinationID string) registry.Call {
	t.Helper()
	call, err := f.reg.Create(context.Background(), registry.CreateParams{
		Provider:       elks.Provider,
		ProviderCallID: providerCallID,
		UserLanguage:   "de",
		UserID:         "u1",
		DestinationID:  destinationID,
	})
	if err != nil {
		t.Fatalf("create call: %v", err)
	}
	return call
}

// occupy connects a throwaway call so the destination counts as busy.
func (f *fixture) occupy(t *testing.T, providerCallID, destinationID string) {
	t.Helper()
	call := f.startCall(t, providerCallID, destinationID)
	if err := f.reg.Connect(context.Background(), call); err != nil {
		t.Fatalf("connect: %v", err)
	}
}

func digit(callID, d string) elks.DigitForm {
	return elks.DigitForm{CallID: callID, Direction: "outgoing", Result: d}
}

func TestMainMenu_LogsAndPrompts(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "elk-1", "dest-1")

	action, err := f.engine.MainMenu(context.Background(), "elk-1")
	if err != nil {
		t.Fatalf("main menu: %v", err)
	}
	if !strings.HasSuffix(action.IVR, "/media/ml-main_menu") {
		t.Fatalf("expected main menu prompt, got %+v", action)
	}
	if action.Next != "https://example.org/phone/next" || action.Timeout != 5 || action.Repeat != 2 {
		t.Fatalf("unexpected prompt action: %+v", action)
	}
	if got := f.events.OfKind(selectlog.KindInMenu); len(got) != 1 || got[0].DestinationID != "dest-1" {
		t.Fatalf("expected one IN_MENU event, got %+v", got)
	}
}

func TestCollectDigit_NoInputHangsUp(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "elk-1", "dest-1")

	action, err := f.engine.CollectDigit(context.Background(),
		elks.DigitForm{CallID: "elk-1", Result: "failed", Why: "noinput"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if action.Hangup != "reject" {
		t.Fatalf("expected reject hangup, got %+v", action)
	}
	if got := f.events.Events(); len(got) != 0 {
		t.Fatalf("noinput must not log events, got %+v", got)
	}
}

func TestCollectDigit_ConnectsFreeDestination(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "elk-1", "dest-1")

	action, err := f.engine.CollectDigit(context.Background(), digit("elk-1", "1"))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !strings.HasSuffix(action.Play, "/media/ml-connecting") {
		t.Fatalf("expected connecting playback, got %+v", action)
	}
	if action.Next != "https://example.org/phone/connect" {
		t.Fatalf("expected bridge callback, got %+v", action)
	}
	if got := f.events.OfKind(selectlog.KindCallingDestination); len(got) != 1 || got[0].DestinationID != "dest-1" {
		t.Fatalf("expected CALLING_DESTINATION for dest-1, got %+v", got)
	}
}

func TestCollectDigit_BusyDestinationOffersAlternative(t *testing.T) {
	f := newFixture(t)
	f.occupy(t, "elk-busy", "dest-1")
	f.startCall(t, "elk-1", "dest-1")

	action, err := f.engine.CollectDigit(context.Background(), digit("elk-1", "1"))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !strings.HasSuffix(action.IVR, "/media/ml-unavailable") {
		t.Fatalf("expected alternative offer, got %+v", action)
	}

	if got := f.events.OfKind(selectlog.KindCallingDestination); len(got) != 0 {
		t.Fatalf("busy destination must not get CALLING_DESTINATION, got %+v", got)
	}
	suggested := f.events.OfKind(selectlog.KindIVRSuggested)
	if len(suggested) != 1 || suggested[0].DestinationID != "dest-2" {
		t.Fatalf("expected IVR_SUGGESTED for dest-2, got %+v", suggested)
	}

	call, err := f.reg.Get(context.Background(), "elk-1", elks.Provider)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if call.DestinationID != "dest-2" {
		t.Fatalf("expected call reassigned to dest-2, got %q", call.DestinationID)
	}
}

func TestCollectDigit_AllBusyPlaysTryAgainLater(t *testing.T) {
	f := newFixture(t)
	f.occupy(t, "elk-busy-1", "dest-1")
	f.occupy(t, "elk-busy-2", "dest-2")
	f.startCall(t, "elk-1", "dest-1")

	action, err := f.engine.CollectDigit(context.Background(), digit("elk-1", "1"))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !strings.HasSuffix(action.Play, "/media/ml-try_again_later") {
		t.Fatalf("expected try-again-later playback, got %+v", action)
	}
	if action.Next != "" || action.Hangup != "" {
		t.Fatalf("playback must end the call naturally, got %+v", action)
	}
	if got := f.events.OfKind(selectlog.KindIVRSuggested); len(got) != 0 {
		t.Fatalf("probed-busy destinations must not be logged, got %+v", got)
	}
}

func TestCollectDigit_ArgumentsPlayback(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "elk-1", "dest-1")

	action, err := f.engine.CollectDigit(context.Background(), digit("elk-1", "5"))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !strings.HasSuffix(action.IVR, "/media/ml-arguments") {
		t.Fatalf("expected arguments playback, got %+v", action)
	}
	if action.Next != "https://example.org/phone/next" {
		t.Fatalf("arguments must loop back to digit collection, got %+v", action)
	}
}

func TestCollectDigit_UnknownDigitReservesMenu(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "elk-1", "dest-1")

	action, err := f.engine.CollectDigit(context.Background(), digit("elk-1", "9"))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !strings.HasSuffix(action.IVR, "/media/ml-main_menu") {
		t.Fatalf("expected menu again, got %+v", action)
	}
	if got := f.events.OfKind(selectlog.KindInMenu); len(got) != 0 {
		t.Fatalf("re-serving the menu must not re-log IN_MENU, got %+v", got)
	}
}

func TestBridge_ConnectsAndLogs(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "elk-1", "dest-1")

	action, err := f.engine.Bridge(context.Background(), "elk-1")
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	if action.Connect != "+491110001" {
		t.Fatalf("expected connect to destination phone, got %+v", action)
	}
	if got := f.events.OfKind(selectlog.KindDestinationConnected); len(got) != 1 {
		t.Fatalf("expected DESTINATION_CONNECTED, got %+v", got)
	}
	busy, err := f.reg.DestinationInCall(context.Background(), "dest-1")
	if err != nil || !busy {
		t.Fatalf("expected destination busy after bridge, busy=%v err=%v", busy, err)
	}
}

func TestBridge_MissingPhoneContactHangsUp(t *testing.T) {
	f := newFixture(t)
	repo := destinations.NewMemoryRepo(7,
		destinations.Destination{ID: "dest-np", Name: "No Phone", Country: "de"})
	f.reg = registry.NewMemoryStore(repo)
	f.engine.registry = f.reg
	f.engine.dests = repo
	f.startCall(t, "elk-1", "dest-np")

	action, err := f.engine.Bridge(context.Background(), "elk-1")
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	if action.Hangup != "reject" {
		t.Fatalf("expected hangup, got %+v", action)
	}
	if got := f.events.OfKind(selectlog.KindCallingDestinationFailed); len(got) != 1 {
		t.Fatalf("expected CALLING_DESTINATION_FAILED, got %+v", got)
	}
}

func TestHangup_ClassifiesShortAndLongCalls(t *testing.T) {
	cases := []struct {
		name     string
		duration int
		want     selectlog.Kind
	}{
		{"short", 5, selectlog.KindFinishedShortCall},
		{"long", 45, selectlog.KindFinishedCall},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.startCall(t, "elk-1", "dest-1")
			if _, err := f.engine.Bridge(context.Background(), "elk-1"); err != nil {
				t.Fatalf("bridge: %v", err)
			}

			err := f.engine.Hangup(context.Background(), elks.HangupForm{
				CallID:   "elk-1",
				Start:    time.Now().UTC(),
				Duration: tc.duration,
			})
			if err != nil {
				t.Fatalf("hangup: %v", err)
			}
			if got := f.events.OfKind(tc.want); len(got) != 1 {
				t.Fatalf("expected one %s event, got %+v", tc.want, got)
			}
			if _, err := f.reg.Get(context.Background(), "elk-1", elks.Provider); err == nil {
				t.Fatalf("expected call removed after hangup")
			}
		})
	}
}

func TestHangup_NeverConnectedIsAborted(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "elk-1", "dest-1")

	err := f.engine.Hangup(context.Background(), elks.HangupForm{
		CallID: "elk-1",
		Start:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("hangup: %v", err)
	}
	if got := f.events.OfKind(selectlog.KindCallAborted); len(got) != 1 {
		t.Fatalf("expected CALL_ABORTED, got %+v", got)
	}
	if got := f.events.OfKind(selectlog.KindCallingUserFailed); len(got) != 0 {
		t.Fatalf("unexpected CALLING_USER_FAILED: %+v", got)
	}
}

func TestHangup_MissingStartLogsUserFailure(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "elk-1", "dest-1")

	if err := f.engine.Hangup(context.Background(), elks.HangupForm{CallID: "elk-1"}); err != nil {
		t.Fatalf("hangup: %v", err)
	}
	if got := f.events.OfKind(selectlog.KindCallingUserFailed); len(got) != 1 {
		t.Fatalf("expected CALLING_USER_FAILED, got %+v", got)
	}
}

func TestHangup_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "elk-1", "dest-1")

	form := elks.HangupForm{CallID: "elk-1", Start: time.Now().UTC()}
	if err := f.engine.Hangup(context.Background(), form); err != nil {
		t.Fatalf("first hangup: %v", err)
	}
	before := len(f.events.Events())

	if err := f.engine.Hangup(context.Background(), form); err != nil {
		t.Fatalf("second hangup must be silent: %v", err)
	}
	if got := len(f.events.Events()); got != before {
		t.Fatalf("second hangup logged %d extra events", got-before)
	}
}

func TestBridge_DestinationTakenSinceMenuOffersAlternative(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "elk-a", "dest-1")
	f.startCall(t, "elk-b", "dest-1")

	// Both callers press "1" while the destination is still free, so
	// both hear the connecting playback.
	for _, id := range []string{"elk-a", "elk-b"} {
		action, err := f.engine.CollectDigit(context.Background(), digit(id, "1"))
		if err != nil {
			t.Fatalf("collect %s: %v", id, err)
		}
		if !strings.HasSuffix(action.Play, "/media/ml-connecting") {
			t.Fatalf("expected connecting playback for %s, got %+v", id, action)
		}
	}

	if _, err := f.engine.Bridge(context.Background(), "elk-a"); err != nil {
		t.Fatalf("first bridge: %v", err)
	}

	action, err := f.engine.Bridge(context.Background(), "elk-b")
	if err != nil {
		t.Fatalf("second bridge: %v", err)
	}
	if action.Connect != "" {
		t.Fatalf("second bridge must not connect, got %+v", action)
	}
	if !strings.HasSuffix(action.IVR, "/media/ml-unavailable") {
		t.Fatalf("expected alternative offer, got %+v", action)
	}

	call, err := f.reg.Get(context.Background(), "elk-b", elks.Provider)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if call.DestinationID != "dest-2" {
		t.Fatalf("expected losing call reassigned, got %q", call.DestinationID)
	}
	if call.Connected() {
		t.Fatalf("losing call must stay unconnected")
	}

	if got := f.events.OfKind(selectlog.KindDestinationConnected); len(got) != 1 {
		t.Fatalf("expected a single DESTINATION_CONNECTED, got %+v", got)
	}
	suggested := f.events.OfKind(selectlog.KindIVRSuggested)
	if len(suggested) != 1 || suggested[0].DestinationID != "dest-2" {
		t.Fatalf("expected IVR_SUGGESTED for dest-2, got %+v", suggested)
	}
}
