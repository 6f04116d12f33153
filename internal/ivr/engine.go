package ivr

import (
	"context"
	"errors"
	"time"

	"repcall/internal/destinations"
	"repcall/internal/elks"
	"repcall/internal/metrics"
	"repcall/internal/registry"
	"repcall/internal/selectlog"
	"repcall/pkg/logger"
)

// Config carries the IVR policy knobs.
type Config struct {
	// PhoneBaseURL is the externally reachable prefix of the webhook
	// routes, e.g. "https://example.org/phone".
	PhoneBaseURL string

	// MenuTimeout is the seconds the provider waits for a digit;
	// MenuRepeat is how often the prompt replays before giving up.
	MenuTimeout int
	MenuRepeat  int

	// ShortCallThreshold separates FINISHED_SHORT_CALL from
	// FINISHED_CALL.
	ShortCallThreshold time.Duration

	// AltDestinationAttempts bounds the search for a free alternative
	// when the chosen destination is busy.
	AltDestinationAttempts int
}

// Engine drives the call through the menu. Each method is one webhook
// transition: it resolves the call from the durable registry, applies
// policy, records the selection events, and returns the next action for
// the provider. The engine itself holds no per-call state.
type Engine struct {
	registry registry.Store
	dests    destinations.Repository
	events   *selectlog.Service
	media    MediaBuilder
	metrics  *metrics.CallMetrics
	clock    func() time.Time

	provider string
	cfg      Config
}

func NewEngine(
	reg registry.Store,
	dests destinations.Repository,
	events *selectlog.Service,
	media MediaBuilder,
	m *metrics.CallMetrics,
	cfg Config,
) *Engine {
	return &Engine{
		registry: reg,
		dests:    dests,
		events:   events,
		media:    media,
		metrics:  m,
		clock:    time.Now,
		provider: elks.Provider,
		cfg:      cfg,
	}
}

// SetClock overrides the engine clock for deterministic tests.
func (e *Engine) SetClock(clock func() time.Time) { e.clock = clock }

func (e *Engine) mediaURL(id string) string {
	return e.cfg.PhoneBaseURL + "/media/" + id
}

func (e *Engine) nextURL() string { return e.cfg.PhoneBaseURL + "/next" }

// MainMenu handles the voice-start callback: the user answered.
func (e *Engine) MainMenu(ctx context.Context, providerCallID string) (Action, error) {
	call, err := e.registry.Get(ctx, providerCallID, e.provider)
	if err != nil {
		return Action{}, err
	}
	if err := e.events.Log(ctx, selectlog.KindInMenu, call.DestinationID, call.UserID, call.ID); err != nil {
		return Action{}, err
	}
	return e.menuAction(ctx, call)
}

func (e *Engine) menuAction(ctx context.Context, call registry.Call) (Action, error) {
	id, err := e.media.Build(ctx, FlowMainMenu, call.UserLanguage)
	if err != nil {
		return Action{}, err
	}
	return Action{
		IVR:     e.mediaURL(id),
		Next:    e.nextURL(),
		Timeout: e.cfg.MenuTimeout,
		Repeat:  e.cfg.MenuRepeat,
	}, nil
}

// CollectDigit handles the digit-collection callback.
func (e *Engine) CollectDigit(ctx context.Context, form elks.DigitForm) (Action, error) {
	// No digit within the prompt window, most likely voice mail. Drop
	// without logging a selection event.
	if form.NoInput() {
		return hangupAction(), nil
	}

	call, err := e.registry.Get(ctx, form.CallID, e.provider)
	if err != nil {
		return Action{}, err
	}

	switch form.Result {
	case "1":
		return e.connectFlow(ctx, call)
	case "5":
		id, err := e.media.Build(ctx, FlowArguments, call.UserLanguage)
		if err != nil {
			return Action{}, err
		}
		return Action{
			IVR:     e.mediaURL(id),
			Next:    e.nextURL(),
			Timeout: e.cfg.MenuTimeout,
			Repeat:  e.cfg.MenuRepeat,
		}, nil
	default:
		// Unknown digit: serve the menu again instead of dead air.
		return e.menuAction(ctx, call)
	}
}

// connectFlow decides between bridging to the call's destination and
// offering an alternative when that destination is already on a call.
func (e *Engine) connectFlow(ctx context.Context, call registry.Call) (Action, error) {
	busy, err := e.registry.DestinationInCall(ctx, call.DestinationID)
	if err != nil {
		return Action{}, err
	}
	if !busy {
		if err := e.events.Log(ctx, selectlog.KindCallingDestination, call.DestinationID, call.UserID, call.ID); err != nil {
			return Action{}, err
		}
		id, err := e.media.Build(ctx, FlowConnecting, call.UserLanguage)
		if err != nil {
			return Action{}, err
		}
		return Action{
			Play: e.mediaURL(id),
			Next: e.cfg.PhoneBaseURL + "/connect",
		}, nil
	}

	return e.alternativeFlow(ctx, call)
}

// alternativeFlow reassigns the call to a random free destination and
// offers it to the caller. It is entered both from digit collection and
// from a bridge attempt that lost the race for the destination.
func (e *Engine) alternativeFlow(ctx context.Context, call registry.Call) (Action, error) {
	exclude := []string{call.DestinationID}
	for i := 0; i < e.cfg.AltDestinationAttempts; i++ {
		alt, err := e.dests.PickRandom(ctx, exclude)
		if errors.Is(err, destinations.ErrNoAlternative) {
			break
		}
		if err != nil {
			return Action{}, err
		}
		altBusy, err := e.registry.DestinationInCall(ctx, alt.ID)
		if err != nil {
			return Action{}, err
		}
		if altBusy {
			exclude = append(exclude, alt.ID)
			continue
		}

		call, err = e.registry.Reassign(ctx, call, alt.ID)
		if err != nil {
			return Action{}, err
		}
		if err := e.events.Log(ctx, selectlog.KindIVRSuggested, alt.ID, call.UserID, call.ID); err != nil {
			return Action{}, err
		}
		id, err := e.media.Build(ctx, FlowUnavailable, call.UserLanguage)
		if err != nil {
			return Action{}, err
		}
		return Action{
			IVR:     e.mediaURL(id),
			Next:    e.nextURL(),
			Timeout: e.cfg.MenuTimeout,
			Repeat:  e.cfg.MenuRepeat,
		}, nil
	}

	// Everyone reachable is busy right now. Apologize and let the call
	// end after the playback (no next step).
	id, err := e.media.Build(ctx, FlowTryAgainLater, call.UserLanguage)
	if err != nil {
		return Action{}, err
	}
	return Action{Play: e.mediaURL(id)}, nil
}

// Bridge handles the callback after the connecting playback and dials
// the destination into the call.
func (e *Engine) Bridge(ctx context.Context, providerCallID string) (Action, error) {
	call, err := e.registry.Get(ctx, providerCallID, e.provider)
	if err != nil {
		return Action{}, err
	}

	phone, ok := call.Destination.PhoneContact()
	if !ok {
		logger.From(ctx).Error("destination has no phone contact",
			"destination_id", call.DestinationID, "call_id", call.ID)
		if err := e.events.Log(ctx, selectlog.KindCallingDestinationFailed, call.DestinationID, call.UserID, call.ID); err != nil {
			return Action{}, err
		}
		return hangupAction(), nil
	}

	if err := e.registry.Connect(ctx, call); err != nil {
		// Another caller took the destination between the connecting
		// playback and this bridge attempt.
		if errors.Is(err, registry.ErrDestinationBusy) {
			return e.alternativeFlow(ctx, call)
		}
		return Action{}, err
	}
	if err := e.events.Log(ctx, selectlog.KindDestinationConnected, call.DestinationID, call.UserID, call.ID); err != nil {
		return Action{}, err
	}
	return Action{Connect: phone}, nil
}

// Hangup finalizes the call: classify the outcome, write the terminal
// selection events, record metrics, and drop the registry row. A hangup
// for an unknown call is answered silently; the provider retries
// nothing, and duplicate webhooks must not double-log.
func (e *Engine) Hangup(ctx context.Context, form elks.HangupForm) error {
	log := logger.From(ctx)

	call, err := e.registry.Get(ctx, form.CallID, e.provider)
	if errors.Is(err, registry.ErrCallNotFound) {
		log.Error("hangup for unknown call", "provider_call_id", form.CallID)
		return nil
	}
	if err != nil {
		return err
	}

	if err := e.registry.End(ctx, call); err != nil {
		return err
	}

	if form.Failed() {
		if err := e.events.Log(ctx, selectlog.KindCallingUserFailed, call.DestinationID, call.UserID, call.ID); err != nil {
			return err
		}
	}

	outcome := selectlog.KindCallAborted
	var connected time.Duration
	if call.Connected() {
		if form.Duration > 0 {
			connected = time.Duration(form.Duration) * time.Second
		} else {
			connected = e.clock().Sub(*call.ConnectedAt)
		}
		if connected <= e.cfg.ShortCallThreshold {
			outcome = selectlog.KindFinishedShortCall
		} else {
			outcome = selectlog.KindFinishedCall
		}
	}
	if err := e.events.Log(ctx, outcome, call.DestinationID, call.UserID, call.ID); err != nil {
		return err
	}

	if e.metrics != nil {
		e.metrics.CallsEnded.WithLabelValues(string(outcome)).Inc()
		if call.Connected() {
			e.metrics.ConnectSeconds.WithLabelValues(call.DestinationID).Observe(connected.Seconds())
		}
		if form.Cost > 0 {
			e.metrics.CostCents.WithLabelValues(call.DestinationID).Add(float64(form.Cost))
		}
	}

	if err := e.registry.Remove(ctx, call); err != nil {
		return err
	}
	log.Info("call finished",
		"provider_call_id", form.CallID,
		"outcome", string(outcome),
		"duration_seconds", int(connected.Seconds()),
	)
	return nil
}
