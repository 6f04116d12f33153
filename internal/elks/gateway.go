package elks

import (
	"context"
	"fmt"

	"repcall/internal/metrics"
	"repcall/internal/numberpool"
	"repcall/internal/registry"
	"repcall/internal/selectlog"
	"repcall/pkg/logger"
)

// Gateway translates internal call intents into provider API requests.
// Interpreting the webhook side lives in the IVR flow engine; this type
// only covers call initiation.
type Gateway struct {
	client   *Client
	pool     *numberpool.Pool
	registry registry.Store
	events   *selectlog.Service
	metrics  *metrics.CallMetrics

	phoneBaseURL string
	ringTimeout  int
}

func NewGateway(
	client *Client,
	pool *numberpool.Pool,
	reg registry.Store,
	events *selectlog.Service,
	m *metrics.CallMetrics,
	phoneBaseURL string,
	ringTimeout int,
) *Gateway {
	return &Gateway{
		client:       client,
		pool:         pool,
		registry:     reg,
		events:       events,
		metrics:      m,
		phoneBaseURL: phoneBaseURL,
		ringTimeout:  ringTimeout,
	}
}

// StartCall places the outbound call to the user. A "failed" provider
// state is a normal outcome: it is logged as CALLING_USER_FAILED, no
// registry record is created, and no error is returned. Transport and
// HTTP errors propagate to the caller, unretried.
func (g *Gateway) StartCall(ctx context.Context, userPhone, userLanguage, userID, destinationID string) (InitialState, error) {
	log := logger.From(ctx)

	number, err := g.pool.Choose(userPhone, userLanguage)
	if err != nil {
		return "", fmt.Errorf("choose caller-id number: %w", err)
	}

	resp, err := g.client.CreateCall(ctx, CreateCallRequest{
		To:            userPhone,
		From:          number.Number,
		VoiceStartURL: g.phoneBaseURL + "/voice-start",
		HangupURL:     g.phoneBaseURL + "/hangup",
		RingTimeout:   g.ringTimeout,
	})
	if err != nil {
		return "", err
	}

	if resp.State == StateFailed {
		log.Warn("outbound call failed", "our_number", number.Number, "destination_id", destinationID)
		if err := g.events.Log(ctx, selectlog.KindCallingUserFailed, destinationID, userID, ""); err != nil {
			return "", err
		}
		return StateFailed, nil
	}

	call, err := g.registry.Create(ctx, registry.CreateParams{
		Provider:       Provider,
		ProviderCallID: resp.CallID,
		UserLanguage:   userLanguage,
		UserID:         userID,
		DestinationID:  destinationID,
	})
	if err != nil {
		return "", err
	}
	if err := g.events.Log(ctx, selectlog.KindCallingUser, destinationID, userID, call.ID); err != nil {
		return "", err
	}
	if g.metrics != nil {
		g.metrics.CallsStarted.WithLabelValues(number.Number).Inc()
	}

	log.Info("outbound call started",
		"provider_call_id", resp.CallID,
		"state", string(resp.State),
		"destination_id", destinationID,
	)
	return resp.State, nil
}
