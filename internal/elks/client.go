package elks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"repcall/internal/numberpool"
)

// Provider is the name under which calls are registered.
const Provider = "46elks"

const defaultAPIBase = "https://api.46elks.com"

// InitialState is the business state in the provider's synchronous
// response to an outbound-call request. These are normal outcomes, not
// errors; only transport/HTTP failures surface as Go errors.
type InitialState string

const (
	StateOngoing InitialState = "ongoing"
	StateSuccess InitialState = "success"
	StateBusy    InitialState = "busy"
	StateFailed  InitialState = "failed"
)

// Client is a thin HTTP adapter for the 46elks REST API.
type Client struct {
	apiBase    string
	username   string
	password   string
	httpClient *http.Client
}

func NewClient(username, password string) *Client {
	return &Client{
		apiBase:    defaultAPIBase,
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithAPIBase overrides the API endpoint. Used by tests.
func (c *Client) WithAPIBase(base string) *Client {
	c.apiBase = strings.TrimRight(base, "/")
	return c
}

type CreateCallRequest struct {
	To   string
	From string

	// VoiceStartURL is invoked when the user answers; HangupURL is the
	// unconditional terminal callback.
	VoiceStartURL string
	HangupURL     string

	// RingTimeout in seconds before the provider gives up the user leg.
	RingTimeout int
}

type CreateCallResponse struct {
	CallID    string       `json:"id"`
	Created   string       `json:"created"`
	Direction string       `json:"direction"`
	State     InitialState `json:"state"`
	From      string       `json:"from"`
	To        string       `json:"to"`
}

// CreateCall issues the outbound-call request. Non-2xx responses and
// transport failures return an error; the caller decides user-facing
// messaging and must not expect retries here.
func (c *Client) CreateCall(ctx context.Context, req CreateCallRequest) (CreateCallResponse, error) {
	form := url.Values{}
	form.Set("to", req.To)
	form.Set("from", req.From)
	form.Set("voice_start", req.VoiceStartURL)
	form.Set("whenhangup", req.HangupURL)
	form.Set("timeout", strconv.Itoa(req.RingTimeout))

	var out CreateCallResponse
	if err := c.postForm(ctx, "/a1/calls", form, &out); err != nil {
		return CreateCallResponse{}, err
	}
	if out.CallID == "" {
		return CreateCallResponse{}, fmt.Errorf("elks: call response missing id")
	}
	switch out.State {
	case StateOngoing, StateSuccess, StateBusy, StateFailed:
	default:
		return CreateCallResponse{}, fmt.Errorf("elks: unknown call state %q", out.State)
	}
	return out, nil
}

type numberEntry struct {
	ID           string   `json:"id"`
	Number       string   `json:"number"`
	Country      string   `json:"country"`
	Category     string   `json:"category"`
	Capabilities []string `json:"capabilities"`
	Active       string   `json:"active"` // "yes" / "no"
	Allocated    string   `json:"allocated"`
	Expires      string   `json:"expires"`
}

// Numbers fetches the allocated caller-ID inventory for the pool.
func (c *Client) Numbers(ctx context.Context) ([]numberpool.Number, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/a1/numbers", nil)
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("elks: API access denied")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elks: numbers request failed with status %d", resp.StatusCode)
	}

	var payload struct {
		Data []numberEntry `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("elks: decode numbers: %w", err)
	}

	out := make([]numberpool.Number, 0, len(payload.Data))
	for _, e := range payload.Data {
		out = append(out, numberpool.Number{
			ID:           e.ID,
			Number:       e.Number,
			Country:      e.Country,
			Category:     e.Category,
			Capabilities: e.Capabilities,
			Active:       e.Active == "yes",
			Allocated:    parseElksTime(e.Allocated),
			Expires:      parseElksTime(e.Expires),
		})
	}
	return out, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	httpReq.SetBasicAuth(c.username, c.password)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("elks: %s failed with status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// elksTimeLayouts covers the timestamp shapes 46elks emits.
var elksTimeLayouts = []string{
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

func parseElksTime(s string) time.Time {
	for _, layout := range elksTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
