// Package collab talks to the external window agent.
//
// The agent owns everything this daemon deliberately doesn't: window
// enumeration, ancestry matching, focus/keystroke text extraction and
// window reopening. We only speak a small localhost HTTP contract to it,
// so its latency and side effects stay on its side of the wire.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatlogd/internal/capture"
	logx "chatlogd/pkg/logx"
)

// ErrNoMatch is returned by Resolve when the agent cannot map a signal to
// any tracked window, even via its ancestry-chain fallbacks.
var ErrNoMatch = errors.New("no target matched signal")

type Client struct {
	base string
	http *http.Client
	log  logx.Logger
}

func New(baseURL string, timeout time.Duration, log logx.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("agent base_url is required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}, nil
}

type targetDTO struct {
	TargetID string `json:"target_id"`
	Title    string `json:"title"`
}

// Resolve maps a raw signal reference to a tracked target. The agent runs
// its matcher chain (direct handle, root owner, root) server-side.
func (c *Client) Resolve(ctx context.Context, signalRef string) (capture.Target, error) {
	u := c.base + "/targets/resolve?ref=" + url.QueryEscape(signalRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return capture.Target{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return capture.Target{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return capture.Target{}, ErrNoMatch
	}
	if resp.StatusCode != http.StatusOK {
		return capture.Target{}, fmt.Errorf("agent resolve returned %s", resp.Status)
	}
	var dto targetDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return capture.Target{}, err
	}
	return capture.Target{ID: dto.TargetID, Title: dto.Title}, nil
}

// Validate reports whether the target's window still exists. Any transport
// error counts as invalid; the next signal will retry.
func (c *Client) Validate(ctx context.Context, t capture.Target) bool {
	u := c.base + "/targets/" + url.PathEscape(t.ID) + "/valid"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("agent validate failed", logx.String("target", t.ID), logx.Err(err))
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var out struct {
		Valid bool `json:"valid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false
	}
	return out.Valid
}

// ReadText asks the agent to extract the conversation text. The agent
// activates the window and simulates a copy, so this call can take a while
// and must not run concurrently with another read.
func (c *Client) ReadText(ctx context.Context, t capture.Target) (*string, error) {
	u := c.base + "/targets/" + url.PathEscape(t.ID) + "/read"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent read returned %s", resp.Status)
	}
	var out struct {
		Text *string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	// text: null means the agent could not produce text (hard failure),
	// as opposed to an empty capture.
	return out.Text, nil
}

// Reopen closes and reopens the chat window for a title, returning the
// target it reappeared under.
func (c *Client) Reopen(ctx context.Context, title string) (capture.Target, error) {
	body, err := json.Marshal(map[string]string{"title": title})
	if err != nil {
		return capture.Target{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/chats/reopen", bytes.NewReader(body))
	if err != nil {
		return capture.Target{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return capture.Target{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return capture.Target{}, fmt.Errorf("agent reopen returned %s", resp.Status)
	}
	var dto targetDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return capture.Target{}, err
	}
	return capture.Target{ID: dto.TargetID, Title: dto.Title}, nil
}
