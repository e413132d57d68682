// Package notify sends Pushover notifications when the harness is waiting on
// the operator.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ssloxford/current-affairs/internal/config"
	"github.com/ssloxford/current-affairs/internal/waiter"
)

const (
	apiURL = "https://api.pushover.net/1/messages.json"

	// MaxTitleLen is the maximum length for a Pushover notification title.
	MaxTitleLen = 250

	// MaxMessageLen is the maximum length for a Pushover notification message.
	MaxMessageLen = 1024
)

// Priority levels for Pushover notifications.
const (
	PriorityLowest = -2
	PriorityLow    = -1
	PriorityNormal = 0
	PriorityHigh   = 1
)

// Message represents a Pushover notification to send.
type Message struct {
	Title    string
	Body     string
	Priority int
}

// Response is the JSON response from the Pushover API.
type Response struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors,omitempty"`
}

// Pushover posts messages to the Pushover API.
type Pushover struct {
	Config config.PushoverConfig
	// APIURL overrides the endpoint, for tests.
	APIURL string
	Client *http.Client
}

// New returns a client for cfg with a 10s request timeout.
func New(cfg config.PushoverConfig) *Pushover {
	return &Pushover{Config: cfg, Client: &http.Client{Timeout: 10 * time.Second}}
}

// Send posts msg.
func (p *Pushover) Send(ctx context.Context, msg Message) error {
	if !p.Config.Configured() {
		return fmt.Errorf("pushover not configured: set console.pushover in %s", config.Path())
	}

	title := msg.Title
	if len(title) > MaxTitleLen {
		title = title[:MaxTitleLen]
	}
	body := msg.Body
	if len(body) > MaxMessageLen {
		body = body[:MaxMessageLen]
	}

	form := url.Values{
		"token":    {p.Config.AppToken},
		"user":     {p.Config.UserKey},
		"title":    {title},
		"message":  {body},
		"priority": {fmt.Sprintf("%d", msg.Priority)},
	}
	endpoint := p.APIURL
	if endpoint == "" {
		endpoint = apiURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("sending pushover notification: %w", err)
	}
	defer resp.Body.Close()

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding pushover response: %w", err)
	}
	if result.Status != 1 {
		return fmt.Errorf("pushover API error: %s", strings.Join(result.Errors, "; "))
	}
	return nil
}

// CheckpointMessage describes a checkpoint that just started waiting.
func CheckpointMessage(experiment string, v waiter.View) Message {
	labels := make([]string, 0, len(v.Outcomes))
	for _, o := range v.Outcomes {
		labels = append(labels, o.Label)
	}
	title := "Waiting: " + strings.TrimPrefix(v.Kind, "waiter_")
	if experiment != "" {
		title = experiment + " " + title
	}
	body := "Options: " + strings.Join(labels, ", ")
	if v.AutoChecked {
		body += "\nAuto " + v.AutoLabel() + " is on."
	}
	return Message{Title: title, Body: body, Priority: PriorityNormal}
}
