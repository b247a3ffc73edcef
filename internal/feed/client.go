package feed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hmori/go-civic-response/internal/models"
)

// HTTPBackend implements Backend against the civic-response REST API.
// Request calls share a client with a timeout; the SSE stream uses an
// untimed client since it stays open for the life of the subscription.
type HTTPBackend struct {
	base   string
	token  string
	client *http.Client
	stream *http.Client
}

func NewHTTPBackend(base string) *HTTPBackend {
	return &HTTPBackend{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 15 * time.Second},
		stream: &http.Client{},
	}
}

// SetToken installs an already-issued session token.
func (b *HTTPBackend) SetToken(token string) {
	b.token = token
}

// Login signs in and keeps the issued session token for later calls.
func (b *HTTPBackend) Login(ctx context.Context, email, password string) error {
	body, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("encoding login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.base+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed: %s", apiError(resp))
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}
	b.token = out.Token
	return nil
}

func (b *HTTPBackend) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	var out struct {
		Alerts []models.Alert `json:"alerts"`
	}
	if err := b.getJSON(ctx, "/api/alerts", &out); err != nil {
		return nil, err
	}
	return out.Alerts, nil
}

func (b *HTTPBackend) ListMyResponses(ctx context.Context) ([]models.AlertResponse, error) {
	var out struct {
		Responses []models.AlertResponse `json:"responses"`
	}
	if err := b.getJSON(ctx, "/api/responses", &out); err != nil {
		return nil, err
	}
	return out.Responses, nil
}

func (b *HTTPBackend) SubmitResponse(ctx context.Context, alertID string, value models.ResponseValue) error {
	body, err := json.Marshal(map[string]string{
		"response": string(value),
	})
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}

	url := fmt.Sprintf("%s/api/alerts/%s/responses", b.base, alertID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	b.authorize(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		return nil
	case http.StatusConflict:
		return ErrAlreadyResponded
	default:
		return fmt.Errorf("submit failed: %s", apiError(resp))
	}
}

// SubscribeAlerts opens the SSE stream. The returned subscription's
// channel closes when the connection drops; no reconnect is attempted.
func (b *HTTPBackend) SubscribeAlerts(ctx context.Context) (Subscription, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, b.base+"/api/alerts/stream", nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	b.authorize(req)

	resp, err := b.stream.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stream request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := apiError(resp)
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream failed: %s", msg)
	}

	sub := &httpSubscription{
		ch:     make(chan *models.Alert, 16),
		cancel: cancel,
		body:   resp.Body,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go sub.read()
	return sub, nil
}

type httpSubscription struct {
	ch     chan *models.Alert
	cancel context.CancelFunc
	body   io.ReadCloser
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (s *httpSubscription) Alerts() <-chan *models.Alert {
	return s.ch
}

func (s *httpSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.body.Close()
		close(s.quit)
		<-s.done
	})
	return nil
}

// read parses the SSE wire format: "event:" and "data:" lines, with a
// blank line terminating each event.
func (s *httpSubscription) read() {
	defer close(s.done)
	defer close(s.ch)

	scanner := bufio.NewScanner(s.body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event == "alert" && data != "" {
				var alert models.Alert
				if err := json.Unmarshal([]byte(data), &alert); err == nil {
					select {
					case s.ch <- &alert:
					case <-s.quit:
						return
					}
				}
			}
			event, data = "", ""
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func (b *HTTPBackend) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.base+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	b.authorize(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s failed: %s", path, apiError(resp))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (b *HTTPBackend) authorize(req *http.Request) {
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
}

func apiError(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil && body.Error != "" {
		return fmt.Sprintf("%s (status %d)", body.Error, resp.StatusCode)
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}
