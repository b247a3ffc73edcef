// Package feed implements the evacuation alert feed: it merges alerts
// with the current user's recorded responses, records new responses
// with an optimistic local update, and reflects newly broadcast alerts
// through a scoped live subscription.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hmori/go-civic-response/internal/models"
)

var (
	// ErrAlreadyResponded is returned when the alert already carries a
	// response, either locally or as a conflict reported by the server.
	ErrAlreadyResponded = errors.New("alert already has a response")

	ErrUnknownAlert = errors.New("unknown alert id")

	ErrAlreadyStarted = errors.New("live subscription already started")
)

// Status is the client-local response state of one alert.
//
// Unanswered -> (Submit) -> Pending -> (ack) -> Answered
//
//	Pending -> (failure) -> Unanswered
//
// Answered is terminal; nothing transitions out of it.
type Status int

const (
	StatusUnanswered Status = iota
	StatusPending
	StatusAnswered
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAnswered:
		return "answered"
	default:
		return "unanswered"
	}
}

// EvacuationAlert is the view model: an alert decorated with the
// current user's response state. It exists only in feed memory.
type EvacuationAlert struct {
	models.Alert
	Status   Status
	Response models.ResponseValue // empty unless Pending or Answered
}

// Responded reports whether the alert's action should be suppressed.
// A Pending optimistic submission already counts as responded.
func (e *EvacuationAlert) Responded() bool {
	return e.Status != StatusUnanswered
}

// Subscription is a live handle to alert-created notifications. The
// channel closes when the subscription ends. There is no reconnect
// policy: a dropped subscription stays dropped until the feed is
// started again.
type Subscription interface {
	Alerts() <-chan *models.Alert
	Close() error
}

// Backend is the data boundary of the feed: list, submit, subscribe.
type Backend interface {
	ListAlerts(ctx context.Context) ([]models.Alert, error)
	ListMyResponses(ctx context.Context) ([]models.AlertResponse, error)
	SubmitResponse(ctx context.Context, alertID string, value models.ResponseValue) error
	SubscribeAlerts(ctx context.Context) (Subscription, error)
}

// Feed holds the alert list for one signed-in user. All mutation goes
// through the Feed itself; callers read snapshots via Items.
type Feed struct {
	backend Backend

	mu     sync.Mutex
	items  []*EvacuationAlert
	sub    Subscription
	closed bool
	done   chan struct{}
}

func New(backend Backend) *Feed {
	return &Feed{
		backend: backend,
	}
}

// Load fetches all alerts and the user's responses and rebuilds the
// list. A failure leaves the previous state untouched and is terminal
// for this attempt; the caller decides whether to call Load again.
func (f *Feed) Load(ctx context.Context) error {
	alerts, err := f.backend.ListAlerts(ctx)
	if err != nil {
		return fmt.Errorf("loading alerts: %w", err)
	}
	responses, err := f.backend.ListMyResponses(ctx)
	if err != nil {
		return fmt.Errorf("loading responses: %w", err)
	}

	byAlert := make(map[string]models.ResponseValue, len(responses))
	for _, r := range responses {
		byAlert[r.AlertID] = r.Response
	}

	items := make([]*EvacuationAlert, 0, len(alerts))
	for _, a := range alerts {
		item := &EvacuationAlert{Alert: a}
		if value, ok := byAlert[a.ID]; ok {
			item.Status = StatusAnswered
			item.Response = value
		}
		items = append(items, item)
	}

	f.mu.Lock()
	f.items = items
	f.mu.Unlock()
	return nil
}

// Submit records a response for an alert. The view model flips to
// responded before the write is confirmed; a failed write rolls it
// back so the caller can retry. A server-side conflict (another device
// won the race) surfaces as ErrAlreadyResponded after the rollback.
func (f *Feed) Submit(ctx context.Context, alertID string, value models.ResponseValue) error {
	if !value.Valid() {
		return fmt.Errorf("invalid response value: %q", value)
	}

	f.mu.Lock()
	item := f.find(alertID)
	if item == nil {
		f.mu.Unlock()
		return ErrUnknownAlert
	}
	if item.Status != StatusUnanswered {
		f.mu.Unlock()
		return ErrAlreadyResponded
	}
	item.Status = StatusPending
	item.Response = value
	f.mu.Unlock()

	err := f.backend.SubmitResponse(ctx, alertID, value)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		item.Status = StatusUnanswered
		item.Response = ""
		return fmt.Errorf("submitting response: %w", err)
	}
	item.Status = StatusAnswered
	return nil
}

// Start acquires the live subscription and applies alert-created
// notifications until Close. New alerts are prepended unanswered with
// no extra network round-trip.
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.sub != nil {
		f.mu.Unlock()
		return ErrAlreadyStarted
	}
	f.closed = false
	f.mu.Unlock()

	sub, err := f.backend.SubscribeAlerts(ctx)
	if err != nil {
		return fmt.Errorf("subscribing to alerts: %w", err)
	}

	done := make(chan struct{})

	f.mu.Lock()
	f.sub = sub
	f.done = done
	f.mu.Unlock()

	go func() {
		defer close(done)
		for alert := range sub.Alerts() {
			f.mu.Lock()
			if f.closed {
				f.mu.Unlock()
				return
			}
			f.prependLocked(alert)
			f.mu.Unlock()
		}
	}()

	return nil
}

// Close releases the subscription. No state mutation happens after
// Close returns.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed && f.sub == nil {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	sub := f.sub
	done := f.done
	f.sub = nil
	f.done = nil
	f.mu.Unlock()

	if sub == nil {
		return nil
	}
	err := sub.Close()
	if done != nil {
		<-done
	}
	return err
}

// Items returns a snapshot copy of the current view state, newest
// alert first.
func (f *Feed) Items() []EvacuationAlert {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]EvacuationAlert, len(f.items))
	for i, item := range f.items {
		out[i] = *item
	}
	return out
}

// Item returns a snapshot of a single alert's view state.
func (f *Feed) Item(alertID string) (EvacuationAlert, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if item := f.find(alertID); item != nil {
		return *item, true
	}
	return EvacuationAlert{}, false
}

func (f *Feed) find(alertID string) *EvacuationAlert {
	for _, item := range f.items {
		if item.ID == alertID {
			return item
		}
	}
	return nil
}

func (f *Feed) prependLocked(alert *models.Alert) {
	if f.find(alert.ID) != nil {
		return
	}
	item := &EvacuationAlert{Alert: *alert}
	f.items = append([]*EvacuationAlert{item}, f.items...)
}
