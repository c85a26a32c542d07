// Package mail dispatches transactional messages. Delivery is best effort:
// failures are logged and never surface to the request that triggered them.
package mail

import (
	"context"
	"errors"
	"strings"
	"sync"

	"xitem.org/internal/obs"
)

// Templates known to the dispatcher.
const (
	TemplateWelcome          = "welcome"
	TemplatePasswordRecovery = "password_recovery"
	TemplateDeletionRequest  = "delete_account_request"
)

// Message is one outgoing mail. Key is the action token embedded in the
// template.
type Message struct {
	To       string
	Name     string
	Subject  string
	Template string
	Key      string
}

// Dispatcher delivers messages.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// Validate checks the fields every dispatcher relies on.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("mail: recipient is required")
	}
	if strings.TrimSpace(m.Template) == "" {
		return errors.New("mail: template is required")
	}
	return nil
}

// LogDispatcher writes messages to the structured log instead of sending
// them. The action key is never logged.
type LogDispatcher struct {
	AppName string
}

func (d LogDispatcher) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	obs.Info("mail dispatched", map[string]any{
		"app":      d.AppName,
		"to":       msg.To,
		"subject":  msg.Subject,
		"template": msg.Template,
	})
	return nil
}

// Async hands messages to next on a background goroutine. Send returns
// immediately; Wait blocks until every dispatched message has finished.
type Async struct {
	next Dispatcher
	wg   sync.WaitGroup
}

// NewAsync wraps next.
func NewAsync(next Dispatcher) *Async {
	return &Async{next: next}
}

func (a *Async) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.next.Send(ctx, msg); err != nil {
			obs.Error("mail dispatch failed", map[string]any{
				"to":       msg.To,
				"template": msg.Template,
				"error":    err,
			})
		}
	}()
	return nil
}

// Wait blocks until in-flight messages are handed off.
func (a *Async) Wait() { a.wg.Wait() }

// Recorder keeps every message in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.sent = append(r.sent, msg)
	r.mu.Unlock()
	return nil
}

// Sent returns a copy of the recorded messages.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.sent))
	copy(out, r.sent)
	return out
}
