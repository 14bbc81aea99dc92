package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"contentexpiry/internal/content"
	"contentexpiry/internal/domain"
	"contentexpiry/internal/events"
)

// Handler performs one kind of expiry action against an existing content item.
type Handler interface {
	Handle(ctx context.Context, s domain.Schedule) error
}

type HandlerFunc func(ctx context.Context, s domain.Schedule) error

func (f HandlerFunc) Handle(ctx context.Context, s domain.Schedule) error { return f(ctx, s) }

var ErrEmptyStatus = errors.New("target status is empty")

type Executor struct {
	items content.Store
	sink  events.Sink

	mu       sync.RWMutex
	handlers map[string]Handler
}

// New returns an Executor with the built-in actions registered.
func New(items content.Store, sink events.Sink) *Executor {
	if sink == nil {
		sink = events.Discard
	}
	e := &Executor{items: items, sink: sink, handlers: make(map[string]Handler)}
	e.handlers[string(domain.ActionUnpublish)] = HandlerFunc(e.unpublish)
	e.handlers[string(domain.ActionDelete)] = HandlerFunc(e.deleteItem)
	e.handlers[string(domain.ActionRedirect)] = HandlerFunc(e.redirect)
	e.handlers[string(domain.ActionChangeStatus)] = HandlerFunc(e.changeStatus)
	return e
}

// Register adds a custom action kind. Names are unique.
func (e *Executor) Register(name string, h Handler) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("executor: action name is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.handlers[name]; exists {
		return fmt.Errorf("executor: duplicate action %q", name)
	}
	e.handlers[name] = h
	return nil
}

func (e *Executor) Has(action string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.handlers[action]
	return ok
}

func (e *Executor) Actions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.handlers))
	for n := range e.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Process runs the schedule's action and reports whether it succeeded.
// A missing content item fails immediately, before any notification.
func (e *Executor) Process(ctx context.Context, s domain.Schedule) bool {
	logger := log.With().Int64("schedule_id", s.ID).Int64("post_id", s.ContentID).Str("action", string(s.Action)).Logger()

	if s.ContentID <= 0 {
		return false
	}
	item, err := e.items.Get(ctx, s.ContentID)
	if err != nil {
		logger.Debug().Err(err).Msg("content lookup failed")
		return false
	}
	if item == nil {
		logger.Debug().Msg("content item no longer exists")
		return false
	}

	e.sink.Publish(ctx, events.BeforeExpiryAction{Schedule: s})

	e.mu.RLock()
	h, ok := e.handlers[string(s.Action)]
	e.mu.RUnlock()

	result := false
	if ok {
		if err := h.Handle(ctx, s); err != nil {
			logger.Debug().Err(err).Msg("expiry action failed")
		} else {
			result = true
		}
	} else {
		logger.Debug().Msg("no handler registered for action")
	}

	e.sink.Publish(ctx, events.AfterExpiryAction{Schedule: s, Result: result})
	return result
}

func (e *Executor) unpublish(ctx context.Context, s domain.Schedule) error {
	if err := e.items.SetStatus(ctx, s.ContentID, domain.StatusDraft); err != nil {
		return err
	}
	e.clearRedirect(ctx, s.ContentID)
	return nil
}

func (e *Executor) deleteItem(ctx context.Context, s domain.Schedule) error {
	return e.items.Delete(ctx, s.ContentID)
}

func (e *Executor) redirect(ctx context.Context, s domain.Schedule) error {
	target := ""
	if s.RedirectTarget != nil {
		target = *s.RedirectTarget
	}
	u, err := ValidateRedirectURL(target)
	if err != nil {
		return err
	}
	return e.items.SetMeta(ctx, s.ContentID, domain.RedirectMetaKey, u.String())
}

func (e *Executor) changeStatus(ctx context.Context, s domain.Schedule) error {
	status := ""
	if s.TargetStatus != nil {
		status = strings.TrimSpace(*s.TargetStatus)
	}
	if status == "" {
		return ErrEmptyStatus
	}
	if err := e.items.SetStatus(ctx, s.ContentID, strings.ToLower(status)); err != nil {
		return err
	}
	e.clearRedirect(ctx, s.ContentID)
	return nil
}

// clearRedirect removes residue from an earlier redirect action. Failure does not
// fail the action that called it.
func (e *Executor) clearRedirect(ctx context.Context, id int64) {
	if err := e.items.DeleteMeta(ctx, id, domain.RedirectMetaKey); err != nil {
		log.Warn().Err(err).Int64("post_id", id).Msg("failed to clear redirect target")
	}
}
