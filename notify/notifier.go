// Package notify delivers change notifications to observers subscribed to
// resource identifiers.
package notify

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jgrocha/BluetoothChat/logger"
	"github.com/jgrocha/BluetoothChat/resource"
)

// Callback receives the identifier a change was published on. A returned
// error is logged and otherwise ignored.
type Callback func(id resource.Identifier) error

// Option configures a subscription
type Option func(*Subscription)

// WithDescendants makes the subscription also fire for changes published on
// identifiers below the subscribed one.
func WithDescendants() Option {
	return func(s *Subscription) {
		s.descendants = true
	}
}

// Subscription is a registered observer
type Subscription struct {
	ID          string
	Target      resource.Identifier
	descendants bool
	callback    Callback
	notifier    *Notifier
	live        bool // guarded by notifier.mu
}

// Cancel removes the subscription. Calling it more than once is harmless.
func (s *Subscription) Cancel() {
	if s == nil || s.notifier == nil {
		return
	}
	s.notifier.Unsubscribe(s)
}

// matches reports whether a change published on id concerns s
func (s *Subscription) matches(id resource.Identifier) bool {
	if id.SamePath(s.Target) || id.IsAncestorOf(s.Target) {
		return true
	}
	return s.descendants && s.Target.IsAncestorOf(id)
}

// Notifier is a registry of subscriptions
type Notifier struct {
	mu   sync.Mutex
	subs []*Subscription
}

// New creates an empty notifier
func New() *Notifier {
	return &Notifier{}
}

// Subscribe registers cb for changes on id
func (n *Notifier) Subscribe(id resource.Identifier, cb Callback, opts ...Option) *Subscription {
	sub := &Subscription{
		ID:       uuid.NewString(),
		Target:   id,
		callback: cb,
		notifier: n,
		live:     true,
	}
	for _, opt := range opts {
		opt(sub)
	}

	n.mu.Lock()
	n.subs = append(n.subs, sub)
	n.mu.Unlock()

	logger.Debugf("subscription %s registered on %s", sub.ID, id)
	return sub
}

// Unsubscribe removes sub. Unknown or already removed subscriptions are
// ignored.
func (n *Notifier) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, s := range n.subs {
		if s == sub {
			sub.live = false
			n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of live subscriptions
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Publish synchronously invokes every matching subscriber, in registration
// order, and returns how many were invoked. A subscriber removed by an
// earlier callback is skipped; one added by a callback first fires on the
// next Publish.
func (n *Notifier) Publish(id resource.Identifier) int {
	n.mu.Lock()
	snapshot := make([]*Subscription, len(n.subs))
	copy(snapshot, n.subs)
	n.mu.Unlock()

	notified := 0
	for _, sub := range snapshot {
		if !sub.matches(id) || !n.registered(sub) {
			continue
		}
		notified++
		if err := invoke(sub, id); err != nil {
			logger.Z().Warn("change observer failed",
				zap.String("subscription", sub.ID),
				zap.Stringer("identifier", id),
				zap.Error(err))
		}
	}
	return notified
}

func (n *Notifier) registered(sub *Subscription) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return sub.live
}

func invoke(sub *Subscription, id resource.Identifier) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panicked: %v", r)
		}
	}()
	if sub.callback == nil {
		return nil
	}
	return sub.callback(id)
}
