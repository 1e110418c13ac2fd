// Package pubsub is the mint's internal notification core: a typed,
// in-process fanout over the three event kinds a wallet can subscribe
// to (proof state, mint-quote updates, melt-quote updates). It knows
// nothing about the NUT-17 websocket framing that exposes it
// externally — that lives in cashu/nuts/nut17 and a transport layer
// outside this module.
package pubsub

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"

	"github.com/chaumcash/ecash/cashu/nuts/nut04"
	"github.com/chaumcash/ecash/cashu/nuts/nut05"
	"github.com/chaumcash/ecash/cashu/nuts/nut07"
	"github.com/chaumcash/ecash/cashu/nuts/nut17"
)

// subscriberBufferSize bounds each subscriber's backlog. A commit that
// triggers a notification never blocks on a slow reader: once a
// subscriber's buffer is full, further events for it are dropped.
const subscriberBufferSize = 16

// Event is a single notification delivered to a matching subscriber.
// Filter is the id the event pertains to (a Y for ProofState, a quote
// id for the quote kinds) and is what a subscription's filter list is
// matched against.
type Event struct {
	Kind    nut17.SubscriptionKind
	Filter  string
	Payload any
}

// Subscriber receives events for one (kind, filters) subscription.
type Subscriber struct {
	id       string
	kind     nut17.SubscriptionKind
	filters  map[string]struct{}
	messages chan Event
	active   bool
	mu       sync.Mutex
}

func newSubscriber(kind nut17.SubscriptionKind, filters []string) *Subscriber {
	idBytes := make([]byte, 16)
	rand.Read(idBytes)

	filterSet := make(map[string]struct{}, len(filters))
	for _, f := range filters {
		filterSet[f] = struct{}{}
	}

	return &Subscriber{
		id:       hex.EncodeToString(idBytes),
		kind:     kind,
		filters:  filterSet,
		messages: make(chan Event, subscriberBufferSize),
		active:   true,
	}
}

// Messages returns the channel events are delivered on. It is closed
// once the subscription is cancelled via Close.
func (s *Subscriber) Messages() <-chan Event {
	return s.messages
}

func (s *Subscriber) matches(filter string) bool {
	if len(s.filters) == 0 {
		return true
	}
	_, ok := s.filters[filter]
	return ok
}

// deliver attempts a non-blocking send. A full buffer means the
// subscriber is falling behind; the event is dropped rather than
// stalling the commit that produced it.
func (s *Subscriber) deliver(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}
	select {
	case s.messages <- e:
		return true
	default:
		return false
	}
}

// Close cancels the subscription. Cancellation takes effect before any
// further emission; anything already buffered remains readable until
// drained off the channel before it reports closed.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	close(s.messages)
}

// PubSub is the single-writer notification fanout: emissions happen
// after the ledger transaction that caused them has already committed,
// never as part of it.
type PubSub struct {
	mu          sync.RWMutex
	subscribers map[nut17.SubscriptionKind]map[string]*Subscriber
	logger      *slog.Logger
}

func NewPubSub(logger *slog.Logger) *PubSub {
	return &PubSub{
		subscribers: make(map[nut17.SubscriptionKind]map[string]*Subscriber),
		logger:      logger,
	}
}

// Subscribe opens a subscription to kind, limited to the given filter
// ids (empty filters matches every event of that kind).
func (p *PubSub) Subscribe(kind nut17.SubscriptionKind, filters []string) *Subscriber {
	s := newSubscriber(kind, filters)

	p.mu.Lock()
	if p.subscribers[kind] == nil {
		p.subscribers[kind] = make(map[string]*Subscriber)
	}
	p.subscribers[kind][s.id] = s
	p.mu.Unlock()

	return s
}

// Unsubscribe removes and closes s.
func (p *PubSub) Unsubscribe(kind nut17.SubscriptionKind, s *Subscriber) {
	p.mu.Lock()
	delete(p.subscribers[kind], s.id)
	p.mu.Unlock()

	s.Close()
}

// PublishProofState notifies ProofState subscribers filtering on y.
func (p *PubSub) PublishProofState(y string, state nut07.ProofState) {
	p.publish(nut17.ProofState, y, state)
}

// PublishMintQuoteUpdate notifies Bolt11MintQuote subscribers filtering
// on quoteId.
func (p *PubSub) PublishMintQuoteUpdate(quoteId string, update nut04.PostMintQuoteBolt11Response) {
	p.publish(nut17.Bolt11MintQuote, quoteId, update)
}

// PublishMeltQuoteUpdate notifies Bolt11MeltQuote subscribers filtering
// on quoteId.
func (p *PubSub) PublishMeltQuoteUpdate(quoteId string, update nut05.PostMeltQuoteBolt11Response) {
	p.publish(nut17.Bolt11MeltQuote, quoteId, update)
}

func (p *PubSub) publish(kind nut17.SubscriptionKind, filter string, payload any) {
	p.mu.RLock()
	subs := p.subscribers[kind]
	matched := make([]*Subscriber, 0, len(subs))
	for _, s := range subs {
		if s.matches(filter) {
			matched = append(matched, s)
		}
	}
	p.mu.RUnlock()

	event := Event{Kind: kind, Filter: filter, Payload: payload}
	for _, s := range matched {
		if !s.deliver(event) && p.logger != nil {
			p.logger.Warn("pubsub: dropped event for slow subscriber",
				"kind", kind.String(), "filter", filter)
		}
	}
}
