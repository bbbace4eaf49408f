// Package events delivers debate lifecycle notifications to live
// subscribers. Events are transient: nothing is replayed to late
// joiners, and a debate channel disappears once it is cleaned up.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/arbiterhq/arbiter/internal/core"
)

const (
	inboxSize      = 64
	subscriberSize = 16

	// idleExpiry is how long a debate channel may sit with no publish
	// before the janitor reclaims it.
	idleExpiry = time.Hour

	janitorInterval = 10 * time.Minute
)

type subscriber struct {
	ch        chan *core.Event
	done      chan struct{}
	cancelled bool
}

// channel is the multicast fan-out for one debate. A single pump
// goroutine drains the inbox so subscribers observe events in publish
// order. Subscriber channels are closed only by the pump, which keeps
// delivery and close strictly ordered.
type channel struct {
	mu          sync.Mutex
	subscribers map[int]*subscriber
	nextID      int
	lastActive  time.Time
	closed      bool

	inbox chan *core.Event
	ctrl  chan int      // unsubscribe requests for the pump
	quit  chan struct{} // closed by shutdown
	down  chan struct{} // closed when the pump exits
}

func newChannel() *channel {
	ch := &channel{
		subscribers: make(map[int]*subscriber),
		lastActive:  time.Now(),
		inbox:       make(chan *core.Event, inboxSize),
		ctrl:        make(chan int),
		quit:        make(chan struct{}),
		down:        make(chan struct{}),
	}
	go ch.pump()
	return ch
}

func (ch *channel) pump() {
	defer close(ch.down)
	for {
		select {
		case <-ch.quit:
			ch.drain()
			return
		case id := <-ch.ctrl:
			ch.reap(id)
		case ev := <-ch.inbox:
			ch.fanout(ev)
		}
	}
}

// fanout delivers one event to every live subscriber. The send blocks
// until the subscriber drains or cancels, so slow consumers see every
// event in order rather than a gap.
func (ch *channel) fanout(ev *core.Event) {
	ch.mu.Lock()
	subs := make([]*subscriber, 0, len(ch.subscribers))
	for _, sub := range ch.subscribers {
		subs = append(subs, sub)
	}
	ch.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		case <-sub.done:
		}
	}
}

// reap finalizes an unsubscribe: the listener's done is already closed,
// the pump removes it and closes its channel.
func (ch *channel) reap(id int) {
	ch.mu.Lock()
	sub, ok := ch.subscribers[id]
	if ok {
		delete(ch.subscribers, id)
	}
	ch.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// drain delivers any queued events, then closes every subscriber.
func (ch *channel) drain() {
	for {
		select {
		case ev := <-ch.inbox:
			ch.fanout(ev)
		default:
			ch.mu.Lock()
			subs := ch.subscribers
			ch.subscribers = make(map[int]*subscriber)
			ch.mu.Unlock()
			for _, sub := range subs {
				close(sub.ch)
			}
			return
		}
	}
}

func (ch *channel) subscribe() (int, chan *core.Event, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return 0, nil, false
	}
	id := ch.nextID
	ch.nextID++
	sub := &subscriber{
		ch:   make(chan *core.Event, subscriberSize),
		done: make(chan struct{}),
	}
	ch.subscribers[id] = sub
	return id, sub.ch, true
}

func (ch *channel) unsubscribe(id int) {
	ch.mu.Lock()
	sub, ok := ch.subscribers[id]
	if ok && !sub.cancelled {
		sub.cancelled = true
		close(sub.done)
	} else {
		ok = false
	}
	ch.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch.ctrl <- id:
	case <-ch.down:
	}
}

func (ch *channel) publish(ev *core.Event) bool {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return false
	}
	ch.lastActive = time.Now()
	ch.mu.Unlock()

	select {
	case ch.inbox <- ev:
		return true
	case <-ch.quit:
		return false
	}
}

func (ch *channel) close() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	ch.mu.Unlock()
	close(ch.quit)
}

// Publisher routes events to per-debate subscriber channels. Channels
// are created lazily on the first subscribe or publish for a debate.
type Publisher struct {
	mu       sync.Mutex
	channels map[string]*channel
	stop     chan struct{}
	once     sync.Once
}

// NewPublisher creates a publisher and starts its idle-channel janitor.
func NewPublisher() *Publisher {
	p := &Publisher{
		channels: make(map[string]*channel),
		stop:     make(chan struct{}),
	}
	go p.janitor()
	return p
}

func (p *Publisher) channelFor(debateID string, create bool) *channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[debateID]
	if !ok && create {
		ch = newChannel()
		p.channels[debateID] = ch
	}
	return ch
}

// Subscribe registers a listener for a debate's events. The returned
// cancel function must be called when the listener is done; it is safe
// to call more than once. The event channel is closed on cancel or when
// the debate channel is cleaned up.
func (p *Publisher) Subscribe(debateID string) (<-chan *core.Event, func()) {
	for {
		ch := p.channelFor(debateID, true)
		id, sub, ok := ch.subscribe()
		if !ok {
			// Lost a race with cleanup; the next attempt creates a
			// fresh channel.
			continue
		}
		var once sync.Once
		cancel := func() { once.Do(func() { ch.unsubscribe(id) }) }
		return sub, cancel
	}
}

// Publish delivers an event to the debate's subscribers. Publishing to
// a debate whose channel was cleaned up is a no-op.
func (p *Publisher) Publish(ev *core.Event) {
	if ev == nil {
		return
	}
	if ch := p.channelFor(ev.DebateID, false); ch != nil {
		ch.publish(ev)
	}
}

// Cleanup tears down a debate's channel, closing all subscriber
// channels after queued events are delivered. Later publishes for the
// debate are dropped.
func (p *Publisher) Cleanup(debateID string) {
	p.mu.Lock()
	ch, ok := p.channels[debateID]
	if ok {
		delete(p.channels, debateID)
	}
	p.mu.Unlock()
	if ok {
		ch.close()
	}
}

// Subscribers reports the current listener count for a debate.
func (p *Publisher) Subscribers(debateID string) int {
	ch := p.channelFor(debateID, false)
	if ch == nil {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	n := 0
	for _, sub := range ch.subscribers {
		if !sub.cancelled {
			n++
		}
	}
	return n
}

// janitor reclaims channels that have seen no publish for idleExpiry.
func (p *Publisher) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.expireIdle(time.Now())
		case <-p.stop:
			return
		}
	}
}

func (p *Publisher) expireIdle(now time.Time) {
	p.mu.Lock()
	var stale []*channel
	for id, ch := range p.channels {
		ch.mu.Lock()
		idle := now.Sub(ch.lastActive) >= idleExpiry
		ch.mu.Unlock()
		if idle {
			slog.Debug("Reclaiming idle event channel", "debate_id", id)
			stale = append(stale, ch)
			delete(p.channels, id)
		}
	}
	p.mu.Unlock()
	for _, ch := range stale {
		ch.close()
	}
}

// Close shuts down every channel and the janitor.
func (p *Publisher) Close() {
	p.once.Do(func() { close(p.stop) })
	p.mu.Lock()
	channels := p.channels
	p.channels = make(map[string]*channel)
	p.mu.Unlock()
	for _, ch := range channels {
		ch.close()
	}
}
