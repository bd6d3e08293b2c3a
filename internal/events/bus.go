package events

import (
	"sync"
	"time"
	"vfd/internal/providers"
	"vfd/internal/structures"

	json "github.com/goccy/go-json"
	"go.uber.org/atomic"
)

// Handler receives event payloads. Handlers are isolated from each other:
// a panicking handler is recovered and logged, and delivery continues to
// the remaining subscribers of the same event.
type Handler func(Payload)

type envelope struct {
	t Type
	p Payload
}

// Bus is the in-process pub/sub layer keeping dependent views consistent
// without polling. It is an injectable instance, not process-wide state.
//
// Queued emits are buffered and flushed after a quiescence window; bursts
// collapse to one event per unique (type, serialized payload) key, with
// duplicate-content events dropped. EmitNow bypasses the queue entirely.
// The pending queue is owned by a single goroutine fed over a channel.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Type]map[int]Handler
	nextID int

	// lifecycle orders queue sends against Close: a send happens only while
	// holding the read side with closed still false, so Close can never close
	// the channel under an in-flight send.
	lifecycle sync.RWMutex
	window    time.Duration
	pending   chan envelope
	done      chan struct{}
	closed    atomic.Bool

	delivered atomic.Int64

	logger  providers.Logger
	metrics providers.MetricsProviderInterface
}

func NewBus(conf *structures.Config, logger providers.Logger, metrics providers.MetricsProviderInterface) *Bus {
	b := &Bus{
		subs:    make(map[Type]map[int]Handler),
		window:  conf.Events.DebounceWindow,
		pending: make(chan envelope, conf.Events.QueueSize),
		done:    make(chan struct{}),
		logger:  logger,
		metrics: metrics,
	}
	go b.run()
	return b
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe handle.
func (b *Bus) Subscribe(t Type, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[t] == nil {
		b.subs[t] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[t][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[t], id)
	}
}

// Emit queues a payload for debounced delivery.
func (b *Bus) Emit(t Type, p Payload) {
	b.lifecycle.RLock()
	if b.closed.Load() {
		b.lifecycle.RUnlock()
		return
	}
	b.metrics.IncEventsEmitted(string(t), "queued")
	select {
	case b.pending <- envelope{t: t, p: p}:
		b.lifecycle.RUnlock()
	default:
		// Dispatch outside the lock: a handler may emit again.
		b.lifecycle.RUnlock()
		b.logger.Warnf(providers.TypeEvent, "Event queue full, delivering %s synchronously", t)
		b.dispatch(t, p)
	}
}

// EmitNow delivers synchronously within the caller's turn, bypassing the
// debounce queue. For timing-sensitive flows only.
func (b *Bus) EmitNow(t Type, p Payload) {
	b.metrics.IncEventsEmitted(string(t), "immediate")
	b.dispatch(t, p)
}

// Delivered reports the number of handler deliveries so far.
func (b *Bus) Delivered() int64 {
	return b.delivered.Load()
}

// Close drains the queue, flushes pending events and stops the debouncer.
func (b *Bus) Close() {
	b.lifecycle.Lock()
	if !b.closed.CompareAndSwap(false, true) {
		b.lifecycle.Unlock()
		return
	}
	close(b.pending)
	b.lifecycle.Unlock()
	<-b.done
}

func (b *Bus) run() {
	defer close(b.done)

	var timer *time.Timer
	var timerC <-chan time.Time
	buffer := make(map[string]envelope)
	var order []string

	flush := func() {
		for _, key := range order {
			env := buffer[key]
			b.dispatch(env.t, env.p)
		}
		buffer = make(map[string]envelope)
		order = order[:0]
	}

	for {
		select {
		case env, ok := <-b.pending:
			if !ok {
				if timer != nil {
					timer.Stop()
				}
				flush()
				return
			}
			key := dedupKey(env)
			if _, dup := buffer[key]; dup {
				b.metrics.IncEventsDropped()
			} else {
				buffer[key] = env
				order = append(order, key)
			}
			if timer == nil {
				timer = time.NewTimer(b.window)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timerC:
					default:
					}
				}
				timer.Reset(b.window)
			}
		case <-timerC:
			flush()
			timer = nil
			timerC = nil
		}
	}
}

// dedupKey identifies duplicate-content events: same type, same serialized
// payload.
func dedupKey(env envelope) string {
	data, err := json.Marshal(env.p)
	if err != nil {
		return string(env.t)
	}
	return string(env.t) + "|" + string(data)
}

func (b *Bus) dispatch(t Type, p Payload) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[t]))
	for _, h := range b.subs[t] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.safeCall(t, h, p)
	}
}

func (b *Bus) safeCall(t Type, h Handler, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf(providers.TypeEvent, "Handler for %s panicked: %v", t, r)
		}
	}()
	h(p)
	b.delivered.Inc()
	b.metrics.IncEventsDelivered()
}
