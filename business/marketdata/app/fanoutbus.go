package app

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/cryptoproxy/mktproxy/business/marketdata/app"

// DefaultBusCapacity is the recommended per-receiver buffer depth.
const DefaultBusCapacity = 65536

// Receiver is a single sink's handle into the Bus: one buffered channel
// plus a monotonically increasing loss counter for frames the Bus had
// to drop because this receiver fell behind.
type Receiver struct {
	name string
	ch   chan []byte
	mu   sync.Mutex
	loss atomic.Uint64
}

// Frames returns the channel sinks read published frames from.
func (r *Receiver) Frames() <-chan []byte { return r.ch }

// Name is the sink identifier this receiver was registered under.
func (r *Receiver) Name() string { return r.name }

// Loss returns the number of frames dropped for this receiver so far.
func (r *Receiver) Loss() uint64 { return r.loss.Load() }

// Bus is a process-local multi-producer multi-consumer broadcast of
// frame bytes. Publish never blocks the producer: a receiver that falls
// behind has its oldest queued frame dropped to make room, and its loss
// counter increments. There is no cross-producer ordering guarantee;
// frames from one producer keep FIFO order on every receiver.
type Bus struct {
	mu        sync.RWMutex
	receivers map[string]*Receiver
	capacity  int

	dropped metric.Int64Counter
}

// NewBus creates a Bus whose receivers are each buffered to capacity
// frames.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultBusCapacity
	}
	meter := otel.Meter(meterName)
	dropped, _ := meter.Int64Counter(
		"fanout_bus_dropped_frames_total",
		metric.WithDescription("Frames dropped because a receiver's buffer was full"),
		metric.WithUnit("{frame}"),
	)
	return &Bus{
		receivers: make(map[string]*Receiver),
		capacity:  capacity,
		dropped:   dropped,
	}
}

// Subscribe registers a new receiver under name, replacing any previous
// receiver of the same name.
func (b *Bus) Subscribe(name string) *Receiver {
	r := &Receiver{name: name, ch: make(chan []byte, b.capacity)}
	b.mu.Lock()
	b.receivers[name] = r
	b.mu.Unlock()
	return r
}

// Unsubscribe removes a receiver; it stops receiving further frames.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	delete(b.receivers, name)
	b.mu.Unlock()
}

// Publish fans frame out to every current receiver. It never blocks:
// a full receiver has its oldest entry dropped before the new frame is
// enqueued.
func (b *Bus) Publish(frame []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, r := range b.receivers {
		r.send(frame, b.dropped)
	}
}

func (r *Receiver) send(frame []byte, dropped metric.Int64Counter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		select {
		case r.ch <- frame:
			return
		default:
			select {
			case <-r.ch:
				r.loss.Add(1)
				if dropped != nil {
					dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("receiver", r.name)))
				}
			default:
				// another goroutine drained concurrently; retry send
			}
		}
	}
}

// LossSnapshot returns the current loss count for every registered
// receiver, used by the Supervisor's periodic loss-counter logging.
func (b *Bus) LossSnapshot() map[string]uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]uint64, len(b.receivers))
	for name, r := range b.receivers {
		out[name] = r.Loss()
	}
	return out
}
