package bus

import (
	"context"
	"log"
	"sync"
)

const DefaultBufSize = 100

// AlertBus fans alerts out to named subscribers. Publish never blocks: if
// the buffer is full the alert is dropped and logged, so a slow subscriber
// cannot stall a capture tick.
type AlertBus struct {
	alerts chan Alert

	mu          sync.RWMutex
	subscribers map[string]func(Alert)
}

func NewAlertBus(bufSize int) *AlertBus {
	if bufSize <= 0 {
		bufSize = DefaultBufSize
	}
	return &AlertBus{
		alerts:      make(chan Alert, bufSize),
		subscribers: make(map[string]func(Alert)),
	}
}

func (b *AlertBus) Subscribe(name string, fn func(Alert)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[name] = fn
}

func (b *AlertBus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, name)
}

func (b *AlertBus) Publish(alert Alert) {
	select {
	case b.alerts <- alert:
	default:
		log.Printf("[bus] alert buffer full, dropping %s alert: %s", alert.Kind, alert.Message)
	}
}

// Dispatch delivers alerts to subscribers until ctx is cancelled. Subscriber
// panics are contained so one bad sink cannot kill delivery.
func (b *AlertBus) Dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-b.alerts:
			b.mu.RLock()
			subs := make([]func(Alert), 0, len(b.subscribers))
			for _, fn := range b.subscribers {
				subs = append(subs, fn)
			}
			b.mu.RUnlock()

			for _, fn := range subs {
				deliver(fn, alert)
			}
		}
	}
}

func deliver(fn func(Alert), alert Alert) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[bus] subscriber panic: %v", r)
		}
	}()
	fn(alert)
}
