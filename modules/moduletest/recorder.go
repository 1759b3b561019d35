package moduletest

import (
	"sync"

	"github.com/skekre98/contentagent/events"
)

// Recorder collects events delivered to a subscription.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *Recorder) add(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Last returns the most recent event, or a zero Event.
func (r *Recorder) Last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return events.Event{}
	}
	return r.events[len(r.events)-1]
}
