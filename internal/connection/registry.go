package connection

import (
	"fmt"
	"regexp"
	"sync"
)

var topicPattern = regexp.MustCompile(`^([\w-]+:?)*\w$`)

// ValidateTopic checks that topic is a usable gate channel id.
func ValidateTopic(topic string) error {
	if !topicPattern.MatchString(topic) {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return nil
}

// Registry is the Subscription Registry: the ordered set of topics the
// application wants live updates for. Order is first-subscribe order and
// is the replay order after a reconnect.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	topics map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		topics: make(map[string]struct{}),
	}
}

// Add records topic. Returns false if it was already present.
func (r *Registry) Add(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.topics[topic]; ok {
		return false
	}
	r.topics[topic] = struct{}{}
	r.order = append(r.order, topic)
	return true
}

// Remove forgets topic. Returns false if it was not present.
func (r *Registry) Remove(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.topics[topic]; !ok {
		return false
	}
	delete(r.topics, topic)
	for i, t := range r.order {
		if t == topic {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Has reports whether topic is wanted.
func (r *Registry) Has(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.topics[topic]
	return ok
}

// Topics returns a copy of the wanted topics in subscribe order.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of wanted topics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Clear forgets every topic.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = nil
	r.topics = make(map[string]struct{})
}
