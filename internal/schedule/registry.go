package schedule

import (
	"errors"
	"fmt"

	"github.com/sweeney/beegreen/internal/mqtt"
)

// ErrCapacity is returned when every slot is enabled and the caller asked
// for a new one.
var ErrCapacity = errors.New("schedule: all slots in use")

// Registry is the client's cache of the device's slots. It publishes edits
// and replaces its contents whenever the device reports a snapshot.
// Not safe for concurrent use.
type Registry struct {
	pub          mqtt.Publisher
	setTopic     string
	requestTopic string
	qos          byte

	slots [Slots]Schedule
}

// NewRegistry returns a Registry with every slot empty.
func NewRegistry(pub mqtt.Publisher, setTopic, requestTopic string) *Registry {
	r := &Registry{pub: pub, setTopic: setTopic, requestTopic: requestTopic, qos: mqtt.AtLeastOnce}
	r.clear()
	return r
}

func (r *Registry) clear() {
	for i := range r.slots {
		r.slots[i] = Empty(i)
	}
}

// All returns every slot, ordered by index.
func (r *Registry) All() []Schedule {
	out := make([]Schedule, Slots)
	copy(out, r.slots[:])
	return out
}

// Enabled returns the enabled slots, ordered by index.
func (r *Registry) Enabled() []Schedule {
	var out []Schedule
	for _, s := range r.slots {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Get returns one slot.
func (r *Registry) Get(index int) (Schedule, error) {
	if index < 0 || index >= Slots {
		return Schedule{}, &ValidationError{Field: "index", Value: index}
	}
	return r.slots[index], nil
}

// FreeIndex returns the lowest disabled slot.
func (r *Registry) FreeIndex() (int, error) {
	for i, s := range r.slots {
		if !s.Enabled {
			return i, nil
		}
	}
	return 0, ErrCapacity
}

// NewDraft returns default values placed in the first free slot.
func (r *Registry) NewDraft() (Schedule, error) {
	i, err := r.FreeIndex()
	if err != nil {
		return Schedule{}, err
	}
	return Draft(i), nil
}

// Load replaces the cache with previously persisted slots. Invalid entries
// are skipped; missing slots are left empty.
func (r *Registry) Load(cached []Schedule) int {
	r.clear()
	n := 0
	for _, s := range cached {
		if s.Validate(false) != nil {
			continue
		}
		r.slots[s.Index] = s
		n++
	}
	return n
}

// Save publishes s and updates the cache. With Index == AutoIndex the first
// free slot is used; the chosen schedule is returned. Nothing is published
// or cached if validation, capacity or the connection check fails.
func (r *Registry) Save(s Schedule) (Schedule, error) {
	if err := s.Validate(true); err != nil {
		return Schedule{}, err
	}
	if s.Index == AutoIndex {
		i, err := r.FreeIndex()
		if err != nil {
			return Schedule{}, err
		}
		s.Index = i
	}
	if err := r.publish(r.setTopic, Encode(s)); err != nil {
		return Schedule{}, err
	}
	r.slots[s.Index] = s
	return s, nil
}

// Delete clears a slot on the device by saving it zeroed.
func (r *Registry) Delete(index int) error {
	if index < 0 || index >= Slots {
		return &ValidationError{Field: "index", Value: index}
	}
	if err := r.publish(r.setTopic, EncodeDelete(index)); err != nil {
		return err
	}
	r.slots[index] = Empty(index)
	return nil
}

// RequestSnapshot asks the device to publish its slots.
func (r *Registry) RequestSnapshot() error {
	return r.publish(r.requestTopic, "")
}

// ApplySnapshot decodes a snapshot and replaces the whole cache with it.
// Slots the device did not report become empty. On a decode error the
// cache is left unchanged.
func (r *Registry) ApplySnapshot(payload []byte) ([]Schedule, error) {
	list, err := DecodeSnapshot(payload)
	if err != nil {
		return nil, err
	}
	r.clear()
	for _, s := range list {
		r.slots[s.Index] = s
	}
	return r.All(), nil
}

func (r *Registry) publish(topic, payload string) error {
	if !r.pub.IsConnected() {
		return mqtt.ErrNotConnected
	}
	if err := r.pub.Publish(topic, []byte(payload), r.qos); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
