// Package dispatch interleaves message delivery across all sensors of
// a session. Sensor workers submit converted messages through a single
// mutex-funnelled scheduling step: each submission appends to the
// sensor's private queue, then advances a shared round-robin cursor to
// pick at most one queued message to publish. A skip list tracks which
// sensors already had a turn in the current fairness cycle so a sensor
// cannot be served twice while another live streaming sensor is still
// waiting. Telemetry sensors are exempt: they are high-frequency and
// cheap, and must not stall rotation of scarcer image and point-cloud
// streams.
package dispatch

import (
	"sync"

	"github.com/sirupsen/logrus"

	"sensor-replay/pkg/messages"
)

// Sink delivers one published message for a sensor.
type Sink interface {
	Publish(msg *messages.Message) error
}

type sensorState struct {
	queue     []*messages.Message
	active    bool
	telemetry bool
	sink      Sink
}

func (s *sensorState) alive() bool {
	return len(s.queue) > 0 || s.active
}

type Dispatcher struct {
	mu     sync.Mutex
	order  []string
	states map[string]*sensorState
	cursor int
	skip   []string
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		states: make(map[string]*sensorState),
	}
}

// AddSensor registers a sensor before any worker starts. Sensors are
// scheduled in registration order.
func (d *Dispatcher) AddSensor(sensor string, telemetry bool, sink Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.states[sensor]; exists {
		return
	}
	d.order = append(d.order, sensor)
	d.states[sensor] = &sensorState{
		active:    true,
		telemetry: telemetry,
		sink:      sink,
	}
}

// SetInactive marks a sensor's manifest as exhausted. Queued messages
// that remain are delivered by later submissions or the final flush.
func (d *Dispatcher) SetInactive(sensor string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if state, ok := d.states[sensor]; ok {
		state.active = false
	}
}

// Alive reports whether a sensor still has queued or upcoming data.
func (d *Dispatcher) Alive(sensor string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	state, ok := d.states[sensor]
	return ok && state.alive()
}

// QueuedMessages returns the number of buffered messages for a sensor.
func (d *Dispatcher) QueuedMessages(sensor string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if state, ok := d.states[sensor]; ok {
		return len(state.queue)
	}
	return 0
}

// Submit enqueues a message for a sensor and runs one scheduling step.
// At most one message (possibly a different sensor's) is published per
// call; if no sensor has a ready message the call is a no-op and the
// backlog drains on later submissions or the final flush.
func (d *Dispatcher) Submit(sensor string, msg *messages.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, ok := d.states[sensor]
	if !ok {
		logrus.Errorf("Dropping message for unregistered sensor '%s'", sensor)
		return
	}
	state.queue = append(state.queue, msg)

	selected, out := d.rotate()
	if out != nil {
		d.publish(selected, out)
		if !d.states[selected].telemetry {
			d.markServed(selected)
		}
	}

	// Rotating eviction: once every live streaming sensor has had a
	// turn, free the oldest slot instead of resetting the whole cycle.
	if len(d.skip) >= d.liveStreamingSensors() && len(d.skip) > 0 {
		d.skip = d.skip[1:]
	}
}

// rotate advances the cursor over the full sensor list once, returning
// the first sensor allowed a turn that has a queued message.
func (d *Dispatcher) rotate() (string, *messages.Message) {
	n := len(d.order)
	for range d.order {
		d.cursor = (d.cursor + 1) % n
		candidate := d.order[d.cursor]
		if d.inSkip(candidate) && d.anyWaiting() {
			continue
		}
		state := d.states[candidate]
		if len(state.queue) > 0 {
			msg := state.queue[0]
			state.queue = state.queue[1:]
			return candidate, msg
		}
	}
	return "", nil
}

// anyWaiting reports whether some live streaming sensor has not yet
// had its turn this cycle; only then may a skip-listed sensor be
// passed over.
func (d *Dispatcher) anyWaiting() bool {
	for sensor, state := range d.states {
		if !state.telemetry && state.alive() && !d.inSkip(sensor) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) liveStreamingSensors() int {
	count := 0
	for _, state := range d.states {
		if !state.telemetry && state.alive() {
			count++
		}
	}
	return count
}

func (d *Dispatcher) inSkip(sensor string) bool {
	for _, s := range d.skip {
		if s == sensor {
			return true
		}
	}
	return false
}

func (d *Dispatcher) markServed(sensor string) {
	if !d.inSkip(sensor) {
		d.skip = append(d.skip, sensor)
	}
}

func (d *Dispatcher) publish(sensor string, msg *messages.Message) {
	state := d.states[sensor]
	if state.sink == nil {
		logrus.Errorf("No sink for sensor '%s', dropping message", sensor)
		return
	}
	if err := state.sink.Publish(msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"Sensor":    sensor,
			"Timestamp": msg.Timestamp,
		}).Errorf("Error publishing message: %v", err)
	}
}

// Flush drains every remaining queued message after all workers have
// stopped: repeated passes over the sensor list, one pop per non-empty
// queue per pass, until a pass pops nothing. No fairness bookkeeping
// applies, producers are gone and this is a deterministic drain.
func (d *Dispatcher) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.order)
	if n == 0 {
		return
	}
	for {
		popped := 0
		for range d.order {
			d.cursor = (d.cursor + 1) % n
			sensor := d.order[d.cursor]
			state := d.states[sensor]
			if len(state.queue) == 0 {
				continue
			}
			msg := state.queue[0]
			state.queue = state.queue[1:]
			d.publish(sensor, msg)
			popped++
		}
		if popped == 0 {
			return
		}
	}
}
