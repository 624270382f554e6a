package dispatch_test

import (
	"fmt"
	"sensor-replay/pkg/dispatch"
	"sensor-replay/pkg/messages"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink records delivered messages tagged with the sensor name.
type recordingSink struct {
	mu     *sync.Mutex
	out    *[]string
	sensor string
	fail   bool
}

func (s *recordingSink) Publish(msg *messages.Message) error {
	if s.fail {
		return fmt.Errorf("sink unavailable")
	}
	s.mu.Lock()
	*s.out = append(*s.out, s.sensor)
	s.mu.Unlock()
	return nil
}

type harness struct {
	d   *dispatch.Dispatcher
	mu  sync.Mutex
	out []string
}

func newHarness(streaming []string, telemetry []string) *harness {
	h := &harness{d: dispatch.NewDispatcher()}
	for _, s := range streaming {
		h.d.AddSensor(s, false, &recordingSink{mu: &h.mu, out: &h.out, sensor: s})
	}
	for _, s := range telemetry {
		h.d.AddSensor(s, true, &recordingSink{mu: &h.mu, out: &h.out, sensor: s})
	}
	return h
}

func (h *harness) published() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.out...)
}

func msg(ts int64) *messages.Message {
	return &messages.Message{Kind: messages.KindBus, Timestamp: ts, FrameID: "map", Bus: &messages.BusRecord{}}
}

func TestRoundRobinInterleaving(t *testing.T) {
	t.Parallel()
	h := newHarness([]string{"A", "B", "C"}, nil)

	// A floods first; B and C only submit once each. Fairness must
	// hold A's second message until B and C have had their turn.
	h.d.Submit("A", msg(1))
	assert.Equal(t, []string{"A"}, h.published())

	h.d.Submit("A", msg(2))
	// A is in the skip list and B, C are still waiting: no-op step
	assert.Equal(t, []string{"A"}, h.published())
	assert.Equal(t, 1, h.d.QueuedMessages("A"))

	h.d.Submit("B", msg(3))
	assert.Equal(t, []string{"A", "B"}, h.published())

	h.d.Submit("C", msg(4))
	assert.Equal(t, []string{"A", "B", "C"}, h.published())

	// full cycle complete, the oldest skip entry was evicted, so A's
	// buffered message goes out on the next scheduling step
	h.d.Submit("B", msg(5))
	assert.Equal(t, []string{"A", "B", "C", "A"}, h.published())
}

func TestFairnessCycleProperty(t *testing.T) {
	t.Parallel()
	sensors := []string{"A", "B", "C", "D"}
	h := newHarness(sensors, nil)

	// every sensor always has a ready message
	for round := 0; round < 12; round++ {
		h.d.Submit(sensors[round%len(sensors)], msg(int64(round)))
	}

	out := h.published()
	require.NotEmpty(t, out)
	// between two consecutive dispatches of the same sensor, every
	// other sensor must have been dispatched exactly once
	last := make(map[string]int)
	for i, sensor := range out {
		if prev, seen := last[sensor]; seen {
			window := make(map[string]bool)
			for _, other := range out[prev+1 : i] {
				window[other] = true
			}
			for _, other := range sensors {
				if other == sensor {
					continue
				}
				require.True(t, window[other],
					"sensor %s dispatched twice (positions %d, %d) before %s had a turn: %v",
					sensor, prev, i, other, out)
			}
		}
		last[sensor] = i
	}
}

func TestTelemetryDoesNotBlockRotation(t *testing.T) {
	t.Parallel()
	h := newHarness([]string{"cam"}, []string{"bus"})

	// telemetry may be served on consecutive turns
	h.d.Submit("bus", msg(1))
	h.d.Submit("bus", msg(2))
	h.d.Submit("bus", msg(3))
	assert.Equal(t, []string{"bus", "bus", "bus"}, h.published())

	// and the streaming sensor still gets through
	h.d.Submit("cam", msg(4))
	assert.Contains(t, h.published(), "cam")
}

func TestTelemetryNeverEntersSkipList(t *testing.T) {
	t.Parallel()
	h := newHarness([]string{"A"}, []string{"bus"})

	h.d.Submit("A", msg(1))
	h.d.Submit("bus", msg(2))
	h.d.Submit("bus", msg(3))
	h.d.Submit("A", msg(4))

	out := h.published()
	assert.Equal(t, 4, len(out))
	assert.Equal(t, 2, countOf(out, "bus"))
	assert.Equal(t, 2, countOf(out, "A"))
}

func TestTelemetryOnlySteadyState(t *testing.T) {
	t.Parallel()
	// Once all streaming sensors finish, remaining telemetry sensors
	// degenerate to a plain cyclic scan: every submission publishes.
	h := newHarness([]string{"cam"}, []string{"bus1", "bus2"})

	h.d.Submit("cam", msg(1))
	h.d.SetInactive("cam")
	require.False(t, h.d.Alive("cam"))

	for i := int64(2); i <= 9; i++ {
		if i%2 == 0 {
			h.d.Submit("bus1", msg(i))
		} else {
			h.d.Submit("bus2", msg(i))
		}
	}
	out := h.published()
	assert.Equal(t, 9, len(out), "every telemetry submission must dispatch: %v", out)
	assert.Equal(t, 4, countOf(out, "bus1"))
	assert.Equal(t, 4, countOf(out, "bus2"))
}

func TestFlushDrainsEverything(t *testing.T) {
	t.Parallel()
	h := newHarness([]string{"A", "B"}, nil)

	// build a backlog: A floods while B stays silent, so most of A's
	// messages stay queued behind the fairness rule
	for i := int64(0); i < 10; i++ {
		h.d.Submit("A", msg(i))
	}
	h.d.Submit("B", msg(100))
	h.d.SetInactive("A")
	h.d.SetInactive("B")

	h.d.Flush()
	assert.Equal(t, 0, h.d.QueuedMessages("A"))
	assert.Equal(t, 0, h.d.QueuedMessages("B"))
	assert.Equal(t, 11, len(h.published()))
}

func TestFlushEmptyQueuesTerminates(t *testing.T) {
	t.Parallel()
	h := newHarness([]string{"A", "B", "C"}, nil)
	h.d.Flush() // must return immediately with nothing queued
	assert.Empty(t, h.published())

	empty := dispatch.NewDispatcher()
	empty.Flush() // no sensors at all
}

func TestExactlyOnceUnderConcurrency(t *testing.T) {
	t.Parallel()
	sensors := []string{"s0", "s1", "s2", "s3"}
	h := newHarness(sensors, nil)

	const perSensor = 50
	var wg sync.WaitGroup
	for _, sensor := range sensors {
		wg.Add(1)
		go func(sensor string) {
			defer wg.Done()
			for i := 0; i < perSensor; i++ {
				h.d.Submit(sensor, msg(int64(i)))
			}
			h.d.SetInactive(sensor)
		}(sensor)
	}
	wg.Wait()
	h.d.Flush()

	out := h.published()
	require.Equal(t, len(sensors)*perSensor, len(out))
	for _, sensor := range sensors {
		assert.Equal(t, perSensor, countOf(out, sensor))
	}
}

func TestPublishErrorDoesNotStall(t *testing.T) {
	t.Parallel()
	h := &harness{d: dispatch.NewDispatcher()}
	h.d.AddSensor("bad", false, &recordingSink{mu: &h.mu, out: &h.out, sensor: "bad", fail: true})
	h.d.AddSensor("good", false, &recordingSink{mu: &h.mu, out: &h.out, sensor: "good"})

	h.d.Submit("bad", msg(1))
	h.d.Submit("good", msg(2))
	h.d.SetInactive("bad")
	h.d.SetInactive("good")
	h.d.Flush()

	// the failed publish consumed the message, the good one delivered
	assert.Equal(t, []string{"good"}, h.published())
	assert.Equal(t, 0, h.d.QueuedMessages("bad"))
}

func TestSubmitUnknownSensorIsDropped(t *testing.T) {
	t.Parallel()
	h := newHarness([]string{"A"}, nil)
	h.d.Submit("ghost", msg(1))
	assert.Empty(t, h.published())
}

func countOf(list []string, want string) int {
	n := 0
	for _, s := range list {
		if s == want {
			n++
		}
	}
	return n
}
