// Package publisher delivers converted messages to their per-sensor
// NATS subjects. One sink is created per sensor at session start and
// closed when the session ends.
package publisher

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"sensor-replay/pkg/dispatch"
	"sensor-replay/pkg/messages"
	"sensor-replay/pkg/utils"
)

// Sink extends the dispatcher-facing publish contract with lifecycle.
type Sink interface {
	dispatch.Sink
	Close()
}

type NatsSink struct {
	nc      *nats.Conn
	subject string
}

func NewNatsSink(nc *nats.Conn, topic string) *NatsSink {
	return &NatsSink{nc: nc, subject: SubjectFromTopic(topic)}
}

// SubjectFromTopic maps a ROS-style topic name like "/a2d2/camera"
// onto a NATS subject "a2d2.camera".
func SubjectFromTopic(topic string) string {
	subject := make([]rune, 0, len(topic))
	for i, r := range topic {
		if r == '/' {
			if i == 0 {
				continue
			}
			subject = append(subject, '.')
			continue
		}
		subject = append(subject, r)
	}
	return string(subject)
}

func (s *NatsSink) Publish(msg *messages.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encoding message for subject '%s': %w", s.subject, err)
	}
	return s.nc.Publish(s.subject, data)
}

func (s *NatsSink) Close() {
	// The connection is shared by all sinks of the session and owned
	// by the daemon; nothing to release per sink.
}

// Registry maps sensor ids to their session sinks.
type Registry struct {
	sinks utils.RWMutexMap[string, Sink]
}

func (r *Registry) Add(sensor string, sink Sink) {
	r.sinks.Store(sensor, sink)
}

func (r *Registry) Get(sensor string) (Sink, bool) {
	return r.sinks.Load(sensor)
}

// CloseAll closes every registered sink and empties the registry.
func (r *Registry) CloseAll() {
	r.sinks.Range(func(sensor string, sink Sink) bool {
		sink.Close()
		r.sinks.Delete(sensor)
		return true
	})
}
