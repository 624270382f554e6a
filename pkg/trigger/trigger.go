// Package trigger listens for replay request documents on the message
// bus and hands them to the session handler one at a time. A request
// that arrives while a session is running waits in the subscription
// channel; a request that fails validation is logged and dropped.
package trigger

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const pendingRequests = 64

// Handler runs one replay session to completion.
type Handler func(ctx context.Context, raw []byte) error

// CreateTrigger subscribes to the request subject and starts the
// serving goroutine. The subscription is dropped when ctx ends.
func CreateTrigger(ctx context.Context, wg *sync.WaitGroup, nc *nats.Conn, subject string, handler Handler) error {
	ch := make(chan *nats.Msg, pendingRequests)
	sub, err := nc.ChanSubscribe(subject, ch)
	if err != nil {
		return err
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if err := sub.Unsubscribe(); err != nil {
				logrus.Errorf("Error unsubscribing from '%s': %v", subject, err)
			}
		}()
		Serve(ctx, ch, handler)
	}()
	return nil
}

// Serve drains request messages until ctx ends. Sessions run
// back to back, never concurrently.
func Serve(ctx context.Context, ch <-chan *nats.Msg, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			logrus.WithFields(logrus.Fields{
				"Subject": msg.Subject,
				"Bytes":   len(msg.Data),
			}).Infof("Received replay request")
			if err := handler(ctx, msg.Data); err != nil {
				logrus.Errorf("Rejected replay request: %v", err)
			}
		}
	}
}
