// Package consumer implements the abstract Message Consumer (C5): connect,
// channel, prefetch, dispatch, ack/nack, status — generalized from the
// teacher's single-queue AMQP consumer
// (worker/internal/delivery/amqp/consumer.go) into a reusable base that
// the Event Consumer (C6) and Interaction Consumer (C7) configure with
// their own queue name, prefetch, and HandleFunc.
package consumer

import (
	"context"

	"github.com/sentinel-synth/synthcore/internal/domain"
)

// HandleFunc processes one raw message body and returns the ack decision
// the dispatch loop should act on. ctx carries the Supervisor's
// cancellation token; handlers must not ack once it is done.
type HandleFunc func(ctx context.Context, body []byte) domain.AckDecision
