// Package gochannel carries pipeline events inside one process. Every
// subscriber of the pipeline topic gets its own copy of each event, so cache
// invalidation and automations both observe every stage change.
package gochannel

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// DefaultBuffer is the number of events queued per subscriber before a
// publishing engine call blocks.
const DefaultBuffer = 1000

var ErrInvalidBuffer = errors.New("in-memory event buffer must be positive")

// CreateChannel returns one GoChannel serving as both publisher and subscriber.
// Events published before a subscriber registers are dropped, so handlers must
// be attached before the engine starts serving.
func CreateChannel(logger watermill.LoggerAdapter, buffer int64) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	if buffer <= 0 {
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidBuffer, buffer)
	}

	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            buffer,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)

	return pubSub, pubSub, nil
}
