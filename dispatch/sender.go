package dispatch

import (
	"context"
	"errors"

	"github.com/hashicorp/go-multierror"
	"github.com/ipni/go-freshcache/dispatch/message"
)

// Sender is the interface for refresh request sender implementations.
type Sender interface {
	// Close closes the Sender.
	Close() error
	// Send sends the refresh request Message.
	Send(context.Context, message.Message) error
}

// Send sends a refresh request message to all senders. It returns the number
// of senders that accepted the message, and the errors from those that did
// not. A canceled context stops sending to the remaining senders.
func Send(ctx context.Context, msg message.Message, senders ...Sender) (int, error) {
	var errs error
	var sent int
	for _, sender := range senders {
		if sender == nil {
			continue
		}
		if err := sender.Send(ctx, msg); err != nil {
			errs = multierror.Append(errs, err)
			if errors.Is(err, context.Canceled) {
				return sent, errs
			}
			continue
		}
		sent++
	}
	return sent, errs
}
