// Package dispatch requests background recomputation of entity data
// packages.
//
// A Dispatcher only signals that a refresh is wanted. The worker that
// receives the request does the recomputation and writes the result back to
// the store, out of band. Sending a request more than once is harmless;
// callers are expected to debounce requests, but duplicates caused by races
// are tolerated.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/gammazero/channelqueue"
	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"
	"github.com/ipni/go-freshcache/dispatch/message"
	"github.com/ipni/go-freshcache/model"
)

var log = logging.Logger("dispatch")

// ErrClosed is returned by Close when the Dispatcher is already closed.
var ErrClosed = errors.New("dispatcher closed")

// MetadataLoader looks up the credential for an entity when the caller does
// not supply one. A nil Metadata with nil error means the entity is unknown.
type MetadataLoader interface {
	GetMetadata(ctx context.Context, entityID string) (*model.Metadata, error)
}

// Dispatcher sends refresh requests to one or more Senders.
type Dispatcher struct {
	meta    MetadataLoader
	senders []Sender
	opts    config

	mu     sync.RWMutex
	closed bool
	queue  *channelqueue.ChannelQueue[message.Message]
	done   chan struct{}
}

// New creates a Dispatcher that publishes to the given senders.
func New(meta MetadataLoader, senders []Sender, options ...Option) (*Dispatcher, error) {
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, errors.New("nil metadata loader")
	}
	var live []Sender
	for _, s := range senders {
		if s != nil {
			live = append(live, s)
		}
	}
	if len(live) == 0 {
		return nil, errors.New("no senders")
	}

	d := &Dispatcher{
		meta:    meta,
		senders: live,
		opts:    opts,
	}

	if opts.async {
		d.queue = channelqueue.New[message.Message](-1)
		d.done = make(chan struct{})
		go d.run()
	}

	return d, nil
}

// RequestRefresh asks for the package of the specified entity to be
// recomputed. If credential is empty, the entity's metadata is loaded to get
// one. Returns false if there is no credential for the entity, or if the
// request could not be sent. A false return is never an error for the
// caller; it only means no refresh was scheduled.
func (d *Dispatcher) RequestRefresh(ctx context.Context, entityID, credential string) bool {
	if credential == "" {
		md, err := d.meta.GetMetadata(ctx, entityID)
		if err != nil {
			log.Errorw("Cannot load entity metadata", "err", err, "entity", entityID)
			return false
		}
		if md == nil || md.Credential == "" {
			log.Infow("No credential for entity, cannot request refresh", "entity", entityID)
			return false
		}
		credential = md.Credential
	}

	msg := message.Message{
		EntityID:   entityID,
		Credential: credential,
	}

	if d.queue != nil {
		return d.enqueue(msg)
	}
	return d.send(ctx, msg)
}

func (d *Dispatcher) enqueue(msg message.Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		log.Warnw("Refresh requested after close", "entity", msg.EntityID)
		return false
	}
	d.queue.In() <- msg
	return true
}

func (d *Dispatcher) send(ctx context.Context, msg message.Message) bool {
	sent, err := Send(ctx, msg, d.senders...)
	if err != nil {
		log.Warnw("Failed to send refresh request", "err", err, "entity", msg.EntityID, "sent", sent)
	}
	if sent == 0 {
		return false
	}
	log.Debugw("Sent refresh request", "entity", msg.EntityID)
	return true
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue.Out() {
		ctx := context.Background()
		var cancel context.CancelFunc
		if d.opts.sendTimeout != 0 {
			ctx, cancel = context.WithTimeout(ctx, d.opts.sendTimeout)
		}
		d.send(ctx, msg)
		if cancel != nil {
			cancel()
		}
	}
}

// Pending returns the number of queued requests not yet sent. Always 0 for a
// synchronous Dispatcher.
func (d *Dispatcher) Pending() int {
	if d.queue == nil {
		return 0
	}
	return d.queue.Len()
}

// Close sends any queued requests, then closes all senders.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	if d.queue != nil {
		close(d.queue.In())
	}
	d.mu.Unlock()

	if d.done != nil {
		<-d.done
	}

	var errs error
	for _, s := range d.senders {
		if err := s.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}
