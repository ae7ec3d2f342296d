package transferimpl

import (
	"github.com/hannahhoward/go-pubsub"
	"golang.org/x/xerrors"

	"github.com/dataspace-labs/go-transfermgr/transfer"
)

type internalEvent struct {
	evt   transfer.Event
	state transfer.TransferProcess
}

func eventDispatcher(evt pubsub.Event, subscriberFn pubsub.SubscriberFn) error {
	ie, ok := evt.(internalEvent)
	if !ok {
		return xerrors.New("wrong type of event")
	}
	cb, ok := subscriberFn.(transfer.Subscriber)
	if !ok {
		return xerrors.New("wrong type of callback")
	}
	cb(ie.evt, ie.state)
	return nil
}

// SubscribeToEvents registers a subscriber that is called for every process
// lifecycle event until the returned unsubscribe function is called.
// Subscribers run on the goroutine that produced the event and must not
// block.
func (m *Manager) SubscribeToEvents(subscriber transfer.Subscriber) transfer.Unsubscribe {
	return transfer.Unsubscribe(m.subscribers.Subscribe(subscriber))
}
