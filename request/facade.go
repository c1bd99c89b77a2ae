package request

import (
	"github.com/duskline-im/client/event"
	"github.com/duskline-im/client/store"
	"github.com/duskline-im/client/wire"
)

// ClientFacade is the narrow internal interface the Client exposes to
// Request: packet send, storage, event post, status transitions.
// message.Sender and message.Receiver use their own facade interfaces,
// whose method sets differ from this one. Everything else about Client
// stays private to it.
type ClientFacade interface {
	SendPacket(kind wire.Kind, head *wire.Object, body []byte) error
	Storage() *store.Store
	PostEvent(ev event.Event)
	SetStatus(status int)
	SetContactStatus(contactID uint32, online bool)
	StorageDir() string
}
