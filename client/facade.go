package client

import (
	"time"

	"github.com/duskline-im/client/crypto"
	"github.com/duskline-im/client/duskerr"
	"github.com/duskline-im/client/event"
	"github.com/duskline-im/client/message"
	"github.com/duskline-im/client/request"
	"github.com/duskline-im/client/secmem"
	"github.com/duskline-im/client/store"
	"github.com/duskline-im/client/wire"
)

// Client satisfies the narrow collaborator interfaces its request and
// message subcomponents borrow, with no adapter in between.
var (
	_ request.ClientFacade   = (*Client)(nil)
	_ message.SenderFacade   = (*Client)(nil)
	_ message.ReceiverFacade = (*Client)(nil)
)

// SendPacket is the single-writer entry point for everything that goes
// out over the wire: requests, heartbeats, and message parts. No lock
// is taken here; ordering is enforced by SendPacket only ever being
// called from the sender goroutine.
func (c *Client) SendPacket(kind wire.Kind, head *wire.Object, body []byte) error {
	sess := c.session.Get()
	if sess == nil {
		return duskerr.Transportf("SendPacket", "not connected")
	}
	var headBytes []byte
	if head != nil {
		encoded, err := wire.Encode(head)
		if err != nil {
			return err
		}
		headBytes = encoded
	}
	if err := sess.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return duskerr.Wrap(duskerr.Transport, "SendPacket", err)
	}
	pkt := &wire.Packet{Kind: kind, Head: headBytes, Body: body}
	if err := sess.WritePacket(pkt); err != nil {
		return duskerr.Wrap(duskerr.Transport, "SendPacket", err)
	}
	if kind == wire.KindMessage {
		c.metrics.ObserveResourceBytes(int64(len(body)))
	}
	return nil
}

func (c *Client) sendHeartbeat() {
	if err := c.SendPacket(wire.KindHeartbeat, nil, nil); err != nil {
		log.Debugf("client: heartbeat send failed: %v", err)
		return
	}
	c.lastSent.Set(time.Now())
	c.lastRecv.Set(time.Time{})
	c.metrics.IncHeartbeatSent()
}

// Storage returns the currently open store, or nil before login.
func (c *Client) Storage() *store.Store {
	return c.storeHandle.Get()
}

// PostEvent enqueues ev for asynchronous delivery to the registered
// event handler.
func (c *Client) PostEvent(ev event.Event) {
	c.dispatcher.Post(ev)
}

// SetStatus implements the Request/Sender/Receiver-facing half of the
// state-machine transition hook; collaborators that need to force a
// status change (rather than Client's own connect/reconnect machinery)
// go through here.
func (c *Client) SetStatus(status int) {
	c.setState(State(status))
}

// SetContactStatus updates the presence map and emits a ContactStatus
// event for the delta.
func (c *Client) SetContactStatus(contactID uint32, online bool) {
	c.contacts.Set(contactID, online)
	c.PostEvent(event.ContactStatus{ContactID: contactID, Online: online})
}

// StorageDir returns the directory new store files are created under.
func (c *Client) StorageDir() string {
	return c.cfg.StorageDir
}

// KeyPool returns the locked-memory arena message keys are allocated
// from. May be nil if the arena could not be locked at construction
// time; Sender/Receiver fall back to plain heap-allocated keys then.
func (c *Client) KeyPool() *secmem.Pool {
	return c.keyPool
}

// OwnPublicKey and OwnPrivateKey return this account's key pair, set at
// CreateAccount or Login completion.
func (c *Client) OwnPublicKey() *crypto.PublicKey   { return c.ownPub.Get() }
func (c *Client) OwnPrivateKey() *crypto.PrivateKey { return c.ownPriv.Get() }

// ContactPublicKey looks up a known contact's cached public key by
// their remote account id.
func (c *Client) ContactPublicKey(accountID uint32) (*crypto.PublicKey, bool) {
	st := c.storeHandle.Get()
	if st == nil {
		return nil, false
	}
	n, err := st.GetContactByAccountID(accountID)
	if err != nil || n == nil {
		return nil, false
	}
	return decodeContactPublicKey(n)
}

// SenderPublicKey resolves the public key to verify a message's
// signature against: this account's own key if the message originated
// from self (the archive copy case), otherwise the sending contact's
// cached key.
func (c *Client) SenderPublicKey(accountID uint32) (*crypto.PublicKey, bool) {
	if accountID == c.accountID.Get() {
		if pub := c.ownPub.Get(); pub != nil {
			return pub, true
		}
		return nil, false
	}
	return c.ContactPublicKey(accountID)
}

func decodeContactPublicKey(n *store.Node) (*crypto.PublicKey, bool) {
	if len(n.Head) == 0 {
		return nil, false
	}
	v, err := wire.Decode(n.Head)
	if err != nil {
		return nil, false
	}
	obj, ok := v.(*wire.Object)
	if !ok {
		return nil, false
	}
	pub := decodePublicKey(obj)
	return pub, pub != nil
}

func decodePublicKey(obj *wire.Object) *crypto.PublicKey {
	if obj == nil {
		return nil
	}
	e, _ := obj.GetString("e")
	n, _ := obj.GetString("n")
	size, _ := obj.GetInt32("size")
	return &crypto.PublicKey{E: e, N: n, Size: int(size)}
}

func decodePrivateKey(obj *wire.Object) *crypto.PrivateKey {
	if obj == nil {
		return nil
	}
	a, _ := obj.GetString("a")
	b, _ := obj.GetString("b")
	cc, _ := obj.GetString("c")
	d, _ := obj.GetString("d")
	p, _ := obj.GetString("p")
	q, _ := obj.GetString("q")
	size, _ := obj.GetInt32("size")
	return &crypto.PrivateKey{A: a, B: b, C: cc, D: d, P: p, Q: q, Size: int(size)}
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
