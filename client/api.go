package client

import (
	"fmt"
	"path/filepath"

	"github.com/duskline-im/client/crypto"
	"github.com/duskline-im/client/event"
	"github.com/duskline-im/client/message"
	"github.com/duskline-im/client/request"
	"github.com/duskline-im/client/store"
	"github.com/duskline-im/client/wire"
)

// storagePath mirrors the file path convention for freshly-created
// stores: {storage_dir}/{sha256hex(label)}.store.
func (c *Client) storagePath(label string) string {
	return filepath.Join(c.cfg.StorageDir, crypto.SHA256SumHex([]byte(label))+".store")
}

// CreateAccount generates a fresh RSA key pair, sends a CreateAccount
// request with the caller's label and find-by preferences, and, once
// the server assigns an account id and password, provisions a local
// store file under storagePassword. Non-blocking: the outcome, success
// or failure, arrives through cb.
func (c *Client) CreateAccount(label string, findByLabel, findByPhone bool, storagePassword string, cb request.Callback) error {
	if c.getState() != StateSecure {
		return fmt.Errorf("client: create_account requires Secure state, have %s", c.getState())
	}
	pub, priv, err := crypto.GenerateKeyPair(2048)
	if err != nil {
		return err
	}

	head := wire.NewObject().
		Set("label", label).
		Set("findByLabel", boolToInt32(findByLabel)).
		Set("findByPhone", boolToInt32(findByPhone))

	id := crypto.MustNewID()
	r := request.New(id, request.CreateAccount, head, cb)
	c.pendingCreates.Set(id, &pendingCreate{
		label:       label,
		password:    storagePassword,
		findByLabel: findByLabel,
		findByPhone: findByPhone,
		pub:         pub,
		priv:        priv,
	})
	c.tracker.Add(r)
	c.wakeSender()
	return nil
}

func (c *Client) finishCreateAccount(r *request.Request) {
	pc, ok := c.pendingCreates.Get(r.ID)
	if !ok {
		return
	}
	c.pendingCreates.Delete(r.ID)
	if r.Status != request.Completed {
		return
	}

	accountID, _ := r.Head.GetInt32("accountId")
	accountPw, _ := r.Head.GetInt32("accountPw")

	k1 := wire.NewObject().Set("e", pc.pub.E).Set("n", pc.pub.N).Set("size", int32(pc.pub.Size))
	k2 := wire.NewObject().Set("a", pc.priv.A).Set("b", pc.priv.B).Set("c", pc.priv.C).
		Set("d", pc.priv.D).Set("p", pc.priv.P).Set("q", pc.priv.Q).Set("size", int32(pc.priv.Size))
	info := wire.NewObject().
		Set("id", accountID).
		Set("pw", accountPw).
		Set("label", pc.label).
		Set("k1", wire.Value(k1)).
		Set("k2", wire.Value(k2))

	st, err := store.Init(c.storagePath(pc.label), pc.password, info)
	if err != nil {
		r.Status = request.Error
		r.Head = wire.NewObject().Set("message", err.Error())
		return
	}
	st.SetConfig("findByLabel", fmt.Sprintf("%d", boolToInt32(pc.findByLabel)))
	st.SetConfig("findByPhone", fmt.Sprintf("%d", boolToInt32(pc.findByPhone)))
	st.Close()

	c.accountID.Set(uint32(accountID))
	c.ownPub.Set(pc.pub)
	c.ownPriv.Set(pc.priv)
}

// Login opens the store file for label under storagePassword, then
// sends a Login request with the stored account id/password and the
// store's whitelisted config. On success the client moves to
// LoggedIn and adopts the opened store.
func (c *Client) Login(label, storagePassword string, cb request.Callback) error {
	if c.getState() != StateSecure {
		return fmt.Errorf("client: login requires Secure state, have %s", c.getState())
	}
	st, err := store.Open(c.storagePath(label), storagePassword)
	if err != nil {
		return err
	}

	info, err := st.DataNodeBody()
	if err != nil {
		st.Close()
		return err
	}
	accountID, _ := info.GetInt32("id")
	accountPw, _ := info.GetInt32("pw")
	k1, _ := info.GetObject("k1")
	k2, _ := info.GetObject("k2")
	pub := decodePublicKey(k1)
	priv := decodePrivateKey(k2)

	cfgObj := wire.NewObject()
	for _, key := range []string{"findByLabel", "findByPhone", "notifyStatus"} {
		if v, ok, err := st.GetConfig(key); err == nil && ok {
			cfgObj.Set(key, v)
		}
	}
	cfgObj.Set("contacts", wire.Value(contactSubscriptions(st)))

	head := wire.NewObject().
		Set("accountId", accountID).
		Set("accountPw", accountPw).
		Set("config", wire.Value(cfgObj))

	id := crypto.MustNewID()
	r := request.New(id, request.Login, head, cb)
	c.pendingLogins.Set(id, &pendingLogin{store: st, accountID: uint32(accountID), pub: pub, priv: priv})
	c.tracker.Add(r)
	c.wakeSender()
	return nil
}

func (c *Client) finishLogin(r *request.Request) {
	pl, ok := c.pendingLogins.Get(r.ID)
	if !ok {
		return
	}
	c.pendingLogins.Delete(r.ID)

	if r.Status != request.Completed {
		pl.store.Close()
		msg, _ := r.Head.GetString("message")
		c.PostEvent(event.LoginFailure{Error: event.ErrorInfo{Message: msg}})
		return
	}

	c.storeHandle.Set(pl.store)
	c.accountID.Set(pl.accountID)
	c.ownPub.Set(pl.pub)
	c.ownPriv.Set(pl.priv)
	c.setState(StateLoggedIn)
	c.PostEvent(event.LoginSuccess{AccountID: pl.accountID})
}

// contactSubscriptions builds the per-contact presence-subscription map
// the server expects inside a pushed config: every known contact's
// account id mapped to {notifyStatus: 1}.
func contactSubscriptions(st *store.Store) *wire.Object {
	contacts := wire.NewObject()
	if st == nil {
		return contacts
	}
	nodes, err := st.GetContacts()
	if err != nil {
		return contacts
	}
	for _, n := range nodes {
		contacts.Set(fmt.Sprintf("%d", uint32(n.User1)), wire.Value(wire.NewObject().Set("notifyStatus", int32(1))))
	}
	return contacts
}

// SetConfig persists cfg's entries to the open store's config node and
// pushes the same values, plus the per-contact presence subscriptions,
// to the server. Caller-facing counterpart to the internal pushConfig
// used after a contact accept.
func (c *Client) SetConfig(cfg map[string]string, cb request.Callback) error {
	if c.getState() < StateSecure {
		return fmt.Errorf("client: set_config requires at least Secure state, have %s", c.getState())
	}
	st := c.Storage()
	head := wire.NewObject()
	for k, v := range cfg {
		if st != nil {
			if err := st.SetConfig(k, v); err != nil {
				return err
			}
		}
		head.Set(k, v)
	}
	head.Set("contacts", wire.Value(contactSubscriptions(st)))
	r := request.New(crypto.MustNewID(), request.Config, head, cb)
	c.tracker.Add(r)
	c.wakeSender()
	return nil
}

// AddContact sends an AddContact request keyed to a prior add-code, and
// persists a pending-request record so a later server-initiated
// accept/reject can be matched by origin id across a reconnect.
func (c *Client) AddContact(addCode, label, phone string, cb request.Callback) error {
	head := wire.NewObject().Set("addCode", addCode).Set("label", label).Set("phone", phone)
	id := crypto.MustNewID()
	if st := c.Storage(); st != nil {
		if _, err := st.AddRequest(id, request.AddContact.String(), head); err != nil {
			return err
		}
	}
	r := request.New(id, request.AddContact, head, cb)
	c.tracker.Add(r)
	c.wakeSender()
	return nil
}

// CreateAddCode asks the server for a fresh opaque add-code token this
// account can hand to a peer out of band.
func (c *Client) CreateAddCode(cb request.Callback) error {
	r := request.New(crypto.MustNewID(), request.CreateAddCode, nil, cb)
	c.tracker.Add(r)
	c.wakeSender()
	return nil
}

// FindContact queries the server's directory by label or phone.
func (c *Client) FindContact(query string, cb request.Callback) error {
	head := wire.NewObject().Set("query", query)
	r := request.New(crypto.MustNewID(), request.FindContact, head, cb)
	c.tracker.Add(r)
	c.wakeSender()
	return nil
}

// AcceptContact accepts a pending inbound contact request by its
// server-assigned request id.
func (c *Client) AcceptContact(requestID uint32, cb request.Callback) error {
	head := wire.NewObject().Set("origId", int32(requestID))
	r := request.New(crypto.MustNewID(), request.AcceptContact, head, cb)
	c.tracker.Add(r)
	c.wakeSender()
	return nil
}

// RejectContact rejects a pending inbound contact request.
func (c *Client) RejectContact(requestID uint32, cb request.Callback) error {
	head := wire.NewObject().Set("origId", int32(requestID))
	r := request.New(crypto.MustNewID(), request.RejectContact, head, cb)
	c.tracker.Add(r)
	c.wakeSender()
	return nil
}

// RequestContactStatus asks the server for a presence snapshot of the
// given contacts; deltas arrive as ContactStatus events, not through a
// callback.
func (c *Client) RequestContactStatus(contacts []uint32) {
	arr := make([]wire.Value, len(contacts))
	for i, id := range contacts {
		arr[i] = int32(id)
	}
	head := wire.NewObject().Set("contacts", arr)
	c.tracker.Add(request.New(crypto.MustNewID(), request.ContactStatus, head, nil))
	c.wakeSender()
}

// GetInbox asks the server for the list of messages queued for this
// account while it was offline.
func (c *Client) GetInbox(cb request.Callback) error {
	if c.getState() != StateLoggedIn {
		return fmt.Errorf("client: get_inbox requires LoggedIn state, have %s", c.getState())
	}
	r := request.New(crypto.MustNewID(), request.GetInbox, nil, cb)
	c.tracker.Add(r)
	c.wakeSender()
	return nil
}

// GetMessage asks the server to replay a stored message by its id; the
// content then arrives as ordinary Message packets.
func (c *Client) GetMessage(messageID uint32, cb request.Callback) error {
	if c.getState() != StateLoggedIn {
		return fmt.Errorf("client: get_message requires LoggedIn state, have %s", c.getState())
	}
	head := wire.NewObject().Set("messageId", int32(messageID))
	r := request.New(crypto.MustNewID(), request.GetMessage, head, cb)
	c.tracker.Add(r)
	c.wakeSender()
	return nil
}

// RequestPending reports whether any live tracked request is of the
// given kind, letting callers avoid stacking duplicate operations.
func (c *Client) RequestPending(kind request.Kind) bool {
	return c.tracker.HasKind(kind)
}

// ContactStatusOf returns the last known presence of a contact; false
// if no presence delta has been seen for them yet.
func (c *Client) ContactStatusOf(contactID uint32) bool {
	online, ok := c.contacts.Get(contactID)
	return ok && online
}

// CancelRequest forces an in-flight request to its Error terminal state
// immediately, invoking cb (or the request's original callback, if cb
// is nil) with a cancellation error instead of waiting for a reply or
// timeout.
func (c *Client) CancelRequest(requestID uint32, cb request.Callback) error {
	r, ok := c.tracker.Get(requestID)
	if !ok {
		return fmt.Errorf("client: no live request %d", requestID)
	}
	r.Status = request.Error
	r.Head = wire.NewObject().Set("message", "cancelled")
	if cb != nil {
		r.Callback = cb
	}
	c.tracker.InvokeCompleted(r)
	return nil
}

// PostMessage starts streaming msg to recipientAccountIDs: initializes
// a Sender (key generation, per-recipient wrap, dedup check) and
// registers it for the sender loop to drive to completion.
func (c *Client) PostMessage(msg *message.Message, recipientAccountIDs []uint32) error {
	s, err := message.NewSender(c, msg, recipientAccountIDs)
	if err != nil {
		return err
	}
	c.senders.Set(msg.ID, s)
	c.wakeSender()
	return nil
}

// PostRequest registers an already-constructed Request for tracking,
// for callers building kinds this package doesn't wrap directly.
func (c *Client) PostRequest(r *request.Request) {
	c.tracker.Add(r)
	c.wakeSender()
}
