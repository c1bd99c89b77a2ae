package client

import (
	"fmt"
	"time"

	"github.com/duskline-im/client/crypto"
	"github.com/duskline-im/client/event"
	"github.com/duskline-im/client/message"
	"github.com/duskline-im/client/request"
	"github.com/duskline-im/client/wire"
)

func (c *Client) handlePacket(pkt *wire.Packet) {
	switch pkt.Kind {
	case wire.KindHeartbeat:
		// no-op; last_recv was already bumped by the reader loop.
	case wire.KindRequest:
		c.handleRequestPacket(pkt)
	case wire.KindMessage:
		c.handleMessagePacket(pkt)
	default:
		c.PostEvent(event.LogEvent{Error: event.ErrorInfo{Message: fmt.Sprintf("unknown packet kind %v", pkt.Kind)}})
	}
}

func decodeHead(raw []byte) (*wire.Object, error) {
	if len(raw) == 0 {
		return wire.NewObject(), nil
	}
	v, err := wire.Decode(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*wire.Object)
	if !ok {
		return nil, fmt.Errorf("client: head is not an object")
	}
	return obj, nil
}

// handleRequestPacket routes an inbound Request-kind packet either to
// the matching live request (by requestId) or, if no such request is
// live, to the server-initiated contact-event path.
func (c *Client) handleRequestPacket(pkt *wire.Packet) {
	head, err := decodeHead(pkt.Head)
	if err != nil {
		c.PostEvent(event.LogEvent{Error: event.ErrorInfo{Message: "malformed request head: " + err.Error()}})
		return
	}

	if r, ok := c.tracker.ProcessRecv(head); ok {
		if r.Status.Terminal() {
			c.applyRequestCompletion(r)
			c.tracker.InvokeCompleted(r)
			outcome := "completed"
			if r.Status != request.Completed {
				outcome = "error"
			}
			c.metrics.ObserveRequest(r.Kind.String(), outcome, time.Since(r.StartTime))
		}
		return
	}

	reqType, _ := head.GetInt32("requestType")
	switch request.Kind(reqType) {
	case request.AddContact, request.AcceptContact, request.RejectContact, request.ContactStatus:
		c.handleContactEvent(head)
	default:
		requestID, _ := head.GetInt32("requestId")
		c.PostEvent(event.LogEvent{Error: event.ErrorInfo{
			Message: fmt.Sprintf("request for unknown id %d, type %s", requestID, request.Kind(reqType)),
		}})
	}
}

// applyRequestCompletion runs the per-kind side effect a terminal
// request carries. Request itself stays kind-agnostic; Client, as its
// tracking owner, is where CreateAccount provisions a store file and
// Login adopts one.
func (c *Client) applyRequestCompletion(r *request.Request) {
	switch r.Kind {
	case request.CreateAccount:
		c.finishCreateAccount(r)
	case request.Login:
		c.finishLogin(r)
	}
}

func (c *Client) handleContactEvent(head *wire.Object) {
	reqType, _ := head.GetInt32("requestType")
	switch request.Kind(reqType) {
	case request.AcceptContact:
		c.handleAcceptContact(head)
	case request.RejectContact:
		c.handleRejectContact(head)
	case request.AddContact:
		requestID, _ := head.GetInt32("requestId")
		c.PostEvent(event.ContactRequestInbound{RequestID: uint32(requestID), RequestType: request.AddContact.String()})
	case request.ContactStatus:
		c.handleContactStatusPush(head)
	}
}

// handleAcceptContact implements the scenario spelled out in full: the
// pending outgoing request is consumed from storage, the new contact is
// inserted with its public key, presence is updated, a Config push is
// scheduled so the server learns this client's find-by preferences now
// that it has a confirmed peer, and a Dispatch acknowledging the
// contact-event packet is posted.
func (c *Client) handleAcceptContact(head *wire.Object) {
	requestID, _ := head.GetInt32("requestId")
	contactID, _ := head.GetInt32("contactId")
	label, _ := head.GetString("label")
	pubObj, _ := head.GetObject("publicKey")
	contactStatus, _ := head.GetInt32("contactStatus")

	pub := decodePublicKey(pubObj)

	if st := c.Storage(); st != nil {
		if _, err := st.AddContact(uint32(contactID), label, "", pub); err != nil {
			log.Warningf("client: AddContact(%d) failed: %v", contactID, err)
		}
		if err := st.DeleteRequest(uint32(requestID)); err != nil {
			log.Debugf("client: DeleteRequest(%d): %v", requestID, err)
		}
	}
	c.SetContactStatus(uint32(contactID), contactStatus == 1)
	c.pushConfig()

	dispatchHead := wire.NewObject().Set("requestDispatchId", requestID)
	c.tracker.Add(request.New(crypto.MustNewID(), request.Dispatch, dispatchHead, nil))
	c.wakeSender()
}

func (c *Client) handleRejectContact(head *wire.Object) {
	requestID, _ := head.GetInt32("requestId")
	if st := c.Storage(); st != nil {
		if err := st.DeleteRequest(uint32(requestID)); err != nil {
			log.Debugf("client: DeleteRequest(%d): %v", requestID, err)
		}
	}
	c.PostEvent(event.ContactRequestInbound{RequestID: uint32(requestID), RequestType: request.RejectContact.String()})

	dispatchHead := wire.NewObject().Set("requestDispatchId", requestID)
	c.tracker.Add(request.New(crypto.MustNewID(), request.Dispatch, dispatchHead, nil))
	c.wakeSender()
}

func (c *Client) handleContactStatusPush(head *wire.Object) {
	contactID, _ := head.GetInt32("contactId")
	online, _ := head.GetBool("online")
	c.SetContactStatus(uint32(contactID), online)
}

// pushConfig sends the store's current whitelisted config values to the
// server, fire-and-forget (no caller callback).
func (c *Client) pushConfig() {
	st := c.Storage()
	if st == nil {
		return
	}
	head := wire.NewObject()
	for _, key := range []string{"findByLabel", "findByPhone", "notifyStatus"} {
		if v, ok, err := st.GetConfig(key); err == nil && ok {
			head.Set(key, v)
		}
	}
	head.Set("contacts", wire.Value(contactSubscriptions(st)))
	c.tracker.Add(request.New(crypto.MustNewID(), request.Config, head, nil))
	c.wakeSender()
}

// handleMessagePacket routes an inbound Message-kind packet to its
// receiver, creating one on the first packet of a new message.
// Creating a receiver requires the sender's public key: either
// self's own (an archive copy of a message the account sent itself) or
// a contact's, from the store.
func (c *Client) handleMessagePacket(pkt *wire.Packet) {
	head, err := decodeHead(pkt.Head)
	if err != nil {
		c.PostEvent(event.LogEvent{Error: event.ErrorInfo{Message: "malformed message head: " + err.Error()}})
		return
	}

	messageIDVal, _ := head.GetInt32("messageId")
	messageID := uint32(messageIDVal)

	r, tracked := c.receivers.Get(messageID)
	if !tracked {
		srcVal, _ := head.GetInt32("messageSrc")
		dstVal, _ := head.GetInt32("messageDst")
		src, dst := uint32(srcVal), uint32(dstVal)

		keysArr, _ := head.GetArray("keys")
		wrappedKey := c.selectWrappedKey(keysArr, dst)
		if wrappedKey == nil {
			c.PostEvent(event.LogEvent{Error: event.ErrorInfo{Message: "message: no wrapped key addressed to self"}})
			return
		}

		nr, err := message.NewReceiver(c, messageID, src, dst, head, wrappedKey)
		if err != nil {
			c.PostEvent(event.LogEvent{Error: event.ErrorInfo{Message: err.Error()}})
			return
		}
		r = nr
		c.receivers.Set(messageID, r)
	}

	if err := r.Process(head, pkt.Body); err != nil {
		c.receivers.Delete(messageID)
		r.Close()
		return
	}
	if r.Done() {
		c.receivers.Delete(messageID)
		r.Close()
		c.metrics.IncMessageReceived()
	}
}

func (c *Client) selectWrappedKey(keys []wire.Value, dst uint32) []byte {
	for _, v := range keys {
		obj, ok := v.(*wire.Object)
		if !ok {
			continue
		}
		d, _ := obj.GetInt32("dst")
		if uint32(d) == dst {
			key, _ := obj.GetRaw("key")
			return key
		}
	}
	return nil
}
