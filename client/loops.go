package client

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/duskline-im/client/event"
	"github.com/duskline-im/client/message"
	"github.com/duskline-im/client/store"
	"github.com/duskline-im/client/transport"
	"github.com/duskline-im/client/wire"
)

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// readerLoop owns the socket for reading and all status transitions.
// Only this goroutine calls ReadPacket and the by-kind dispatch below.
func (c *Client) readerLoop() {
	for {
		select {
		case <-c.HaltCh():
			return
		default:
		}

		sess := c.session.Get()
		if sess == nil {
			if !c.reconnectLoop() {
				return
			}
			continue
		}

		lastSent := c.lastSent.Get()
		if !lastSent.IsZero() && time.Since(lastSent) >= c.cfg.Timeouts.HeartbeatTimeout() {
			c.PostEvent(event.ConnectionInterrupted{})
			c.metrics.IncHeartbeatLost()
			c.forceReconnect()
			continue
		}

		sess.SetReadDeadline(time.Now().Add(readPollInterval))
		pkt, err := sess.ReadPacket()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			c.forceReconnect()
			continue
		}

		c.lastSent.Set(time.Time{})
		c.lastRecv.Set(time.Now())
		c.handlePacket(pkt)

		if c.shouldWakeSender() {
			c.wakeSender()
		}
	}
}

// reconnectLoop retries connect() every ReconnectInterval, checked in
// 200ms cancellable slices so Halt is observed promptly. Returns false
// if it gave up because of Halt, true once a connection succeeds.
func (c *Client) reconnectLoop() bool {
	ticker := time.NewTicker(reconnectTick)
	defer ticker.Stop()

	for {
		dialCtx, cancel := context.WithTimeout(context.Background(), transport.ConnectTimeout)
		err := c.connect(dialCtx)
		cancel()
		c.metrics.IncReconnect()
		if err == nil {
			c.PostEvent(event.Reconnected{})
			c.refreshPresence()
			return true
		}

		var waited time.Duration
		for waited < c.cfg.Timeouts.ReconnectInterval() {
			select {
			case <-c.HaltCh():
				return false
			case <-ticker.C:
				waited += reconnectTick
			}
		}
	}
}

// refreshPresence asks the server for a presence snapshot of every
// stored contact whose presence is not yet known, issued once per
// successful reconnect so the presence map converges after an outage.
func (c *Client) refreshPresence() {
	st := c.Storage()
	if st == nil {
		return
	}
	nodes, err := st.GetNodes(store.Query{"type": uint32(store.TypeContact)}, nil, nil, 0, 0, true, false)
	if err != nil {
		log.Debugf("client: presence refresh skipped: %v", err)
		return
	}
	var unknown []uint32
	for _, n := range nodes {
		id := uint32(n.User1)
		if _, ok := c.contacts.Get(id); !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		c.RequestContactStatus(unknown)
	}
}

func (c *Client) shouldWakeSender() bool {
	if c.tracker.HasIdle() {
		return true
	}
	if c.senders.Len() > 0 {
		return true
	}
	lastRecv := c.lastRecv.Get()
	return !lastRecv.IsZero() && time.Since(lastRecv) >= c.cfg.Timeouts.HeartbeatInterval()
}

// senderLoop owns writes. Woken by wakeSender (the reader is the
// producer) or by its own one-second fallback tick so a due heartbeat
// is never missed just because nothing else woke it.
func (c *Client) senderLoop() {
	for {
		select {
		case <-c.HaltCh():
			return
		case <-c.senderWake:
		case <-time.After(time.Second):
		}

		if c.getState() < StateSecure {
			time.Sleep(time.Second)
			continue
		}

		if timedOut := c.tracker.Sweep(c.dispatcher); timedOut > 0 {
			for i := 0; i < timedOut; i++ {
				c.metrics.IncRequestTimeout()
			}
		}

		didWork := c.processIdleRequests()
		if c.processMessageSenders() {
			didWork = true
		}

		if !didWork {
			lastRecv := c.lastRecv.Get()
			if !lastRecv.IsZero() && time.Since(lastRecv) >= c.cfg.Timeouts.HeartbeatInterval() {
				c.sendHeartbeat()
			}
		}
	}
}

func (c *Client) processIdleRequests() bool {
	pending := c.tracker.ProcessSend()
	if len(pending) == 0 {
		return false
	}
	for _, p := range pending {
		if err := c.SendPacket(wire.KindRequest, p.Head, nil); err != nil {
			log.Warningf("client: request %d send failed: %v", p.ID, err)
		}
	}
	return true
}

// processMessageSenders advances every live outbound message by one
// wire packet, dropping a sender once it finishes or errors. Snapshots
// the id list before iterating so a sender completing mid-pass doesn't
// perturb the walk, matching the collection-snapshot discipline the
// request tracker also follows.
func (c *Client) processMessageSenders() bool {
	var ids []uint32
	c.senders.Each(func(id uint32, _ *message.Sender) {
		ids = append(ids, id)
	})
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		s, ok := c.senders.Get(id)
		if !ok {
			continue
		}
		if err := s.Process(); err != nil {
			c.senders.Delete(id)
			s.Close()
			continue
		}
		if s.Done() {
			c.senders.Delete(id)
			s.Close()
			c.metrics.IncMessageSent()
		}
	}
	return true
}
