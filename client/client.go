// Package client is the orchestrator that ties storage, the request
// tracker, message senders/receivers, and the transport session into
// one account-scoped handle: a reader goroutine that owns the socket
// for reading and drives the connection state machine, a sender
// goroutine woken on demand that owns writes, and an event dispatcher
// that delivers everything to a caller-supplied handler.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/carlmjohnson/versioninfo"
	logging "gopkg.in/op/go-logging.v1"

	"github.com/duskline-im/client/config"
	"github.com/duskline-im/client/crypto"
	"github.com/duskline-im/client/event"
	"github.com/duskline-im/client/message"
	"github.com/duskline-im/client/metrics"
	"github.com/duskline-im/client/request"
	"github.com/duskline-im/client/secmem"
	"github.com/duskline-im/client/store"
	"github.com/duskline-im/client/threadutil"
	"github.com/duskline-im/client/transport"
)

// keyPoolSize bounds how many simultaneous message keys (32 bytes each)
// can be outstanding across live senders and receivers at once.
const keyPoolSize = 256 * crypto.AESKeySize

var log = logging.MustGetLogger("duskline/client")

// State is the connection state machine's current position.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSecure
	StateLoggedIn
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSecure:
		return "secure"
	case StateLoggedIn:
		return "logged_in"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const writeTimeout = 10 * time.Second
const readPollInterval = 500 * time.Millisecond
const reconnectTick = 200 * time.Millisecond

// pendingCreate carries the state a CreateAccount request needs once
// its reply arrives: the label and storage password the caller gave
// up front, plus the key pair generated locally before the request
// was ever sent.
type pendingCreate struct {
	label       string
	password    string
	findByLabel bool
	findByPhone bool
	pub         *crypto.PublicKey
	priv        *crypto.PrivateKey
}

// pendingLogin carries the store handle a Login request opened before
// sending, closed or adopted depending on the server's reply.
type pendingLogin struct {
	store     *store.Store
	accountID uint32
	pub       *crypto.PublicKey
	priv      *crypto.PrivateKey
}

// Client is one account's connection to the relay. The zero value is
// not usable; construct with New.
type Client struct {
	*threadutil.Worker

	cfg     *config.Bootstrap
	metrics *metrics.Metrics

	dispatcher   *event.Dispatcher
	eventHandler threadutil.Guarded[event.Handler]

	session threadutil.Guarded[*transport.Session]
	state   threadutil.Guarded[State]

	storeHandle threadutil.Guarded[*store.Store]
	accountID   threadutil.Guarded[uint32]
	ownPub      threadutil.Guarded[*crypto.PublicKey]
	ownPriv     threadutil.Guarded[*crypto.PrivateKey]

	keyPool *secmem.Pool

	tracker   *request.Tracker
	senders   *threadutil.GuardedMap[uint32, *message.Sender]
	receivers *threadutil.GuardedMap[uint32, *message.Receiver]
	contacts  *threadutil.GuardedMap[uint32, bool]

	pendingCreates *threadutil.GuardedMap[uint32, *pendingCreate]
	pendingLogins  *threadutil.GuardedMap[uint32, *pendingLogin]

	lastRecv threadutil.Guarded[time.Time]
	lastSent threadutil.Guarded[time.Time]

	senderWake chan struct{}
}

// New constructs a Client bound to cfg. m may be nil only in tests that
// don't care about metrics output; production callers should pass a
// live *metrics.Metrics.
func New(cfg *config.Bootstrap, m *metrics.Metrics) *Client {
	if m == nil {
		m = metrics.New(nil)
	}
	pool, err := secmem.New(keyPoolSize)
	if err != nil {
		log.Warningf("client: locked-memory pool unavailable, message keys will live on the plain heap: %v", err)
		pool = nil
	}
	c := &Client{
		Worker:         threadutil.NewWorker(),
		cfg:            cfg,
		metrics:        m,
		keyPool:        pool,
		tracker:        request.NewTracker(),
		senders:        threadutil.NewGuardedMap[uint32, *message.Sender](),
		receivers:      threadutil.NewGuardedMap[uint32, *message.Receiver](),
		contacts:       threadutil.NewGuardedMap[uint32, bool](),
		pendingCreates: threadutil.NewGuardedMap[uint32, *pendingCreate](),
		pendingLogins:  threadutil.NewGuardedMap[uint32, *pendingLogin](),
		senderWake:     make(chan struct{}, 1),
	}
	c.dispatcher = event.New(log, func(ev event.Event) {
		if h := c.eventHandler.Get(); h != nil {
			h(ev)
		}
	})
	return c
}

// SetEventHandler installs the callback every posted event is delivered
// to. May be called at any time; takes effect for the next delivery.
func (c *Client) SetEventHandler(cb event.Handler) {
	c.eventHandler.Set(cb)
}

func (c *Client) getState() State {
	return c.state.Get()
}

func (c *Client) setState(s State) {
	c.state.Set(s)
	c.metrics.SetConnectionState(int(s))
}

func (c *Client) wakeSender() {
	select {
	case c.senderWake <- struct{}{}:
	default:
	}
}

// Start performs the initial connect attempt and launches the reader
// and sender goroutines. A failed initial connect is not fatal: the
// reader goroutine's first pass finds no live session and enters the
// reconnect loop itself.
func (c *Client) Start(ctx context.Context) error {
	log.Infof("client: duskline core %s, connecting to %s", versioninfo.Short(), c.cfg.Addr())
	err := c.connect(ctx)
	if err != nil {
		log.Warningf("client: initial connect failed: %v", err)
	}
	c.Worker.Go(c.readerLoop)
	c.Worker.Go(c.senderLoop)
	return err
}

// Stop halts the reader and sender goroutines, closes the session and
// any open storage handle, and drains the event dispatcher.
func (c *Client) Stop() {
	c.Worker.Halt()
	c.Worker.Wait()
	if sess := c.session.Get(); sess != nil {
		sess.Close()
	}
	if st := c.storeHandle.Get(); st != nil {
		st.Close()
	}
	if c.keyPool != nil {
		c.keyPool.Destroy()
	}
	c.dispatcher.Close()
}

func (c *Client) connect(ctx context.Context) error {
	c.setState(StateConnecting)
	sess, err := transport.Dial(ctx, c.cfg.Addr())
	if err != nil {
		c.setState(StateDisconnected)
		c.PostEvent(event.ConnectionFailure{Error: event.ErrorInfo{Message: err.Error()}})
		return err
	}
	c.session.Set(sess)
	c.setState(StateConnected)
	c.setState(StateSecure)
	c.lastRecv.Set(time.Now())
	c.lastSent.Set(time.Time{})
	c.PostEvent(event.ConnectionSuccess{})
	return nil
}

func (c *Client) forceReconnect() {
	if sess := c.session.Get(); sess != nil {
		sess.Close()
	}
	c.session.Set(nil)
	c.setState(StateDisconnected)
	c.PostEvent(event.Disconnected{})
}
