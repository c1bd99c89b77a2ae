package message

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duskline-im/client/buffer"
	"github.com/duskline-im/client/crypto"
	"github.com/duskline-im/client/event"
	"github.com/duskline-im/client/secmem"
	"github.com/duskline-im/client/store"
	"github.com/duskline-im/client/wire"
)

// fakeFacade satisfies both SenderFacade and ReceiverFacade, capturing
// outbound packets and posted events for assertions.
type fakeFacade struct {
	st      *store.Store
	ownPub  *crypto.PublicKey
	ownPriv *crypto.PrivateKey
	peers   map[uint32]*crypto.PublicKey

	packets []fakePacket
	events  []event.Event
	sendErr error
}

type fakePacket struct {
	head *wire.Object
	body []byte
}

func (f *fakeFacade) SendPacket(kind wire.Kind, head *wire.Object, body []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.packets = append(f.packets, fakePacket{head: head, body: append([]byte(nil), body...)})
	return nil
}

func (f *fakeFacade) Storage() *store.Store      { return f.st }
func (f *fakeFacade) PostEvent(ev event.Event)   { f.events = append(f.events, ev) }
func (f *fakeFacade) OwnPublicKey() *crypto.PublicKey   { return f.ownPub }
func (f *fakeFacade) OwnPrivateKey() *crypto.PrivateKey { return f.ownPriv }
func (f *fakeFacade) KeyPool() *secmem.Pool             { return nil }

func (f *fakeFacade) ContactPublicKey(id uint32) (*crypto.PublicKey, bool) {
	pk, ok := f.peers[id]
	return pk, ok
}

func (f *fakeFacade) SenderPublicKey(id uint32) (*crypto.PublicKey, bool) {
	return f.ContactPublicKey(id)
}

func newPipelineStore(t *testing.T, name string) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	s, err := store.Init(path, "pw", wire.NewObject())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func selectWrappedKey(t *testing.T, head *wire.Object, dst uint32) []byte {
	t.Helper()
	keys, ok := head.GetArray("keys")
	require.True(t, ok, "first packet must carry a keys array")
	for _, v := range keys {
		obj, ok := v.(*wire.Object)
		require.True(t, ok)
		d, _ := obj.GetInt32("dst")
		if uint32(d) == dst {
			key, _ := obj.GetRaw("key")
			return key
		}
	}
	t.Fatalf("no wrapped key for dst %d", dst)
	return nil
}

func hasEvent[T event.Event](events []event.Event) bool {
	for _, ev := range events {
		if _, ok := ev.(T); ok {
			return true
		}
	}
	return false
}

// TestSendReceiveRoundTrip drives a two-resource message through the
// full encrypt-sign-chunk pipeline and back through reassemble-verify.
func TestSendReceiveRoundTrip(t *testing.T) {
	alicePub, alicePriv, err := crypto.GenerateKeyPair(1024)
	require.NoError(t, err)
	bobPub, bobPriv, err := crypto.GenerateKeyPair(1024)
	require.NoError(t, err)

	aliceF := &fakeFacade{
		st:      newPipelineStore(t, "alice.store"),
		ownPub:  alicePub,
		ownPriv: alicePriv,
		peers:   map[uint32]*crypto.PublicKey{99: bobPub},
	}
	bobF := &fakeFacade{
		st:      newPipelineStore(t, "bob.store"),
		ownPub:  bobPub,
		ownPriv: bobPriv,
		peers:   map[uint32]*crypto.PublicKey{1: alicePub},
	}

	text := []byte("hello over the relay, this line travels encrypted end to end")
	file := make([]byte, 4096)
	for i := range file {
		file[i] = byte(i % 251)
	}

	msg := New()
	msg.Src = 1
	msg.Dst = 99
	msg.AddResource(&Resource{Type: Text, Name: "note.txt", Size: int64(len(text)), Data: buffer.NewFrom(text)})
	msg.AddResource(&Resource{Type: File, Name: "blob.bin", Size: int64(len(file)), Data: buffer.NewFrom(file)})

	s, err := NewSender(aliceF, msg, []uint32{99})
	require.NoError(t, err)
	defer s.Close()

	for !s.Done() {
		require.NoError(t, s.Process())
	}
	require.Len(t, aliceF.packets, 2, "one part per resource at these sizes")
	require.True(t, hasEvent[event.MessageSent](aliceF.events))
	require.Equal(t, Sent, msg.Status)

	first := aliceF.packets[0].head
	_, hasSalt := first.GetRaw("salt")
	require.True(t, hasSalt)
	_, hasMeta := first.GetRaw("meta")
	require.True(t, hasMeta)
	_, hasSig := first.GetRaw("signature")
	require.True(t, hasSig, "single-part resource carries its signature on its only packet")

	wrapped := selectWrappedKey(t, first, 99)
	msgID, _ := first.GetInt32("messageId")

	r, err := NewReceiver(bobF, uint32(msgID), 1, 99, first, wrapped)
	require.NoError(t, err)
	defer r.Close()

	for _, pkt := range aliceF.packets {
		require.NoError(t, r.Process(pkt.head, pkt.body))
	}
	require.True(t, r.Done())
	require.True(t, hasEvent[event.MessageIncoming](bobF.events))
	require.True(t, hasEvent[event.MessageRecv](bobF.events))

	// Text resource lands in memory, decrypted.
	got, ok := r.msg.Resource(mustResourceID(t, first))
	require.True(t, ok)
	require.Equal(t, text, got.Data.Bytes())

	// File resource lands as a decryptable blob in bob's store.
	resources, err := bobF.st.GetResources(uint32(msgID))
	require.NoError(t, err)
	require.Len(t, resources, 1)
	require.Equal(t, "blob.bin", resources[0].Name)
	require.Equal(t, file, resources[0].Body)
}

func mustResourceID(t *testing.T, head *wire.Object) uint32 {
	t.Helper()
	id, ok := head.GetInt32("resourceId")
	require.True(t, ok)
	return uint32(id)
}

// TestReceiverRejectsTamperedCiphertext flips one ciphertext bit before
// the final part and expects signature verification to fail.
func TestReceiverRejectsTamperedCiphertext(t *testing.T) {
	alicePub, alicePriv, err := crypto.GenerateKeyPair(1024)
	require.NoError(t, err)
	bobPub, bobPriv, err := crypto.GenerateKeyPair(1024)
	require.NoError(t, err)

	aliceF := &fakeFacade{
		st:      newPipelineStore(t, "alice.store"),
		ownPub:  alicePub,
		ownPriv: alicePriv,
		peers:   map[uint32]*crypto.PublicKey{99: bobPub},
	}
	bobF := &fakeFacade{
		st:      newPipelineStore(t, "bob.store"),
		ownPub:  bobPub,
		ownPriv: bobPriv,
		peers:   map[uint32]*crypto.PublicKey{1: alicePub},
	}

	msg := New()
	msg.Src = 1
	msg.Dst = 99
	payload := []byte("tamper with me and the signature check must notice")
	msg.AddResource(&Resource{Type: File, Name: "x.bin", Size: int64(len(payload)), Data: buffer.NewFrom(payload)})

	s, err := NewSender(aliceF, msg, []uint32{99})
	require.NoError(t, err)
	defer s.Close()
	for !s.Done() {
		require.NoError(t, s.Process())
	}
	require.Len(t, aliceF.packets, 1)

	pkt := aliceF.packets[0]
	pkt.body[3] ^= 0x40

	wrapped := selectWrappedKey(t, pkt.head, 99)
	msgID, _ := pkt.head.GetInt32("messageId")
	r, err := NewReceiver(bobF, uint32(msgID), 1, 99, pkt.head, wrapped)
	require.NoError(t, err)
	defer r.Close()

	require.Error(t, r.Process(pkt.head, pkt.body))
	require.True(t, hasEvent[event.ResourceFailure](bobF.events))
}

// TestReceiverDedup sends the same (name, md5) resource twice; the
// second delivery must emit ResourceRecv with a replaced mapping and
// persist no additional resource node.
func TestReceiverDedup(t *testing.T) {
	alicePub, alicePriv, err := crypto.GenerateKeyPair(1024)
	require.NoError(t, err)
	bobPub, bobPriv, err := crypto.GenerateKeyPair(1024)
	require.NoError(t, err)

	aliceF := &fakeFacade{
		st:      newPipelineStore(t, "alice.store"),
		ownPub:  alicePub,
		ownPriv: alicePriv,
		peers:   map[uint32]*crypto.PublicKey{99: bobPub},
	}
	bobF := &fakeFacade{
		st:      newPipelineStore(t, "bob.store"),
		ownPub:  bobPub,
		ownPriv: bobPriv,
		peers:   map[uint32]*crypto.PublicKey{1: alicePub},
	}

	payload := []byte("the same bytes delivered twice")

	deliver := func() {
		msg := New()
		msg.Src = 1
		msg.Dst = 99
		msg.AddResource(&Resource{Type: File, Name: "dup.bin", Size: int64(len(payload)), Data: buffer.NewFrom(payload)})
		s, err := NewSender(aliceF, msg, []uint32{99})
		require.NoError(t, err)
		defer s.Close()
		start := len(aliceF.packets)
		for !s.Done() {
			require.NoError(t, s.Process())
		}
		pkt := aliceF.packets[start]
		wrapped := selectWrappedKey(t, pkt.head, 99)
		msgID, _ := pkt.head.GetInt32("messageId")
		r, err := NewReceiver(bobF, uint32(msgID), 1, 99, pkt.head, wrapped)
		require.NoError(t, err)
		defer r.Close()
		require.NoError(t, r.Process(pkt.head, pkt.body))
	}

	deliver()
	countAfterFirst, err := bobF.st.Count(store.Query{"type": uint32(store.TypeResource)})
	require.NoError(t, err)

	deliver()
	countAfterSecond, err := bobF.st.Count(store.Query{"type": uint32(store.TypeResource)})
	require.NoError(t, err)
	require.Equal(t, countAfterFirst, countAfterSecond)

	var replaced *event.ReplacedResource
	for _, ev := range bobF.events {
		if rr, ok := ev.(event.ResourceRecv); ok && rr.Replaced != nil {
			replaced = rr.Replaced
		}
	}
	require.NotNil(t, replaced, "second delivery must report the replaced node")
	require.NotZero(t, replaced.Dst)
}
