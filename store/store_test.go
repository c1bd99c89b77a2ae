package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duskline-im/client/crypto"
	"github.com/duskline-im/client/wire"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.store")
	info := wire.NewObject().Set("label", "alice")
	s, err := Init(path, "pw0", info)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInitCreatesBootstrapNodes(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []uint32{NodeRoot, NodeData, NodeVFS, NodeConfig} {
		n, err := s.GetNode(Query{"id": id}, false, false)
		require.NoError(t, err)
		require.NotNil(t, n, "node %d should exist", id)
	}
}

func TestOpenRejectsWrongPassword(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.store")
	s, err := Init(path, "correct", wire.NewObject())
	require.NoError(t, err)
	s.Close()

	_, err = Open(path, "wrong")
	require.Error(t, err)

	reopened, err := Open(path, "correct")
	require.NoError(t, err)
	defer reopened.Close()
}

func TestEncryptionTransparency(t *testing.T) {
	s := newTestStore(t)

	n := &Node{Type: TypeContact, Parent: NodeData, Name: "bob", User3: "+15551234"}
	id, err := s.AddNode(n, true)
	require.NoError(t, err)

	got, err := s.GetNode(Query{"id": id}, true, false)
	require.NoError(t, err)
	require.Equal(t, "bob", got.Name)
	require.Equal(t, "+15551234", got.User3)

	raw, err := s.GetNode(Query{"id": id}, false, false)
	require.NoError(t, err)
	require.NotEqual(t, "bob", raw.Name)
}

func TestAddContactUpsertsOnLabel(t *testing.T) {
	s := newTestStore(t)
	pub := &crypto.PublicKey{E: "11", N: "22", Size: 1024}

	id1, err := s.AddContact(5, "carol", "", pub)
	require.NoError(t, err)

	pub2 := &crypto.PublicKey{E: "33", N: "44", Size: 1024}
	id2, err := s.AddContact(6, "carol", "", pub2)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	n, err := s.GetContactByLabel("carol")
	require.NoError(t, err)
	require.Equal(t, int32(6), n.User1)
}

func TestGetContactsAndDelete(t *testing.T) {
	s := newTestStore(t)
	pub := &crypto.PublicKey{E: "11", N: "22", Size: 1024}

	_, err := s.AddContact(5, "carol", "", pub)
	require.NoError(t, err)
	_, err = s.AddContact(6, "dave", "", pub)
	require.NoError(t, err)

	contacts, err := s.GetContacts()
	require.NoError(t, err)
	require.Len(t, contacts, 2)

	require.NoError(t, s.DeleteContact(5))
	contacts, err = s.GetContacts()
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	require.Equal(t, int32(6), contacts[0].User1)

	// deleting an unknown contact is a no-op
	require.NoError(t, s.DeleteContact(42))
}

func TestGetRequests(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AddRequest(7, "AddContact", nil)
	require.NoError(t, err)
	_, err = s.AddRequest(8, "AddContact", nil)
	require.NoError(t, err)

	pending, err := s.GetRequests()
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, s.DeleteRequest(7))
	pending, err = s.GetRequests()
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestConfigWhitelist(t *testing.T) {
	s := newTestStore(t)

	err := s.SetConfig("findByLabel", "1")
	require.NoError(t, err)
	v, ok, err := s.GetConfig("findByLabel")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", v)

	err = s.SetConfig("notARealKey", "x")
	require.Error(t, err)
}

func TestStorageDedup(t *testing.T) {
	s := newTestStore(t)

	dirID, err := s.OutgoingDir(99)
	require.NoError(t, err)

	before, err := s.Count(Query{"type": uint32(TypeResource)})
	require.NoError(t, err)

	_, err = s.StoreResource(dirID, 0, "file.txt", "deadbeef", 10, []byte("0123456789"))
	require.NoError(t, err)

	dup, err := s.FindDedup(dirID, "file.txt", "deadbeef")
	require.NoError(t, err)
	require.NotNil(t, dup)

	after, err := s.Count(Query{"type": uint32(TypeResource)})
	require.NoError(t, err)
	require.Equal(t, before+1, after)
}

func TestHistoryLatestCreatesIfMissing(t *testing.T) {
	s := newTestStore(t)

	h1, err := s.LatestHistory(42)
	require.NoError(t, err)
	require.NotZero(t, h1)

	h2, err := s.LatestHistory(42)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestGCDelivered(t *testing.T) {
	s := newTestStore(t)

	historyID, err := s.LatestHistory(7)
	require.NoError(t, err)
	msgID, err := s.StoreMessage(0, historyID, MessageSent, 1, 7)
	require.NoError(t, err)

	dirID, err := s.OutgoingDir(7)
	require.NoError(t, err)
	_, err = s.StoreResource(dirID, msgID, "photo.jpg", "abc123", 4, []byte("data"))
	require.NoError(t, err)

	swept, err := s.GCDelivered(0)
	require.NoError(t, err)
	require.Equal(t, 1, swept)
}
