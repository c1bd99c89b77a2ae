package store

import (
	"fmt"
	"time"

	"github.com/duskline-im/client/crypto"
	"github.com/duskline-im/client/wire"
)

// AddContact upserts a contact by label: if a contact node with this
// label already exists, its account id and public key are updated in
// place rather than inserting a duplicate.
func (s *Store) AddContact(accountID uint32, label, phone string, pub *crypto.PublicKey) (uint32, error) {
	existing, err := s.GetNode(Query{"type": uint32(TypeContact), "name": []byte(label)}, true, false)
	if err != nil {
		return 0, err
	}

	headObj := wire.NewObject().Set("e", pub.E).Set("n", pub.N).Set("size", int32(pub.Size))
	head, err := wire.Encode(headObj)
	if err != nil {
		return 0, err
	}

	if existing != nil {
		err := s.UpdateNode(Query{"id": existing.ID}, map[string]interface{}{
			"user1": int32(accountID),
			"user3": []byte(phone),
			"head":  head,
		}, true)
		return existing.ID, err
	}

	n := &Node{
		Type:   TypeContact,
		Parent: NodeData,
		Name:   label,
		User1:  int32(accountID),
		User3:  phone,
		Head:   head,
	}
	return s.AddNode(n, true)
}

// GetContactByLabel looks up a contact by its unique label.
func (s *Store) GetContactByLabel(label string) (*Node, error) {
	return s.GetNode(Query{"type": uint32(TypeContact), "name": []byte(label)}, true, false)
}

// GetContactByAccountID looks up a contact by remote account id.
func (s *Store) GetContactByAccountID(accountID uint32) (*Node, error) {
	nodes, err := s.GetNodes(Query{"type": uint32(TypeContact)}, nil, nil, 0, 0, true, false)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if uint32(n.User1) == accountID {
			return n, nil
		}
	}
	return nil, nil
}

// GetContacts returns every persisted contact node.
func (s *Store) GetContacts() ([]*Node, error) {
	return s.GetNodes(Query{"type": uint32(TypeContact)}, nil, nil, 0, 0, true, false)
}

// DeleteContact removes the contact with the given remote account id.
func (s *Store) DeleteContact(accountID uint32) error {
	n, err := s.GetContactByAccountID(accountID)
	if err != nil {
		return err
	}
	if n == nil {
		return nil
	}
	return s.DeleteNode(Query{"id": n.ID})
}

// AddRequest persists a pending outgoing request so it survives a
// reconnect and can be matched against a later server-initiated
// contact-event packet by origin request id.
func (s *Store) AddRequest(requestID uint32, requestType string, info *wire.Object) (uint32, error) {
	var head []byte
	var err error
	if info != nil {
		head, err = wire.Encode(info)
		if err != nil {
			return 0, err
		}
	}
	n := &Node{
		Type:   TypeRequest,
		Parent: NodeData,
		User1:  int32(requestID),
		User4:  requestType,
		Head:   head,
	}
	return s.AddNode(n, true)
}

// DeleteRequest removes the pending-request record for requestID.
func (s *Store) DeleteRequest(requestID uint32) error {
	return s.DeleteNode(Query{"type": uint32(TypeRequest), "user1": int32(requestID)})
}

// GetRequest returns the pending-request record for requestID, if any.
func (s *Store) GetRequest(requestID uint32) (*Node, error) {
	return s.GetNode(Query{"type": uint32(TypeRequest), "user1": int32(requestID)}, true, false)
}

// GetRequests returns every persisted pending-request record.
func (s *Store) GetRequests() ([]*Node, error) {
	return s.GetNodes(Query{"type": uint32(TypeRequest)}, nil, nil, 0, 0, true, false)
}

// CreateDirectory creates a fresh directory node under vfs (id=3) if one
// with this name does not already exist, returning its id either way.
func (s *Store) CreateDirectory(name string, contactID uint32, outgoing bool) (uint32, error) {
	dir := int32(0)
	if outgoing {
		dir = 1
	}
	existing, err := s.GetNode(Query{"type": uint32(TypeDirectory), "name": []byte(name)}, true, false)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}
	n := &Node{
		Type:   TypeDirectory,
		Parent: NodeVFS,
		Name:   name,
		User1:  int32(contactID),
		User2:  dir,
	}
	return s.AddNode(n, true)
}

// IncomingDir and OutgoingDir lazily create (or return) the
// per-contact subdirectory used for receiver/sender dedup lookups.
func (s *Store) IncomingDir(contactID uint32) (uint32, error) {
	return s.CreateDirectory(fmt.Sprintf("in-%d", contactID), contactID, false)
}

func (s *Store) OutgoingDir(contactID uint32) (uint32, error) {
	return s.CreateDirectory(fmt.Sprintf("out-%d", contactID), contactID, true)
}

// CreateHistory creates a fresh conversation-thread node for contactID.
func (s *Store) CreateHistory(contactID uint32) (uint32, error) {
	n := &Node{
		Type:   TypeHistory,
		Parent: NodeData,
		User1:  int32(contactID),
	}
	return s.AddNode(n, true)
}

// LatestHistory returns the most recently created history id for
// contactID, creating one if none exists.
func (s *Store) LatestHistory(contactID uint32) (uint32, error) {
	nodes, err := s.GetNodes(
		Query{"type": uint32(TypeHistory), "user1": int32(contactID)},
		Order{"time": -1}, nil, 1, 0, true, false,
	)
	if err != nil {
		return 0, err
	}
	if len(nodes) > 0 {
		return nodes[0].ID, nil
	}
	return s.CreateHistory(contactID)
}

// MessageStatus is a persisted message's lifecycle state.
type MessageStatus int32

const (
	MessageIdle MessageStatus = iota
	MessageIncoming
	MessageOutgoing
	MessageSent
	MessageRecv
	MessageFailure
)

// StoreMessage persists a Message's envelope (not its resource bodies,
// which live as separate resource nodes under the per-contact directory,
// linked back to the message through user2).
func (s *Store) StoreMessage(messageID uint32, historyID uint32, status MessageStatus, src, dst uint32) (uint32, error) {
	n := &Node{
		ID:     messageID,
		Type:   TypeMessage,
		Parent: historyID,
		User1:  int32(status),
		User2:  int32(src),
		User3:  fmt.Sprintf("%d", dst),
		Time:   time.Now().Unix(),
	}
	return s.AddNode(n, true)
}

// UpdateMessage updates a persisted message's status.
func (s *Store) UpdateMessage(messageID uint32, status MessageStatus) error {
	return s.UpdateNode(Query{"id": messageID, "type": uint32(TypeMessage)}, map[string]interface{}{
		"user1": int32(status),
	}, true)
}

// GetMessages returns the messages belonging to historyID, most recent
// first.
func (s *Store) GetMessages(historyID uint32, limit, offset int) ([]*Node, error) {
	return s.GetNodes(Query{"type": uint32(TypeMessage), "parent": historyID}, Order{"time": -1}, nil, limit, offset, true, false)
}

// StoreResource persists one resource's metadata and, when body is
// non-nil, an inline body. The node parents to the per-contact incoming
// or outgoing directory so FindDedup can match it later; user2 links it
// back to the owning message, and md5Hex lands in user3 for the dedup
// lookup key.
func (s *Store) StoreResource(directoryID, messageID uint32, name string, md5Hex string, size int32, body []byte) (uint32, error) {
	n := &Node{
		Type:   TypeResource,
		Parent: directoryID,
		Name:   name,
		User1:  size,
		User2:  int32(messageID),
		User3:  md5Hex,
		Body:   body,
	}
	return s.AddNode(n, true)
}

// GetResource returns one resource node by id.
func (s *Store) GetResource(resourceID uint32) (*Node, error) {
	return s.GetNode(Query{"id": resourceID, "type": uint32(TypeResource)}, true, false)
}

// GetResources returns every resource belonging to messageID.
func (s *Store) GetResources(messageID uint32) ([]*Node, error) {
	return s.GetNodes(Query{"type": uint32(TypeResource), "user2": int32(messageID)}, nil, nil, 0, 0, true, false)
}

// FindDedup looks up an existing resource node under directoryID with
// the given (name, md5Hex) pair, used by both sender-side and
// receiver-side dedup.
func (s *Store) FindDedup(directoryID uint32, name, md5Hex string) (*Node, error) {
	return s.GetNode(Query{"type": uint32(TypeResource), "parent": directoryID, "name": []byte(name), "user3": []byte(md5Hex)}, true, false)
}

// configWhitelist is the set of keys set_config/get_config recognize.
var configWhitelist = map[string]bool{
	"findByLabel":  true,
	"findByPhone":  true,
	"notifyStatus": true,
}

// GetConfig reads a whitelisted key from the config node (id=4).
func (s *Store) GetConfig(key string) (string, bool, error) {
	if !configWhitelist[key] {
		return "", false, fmt.Errorf("store: unknown config key %q", key)
	}
	n, err := s.GetNode(Query{"id": NodeConfig}, false, false)
	if err != nil {
		return "", false, err
	}
	if n == nil || len(n.Body) == 0 {
		return "", false, nil
	}
	v, err := wire.Decode(n.Body)
	if err != nil {
		return "", false, err
	}
	obj, ok := v.(*wire.Object)
	if !ok {
		return "", false, nil
	}
	val, ok := obj.GetString(key)
	return val, ok, nil
}

// SetConfig writes a whitelisted key into the config node (id=4).
func (s *Store) SetConfig(key, value string) error {
	if !configWhitelist[key] {
		return fmt.Errorf("store: unknown config key %q", key)
	}
	n, err := s.GetNode(Query{"id": NodeConfig}, false, false)
	if err != nil {
		return err
	}
	obj := wire.NewObject()
	if n != nil && len(n.Body) > 0 {
		if v, err := wire.Decode(n.Body); err == nil {
			if existing, ok := v.(*wire.Object); ok {
				obj = existing
			}
		}
	}
	obj.Set(key, value)
	body, err := wire.Encode(obj)
	if err != nil {
		return err
	}
	return s.UpdateNode(Query{"id": NodeConfig}, map[string]interface{}{"body": body}, false)
}

// GCDelivered drops the local ciphertext mirror stored alongside every
// outgoing message node once that message has reached MessageSent, the
// way catshadow's garbageCollectConversations sweeps acknowledged
// outbound state. Resource metadata (name, size, md5) is kept; only
// the body blob, no longer needed once delivery is acknowledged and
// dedup has already been checked, is zeroed and cleared.
func (s *Store) GCDelivered(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	sent, err := s.GetNodes(Query{"type": uint32(TypeMessage), "user1": int32(MessageSent)}, nil, nil, 0, 0, false, false)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, msg := range sent {
		if msg.Time > cutoff {
			continue
		}
		resources, err := s.GetResources(msg.ID)
		if err != nil {
			return swept, err
		}
		for _, r := range resources {
			if len(r.Body) == 0 {
				continue
			}
			if err := s.ZeroBodyBlob(r.ID); err != nil {
				return swept, err
			}
			if err := s.UpdateNode(Query{"id": r.ID}, map[string]interface{}{"body": []byte{}}, true); err != nil {
				return swept, err
			}
			swept++
		}
	}
	return swept, nil
}
