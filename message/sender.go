package message

import (
	"fmt"
	"time"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/duskline-im/client/crypto"
	"github.com/duskline-im/client/event"
	"github.com/duskline-im/client/secmem"
	"github.com/duskline-im/client/store"
	"github.com/duskline-im/client/wire"
)

var log = logging.MustGetLogger("duskline/message")

// SenderFacade is everything a Sender borrows from the Client for its
// lifetime: storage, packet send, event post, the sender's own key pair
// (for the self-decryptable archive copy of the message key), and the
// locked-memory pool the message key itself is allocated from.
type SenderFacade interface {
	SendPacket(kind wire.Kind, head *wire.Object, body []byte) error
	Storage() *store.Store
	PostEvent(ev event.Event)
	OwnPublicKey() *crypto.PublicKey
	OwnPrivateKey() *crypto.PrivateKey
	ContactPublicKey(accountID uint32) (*crypto.PublicKey, bool)
	KeyPool() *secmem.Pool
}

// Sender drives one outbound Message's encrypt-sign-chunk pipeline, one
// wire packet per Process call.
type Sender struct {
	facade SenderFacade
	msg    *Message

	pool       *secmem.Pool
	keyHandle  secmem.Handle
	messageKey []byte   // 32 bytes, from the locked arena when pool is non-nil
	salt       [16]byte // AES-CTR counter, bumped once per resource
	shipSalt   [16]byte // the pre-bump salt the first packet head carries
	keys       map[uint32][]byte // dst account id -> RSA-wrapped messageKey
	metaCipher []byte            // encrypted meta map, sent once on first packet

	resourceIdx int
	partIdx     int
	firstPacket bool
	digest      *crypto.SHA256Digest
	cipher      *crypto.CTRCipher
	outDirID    uint32
	mirror      *store.BlobHandle // local plaintext mirror of the current resource
}

// NewSender runs message init: assigns ids, computes parts,
// checks dedup, generates the message key, wraps it per recipient, and
// persists the outgoing envelope.
func NewSender(facade SenderFacade, msg *Message, recipientAccountIDs []uint32) (*Sender, error) {
	if msg.ID == 0 {
		msg.ID = crypto.MustNewID()
	}

	for _, r := range msg.Resources {
		if r.Size <= 0 {
			continue
		}
		if r.ID == 0 {
			r.ID = crypto.MustNewID()
		}
		parts := int((r.Size + MaxPacketBody - 1) / MaxPacketBody)
		if parts < 1 {
			parts = 1
		}
		r.parts = parts
	}

	if TotalParts(msg.Resources) == 0 {
		return nil, fmt.Errorf("message: init failed, zero total parts")
	}

	outDirID, err := facade.Storage().OutgoingDir(msg.Dst)
	if err != nil {
		return nil, err
	}
	for _, r := range msg.Resources {
		if r.Size <= 0 {
			continue
		}
		r.RefreshMD5()
		if r.Type == Text {
			continue
		}
		dup, err := facade.Storage().FindDedup(outDirID, r.Name, r.MD5Hex())
		if err != nil {
			return nil, err
		}
		r.dedup = dup != nil
	}

	random, err := crypto.RandomBytes(crypto.AESKeySize)
	if err != nil {
		return nil, err
	}
	salt, err := crypto.RandomBytes(16)
	if err != nil {
		return nil, err
	}

	pool := facade.KeyPool()
	messageKey := random
	var keyHandle secmem.Handle
	if pool != nil {
		h, view, err := pool.Malloc(crypto.AESKeySize)
		if err != nil {
			return nil, err
		}
		copy(view, random)
		keyHandle = h
		messageKey = view
	}

	keys := make(map[uint32][]byte)
	ownPub := facade.OwnPublicKey()
	if ownPub != nil {
		wrapped, err := ownPub.Encrypt(messageKey)
		if err != nil {
			return nil, err
		}
		keys[msg.Src] = wrapped
	}
	for _, acct := range recipientAccountIDs {
		pub, ok := facade.ContactPublicKey(acct)
		if !ok {
			return nil, fmt.Errorf("message: unknown public key for account %d", acct)
		}
		wrapped, err := pub.Encrypt(messageKey)
		if err != nil {
			return nil, err
		}
		keys[acct] = wrapped
	}

	msg.Status = Outgoing
	msg.Time = time.Now().Unix()
	if _, err := facade.Storage().StoreMessage(msg.ID, msg.HistoryID, store.MessageOutgoing, msg.Src, msg.Dst); err != nil {
		return nil, err
	}

	metaObj := wire.NewObject()
	var metaArr []wire.Value
	for _, r := range msg.Resources {
		if r.Size <= 0 {
			continue
		}
		metaArr = append(metaArr, wire.Value(wire.NewObject().
			Set("id", int32(r.ID)).
			Set("name", r.Name).
			Set("size", int32(r.Size)).
			Set("hash", r.MD5Hex()).
			Set("parts", int32(r.parts))))
	}
	metaObj.Set("resources", metaArr)
	metaBytes, err := wire.Encode(metaObj)
	if err != nil {
		return nil, err
	}
	metaCipher, err := encryptWithSalt(messageKey, salt, metaBytes)
	if err != nil {
		return nil, err
	}

	s := &Sender{
		facade:      facade,
		msg:         msg,
		pool:        pool,
		keyHandle:   keyHandle,
		messageKey:  messageKey,
		keys:        keys,
		metaCipher:  metaCipher,
		firstPacket: true,
		outDirID:    outDirID,
	}
	copy(s.salt[:], salt)
	copy(s.shipSalt[:], salt)
	return s, nil
}

// Close releases the message key's locked-arena allocation, if any. The
// sender loop calls this once a Sender is removed from tracking, whether
// it finished normally or errored out.
func (s *Sender) Close() {
	if s.pool != nil {
		s.pool.Free(s.keyHandle)
		s.pool = nil
	}
}

func encryptWithSalt(key []byte, counter []byte, data []byte) ([]byte, error) {
	c, err := crypto.NewCTR(key, counter)
	if err != nil {
		return nil, err
	}
	return c.Encrypt(data), nil
}

// Done reports whether every resource has been fully transmitted.
func (s *Sender) Done() bool {
	return s.resourceIdx >= len(s.msg.Resources)
}

// currentResource skips over zero-size resources.
func (s *Sender) currentResource() *Resource {
	for s.resourceIdx < len(s.msg.Resources) {
		r := s.msg.Resources[s.resourceIdx]
		if r.Size > 0 {
			return r
		}
		s.resourceIdx++
	}
	return nil
}

// Process sends exactly one wire packet: the next unsent chunk of the
// current resource, or advances past a finished resource first.
func (s *Sender) Process() error {
	r := s.currentResource()
	if r == nil {
		return nil
	}

	if s.partIdx == 0 {
		crypto.IncrementSalt(s.salt[:])
		cipher, err := crypto.NewCTR(s.messageKey, s.salt[:])
		if err != nil {
			return err
		}
		s.cipher = cipher
		s.digest = crypto.NewSHA256()
		if r.Type != Text && !r.dedup {
			nodeID, err := s.facade.Storage().StoreResource(s.outDirID, s.msg.ID, r.Name, r.MD5Hex(), int32(r.Size), nil)
			if err != nil {
				return err
			}
			blob, err := s.facade.Storage().OpenBodyBlob(nodeID, true)
			if err != nil {
				return err
			}
			s.mirror = blob
		}
	}

	offset := int64(s.partIdx) * MaxPacketBody
	end := offset + MaxPacketBody
	if end > r.Size {
		end = r.Size
	}
	plain := make([]byte, end-offset)
	r.Data.Read(plain, len(plain), int(offset))
	if s.mirror != nil {
		if err := s.mirror.WriteBodyBlob(plain, len(plain), int(offset)); err != nil {
			return err
		}
	}
	s.cipher.EncryptInPlace(plain)
	s.digest.Update(plain)

	head := wire.NewObject().
		Set("messageId", int32(s.msg.ID)).
		Set("messageTime", int32(s.msg.Time)).
		Set("messageSrc", int32(s.msg.Src)).
		Set("messageDst", int32(s.msg.Dst)).
		Set("messagePart", int32(s.partIdx)).
		Set("messageParts", int32(TotalParts(s.msg.Resources))).
		Set("resourceId", int32(r.ID)).
		Set("resourceType", int32(r.Type)).
		Set("resourceSize", int32(r.Size)).
		Set("resourcePart", int32(s.partIdx)).
		Set("resourceParts", int32(r.parts))

	if s.firstPacket {
		var keyArr []wire.Value
		for dst, wrapped := range s.keys {
			keyArr = append(keyArr, wire.Value(wire.NewObject().Set("dst", int32(dst)).Set("key", wrapped)))
		}
		head.Set("salt", append([]byte(nil), s.shipSalt[:]...)).Set("meta", s.metaCipher).Set("keys", keyArr)
		s.firstPacket = false
	}

	last := s.partIdx == r.parts-1
	if last {
		sig, err := s.facade.OwnPrivateKey().Sign(s.digest.Sum())
		if err != nil {
			return err
		}
		head.Set("signature", sig)
	}

	if err := s.facade.SendPacket(wire.KindMessage, head, plain); err != nil {
		if s.mirror != nil {
			s.mirror.CloseBodyBlob()
			s.mirror = nil
		}
		s.msg.Status = Failure
		s.facade.Storage().UpdateMessage(s.msg.ID, store.MessageFailure)
		s.facade.PostEvent(event.ResourceFailure{MessageID: s.msg.ID, ResourceIdx: s.resourceIdx, Error: event.ErrorInfo{Message: err.Error()}})
		return err
	}

	r.partsDone++
	s.partIdx++
	if last {
		if s.mirror != nil {
			if err := s.mirror.CloseBodyBlob(); err != nil {
				return err
			}
			s.mirror = nil
		}
		s.partIdx = 0
		s.resourceIdx++
		s.facade.PostEvent(event.ResourceSent{MessageID: s.msg.ID, ResourceIdx: s.resourceIdx - 1})
		if s.currentResource() == nil {
			s.msg.Status = Sent
			s.facade.Storage().UpdateMessage(s.msg.ID, store.MessageSent)
			s.facade.PostEvent(event.MessageSent{MessageID: s.msg.ID})
		}
	}
	return nil
}
