package message

import (
	"fmt"

	"github.com/duskline-im/client/buffer"
	"github.com/duskline-im/client/crypto"
	"github.com/duskline-im/client/event"
	"github.com/duskline-im/client/secmem"
	"github.com/duskline-im/client/store"
	"github.com/duskline-im/client/wire"
)

// ReceiverFacade is everything a Receiver borrows from the Client.
type ReceiverFacade interface {
	Storage() *store.Store
	PostEvent(ev event.Event)
	OwnPrivateKey() *crypto.PrivateKey
	SenderPublicKey(accountID uint32) (*crypto.PublicKey, bool)
	KeyPool() *secmem.Pool
}

type resourceMeta struct {
	id    uint32
	name  string
	size  int64
	hash  string
	parts int
}

// Receiver reassembles one inbound Message, verifying each resource's
// signature as it completes.
type Receiver struct {
	facade ReceiverFacade
	msg    *Message

	pool       *secmem.Pool
	keyHandle  secmem.Handle
	messageKey []byte
	salt       [16]byte
	metaByID   map[uint32]resourceMeta

	partsProcessed int
	totalParts     int

	active map[uint32]*activeResource
	inDir  uint32
}

type activeResource struct {
	resource *Resource
	digest   *crypto.SHA256Digest
	cipher   *crypto.CTRCipher
	blob     *store.BlobHandle
	nodeID   uint32
	skip     bool
}

// NewReceiver creates a receiver from a message's first packet, which
// must carry a wrapped message key, salt, and meta.
// wrappedKey is this recipient's entry from the first packet's "keys"
// array (selected by the caller, since that array is keyed by dst and
// Receiver has no reason to know about any other recipient's entry).
func NewReceiver(facade ReceiverFacade, messageID uint32, src, dst uint32, head *wire.Object, wrappedKey []byte) (*Receiver, error) {
	salt, ok := head.GetRaw("salt")
	if !ok {
		return nil, fmt.Errorf("message: first packet missing salt")
	}
	metaCipher, ok := head.GetRaw("meta")
	if !ok {
		return nil, fmt.Errorf("message: first packet missing meta")
	}

	priv := facade.OwnPrivateKey()
	decrypted, err := priv.Decrypt(wrappedKey)
	if err != nil {
		return nil, fmt.Errorf("message: messageKey decrypt failed: %w", err)
	}

	pool := facade.KeyPool()
	messageKey := decrypted
	var keyHandle secmem.Handle
	if pool != nil {
		h, view, err := pool.Malloc(len(decrypted))
		if err != nil {
			return nil, err
		}
		copy(view, decrypted)
		keyHandle = h
		messageKey = view
	}

	metaPlain, err := encryptWithSalt(messageKey, salt, metaCipher) // CTR is its own inverse
	if err != nil {
		return nil, err
	}
	metaVal, err := wire.Decode(metaPlain)
	if err != nil {
		return nil, fmt.Errorf("message: meta decode failed: %w", err)
	}
	metaObj, ok := metaVal.(*wire.Object)
	if !ok {
		return nil, fmt.Errorf("message: meta is not an object")
	}
	resArr, _ := metaObj.GetArray("resources")

	byID := make(map[uint32]resourceMeta)
	totalParts := 0
	for _, v := range resArr {
		obj, ok := v.(*wire.Object)
		if !ok {
			continue
		}
		id, _ := obj.GetInt32("id")
		name, _ := obj.GetString("name")
		size, _ := obj.GetInt32("size")
		hash, _ := obj.GetString("hash")
		parts, _ := obj.GetInt32("parts")
		byID[uint32(id)] = resourceMeta{id: uint32(id), name: name, size: int64(size), hash: hash, parts: int(parts)}
		totalParts += int(parts)
	}

	historyID, err := facade.Storage().LatestHistory(src)
	if err != nil {
		return nil, err
	}
	inDir, err := facade.Storage().IncomingDir(src)
	if err != nil {
		return nil, err
	}

	msg := New()
	msg.ID = messageID
	msg.Status = Incoming
	msg.HistoryID = historyID
	msg.Src = src
	msg.Dst = dst
	if _, err := facade.Storage().StoreMessage(msg.ID, historyID, store.MessageIncoming, src, dst); err != nil {
		return nil, err
	}
	facade.PostEvent(event.MessageIncoming{MessageID: msg.ID, ContactID: src})

	r := &Receiver{
		facade:     facade,
		msg:        msg,
		pool:       pool,
		keyHandle:  keyHandle,
		messageKey: messageKey,
		metaByID:   byID,
		totalParts: totalParts,
		active:     make(map[uint32]*activeResource),
		inDir:      inDir,
	}
	copy(r.salt[:], salt)
	return r, nil
}

// Close releases the message key's locked-arena allocation, if any.
// Called once a Receiver is dropped from tracking, whether it finished
// normally or errored out.
func (r *Receiver) Close() {
	if r.pool != nil {
		r.pool.Free(r.keyHandle)
		r.pool = nil
	}
}

// Process handles one inbound Message packet belonging to this receiver.
func (r *Receiver) Process(head *wire.Object, ciphertext []byte) error {
	resIDVal, ok := head.GetInt32("resourceId")
	if !ok {
		return fmt.Errorf("message: packet missing resourceId")
	}
	resID := uint32(resIDVal)
	part, _ := head.GetInt32("resourcePart")
	parts, _ := head.GetInt32("resourceParts")
	resType, _ := head.GetInt32("resourceType")

	ar, tracked := r.active[resID]
	if !tracked {
		meta, ok := r.metaByID[resID]
		if !ok {
			return fmt.Errorf("message: unknown resourceId %d", resID)
		}
		res := &Resource{ID: resID, Type: ResourceType(resType), Name: meta.name, Size: meta.size}
		r.msg.AddResource(res)

		var dup *store.Node
		if res.Type != Text {
			var err error
			dup, err = r.facade.Storage().FindDedup(r.inDir, meta.name, meta.hash)
			if err != nil {
				return err
			}
		}

		crypto.IncrementSalt(r.salt[:])
		cipher, err := crypto.NewCTR(r.messageKey, r.salt[:])
		if err != nil {
			return err
		}
		ar = &activeResource{resource: res, digest: crypto.NewSHA256(), cipher: cipher}
		if dup != nil {
			ar.skip = true
			res.dedupReplaced = dup.ID
			r.facade.PostEvent(event.ResourceRecv{
				MessageID:   r.msg.ID,
				ResourceIdx: len(r.msg.Resources) - 1,
				Replaced:    &event.ReplacedResource{Src: resID, Dst: dup.ID},
			})
		} else if res.Type == Text {
			res.Data = buffer.NewZero(int(meta.size))
		} else {
			nodeID, err := r.facade.Storage().StoreResource(r.inDir, r.msg.ID, meta.name, meta.hash, int32(meta.size), nil)
			if err != nil {
				return err
			}
			ar.nodeID = nodeID
			blob, err := r.facade.Storage().OpenBodyBlob(nodeID, true)
			if err != nil {
				return err
			}
			ar.blob = blob
		}
		r.active[resID] = ar
	}

	ar.digest.Update(ciphertext)
	plain := append([]byte(nil), ciphertext...)
	ar.cipher.DecryptInPlace(plain)

	if !ar.skip {
		offset := int(part) * MaxPacketBody
		if ar.blob != nil {
			if err := ar.blob.WriteBodyBlob(plain, len(plain), offset); err != nil {
				return err
			}
		} else {
			ar.resource.Data.Write(plain, len(plain), offset)
		}
	}

	if part == parts-1 {
		if ar.blob != nil {
			if err := ar.blob.CloseBodyBlob(); err != nil {
				return err
			}
			ar.blob = nil
		}
		sig, ok := head.GetRaw("signature")
		if !ok {
			return fmt.Errorf("message: last part missing signature")
		}
		pub, ok := r.facade.SenderPublicKey(r.msg.Src)
		if !ok {
			return fmt.Errorf("message: no public key for sender %d", r.msg.Src)
		}
		if err := pub.Verify(ar.digest.Sum(), sig); err != nil {
			r.facade.PostEvent(event.ResourceFailure{MessageID: r.msg.ID, Error: event.ErrorInfo{Message: "signature verification failed"}})
			return err
		}
		if ar.resource.Data != nil {
			ar.resource.RefreshMD5()
		}
		delete(r.active, resID)
		if !ar.skip {
			r.facade.PostEvent(event.ResourceRecv{MessageID: r.msg.ID, ResourceIdx: len(r.msg.Resources) - 1})
		}
	}

	r.partsProcessed++
	if r.partsProcessed >= r.totalParts {
		r.msg.Status = Recv
		r.facade.Storage().UpdateMessage(r.msg.ID, store.MessageRecv)
		r.facade.PostEvent(event.MessageRecv{MessageID: r.msg.ID, ContactID: r.msg.Src})
	}
	return nil
}

// Done reports whether every part of every resource has arrived.
func (r *Receiver) Done() bool {
	return r.partsProcessed >= r.totalParts
}
