package store

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	logging "gopkg.in/op/go-logging.v1"

	"github.com/duskline-im/client/crypto"
	"github.com/duskline-im/client/wire"
)

var log = logging.MustGetLogger("duskline/store")

// Store is a handle on one encrypted SQLite-backed node file. All
// exported operations are safe for concurrent use; the underlying
// *sql.DB serializes access internally, and storageKey never changes
// after Open/Init, so no additional locking is needed for reads.
// AddNode/UpdateNode/DeleteNode each take mu for that one call only.
// Typed helpers that make several calls (e.g. AddContact's lookup then
// update or insert) are not atomic as a whole and run no SQL transaction.
type Store struct {
	mu         sync.Mutex
	db         *sql.DB
	path       string
	storageKey []byte // 32 bytes, never persisted in plaintext
}

// Init creates a fresh store file. Fails if the file already exists.
func Init(path string, password string, accountInfo *wire.Object) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("store: file already exists: %s", path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open failed: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema creation failed: %w", err)
	}

	storageKey, err := crypto.RandomBytes(crypto.AESKeySize)
	if err != nil {
		db.Close()
		return nil, err
	}
	h := crypto.SHA256Sum([]byte(password))

	ke, err := crypto.EncryptCTRZero(h, storageKey)
	if err != nil {
		db.Close()
		return nil, err
	}
	hv, err := crypto.EncryptCTRZero(h, h)
	if err != nil {
		db.Close()
		return nil, err
	}

	rootHead := wire.NewObject().Set("key", ke).Set("pwd", hv)
	rootHeadBytes, err := wire.Encode(rootHead)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, path: path, storageKey: storageKey}

	if _, err := db.Exec(
		`INSERT INTO nodes (id, time, type, parent, user1, head) VALUES (?, 0, ?, 0, ?, ?)`,
		NodeRoot, TypeRoot, StorageVersion, rootHeadBytes,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: root node insert failed: %w", err)
	}

	var bodyBytes []byte
	if accountInfo != nil {
		bodyBytes, err = wire.Encode(accountInfo)
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	if _, err := db.Exec(
		`INSERT INTO nodes (id, time, type, parent, body) VALUES (?, 0, ?, ?, ?)`,
		NodeData, TypeData, NodeRoot, bodyBytes,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: data node insert failed: %w", err)
	}

	for id, typ := range map[uint32]NodeType{NodeVFS: TypeVFS, NodeConfig: TypeConfig} {
		if _, err := db.Exec(
			`INSERT INTO nodes (id, time, type, parent) VALUES (?, 0, ?, ?)`,
			id, typ, NodeRoot,
		); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: bootstrap node %d insert failed: %w", id, err)
		}
	}

	// The password's SHA-256 digest, h, has now served both as the key
	// under which the storage key is wrapped and as its own verifier. It
	// is not retained past this point.
	for i := range h {
		h[i] = 0
	}

	log.Infof("store: initialized %s", path)
	return s, nil
}

// Open opens an existing store file and verifies password.
func Open(path string, password string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open failed: %w", err)
	}

	var headBytes []byte
	row := db.QueryRow(`SELECT head FROM nodes WHERE id = ?`, NodeRoot)
	if err := row.Scan(&headBytes); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: root node missing: %w", err)
	}

	rootVal, err := wire.Decode(headBytes)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: root head decode failed: %w", err)
	}
	rootHead, ok := rootVal.(*wire.Object)
	if !ok {
		db.Close()
		return nil, fmt.Errorf("store: root head is not an object")
	}
	ke, ok := rootHead.GetRaw("key")
	if !ok {
		db.Close()
		return nil, fmt.Errorf("store: root head missing key field")
	}
	hv, ok := rootHead.GetRaw("pwd")
	if !ok {
		db.Close()
		return nil, fmt.Errorf("store: root head missing pwd field")
	}

	h := crypto.SHA256Sum([]byte(password))
	decryptedPwd, err := crypto.DecryptCTRZero(h, hv)
	if err != nil {
		db.Close()
		return nil, err
	}
	if !equalBytes(decryptedPwd, h) {
		db.Close()
		return nil, fmt.Errorf("store: incorrect password")
	}

	storageKey, err := crypto.DecryptCTRZero(h, ke)
	if err != nil {
		db.Close()
		return nil, err
	}
	for i := range h {
		h[i] = 0
	}

	log.Infof("store: opened %s", path)
	return &Store{db: db, path: path, storageKey: storageKey}, nil
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the file path this store was opened from.
func (s *Store) Path() string {
	return s.path
}

// DataNodeBody decodes and returns the account-info body stored in the
// data node (id=2) at Init time.
func (s *Store) DataNodeBody() (*wire.Object, error) {
	n, err := s.GetNode(Query{"id": NodeData}, false, false)
	if err != nil {
		return nil, err
	}
	if n == nil || len(n.Body) == 0 {
		return wire.NewObject(), nil
	}
	v, err := wire.Decode(n.Body)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*wire.Object)
	if !ok {
		return nil, fmt.Errorf("store: data node body is not an object")
	}
	return obj, nil
}

// isReserved reports whether id is one of the always-unencrypted
// bootstrap ids (1..4).
func isReserved(id uint32) bool {
	return id >= NodeRoot && id <= NodeConfig
}

// encryptField CTR-encrypts v under the storage key with a zero counter,
// the node store's fixed encryption discipline: deterministic so
// that ciphertext equality implies plaintext equality.
func (s *Store) encryptField(v []byte) ([]byte, error) {
	return crypto.EncryptCTRZero(s.storageKey, v)
}

func (s *Store) decryptField(v []byte) ([]byte, error) {
	return crypto.DecryptCTRZero(s.storageKey, v)
}
