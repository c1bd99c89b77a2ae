// Package store is the encrypted node store: a single SQLite file holding
// one "nodes" table, with per-field AES-CTR encryption and a small typed
// schema layered over a flat node primitive.
package store

// NodeType tags the role a node plays. Only the first four ids are
// positionally reserved; every other node is addressed by query, not id.
type NodeType uint32

const (
	TypeRoot      NodeType = 1
	TypeData      NodeType = 2
	TypeVFS       NodeType = 3
	TypeConfig    NodeType = 4
	TypeContact   NodeType = 10
	TypeRequest   NodeType = 11
	TypeDirectory NodeType = 12
	TypeHistory   NodeType = 13
	TypeMessage   NodeType = 14
	TypeResource  NodeType = 15
)

// Reserved node ids, always present and always stored unencrypted.
const (
	NodeRoot   uint32 = 1
	NodeData   uint32 = 2
	NodeVFS    uint32 = 3
	NodeConfig uint32 = 4
)

// StorageVersion is written into the root node's u1 slot at init time.
const StorageVersion int32 = 1

const schemaDDL = `
CREATE TABLE IF NOT EXISTS nodes (
	id     INTEGER PRIMARY KEY,
	time   INTEGER NOT NULL,
	type   INTEGER NOT NULL,
	parent INTEGER NOT NULL,
	name   TEXT NOT NULL DEFAULT '',
	user1  INTEGER NOT NULL DEFAULT 0,
	user2  INTEGER NOT NULL DEFAULT 0,
	user3  TEXT NOT NULL DEFAULT '',
	user4  TEXT NOT NULL DEFAULT '',
	head   BLOB,
	body   BLOB
);
CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent);
CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(type);
CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(name);
`

// Node is a row in the node table, the universal persistence primitive.
type Node struct {
	ID     uint32
	Time   int64
	Type   NodeType
	Parent uint32
	Name   string
	User1  int32
	User2  int32
	User3  string
	User4  string
	Head   []byte
	Body   []byte
}
