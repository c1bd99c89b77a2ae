package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Query maps a column name to a literal value, or to a slice of literal
// values which expands to an OR group on that column. The generated
// predicate AND's together one clause per column.
type Query map[string]interface{}

// Order maps a column name to +1 (ascending) or -1 (descending).
type Order map[string]int

// textColumns are the columns that carry application data of variable
// shape (name, opaque metadata). numericColumns are kept in plaintext
// even under encrypt=true: encrypting them would defeat ORDER BY time
// and index lookups on parent/type, which the typed helpers below
// (LatestHistory, GetMessages) depend on.
var textColumns = map[string]bool{
	"name": true, "user3": true, "user4": true, "head": true, "body": true,
}

var allColumns = []string{"id", "time", "type", "parent", "name", "user1", "user2", "user3", "user4", "head", "body"}

// encryptable reports whether column is subject to the encryption
// discipline at all (id and the other reserved-id exemptions are
// handled by the caller, not here).
func encryptable(column string) bool {
	return textColumns[column]
}

func (s *Store) encryptColumnValue(column string, v interface{}, encrypt bool) (interface{}, error) {
	if !encrypt || !encryptable(column) {
		return v, nil
	}
	b, ok := v.([]byte)
	if !ok {
		if str, ok := v.(string); ok {
			b = []byte(str)
		} else {
			return nil, fmt.Errorf("store: cannot encrypt column %s of type %T", column, v)
		}
	}
	return s.encryptField(b)
}

func (s *Store) decryptColumnValue(column string, v []byte, decrypt bool) ([]byte, error) {
	if !decrypt || !encryptable(column) || v == nil {
		return v, nil
	}
	return s.decryptField(v)
}

// buildWhere renders q into a SQL WHERE fragment (without the "WHERE"
// keyword) and its bound arguments, applying the encryption discipline
// to literal values on encrypt-bound columns so that ciphertext
// equality is used where appropriate.
func (s *Store) buildWhere(q Query, encrypt bool) (string, []interface{}, error) {
	if len(q) == 0 {
		return "1=1", nil, nil
	}
	var clauses []string
	var args []interface{}
	for col, val := range q {
		literals, isGroup := val.([]interface{})
		if !isGroup {
			literals = []interface{}{val}
		}
		var orParts []string
		for _, lit := range literals {
			enc, err := s.encryptColumnValue(col, lit, encrypt)
			if err != nil {
				return "", nil, err
			}
			orParts = append(orParts, fmt.Sprintf("%s = ?", col))
			args = append(args, enc)
		}
		clauses = append(clauses, "("+strings.Join(orParts, " OR ")+")")
	}
	return strings.Join(clauses, " AND "), args, nil
}

func buildOrder(o Order) string {
	if len(o) == 0 {
		return ""
	}
	var parts []string
	for col, dir := range o {
		d := "ASC"
		if dir < 0 {
			d = "DESC"
		}
		parts = append(parts, fmt.Sprintf("%s %s", col, d))
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func resolveFields(fields []string) []string {
	if len(fields) == 0 {
		return allColumns
	}
	return fields
}

// AddNode inserts n, assigning a fresh id if n.ID is zero. encrypt
// applies the store's per-field encryption discipline; nodes with
// reserved ids (1..4) are always stored in plaintext regardless.
func (s *Store) AddNode(n *Node, encrypt bool) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if isReserved(n.ID) {
		encrypt = false
	}
	if n.Time == 0 {
		n.Time = time.Now().Unix()
	}

	name, err := s.encryptColumnValue("name", []byte(n.Name), encrypt)
	if err != nil {
		return 0, err
	}
	user3, err := s.encryptColumnValue("user3", []byte(n.User3), encrypt)
	if err != nil {
		return 0, err
	}
	user4, err := s.encryptColumnValue("user4", []byte(n.User4), encrypt)
	if err != nil {
		return 0, err
	}
	head, err := s.encryptColumnValue("head", n.Head, encrypt)
	if err != nil {
		return 0, err
	}
	body, err := s.encryptColumnValue("body", n.Body, encrypt)
	if err != nil {
		return 0, err
	}

	var res sql.Result
	if n.ID == 0 {
		res, err = s.db.Exec(
			`INSERT INTO nodes (time, type, parent, name, user1, user2, user3, user4, head, body)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.Time, n.Type, n.Parent, name, n.User1, n.User2, user3, user4, head, body,
		)
	} else {
		res, err = s.db.Exec(
			`INSERT INTO nodes (id, time, type, parent, name, user1, user2, user3, user4, head, body)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, n.Time, n.Type, n.Parent, name, n.User1, n.User2, user3, user4, head, body,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("store: insert failed: %w", err)
	}
	if n.ID != 0 {
		return n.ID, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint32(id), nil
}

// GetNode returns the first node matching q, or nil if none matched.
func (s *Store) GetNode(q Query, decrypt bool, secure bool) (*Node, error) {
	nodes, err := s.GetNodes(q, nil, nil, 1, 0, decrypt, secure)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes[0], nil
}

// GetNodes returns every node matching q. fields selects which columns
// are populated in the result; an empty fields list selects all of them.
// secure is accepted for interface symmetry; decrypted bodies are
// ordinary Go byte slices, since the locked arena's capacity is
// reserved for live in-flight message key material.
func (s *Store) GetNodes(q Query, order Order, fields []string, limit, offset int, decrypt bool, secure bool) ([]*Node, error) {
	where, args, err := s.buildWhere(q, decrypt)
	if err != nil {
		return nil, err
	}
	cols := resolveFields(fields)
	query := fmt.Sprintf("SELECT %s FROM nodes WHERE %s%s", strings.Join(cols, ", "), where, buildOrder(order))
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query failed: %w", err)
	}
	defer rows.Close()

	var out []*Node
	for rows.Next() {
		n := &Node{}
		dest := make([]interface{}, len(cols))
		scratch := make(map[string]interface{}, len(cols))
		for i, c := range cols {
			scratch[c] = new(interface{})
			dest[i] = scratch[c]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if err := populateNode(n, cols, scratch, s, isReservedQuery(q) || !decrypt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// isReservedQuery is a best-effort check used only to skip decryption
// when a caller queries by a literal reserved id; the node's own id
// column in the result is authoritative and re-checked in populateNode.
func isReservedQuery(q Query) bool {
	v, ok := q["id"]
	if !ok {
		return false
	}
	id, ok := v.(uint32)
	return ok && isReserved(id)
}

func populateNode(n *Node, cols []string, scratch map[string]interface{}, s *Store, skipDecrypt bool) error {
	for _, c := range cols {
		raw := *(scratch[c].(*interface{}))
		switch c {
		case "id":
			n.ID = toUint32(raw)
		case "time":
			n.Time = toInt64(raw)
		case "type":
			n.Type = NodeType(toUint32(raw))
		case "parent":
			n.Parent = toUint32(raw)
		case "user1":
			n.User1 = int32(toInt64(raw))
		case "user2":
			n.User2 = int32(toInt64(raw))
		case "name", "user3", "user4", "head", "body":
			b := toBytes(raw)
			decrypt := !skipDecrypt && !isReserved(n.ID)
			dec, err := s.decryptColumnValue(c, b, decrypt)
			if err != nil {
				return err
			}
			switch c {
			case "name":
				n.Name = string(dec)
			case "user3":
				n.User3 = string(dec)
			case "user4":
				n.User4 = string(dec)
			case "head":
				n.Head = dec
			case "body":
				n.Body = dec
			}
		}
	}
	return nil
}

func toUint32(v interface{}) uint32 {
	switch t := v.(type) {
	case int64:
		return uint32(t)
	case []byte:
		return uint32(toInt64(t))
	default:
		return 0
	}
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	default:
		return 0
	}
}

func toBytes(v interface{}) []byte {
	switch t := v.(type) {
	case []byte:
		return t
	case string:
		return []byte(t)
	case nil:
		return nil
	default:
		return nil
	}
}

// UpdateNode overwrites the named columns of the node matching q with
// the given values (column -> value), applying the encryption
// discipline the same way AddNode does.
func (s *Store) UpdateNode(q Query, values map[string]interface{}, encrypt bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var setParts []string
	var setArgs []interface{}
	for col, val := range values {
		enc, err := s.encryptColumnValue(col, val, encrypt)
		if err != nil {
			return err
		}
		setParts = append(setParts, fmt.Sprintf("%s = ?", col))
		setArgs = append(setArgs, enc)
	}
	where, whereArgs, err := s.buildWhere(q, encrypt)
	if err != nil {
		return err
	}
	args := append(setArgs, whereArgs...)
	query := fmt.Sprintf("UPDATE nodes SET %s WHERE %s", strings.Join(setParts, ", "), where)
	_, err = s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("store: update failed: %w", err)
	}
	return nil
}

// DeleteNode removes every node matching q.
func (s *Store) DeleteNode(q Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	where, args, err := s.buildWhere(q, false)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(fmt.Sprintf("DELETE FROM nodes WHERE %s", where), args...)
	if err != nil {
		return fmt.Errorf("store: delete failed: %w", err)
	}
	return nil
}

// Count returns the number of nodes matching q.
func (s *Store) Count(q Query) (int, error) {
	where, args, err := s.buildWhere(q, false)
	if err != nil {
		return 0, err
	}
	row := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM nodes WHERE %s", where), args...)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
