// Package wire implements the schema-less tagged value tree used for every
// on-wire and in-storage metadata blob, and the fixed packet frame layout
// that carries it.
//
// The encoding is deliberately not CBOR or any other general-purpose codec:
// it is this protocol's canonical byte format, so that storage cells and
// wire heads are directly comparable as ciphertext (see the store package's
// encryption discipline).
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// tag identifies the type of an encoded Value.
type tag byte

const (
	tagNull tag = iota
	tagBool
	tagInt32
	tagString
	tagObject
	tagArray
	tagRaw
)

// Value is anything the serializer can encode: nil, bool, int32, string,
// *Object, []Value, or []byte (a raw homogeneous-byte run).
type Value interface{}

// Object is an ordered string-keyed map. Insertion order is preserved
// through an encode/decode round trip.
type Object struct {
	keys []string
	vals map[string]Value
}

// NewObject returns an empty ordered map.
func NewObject() *Object {
	return &Object{vals: make(map[string]Value)}
}

// Set inserts or replaces key. First insertion fixes the key's position in
// iteration order; replacing an existing key keeps its original position.
func (o *Object) Set(key string, v Value) *Object {
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
	return o
}

// Get returns the value for key and whether it was present.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.vals[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.vals[key]
	return ok
}

// Keys returns the insertion-ordered key list. Callers must not mutate it.
func (o *Object) Keys() []string {
	return o.keys
}

// Len returns the number of keys.
func (o *Object) Len() int {
	return len(o.keys)
}

// GetString, GetInt32, GetBool, GetObject, GetArray, GetRaw are typed
// accessors returning the zero value and false on type mismatch or absence.

func (o *Object) GetString(key string) (string, bool) {
	v, ok := o.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (o *Object) GetInt32(key string) (int32, bool) {
	v, ok := o.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(int32)
	return n, ok
}

func (o *Object) GetBool(key string) (bool, bool) {
	v, ok := o.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func (o *Object) GetObject(key string) (*Object, bool) {
	v, ok := o.Get(key)
	if !ok {
		return nil, false
	}
	n, ok := v.(*Object)
	return n, ok
}

func (o *Object) GetArray(key string) ([]Value, bool) {
	v, ok := o.Get(key)
	if !ok {
		return nil, false
	}
	a, ok := v.([]Value)
	return a, ok
}

func (o *Object) GetRaw(key string) ([]byte, bool) {
	v, ok := o.Get(key)
	if !ok {
		return nil, false
	}
	switch r := v.(type) {
	case []byte:
		return r, true
	default:
		return nil, false
	}
}

// Encode serializes v to bytes. v must ultimately be (or contain) only
// null, bool, int32, string, *Object, []Value or []byte values.
func Encode(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v Value) error {
	switch t := v.(type) {
	case nil:
		buf.WriteByte(byte(tagNull))
	case bool:
		buf.WriteByte(byte(tagBool))
		if t {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case int32:
		buf.WriteByte(byte(tagInt32))
		writeU32(buf, uint32(t))
	case int:
		buf.WriteByte(byte(tagInt32))
		writeU32(buf, uint32(int32(t)))
	case string:
		buf.WriteByte(byte(tagString))
		writeU32(buf, uint32(len(t)))
		buf.WriteString(t)
	case []byte:
		buf.WriteByte(byte(tagRaw))
		writeU32(buf, uint32(len(t)))
		buf.Write(t)
	case *Object:
		buf.WriteByte(byte(tagObject))
		writeU32(buf, uint32(len(t.keys)))
		for _, k := range t.keys {
			writeU32(buf, uint32(len(k)))
			buf.WriteString(k)
			if err := encodeValue(buf, t.vals[k]); err != nil {
				return err
			}
		}
	case []Value:
		buf.WriteByte(byte(tagArray))
		writeU32(buf, uint32(len(t)))
		for _, e := range t {
			if err := encodeValue(buf, e); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("wire: unsupported value type %T", v)
	}
	return nil
}

func writeU32(buf *bytes.Buffer, n uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], n)
	buf.Write(b[:])
}

// Decode parses bytes produced by Encode. The root value must decode to an
// *Object or []Value; any other root type is an error.
func Decode(data []byte) (Value, error) {
	d := &decoder{buf: data}
	v, err := d.decodeValue()
	if err != nil {
		return nil, err
	}
	if d.off != len(d.buf) {
		return nil, fmt.Errorf("wire: %d trailing bytes after root value", len(d.buf)-d.off)
	}
	switch v.(type) {
	case *Object, []Value:
		return v, nil
	default:
		return nil, fmt.Errorf("wire: root value must be object or array, got %T", v)
	}
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) need(n int) error {
	if d.off+n > len(d.buf) {
		return fmt.Errorf("wire: truncated input, need %d bytes at offset %d (len %d)", n, d.off, len(d.buf))
	}
	return nil
}

func (d *decoder) readByte() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *decoder) readU32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	n := binary.LittleEndian.Uint32(d.buf[d.off : d.off+4])
	d.off += 4
	return n, nil
}

func (d *decoder) readString(n uint32) (string, error) {
	if err := d.need(int(n)); err != nil {
		return "", err
	}
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	return s, nil
}

func (d *decoder) readRaw(n uint32) ([]byte, error) {
	if err := d.need(int(n)); err != nil {
		return nil, err
	}
	r := make([]byte, n)
	copy(r, d.buf[d.off:d.off+int(n)])
	d.off += int(n)
	return r, nil
}

func (d *decoder) decodeValue() (Value, error) {
	t, err := d.readByte()
	if err != nil {
		return nil, err
	}
	switch tag(t) {
	case tagNull:
		return nil, nil
	case tagBool:
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case tagInt32:
		n, err := d.readU32()
		if err != nil {
			return nil, err
		}
		return int32(n), nil
	case tagString:
		n, err := d.readU32()
		if err != nil {
			return nil, err
		}
		return d.readString(n)
	case tagRaw:
		n, err := d.readU32()
		if err != nil {
			return nil, err
		}
		return d.readRaw(n)
	case tagObject:
		count, err := d.readU32()
		if err != nil {
			return nil, err
		}
		obj := NewObject()
		for i := uint32(0); i < count; i++ {
			klen, err := d.readU32()
			if err != nil {
				return nil, err
			}
			key, err := d.readString(klen)
			if err != nil {
				return nil, err
			}
			val, err := d.decodeValue()
			if err != nil {
				return nil, err
			}
			obj.Set(key, val)
		}
		return obj, nil
	case tagArray:
		count, err := d.readU32()
		if err != nil {
			return nil, err
		}
		arr := make([]Value, 0, count)
		for i := uint32(0); i < count; i++ {
			val, err := d.decodeValue()
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("wire: unknown tag byte 0x%02x", t)
	}
}
