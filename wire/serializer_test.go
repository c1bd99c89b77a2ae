package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripObject(t *testing.T) {
	obj := NewObject().
		Set("requestId", int32(42)).
		Set("name", "alice").
		Set("ok", true).
		Set("nested", NewObject().Set("x", int32(1)))

	enc, err := Encode(obj)
	require.NoError(t, err)

	dec, err := Decode(enc)
	require.NoError(t, err)

	got, ok := dec.(*Object)
	require.True(t, ok)
	require.Equal(t, []string{"requestId", "name", "ok", "nested"}, got.Keys())

	id, ok := got.GetInt32("requestId")
	require.True(t, ok)
	require.Equal(t, int32(42), id)

	name, ok := got.GetString("name")
	require.True(t, ok)
	require.Equal(t, "alice", name)

	nested, ok := got.GetObject("nested")
	require.True(t, ok)
	x, ok := nested.GetInt32("x")
	require.True(t, ok)
	require.Equal(t, int32(1), x)
}

func TestRoundTripArray(t *testing.T) {
	arr := []Value{int32(1), "two", true, nil}
	enc, err := Encode(arr)
	require.NoError(t, err)

	dec, err := Decode(enc)
	require.NoError(t, err)
	got, ok := dec.([]Value)
	require.True(t, ok)
	require.Equal(t, arr, got)
}

func TestRoundTripRawByteRun(t *testing.T) {
	obj := NewObject().Set("blob", []byte{0x00, 0xff, 0x10, 0x02})
	enc, err := Encode(obj)
	require.NoError(t, err)

	dec, err := Decode(enc)
	require.NoError(t, err)
	got := dec.(*Object)
	raw, ok := got.GetRaw("blob")
	require.True(t, ok)
	require.Equal(t, []byte{0x00, 0xff, 0x10, 0x02}, raw)
}

func TestDecodeNonObjectArrayRootFails(t *testing.T) {
	enc, err := Encode(int32(5))
	require.NoError(t, err)
	_, err = Decode(enc)
	require.Error(t, err)
}

func TestInsertionOrderPreservedOnReplace(t *testing.T) {
	obj := NewObject().Set("a", int32(1)).Set("b", int32(2)).Set("a", int32(3))
	require.Equal(t, []string{"a", "b"}, obj.Keys())
	v, _ := obj.GetInt32("a")
	require.Equal(t, int32(3), v)
}

func TestDecodeTruncatedFails(t *testing.T) {
	obj := NewObject().Set("a", int32(1))
	enc, err := Encode(obj)
	require.NoError(t, err)
	_, err = Decode(enc[:len(enc)-2])
	require.Error(t, err)
}
