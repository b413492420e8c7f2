package cbor

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/amirimatin/go-groupchat/pkg/codec"
)

func TestTreeRoundTrip(t *testing.T) {
    c := MustNew()
    in := codec.Tree{
        1: codec.Tree{2: codec.Tree{1: 123456}},
        3: codec.Tree{1: codec.Tree{2: []any{codec.Tree{1: codec.Tree{1: "hi"}}}}},
        4: 0xffff,
        5: uint32(0xdeadbeef),
        6: []byte{0x01, 0x02},
        7: -1,
    }
    b, err := c.Encode(in)
    require.NoError(t, err)
    out, err := c.Decode(b)
    require.NoError(t, err)

    assert.Equal(t, int64(123456), out.Sub(1).Sub(2).Int(1))
    assert.Equal(t, "hi", out.Sub(3).Sub(1).Subs(2)[0].Sub(1).String(1))
    assert.Equal(t, uint32(0xdeadbeef), out.Uint32(5))
    assert.Equal(t, []byte{0x01, 0x02}, out.Bytes(6))
    assert.Equal(t, int64(-1), out.Int(7))
}

func TestCanonicalEncodingIsDeterministic(t *testing.T) {
    c := MustNew()
    a, err := c.Encode(codec.Tree{3: 1, 1: 2, 2: 3})
    require.NoError(t, err)
    b, err := c.Encode(codec.Tree{2: 3, 3: 1, 1: 2})
    require.NoError(t, err)
    assert.Equal(t, a, b)
}

func TestDecodeEmptyIsEmptyTree(t *testing.T) {
    out, err := MustNew().Decode(nil)
    require.NoError(t, err)
    assert.Empty(t, out)
}

func TestDecodeRejectsNonMap(t *testing.T) {
    c := MustNew()
    b, err := c.em.Marshal([]int{1, 2})
    require.NoError(t, err)
    _, err = c.Decode(b)
    assert.ErrorIs(t, err, ErrNotMap)
}

func TestStructWrapperRoundTrip(t *testing.T) {
    c := MustNew()
    member := make(codec.Struct, 31)
    member[0] = 10001
    member[4] = "nick"
    member[18] = 1
    body, err := c.EncodeStruct(codec.Struct{nil, 0, nil, []any{member}, 0})
    require.NoError(t, err)
    w, err := c.EncodeWrapper("svc", "Method", "RSP", body)
    require.NoError(t, err)

    servant, method, name, err := c.WrapperName(w)
    require.NoError(t, err)
    assert.Equal(t, "svc", servant)
    assert.Equal(t, "Method", method)
    assert.Equal(t, "RSP", name)

    out, err := c.DecodeWrapper(w)
    require.NoError(t, err)
    assert.False(t, out.Has(0), "nil fields are omitted")
    assert.True(t, out.Eq(4, 0))
    list := out.Subs(3)
    require.Len(t, list, 1)
    assert.Equal(t, int64(10001), list[0].Int(0))
    assert.Equal(t, "nick", list[0].String(4))
    assert.Equal(t, int64(1), list[0].Int(18))
    assert.False(t, list[0].Has(8))
}
