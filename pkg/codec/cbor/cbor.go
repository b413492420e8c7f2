// Package cbor implements the codec interfaces on top of CBOR. Trees and
// legacy structs are integer-keyed CBOR maps; wrapper envelopes are keyasint
// structs.
package cbor

import (
    "errors"
    "fmt"

    "github.com/fxamacker/cbor/v2"

    "github.com/amirimatin/go-groupchat/pkg/codec"
)

var ErrNotMap = errors.New("cbor: top-level value is not a map")

// Codec implements codec.Codec and codec.StructCodec.
type Codec struct {
    em cbor.EncMode
    dm cbor.DecMode
}

// New returns a Codec using canonical (sorted, deterministic) encoding.
func New() (*Codec, error) {
    em, err := cbor.CanonicalEncOptions().EncMode()
    if err != nil { return nil, err }
    dm, err := cbor.DecOptions{}.DecMode()
    if err != nil { return nil, err }
    return &Codec{em: em, dm: dm}, nil
}

// MustNew is New for package-level wiring and tests.
func MustNew() *Codec {
    c, err := New()
    if err != nil { panic(err) }
    return c
}

var (
    _ codec.Codec       = (*Codec)(nil)
    _ codec.StructCodec = (*Codec)(nil)
)

func (c *Codec) Encode(t codec.Tree) ([]byte, error) {
    return c.em.Marshal(prepare(t))
}

func (c *Codec) Decode(b []byte) (codec.Tree, error) {
    if len(b) == 0 { return codec.Tree{}, nil }
    var v any
    if err := c.dm.Unmarshal(b, &v); err != nil { return nil, err }
    t, ok := normalize(v).(codec.Tree)
    if !ok { return nil, ErrNotMap }
    return t, nil
}

// wrapper is the legacy request/response envelope.
type wrapper struct {
    Servant string `cbor:"1,keyasint"`
    Method  string `cbor:"2,keyasint"`
    Name    string `cbor:"3,keyasint"`
    Body    []byte `cbor:"4,keyasint"`
}

func (c *Codec) EncodeStruct(s codec.Struct) ([]byte, error) {
    return c.em.Marshal(prepare(s))
}

func (c *Codec) EncodeWrapper(servant, method, name string, body []byte) ([]byte, error) {
    return c.em.Marshal(wrapper{Servant: servant, Method: method, Name: name, Body: body})
}

// WrapperName returns the servant, method and struct name of an encoded
// wrapper. Backends use it to route legacy requests.
func (c *Codec) WrapperName(b []byte) (servant, method, name string, err error) {
    var w wrapper
    if err = c.dm.Unmarshal(b, &w); err != nil { return "", "", "", err }
    return w.Servant, w.Method, w.Name, nil
}

func (c *Codec) DecodeWrapper(b []byte) (codec.Tree, error) {
    var w wrapper
    if err := c.dm.Unmarshal(b, &w); err != nil { return nil, fmt.Errorf("cbor: wrapper: %w", err) }
    return c.Decode(w.Body)
}

// prepare rewrites Structs into integer-keyed maps so nesting survives the
// round trip, dropping nil fields.
func prepare(v any) any {
    switch x := v.(type) {
    case codec.Struct:
        m := make(map[int]any, len(x))
        for i, f := range x {
            if f == nil { continue }
            m[i] = prepare(f)
        }
        return m
    case codec.Tree:
        m := make(map[int]any, len(x))
        for k, f := range x {
            if f == nil { continue }
            m[k] = prepare(f)
        }
        return m
    case map[int]any:
        return prepare(codec.Tree(x))
    case []any:
        out := make([]any, len(x))
        for i, f := range x { out[i] = prepare(f) }
        return out
    case []codec.Tree:
        out := make([]any, len(x))
        for i, f := range x { out[i] = prepare(f) }
        return out
    }
    return v
}

// normalize converts generic decoder output into codec types: maps with
// integer keys become Trees, lists are walked.
func normalize(v any) any {
    switch x := v.(type) {
    case map[any]any:
        t := make(codec.Tree, len(x))
        for k, f := range x {
            switch kk := k.(type) {
            case uint64:
                t[int(kk)] = normalize(f)
            case int64:
                t[int(kk)] = normalize(f)
            }
        }
        return t
    case []any:
        for i, f := range x { x[i] = normalize(f) }
        return x
    }
    return v
}
