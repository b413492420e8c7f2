package codec

// Tree is a decoded tag/value message. Values are integers, strings, byte
// slices, nested Trees, or []any lists of those.
type Tree map[int]any

// Struct is a positional legacy RPC struct: element i is encoded with tag i.
// Nil elements are omitted on the wire. Nested Struct values encode as nested
// structs; other slices encode as lists.
type Struct []any

// Codec converts between Tree and the generic tag/value wire format.
type Codec interface {
    Encode(t Tree) ([]byte, error)
    Decode(b []byte) (Tree, error)
}

// StructCodec handles the legacy RPC-struct format. Decoded structs come back
// as Trees keyed by tag; lists come back as []any.
type StructCodec interface {
    EncodeStruct(s Struct) ([]byte, error)
    EncodeWrapper(servant, method, name string, body []byte) ([]byte, error)
    DecodeWrapper(b []byte) (Tree, error)
}

// Has reports whether tag is present.
func (t Tree) Has(tag int) bool {
    if t == nil { return false }
    _, ok := t[tag]
    return ok
}

// Lookup returns the integer at tag and whether it was present and numeric.
func (t Tree) Lookup(tag int) (int64, bool) {
    if t == nil { return 0, false }
    return toInt(t[tag])
}

// Int returns the integer at tag, or 0.
func (t Tree) Int(tag int) int64 {
    v, _ := t.Lookup(tag)
    return v
}

// Uint32 returns the low 32 bits of the integer at tag.
func (t Tree) Uint32(tag int) uint32 { return uint32(t.Int(tag)) }

// Eq reports whether tag is present and equals want.
func (t Tree) Eq(tag int, want int64) bool {
    v, ok := t.Lookup(tag)
    return ok && v == want
}

// String returns the value at tag as a string. Byte slices are converted,
// integers are not.
func (t Tree) String(tag int) string {
    if t == nil { return "" }
    switch v := t[tag].(type) {
    case string:
        return v
    case []byte:
        return string(v)
    }
    return ""
}

// Bytes returns the value at tag as bytes.
func (t Tree) Bytes(tag int) []byte {
    if t == nil { return nil }
    switch v := t[tag].(type) {
    case []byte:
        return v
    case string:
        return []byte(v)
    }
    return nil
}

// Truthy reports whether tag holds a non-zero number, a non-empty string or
// byte slice, or a nested value.
func (t Tree) Truthy(tag int) bool {
    if t == nil { return false }
    switch v := t[tag].(type) {
    case nil:
        return false
    case string:
        return v != ""
    case []byte:
        return len(v) > 0
    default:
        if n, ok := toInt(v); ok { return n != 0 }
        return true
    }
}

// Sub returns the nested tree at tag, or nil.
func (t Tree) Sub(tag int) Tree {
    if t == nil { return nil }
    return AsTree(t[tag])
}

// List returns the list at tag. A single non-list value is wrapped, since
// servers collapse one-element repeated fields.
func (t Tree) List(tag int) []any {
    if t == nil { return nil }
    v, ok := t[tag]
    if !ok || v == nil { return nil }
    if l, ok := v.([]any); ok { return l }
    return []any{v}
}

// Subs returns the nested trees in the list at tag, skipping anything else.
func (t Tree) Subs(tag int) []Tree {
    var out []Tree
    for _, v := range t.List(tag) {
        if s := AsTree(v); s != nil { out = append(out, s) }
    }
    return out
}

// AsTree converts v to a Tree if it is one.
func AsTree(v any) Tree {
    switch m := v.(type) {
    case Tree:
        return m
    case map[int]any:
        return Tree(m)
    }
    return nil
}

func toInt(v any) (int64, bool) {
    switch n := v.(type) {
    case int:
        return int64(n), true
    case int8:
        return int64(n), true
    case int16:
        return int64(n), true
    case int32:
        return int64(n), true
    case int64:
        return n, true
    case uint:
        return int64(n), true
    case uint8:
        return int64(n), true
    case uint16:
        return int64(n), true
    case uint32:
        return int64(n), true
    case uint64:
        return int64(n), true
    case bool:
        if n { return 1, true }
        return 0, true
    }
    return 0, false
}
