package message

import (
    "context"
    "errors"
    "fmt"
    "unicode/utf8"

    "github.com/amirimatin/go-groupchat/pkg/codec"
)

var ErrUnsupportedContent = errors.New("message: unsupported content")

// Anonymous is the identity stamped on an anonymous group message.
type Anonymous struct {
    Name       string `json:"name"`
    ID         int64  `json:"id"`
    ID2        int64  `json:"id2"`
    ExpireTime int64  `json:"expire_time"`
    Color      string `json:"color"`
}

// Payload is converted message content ready for the wire.
type Payload interface {
    // Rich is the rich-body tree sent at tag 3.1.
    Rich() codec.Tree
    // Brief is a one-line human readable summary.
    Brief() string
    // Length is the text length used to pick the confirmation timeout.
    Length() int
    // Fragments splits the content for the fragmented fallback send.
    Fragments() []codec.Tree
    Anonymize(a Anonymous)
}

// Converter turns user content into a Payload.
type Converter interface {
    Build(ctx context.Context, content any) (Payload, error)
}

// Raw is pre-built rich elements, passed through unchanged.
type Raw struct {
    Elems   []codec.Tree
    Summary string
}

// FragmentRunes is the text fragment size used by TextConverter.
const FragmentRunes = 80

// TextConverter handles plain text, fmt.Stringer and Raw content.
type TextConverter struct{}

var _ Converter = TextConverter{}

func (TextConverter) Build(_ context.Context, content any) (Payload, error) {
    switch v := content.(type) {
    case string:
        return newText(v), nil
    case []byte:
        return newText(string(v)), nil
    case fmt.Stringer:
        return newText(v.String()), nil
    case Raw:
        return &raw{elems: append([]codec.Tree(nil), v.Elems...), brief: v.Summary}, nil
    }
    return nil, fmt.Errorf("%w: %T", ErrUnsupportedContent, content)
}

func textElem(s string) codec.Tree { return codec.Tree{1: codec.Tree{1: s}} }

func anonElem(a Anonymous) codec.Tree {
    return codec.Tree{21: codec.Tree{1: 2, 2: a.ID, 3: a.Name, 4: a.ID2, 5: a.ExpireTime, 6: a.Color}}
}

type text struct {
    s    string
    anon *Anonymous
}

func newText(s string) *text { return &text{s: s} }

func (t *text) head() []any {
    if t.anon == nil { return nil }
    return []any{anonElem(*t.anon)}
}

func (t *text) Rich() codec.Tree {
    return codec.Tree{2: append(t.head(), textElem(t.s))}
}

func (t *text) Brief() string { return t.s }
func (t *text) Length() int   { return utf8.RuneCountInString(t.s) }

func (t *text) Fragments() []codec.Tree {
    runes := []rune(t.s)
    var out []codec.Tree
    for i := 0; i < len(runes) || i == 0; i += FragmentRunes {
        end := min(i+FragmentRunes, len(runes))
        out = append(out, codec.Tree{2: append(t.head(), textElem(string(runes[i:end])))})
        if end == len(runes) { break }
    }
    return out
}

func (t *text) Anonymize(a Anonymous) { t.anon = &a }

type raw struct {
    elems []codec.Tree
    brief string
    anon  *Anonymous
}

func (r *raw) list() []any {
    out := make([]any, 0, len(r.elems)+1)
    if r.anon != nil { out = append(out, anonElem(*r.anon)) }
    for _, e := range r.elems { out = append(out, e) }
    return out
}

func (r *raw) Rich() codec.Tree        { return codec.Tree{2: r.list()} }
func (r *raw) Brief() string           { return r.brief }
func (r *raw) Length() int             { return utf8.RuneCountInString(r.brief) }
func (r *raw) Fragments() []codec.Tree { return []codec.Tree{r.Rich()} }
func (r *raw) Anonymize(a Anonymous)   { r.anon = &a }
