package gfs

import (
    "context"
    "crypto/md5"
    "encoding/hex"
    "os"
    "path/filepath"
    "testing"

    "github.com/amirimatin/go-groupchat/pkg/codec"
    "github.com/amirimatin/go-groupchat/pkg/codec/cbor"
    "github.com/amirimatin/go-groupchat/pkg/errcode"
    "github.com/amirimatin/go-groupchat/pkg/rpc"
    "github.com/amirimatin/go-groupchat/pkg/transport"
    "github.com/amirimatin/go-groupchat/pkg/transport/loopback"
)

const gid = 123456

var cb = cbor.MustNew()

type backend struct {
    t *testing.T
    s *loopback.Session
}

func newFS(t *testing.T) (*FS, *backend) {
    t.Helper()
    s := loopback.New(10001)
    c, err := rpc.New(s, cb, cb)
    if err != nil { t.Fatalf("caller: %v", err) }
    return New(c, gid, nil), &backend{t: t, s: s}
}

// oidb serves cmd with fn, which receives the decoded request body and
// returns the service payload.
func (b *backend) oidb(cmd string, fn func(req codec.Tree) codec.Tree) {
    b.s.Handle(cmd, func(_ context.Context, _ string, raw []byte) ([]byte, error) {
        env, err := cb.Decode(raw)
        if err != nil { return nil, err }
        req, err := cb.Decode(env.Bytes(4))
        if err != nil { return nil, err }
        inner, err := cb.Encode(fn(req))
        if err != nil { return nil, err }
        return cb.Encode(codec.Tree{3: 0, 4: inner})
    })
}

func fileTree(fid, name string) codec.Tree {
    return codec.Tree{1: "/" + fid, 16: "/", 2: name, 4: 102, 5: 2048, 12: []byte{0xab, 0xcd}, 10: []byte{0x01}, 6: 1700000000, 7: 0, 15: 10001, 9: 3}
}

func (b *backend) resolvable(files map[string]string) {
    b.oidb("OidbSvc.0x6d8_0", func(req codec.Tree) codec.Tree {
        fid := req.Sub(1).String(4)
        name, ok := files[fid]
        if !ok { return codec.Tree{1: codec.Tree{1: -1, 2: "file not found"}} }
        return codec.Tree{1: codec.Tree{1: 0, 4: fileTree(fid, name)}}
    })
}

func TestDF(t *testing.T) {
    fs, b := newFS(t)
    b.oidb("OidbSvc.0x6d8_3", func(req codec.Tree) codec.Tree {
        if req.Sub(4).Int(1) != gid { t.Errorf("bad gid in %v", req) }
        return codec.Tree{4: codec.Tree{4: 1000, 5: 400}}
    })
    b.oidb("OidbSvc.0x6d8_2", func(codec.Tree) codec.Tree { return codec.Tree{3: codec.Tree{4: 7, 6: 100}} })
    u, err := fs.DF(context.Background())
    if err != nil { t.Fatalf("df: %v", err) }
    if u != (Usage{Total: 1000, Used: 400, Free: 600, FileCount: 7, MaxFileCount: 100}) { t.Fatalf("got %+v", u) }
}

func TestDirMixedEntries(t *testing.T) {
    fs, b := newFS(t)
    b.oidb("OidbSvc.0x6d8_1", func(req codec.Tree) codec.Tree {
        q := req.Sub(2)
        if q.String(3) != "/" || q.Int(5) != 100 || !q.Eq(13, 0) { t.Errorf("bad dir request %v", q) }
        return codec.Tree{2: codec.Tree{1: 0, 5: []any{
            codec.Tree{2: codec.Tree{1: "/d1", 2: "/", 3: "docs", 8: 4}},
            codec.Tree{3: fileTree("f1", "a.txt")},
        }}}
    })
    entries, err := fs.Dir(context.Background(), "", 0, 0)
    if err != nil { t.Fatalf("dir: %v", err) }
    if len(entries) != 2 { t.Fatalf("got %d entries", len(entries)) }
    d, ok := entries[0].(DirStat)
    if !ok || d.FID != "/d1" || d.Name != "docs" || d.FileCount != 4 || !d.IsDir { t.Fatalf("dir entry %+v", entries[0]) }
    f, ok := entries[1].(FileStat)
    if !ok || f.FID != "f1" || f.MD5 != "abcd" || f.BusID != 102 || f.Size != 2048 { t.Fatalf("file entry %+v", entries[1]) }
}

func TestDirEmpty(t *testing.T) {
    fs, b := newFS(t)
    b.oidb("OidbSvc.0x6d8_1", func(codec.Tree) codec.Tree { return codec.Tree{2: codec.Tree{1: 0}} })
    entries, err := fs.Dir(context.Background(), "/d1", 0, 10)
    if err != nil { t.Fatalf("dir: %v", err) }
    if entries == nil || len(entries) != 0 { t.Fatalf("want empty non-nil slice, got %#v", entries) }
}

func TestDirServerError(t *testing.T) {
    fs, b := newFS(t)
    b.oidb("OidbSvc.0x6d8_1", func(codec.Tree) codec.Tree { return codec.Tree{2: codec.Tree{1: -403, 2: "denied"}} })
    _, err := fs.Dir(context.Background(), "/", 0, 0)
    if errcode.CodeOf(err) != -403 { t.Fatalf("got %v", err) }
}

func TestStatFallsBackToRootListing(t *testing.T) {
    fs, b := newFS(t)
    b.resolvable(nil)
    b.oidb("OidbSvc.0x6d8_1", func(codec.Tree) codec.Tree {
        return codec.Tree{2: codec.Tree{5: []any{
            codec.Tree{2: codec.Tree{1: "/d1", 3: "a"}},
            codec.Tree{2: codec.Tree{1: "/d2", 3: "b"}},
            codec.Tree{3: fileTree("f", "x")},
            codec.Tree{2: codec.Tree{1: "/d3", 3: "c"}},
        }}}
    })
    st, err := fs.Stat(context.Background(), "/d2")
    if err != nil { t.Fatalf("stat: %v", err) }
    if st.Base().Name != "b" || !st.Base().IsDir { t.Fatalf("got %+v", st) }

    // Scanning stops at the first file.
    _, err = fs.Stat(context.Background(), "/d3")
    if errcode.CodeOf(err) != -1 { t.Fatalf("want original resolve error, got %v", err) }
}

func TestStatFile(t *testing.T) {
    fs, b := newFS(t)
    b.resolvable(map[string]string{"f1": "a.txt"})
    st, err := fs.Stat(context.Background(), "f1")
    if err != nil { t.Fatalf("stat: %v", err) }
    f := st.(FileStat)
    if f.FID != "f1" || f.PID != "/" || f.DownloadTimes != 3 { t.Fatalf("got %+v", f) }
}

func TestRmAndRenameResolveFilesOnly(t *testing.T) {
    fs, b := newFS(t)
    b.resolvable(map[string]string{"f1": "a.txt"})
    b.oidb("OidbSvc.0x6d6_3", func(req codec.Tree) codec.Tree {
        q := req.Sub(4)
        if q.Int(3) != 102 || q.String(4) != "/" || q.String(5) != "f1" { t.Errorf("bad rm request %v", q) }
        return codec.Tree{4: codec.Tree{1: 0}}
    })
    b.oidb("OidbSvc.0x6d7_1", func(req codec.Tree) codec.Tree { return codec.Tree{2: codec.Tree{}} })
    b.oidb("OidbSvc.0x6d7_2", func(req codec.Tree) codec.Tree {
        if req.Sub(3).String(4) != "renamed" { t.Errorf("bad rename %v", req) }
        return codec.Tree{3: codec.Tree{1: 0}}
    })
    ctx := context.Background()
    if err := fs.Rm(ctx, "f1"); err != nil { t.Fatalf("rm file: %v", err) }
    if err := fs.Rm(ctx, "/d1"); err != nil { t.Fatalf("rm dir: %v", err) }
    if err := fs.Rename(ctx, "/d1", "renamed"); err != nil { t.Fatalf("rename dir: %v", err) }
    if n := len(b.s.Calls("OidbSvc.0x6d8_0")); n != 1 { t.Fatalf("resolved %d times, want 1", n) }
}

func TestMv(t *testing.T) {
    fs, b := newFS(t)
    b.resolvable(map[string]string{"f1": "a.txt"})
    b.oidb("OidbSvc.0x6d6_5", func(req codec.Tree) codec.Tree {
        if req.Sub(6).String(6) != "/d9" { t.Errorf("bad mv %v", req) }
        return codec.Tree{6: codec.Tree{1: -5, 2: "no such dir"}}
    })
    if err := fs.Mv(context.Background(), "f1", "/d9"); errcode.CodeOf(err) != -5 { t.Fatalf("got %v", err) }
}

func TestDownloadURL(t *testing.T) {
    fs, b := newFS(t)
    b.resolvable(map[string]string{"f1": "my file.txt"})
    b.oidb("OidbSvc.0x6d6_2", func(codec.Tree) codec.Tree {
        return codec.Tree{3: codec.Tree{1: 0, 4: "1.2.3.4", 6: []byte{0xde, 0xad}}}
    })
    d, err := fs.Download(context.Background(), "f1")
    if err != nil { t.Fatalf("download: %v", err) }
    if want := "http://1.2.3.4/ftn_handler/dead/?fname=my+file.txt"; d.URL != want { t.Fatalf("url %q want %q", d.URL, want) }
    if d.Name != "my file.txt" || d.Size != 2048 || d.FID != "f1" { t.Fatalf("got %+v", d) }
}

func (b *backend) uploadable(dedup bool) *codec.Tree {
    var negotiated codec.Tree
    b.oidb("OidbSvc.0x6d6_0", func(req codec.Tree) codec.Tree {
        negotiated = req.Sub(1)
        r := codec.Tree{1: 0, 6: 102, 7: "/new-fid", 9: []byte("k"), 12: []byte("h"), 14: []byte("t")}
        if dedup { r[10] = 1 }
        return codec.Tree{1: r}
    })
    b.oidb("OidbSvc.0x6d9_4", func(req codec.Tree) codec.Tree {
        q := req.Sub(5).Sub(3)
        if q.Int(1) != 102 || q.String(2) != "/new-fid" { b.t.Errorf("bad feed %v", q) }
        return codec.Tree{5: codec.Tree{1: 0, 4: codec.Tree{1: 0, 3: "new-fid"}}}
    })
    b.resolvable(map[string]string{"new-fid": "up"})
    return &negotiated
}

func TestUploadDeduplicated(t *testing.T) {
    fs, b := newFS(t)
    neg := b.uploadable(true)
    data := []byte("hello world")
    st, err := fs.Upload(context.Background(), FromBytes(data), "", "", nil)
    if err != nil { t.Fatalf("upload: %v", err) }
    if st.FID != "new-fid" { t.Fatalf("got %+v", st) }
    if len(b.s.Uploads()) != 0 { t.Fatalf("dedup upload must not transfer") }
    sum := md5.Sum(data)
    if got := (*neg).String(6); got != "file"+hex.EncodeToString(sum[:]) { t.Fatalf("default name %q", got) }
    if (*neg).String(5) != "/" || (*neg).Int(8) != int64(len(data)) { t.Fatalf("negotiation %v", *neg) }
}

func TestUploadTransfersFile(t *testing.T) {
    fs, b := newFS(t)
    neg := b.uploadable(false)
    path := filepath.Join(t.TempDir(), "report.pdf")
    data := []byte("%PDF-1.4 fake")
    if err := os.WriteFile(path, data, 0o600); err != nil { t.Fatalf("write: %v", err) }
    var last float64
    _, err := fs.Upload(context.Background(), FromFile(path), "/d1", "", func(p float64) { last = p })
    if err != nil { t.Fatalf("upload: %v", err) }
    if (*neg).String(6) != "report.pdf" || (*neg).String(7) != devicePath+"report.pdf" { t.Fatalf("negotiation %v", *neg) }
    ups := b.s.Uploads()
    if len(ups) != 1 { t.Fatalf("got %d uploads", len(ups)) }
    sum := md5.Sum(data)
    u := ups[0]
    if string(u.Data) != string(data) || u.Meta.CommandID != 71 || u.Meta.Size != int64(len(data)) || string(u.Meta.MD5) != string(sum[:]) {
        t.Fatalf("bad upload %+v", u.Meta)
    }
    ext, err := cb.Decode(u.Meta.Ext)
    if err != nil { t.Fatalf("ext: %v", err) }
    if ext.Sub(100).Sub(100).Int(100) != 10001 || ext.Sub(100).Sub(400).String(100) != "report.pdf" { t.Fatalf("ext %v", ext) }
    if last != 100 { t.Fatalf("progress = %v", last) }
}

func TestUploadEmptySource(t *testing.T) {
    fs, _ := newFS(t)
    if _, err := fs.Upload(context.Background(), Source{}, "", "", nil); err != ErrEmptySource { t.Fatalf("got %v", err) }
}

var _ transport.ProgressFunc = func(float64) {}
