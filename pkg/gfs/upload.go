package gfs

import (
    "bytes"
    "context"
    "crypto/md5"
    "crypto/rand"
    "crypto/sha1"
    "encoding/binary"
    "encoding/hex"
    "errors"
    "io"
    "os"
    "path/filepath"
    "strconv"

    "github.com/amirimatin/go-groupchat/pkg/codec"
    "github.com/amirimatin/go-groupchat/pkg/internal/logutil"
    "github.com/amirimatin/go-groupchat/pkg/observability/metrics"
    "github.com/amirimatin/go-groupchat/pkg/observability/tracing"
    "github.com/amirimatin/go-groupchat/pkg/rpc"
    "github.com/amirimatin/go-groupchat/pkg/transport"
)

var ErrEmptySource = errors.New("gfs: upload source has neither data nor path")

// blobCommand is the large-binary channel command id for group files.
const blobCommand = 71

const devicePath = "/storage/emulated/0/Pictures/files/s/"

// Source is the content of an upload: in-memory bytes or a local file.
type Source struct {
    Data []byte
    Path string
}

func FromBytes(b []byte) Source   { return Source{Data: b} }
func FromFile(path string) Source { return Source{Path: path} }

type digest struct {
    size int64
    md5  []byte
    sha1 []byte
}

func (s Source) digest() (digest, error) {
    if s.Path == "" {
        if s.Data == nil { return digest{}, ErrEmptySource }
        m := md5.Sum(s.Data)
        h := sha1.Sum(s.Data)
        return digest{size: int64(len(s.Data)), md5: m[:], sha1: h[:]}, nil
    }
    f, err := os.Open(s.Path)
    if err != nil { return digest{}, err }
    defer f.Close()
    m, h := md5.New(), sha1.New()
    n, err := io.Copy(io.MultiWriter(m, h), f)
    if err != nil { return digest{}, err }
    return digest{size: n, md5: m.Sum(nil), sha1: h.Sum(nil)}, nil
}

func (s Source) open() (io.ReadCloser, error) {
    if s.Path == "" { return io.NopCloser(bytes.NewReader(s.Data)), nil }
    return os.Open(s.Path)
}

func (s Source) defaultName(d digest) string {
    if s.Path != "" { return filepath.Base(s.Path) }
    return "file" + hex.EncodeToString(d.md5)
}

// Upload stores src under directory pid. An empty pid means the root and an
// empty name is derived from the source. The transfer is skipped when the
// server already holds the content.
func (fs *FS) Upload(ctx context.Context, src Source, pid, name string, progress transport.ProgressFunc) (st FileStat, err error) {
    defer observe("upload", &err)
    ctx, end := tracing.StartSpan(ctx, "gfs.upload")
    defer end()
    if pid == "" { pid = "/" }
    d, err := src.digest()
    if err != nil { return FileStat{}, err }
    if name == "" { name = src.defaultName(d) }

    rsp, err := fs.c.Oidb(ctx, "OidbSvc.0x6d6_0", codec.Tree{1: codec.Tree{
        1: fs.gid, 2: 0, 3: 102, 4: 5,
        5: pid, 6: name, 7: devicePath + name,
        8: d.size, 9: d.sha1, 11: d.md5, 15: 1,
    }})
    if err != nil { return FileStat{}, err }
    r := body(rsp).Sub(1)
    if err := rpc.CheckStatus(r); err != nil { return FileStat{}, err }

    if r.Truthy(10) {
        metrics.GfsDedup.Inc()
        logutil.Debugf(fs.logger, "gfs: %s already stored in group %d, skipping transfer", name, fs.gid)
    } else if err := fs.transfer(ctx, src, d, name, r, progress); err != nil {
        return FileStat{}, err
    }
    return fs.feed(ctx, r.String(7), r.Int(6))
}

func (fs *FS) transfer(ctx context.Context, src Source, d digest, name string, r codec.Tree, progress transport.ProgressFunc) error {
    ext, err := fs.c.Codec.Encode(fs.uploadExt(d, name, r))
    if err != nil { return err }
    rc, err := src.open()
    if err != nil { return err }
    defer rc.Close()
    meta := transport.BlobMeta{CommandID: blobCommand, MD5: d.md5, Size: d.size, Ext: ext}
    if err := fs.c.Session.UploadBlob(ctx, rc, meta, progress); err != nil { return err }
    metrics.GfsUploadBytes.Add(float64(d.size))
    return nil
}

func (fs *FS) uploadExt(d digest, name string, r codec.Tree) codec.Tree {
    return codec.Tree{
        1: 100, 2: 1, 3: 0,
        100: codec.Tree{
            100: codec.Tree{1: r[6], 100: fs.c.Uin(), 200: fs.gid, 400: fs.gid},
            200: codec.Tree{100: d.size, 200: d.md5, 300: d.sha1, 600: r[7], 700: r[9]},
            300: codec.Tree{100: 2, 200: strconv.FormatInt(fs.c.Session.SubID(), 10), 300: 2, 400: "9e9c09dc", 600: 4},
            400: codec.Tree{100: name},
            500: codec.Tree{200: codec.Tree{1: codec.Tree{1: 1, 2: r[12]}, 2: r[14]}},
        },
    }
}

func (fs *FS) feed(ctx context.Context, fid string, busid int64) (FileStat, error) {
    rsp, err := fs.c.Oidb(ctx, "OidbSvc.0x6d9_4", codec.Tree{5: codec.Tree{
        1: fs.gid, 2: 4,
        3: codec.Tree{1: busid, 2: fid, 3: randInt32(), 5: 1},
    }})
    if err != nil { return FileStat{}, err }
    r := body(rsp).Sub(5)
    if err := rpc.CheckStatus(r); err != nil { return FileStat{}, err }
    r = r.Sub(4)
    if err := rpc.CheckStatus(r); err != nil { return FileStat{}, err }
    return fs.resolve(ctx, r.String(3))
}

func randInt32() int32 {
    var b [4]byte
    _, _ = rand.Read(b[:])
    return int32(binary.BigEndian.Uint32(b[:]))
}
