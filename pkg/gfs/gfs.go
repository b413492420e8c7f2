// Package gfs is the client for a group's remote file store: a flat root
// with one level of directories, resolved by file id.
package gfs

import (
    "context"
    "encoding/hex"
    "fmt"
    "log"
    "net/url"
    "strings"

    "golang.org/x/sync/errgroup"

    "github.com/amirimatin/go-groupchat/pkg/codec"
    "github.com/amirimatin/go-groupchat/pkg/observability/metrics"
    "github.com/amirimatin/go-groupchat/pkg/rpc"
)

// DefaultLimit is the page size used by Dir when none is given.
const DefaultLimit = 100

// FS is the file store of one group.
type FS struct {
    c      *rpc.Caller
    gid    int64
    logger *log.Logger
}

// New returns the file store for gid.
func New(c *rpc.Caller, gid int64, logger *log.Logger) *FS {
    if logger == nil { logger = log.Default() }
    return &FS{c: c, gid: gid, logger: logger}
}

func (fs *FS) GroupID() int64 { return fs.gid }

func observe(op string, err *error) {
    metrics.GfsOps.WithLabelValues(op, metrics.Result(*err)).Inc()
}

// body returns the service payload of an Oidb response.
func body(rsp codec.Tree) codec.Tree { return rsp.Sub(4) }

// DF returns space and file-count usage.
func (fs *FS) DF(ctx context.Context) (u Usage, err error) {
    defer observe("df", &err)
    g, gctx := errgroup.WithContext(ctx)
    g.Go(func() error {
        rsp, err := fs.c.Oidb(gctx, "OidbSvc.0x6d8_3", codec.Tree{4: codec.Tree{1: fs.gid, 2: 3}})
        if err != nil { return err }
        r := body(rsp).Sub(4)
        u.Total, u.Used = r.Int(4), r.Int(5)
        u.Free = u.Total - u.Used
        return nil
    })
    g.Go(func() error {
        rsp, err := fs.c.Oidb(gctx, "OidbSvc.0x6d8_2", codec.Tree{3: codec.Tree{1: fs.gid, 2: 2}})
        if err != nil { return err }
        r := body(rsp).Sub(3)
        u.FileCount, u.MaxFileCount = r.Int(4), r.Int(6)
        return nil
    })
    if err = g.Wait(); err != nil { return Usage{}, err }
    return u, nil
}

func (fs *FS) resolve(ctx context.Context, fid string) (FileStat, error) {
    rsp, err := fs.c.Oidb(ctx, "OidbSvc.0x6d8_0", codec.Tree{1: codec.Tree{1: fs.gid, 2: 0, 4: fid}})
    if err != nil { return FileStat{}, err }
    r := body(rsp).Sub(1)
    if err := rpc.CheckStatus(r); err != nil { return FileStat{}, err }
    return fileStat(r.Sub(4)), nil
}

// Stat returns the attributes of a file or directory. Directories are
// looked up on the first page of the root listing only.
func (fs *FS) Stat(ctx context.Context, fid string) (st Stat, err error) {
    defer observe("stat", &err)
    file, rerr := fs.resolve(ctx, fid)
    if rerr == nil { return file, nil }
    entries, derr := fs.Dir(ctx, "/", 0, DefaultLimit)
    if derr != nil { return nil, rerr }
    for _, e := range entries {
        d, ok := e.(DirStat)
        if !ok { break }
        if d.FID == fid { return d, nil }
    }
    return nil, rerr
}

// Dir lists pid starting at start. Zero values select "/", 0 and
// DefaultLimit.
func (fs *FS) Dir(ctx context.Context, pid string, start, limit int) (out []Stat, err error) {
    defer observe("dir", &err)
    if pid == "" { pid = "/" }
    if limit <= 0 { limit = DefaultLimit }
    if start < 0 { start = 0 }
    rsp, err := fs.c.Oidb(ctx, "OidbSvc.0x6d8_1", codec.Tree{2: codec.Tree{1: fs.gid, 2: 1, 3: pid, 5: limit, 13: start}})
    if err != nil { return nil, err }
    r := body(rsp).Sub(2)
    if err := rpc.CheckStatus(r); err != nil { return nil, err }
    out = []Stat{}
    for _, e := range r.Subs(5) {
        if f := e.Sub(3); f != nil {
            out = append(out, fileStat(f))
        } else if d := e.Sub(2); d != nil {
            out = append(out, dirStat(d))
        }
    }
    return out, nil
}

// Ls is an alias of Dir.
func (fs *FS) Ls(ctx context.Context, pid string, start, limit int) ([]Stat, error) {
    return fs.Dir(ctx, pid, start, limit)
}

// Mkdir creates a directory in the root.
func (fs *FS) Mkdir(ctx context.Context, name string) (d DirStat, err error) {
    defer observe("mkdir", &err)
    rsp, err := fs.c.Oidb(ctx, "OidbSvc.0x6d7_0", codec.Tree{1: codec.Tree{1: fs.gid, 2: 0, 3: "/", 4: name}})
    if err != nil { return DirStat{}, err }
    r := body(rsp).Sub(1)
    if err := rpc.CheckStatus(r); err != nil { return DirStat{}, err }
    return dirStat(r.Sub(4)), nil
}

func isDir(fid string) bool { return strings.HasPrefix(fid, "/") }

// Rm deletes a file, or a directory with everything in it.
func (fs *FS) Rm(ctx context.Context, fid string) (err error) {
    defer observe("rm", &err)
    var r codec.Tree
    if !isDir(fid) {
        file, err := fs.resolve(ctx, fid)
        if err != nil { return err }
        rsp, err := fs.c.Oidb(ctx, "OidbSvc.0x6d6_3", codec.Tree{4: codec.Tree{1: fs.gid, 2: 3, 3: file.BusID, 4: file.PID, 5: file.FID}})
        if err != nil { return err }
        r = body(rsp).Sub(4)
    } else {
        rsp, err := fs.c.Oidb(ctx, "OidbSvc.0x6d7_1", codec.Tree{2: codec.Tree{1: fs.gid, 2: 1, 3: fid}})
        if err != nil { return err }
        r = body(rsp).Sub(2)
    }
    return rpc.CheckStatus(r)
}

// Rename renames a file or directory.
func (fs *FS) Rename(ctx context.Context, fid, name string) (err error) {
    defer observe("rename", &err)
    var r codec.Tree
    if !isDir(fid) {
        file, err := fs.resolve(ctx, fid)
        if err != nil { return err }
        rsp, err := fs.c.Oidb(ctx, "OidbSvc.0x6d6_4", codec.Tree{5: codec.Tree{1: fs.gid, 2: 4, 3: file.BusID, 4: file.FID, 5: file.PID, 6: name}})
        if err != nil { return err }
        r = body(rsp).Sub(5)
    } else {
        rsp, err := fs.c.Oidb(ctx, "OidbSvc.0x6d7_2", codec.Tree{3: codec.Tree{1: fs.gid, 2: 2, 3: fid, 4: name}})
        if err != nil { return err }
        r = body(rsp).Sub(3)
    }
    return rpc.CheckStatus(r)
}

// Mv moves a file into directory pid. Directories cannot be moved.
func (fs *FS) Mv(ctx context.Context, fid, pid string) (err error) {
    defer observe("mv", &err)
    file, err := fs.resolve(ctx, fid)
    if err != nil { return err }
    rsp, err := fs.c.Oidb(ctx, "OidbSvc.0x6d6_5", codec.Tree{6: codec.Tree{1: fs.gid, 2: 5, 3: file.BusID, 4: file.FID, 5: file.PID, 6: pid}})
    if err != nil { return err }
    return rpc.CheckStatus(body(rsp).Sub(6))
}

// Download resolves a download location for a file.
func (fs *FS) Download(ctx context.Context, fid string) (d Download, err error) {
    defer observe("download", &err)
    file, err := fs.resolve(ctx, fid)
    if err != nil { return Download{}, err }
    rsp, err := fs.c.Oidb(ctx, "OidbSvc.0x6d6_2", codec.Tree{3: codec.Tree{1: fs.gid, 2: 2, 3: file.BusID, 4: file.FID}})
    if err != nil { return Download{}, err }
    r := body(rsp).Sub(3)
    if err := rpc.CheckStatus(r); err != nil { return Download{}, err }
    return Download{
        Name:     file.Name,
        URL:      fmt.Sprintf("http://%s/ftn_handler/%s/?fname=%s", r.String(4), hex.EncodeToString(r.Bytes(6)), url.QueryEscape(file.Name)),
        Size:     file.Size,
        MD5:      file.MD5,
        Duration: file.Duration,
        FID:      file.FID,
    }, nil
}
