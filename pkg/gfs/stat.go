package gfs

import (
    "encoding/hex"
    "strings"

    "github.com/amirimatin/go-groupchat/pkg/codec"
)

// BaseStat holds the attributes shared by files and directories. Directory
// ids start with "/".
type BaseStat struct {
    FID        string `json:"fid"`
    PID        string `json:"pid"`
    Name       string `json:"name"`
    UserID     int64  `json:"user_id"`
    CreateTime int64  `json:"create_time"`
    IsDir      bool   `json:"is_dir"`
}

// FileStat describes a stored file.
type FileStat struct {
    BaseStat
    Size          int64  `json:"size"`
    BusID         int64  `json:"busid"`
    MD5           string `json:"md5"`
    SHA1          string `json:"sha1"`
    Duration      int64  `json:"duration"`
    DownloadTimes int64  `json:"download_times"`
}

// DirStat describes a directory.
type DirStat struct {
    BaseStat
    FileCount int64 `json:"file_count"`
}

// Stat is a FileStat or a DirStat.
type Stat interface {
    Base() BaseStat
}

func (s FileStat) Base() BaseStat { return s.BaseStat }
func (s DirStat) Base() BaseStat  { return s.BaseStat }

// Usage is the space and file-count quota of a group.
type Usage struct {
    Total        int64 `json:"total"`
    Used         int64 `json:"used"`
    Free         int64 `json:"free"`
    FileCount    int64 `json:"file_count"`
    MaxFileCount int64 `json:"max_file_count"`
}

// Download is a resolved download location.
type Download struct {
    Name     string `json:"name"`
    URL      string `json:"url"`
    Size     int64  `json:"size"`
    MD5      string `json:"md5"`
    Duration int64  `json:"duration"`
    FID      string `json:"fid"`
}

func dirStat(t codec.Tree) DirStat {
    return DirStat{
        BaseStat: BaseStat{
            FID:        t.String(1),
            PID:        t.String(2),
            Name:       t.String(3),
            CreateTime: t.Int(4),
            UserID:     t.Int(6),
            IsDir:      true,
        },
        FileCount: t.Int(8),
    }
}

func fileStat(t codec.Tree) FileStat {
    return FileStat{
        BaseStat: BaseStat{
            FID:        strings.TrimPrefix(t.String(1), "/"),
            PID:        t.String(16),
            Name:       t.String(2),
            CreateTime: t.Int(6),
            UserID:     t.Int(15),
        },
        BusID:         t.Int(4),
        Size:          t.Int(5),
        MD5:           hex.EncodeToString(t.Bytes(12)),
        SHA1:          hex.EncodeToString(t.Bytes(10)),
        Duration:      t.Int(7),
        DownloadTimes: t.Int(9),
    }
}
