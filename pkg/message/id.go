// Package message holds the group message identity codec, the rich-content
// converter contract and the push correlation used to confirm sends.
package message

import (
    "encoding/base64"
    "encoding/binary"
    "errors"
)

var ErrBadID = errors.New("message: malformed message id")

const idLen = 21

// ID identifies one group message.
type ID struct {
    GroupID uint32
    UserID  uint32
    Seq     uint32
    Rand    uint32
    Time    uint32
    // PktNum is the number of packets the message was split into.
    PktNum int
}

// Ref is what a recall needs to name a message.
type Ref struct {
    Seq    uint32
    Rand   uint32
    PktNum int
}

func (id ID) Ref() Ref { return Ref{Seq: id.Seq, Rand: id.Rand, PktNum: id.PktNum} }

// FormatGroupID encodes id as base64 over 21 big-endian bytes:
// gid, uid, seq, rand, time (u32 each) and pktnum (u8).
func FormatGroupID(id ID) string {
    b := make([]byte, idLen)
    binary.BigEndian.PutUint32(b[0:], id.GroupID)
    binary.BigEndian.PutUint32(b[4:], id.UserID)
    binary.BigEndian.PutUint32(b[8:], id.Seq)
    binary.BigEndian.PutUint32(b[12:], id.Rand)
    binary.BigEndian.PutUint32(b[16:], id.Time)
    b[20] = uint8(id.PktNum)
    return base64.StdEncoding.EncodeToString(b)
}

// ParseGroupID decodes a message id. A zero pktnum reads as 1.
func ParseGroupID(s string) (ID, error) {
    b, err := base64.StdEncoding.DecodeString(s)
    if err != nil || len(b) != idLen { return ID{}, ErrBadID }
    id := ID{
        GroupID: binary.BigEndian.Uint32(b[0:]),
        UserID:  binary.BigEndian.Uint32(b[4:]),
        Seq:     binary.BigEndian.Uint32(b[8:]),
        Rand:    binary.BigEndian.Uint32(b[12:]),
        Time:    binary.BigEndian.Uint32(b[16:]),
        PktNum:  int(b[20]),
    }
    if id.PktNum == 0 { id.PktNum = 1 }
    return id, nil
}

// RefFromID parses a message id into a recall reference.
func RefFromID(s string) (Ref, error) {
    id, err := ParseGroupID(s)
    if err != nil { return Ref{}, err }
    return id.Ref(), nil
}

// Ret is the result of a confirmed send.
type Ret struct {
    MessageID string `json:"message_id"`
    Seq       uint32 `json:"seq"`
    Rand      uint32 `json:"rand"`
    Time      uint32 `json:"time"`
    PktNum    int    `json:"pktnum,omitempty"`
}

func (r Ret) Ref() Ref { return Ref{Seq: r.Seq, Rand: r.Rand, PktNum: r.PktNum} }

// RetFromID builds a Ret from a confirmed message id.
func RetFromID(s string) (Ret, error) {
    id, err := ParseGroupID(s)
    if err != nil { return Ret{}, err }
    return Ret{MessageID: s, Seq: id.Seq, Rand: id.Rand, Time: id.Time, PktNum: id.PktNum}, nil
}
