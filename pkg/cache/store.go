package cache

import (
    lru "github.com/hashicorp/golang-lru/v2"

    "github.com/amirimatin/go-groupchat/pkg/observability/metrics"
)

// DefaultSize bounds each store when no size is configured.
const DefaultSize = 4096

// Observer is told about stored and dropped records. Calls happen outside
// store locks and must not block.
type Observer interface {
    GroupStored(info GroupInfo)
    GroupRemoved(gid int64)
    MembersStored(gid int64, members []MemberInfo)
    MemberRemoved(gid, uid int64)
    RosterRemoved(gid int64)
}

// GroupStore maps group id to its cached record.
type GroupStore struct {
    lru *lru.Cache[int64, *Record[GroupInfo]]
    obs Observer
}

// NewGroupStore returns a bounded store. obs may be nil.
func NewGroupStore(size int, obs Observer) (*GroupStore, error) {
    if size <= 0 { size = DefaultSize }
    s := &GroupStore{obs: obs}
    c, err := lru.NewWithEvict[int64, *Record[GroupInfo]](size, func(gid int64, _ *Record[GroupInfo]) {
        metrics.CacheEvictions.WithLabelValues("group").Inc()
        if s.obs != nil { s.obs.GroupRemoved(gid) }
    })
    if err != nil { return nil, err }
    s.lru = c
    return s, nil
}

// Get returns the record for gid, or nil.
func (s *GroupStore) Get(gid int64) *Record[GroupInfo] {
    r, _ := s.lru.Get(gid)
    return r
}

// Put stores rec under gid.
func (s *GroupStore) Put(gid int64, rec *Record[GroupInfo]) {
    s.lru.Add(gid, rec)
    metrics.CacheEntries.WithLabelValues("group").Set(float64(s.lru.Len()))
    if s.obs != nil { s.obs.GroupStored(rec.Snapshot()) }
}

// Delete drops gid.
func (s *GroupStore) Delete(gid int64) {
    s.lru.Remove(gid)
    metrics.CacheEntries.WithLabelValues("group").Set(float64(s.lru.Len()))
}

func (s *GroupStore) Len() int { return s.lru.Len() }

// Keys returns the cached group ids, oldest first.
func (s *GroupStore) Keys() []int64 { return s.lru.Keys() }

// MemberStore maps group id to its cached roster.
type MemberStore struct {
    lru *lru.Cache[int64, *Roster]
    obs Observer
}

// NewMemberStore returns a bounded store. obs may be nil.
func NewMemberStore(size int, obs Observer) (*MemberStore, error) {
    if size <= 0 { size = DefaultSize }
    s := &MemberStore{obs: obs}
    c, err := lru.NewWithEvict[int64, *Roster](size, func(gid int64, _ *Roster) {
        metrics.CacheEvictions.WithLabelValues("roster").Inc()
        if s.obs != nil { s.obs.RosterRemoved(gid) }
    })
    if err != nil { return nil, err }
    s.lru = c
    return s, nil
}

// Get returns the roster for gid, or nil.
func (s *MemberStore) Get(gid int64) *Roster {
    r, _ := s.lru.Get(gid)
    return r
}

// Has reports whether a roster is cached for gid without touching recency.
func (s *MemberStore) Has(gid int64) bool { return s.lru.Contains(gid) }

// Member returns the cached member record, or nil.
func (s *MemberStore) Member(gid, uid int64) *Record[MemberInfo] {
    r := s.Get(gid)
    if r == nil { return nil }
    return r.Get(uid)
}

// Put stores r under gid.
func (s *MemberStore) Put(gid int64, r *Roster) {
    s.lru.Add(gid, r)
    metrics.CacheEntries.WithLabelValues("roster").Set(float64(s.lru.Len()))
    if s.obs != nil { s.obs.MembersStored(gid, r.List()) }
}

// Changed reports an in-place update of one member to the observer.
func (s *MemberStore) Changed(gid int64, rec *Record[MemberInfo]) {
    if s.obs != nil { s.obs.MembersStored(gid, []MemberInfo{rec.Snapshot()}) }
}

// RemoveMember drops uid from the cached roster of gid. It returns the
// removed record and whether it existed.
func (s *MemberStore) RemoveMember(gid, uid int64) (*Record[MemberInfo], bool) {
    r := s.Get(gid)
    if r == nil { return nil, false }
    rec, ok := r.Delete(uid)
    if ok && s.obs != nil { s.obs.MemberRemoved(gid, uid) }
    return rec, ok
}

// Delete drops the roster for gid.
func (s *MemberStore) Delete(gid int64) {
    s.lru.Remove(gid)
    metrics.CacheEntries.WithLabelValues("roster").Set(float64(s.lru.Len()))
}

func (s *MemberStore) Len() int { return s.lru.Len() }
