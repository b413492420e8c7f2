package cache

import "sync"

// Roster is the cached member list of one group.
type Roster struct {
    mu      sync.RWMutex
    members map[int64]*Record[MemberInfo]
}

func NewRoster() *Roster {
    return &Roster{members: make(map[int64]*Record[MemberInfo])}
}

func (r *Roster) Get(uid int64) *Record[MemberInfo] {
    r.mu.RLock()
    defer r.mu.RUnlock()
    return r.members[uid]
}

func (r *Roster) Set(uid int64, rec *Record[MemberInfo]) {
    r.mu.Lock()
    r.members[uid] = rec
    r.mu.Unlock()
}

func (r *Roster) Delete(uid int64) (*Record[MemberInfo], bool) {
    r.mu.Lock()
    defer r.mu.Unlock()
    rec, ok := r.members[uid]
    delete(r.members, uid)
    return rec, ok
}

func (r *Roster) Len() int {
    r.mu.RLock()
    defer r.mu.RUnlock()
    return len(r.members)
}

// Merge applies p to the record for uid, creating it when absent. A member
// whose uid equals ownerID is forced to the owner role.
func (r *Roster) Merge(gid, uid int64, p MemberPatch, ownerID int64) *Record[MemberInfo] {
    r.mu.Lock()
    rec, ok := r.members[uid]
    if !ok {
        rec = NewRecord(MemberInfo{GroupID: gid, UserID: uid})
        r.members[uid] = rec
    }
    r.mu.Unlock()
    rec.Update(func(m *MemberInfo) {
        p.Apply(m)
        if ownerID != 0 && uid == ownerID { m.Role = Owner }
    })
    return rec
}

// Snapshot returns a copy of every member.
func (r *Roster) Snapshot() map[int64]MemberInfo {
    r.mu.RLock()
    defer r.mu.RUnlock()
    out := make(map[int64]MemberInfo, len(r.members))
    for uid, rec := range r.members {
        out[uid] = rec.Snapshot()
    }
    return out
}

// List returns a copy of every member in no particular order.
func (r *Roster) List() []MemberInfo {
    r.mu.RLock()
    defer r.mu.RUnlock()
    out := make([]MemberInfo, 0, len(r.members))
    for _, rec := range r.members {
        out = append(out, rec.Snapshot())
    }
    return out
}
