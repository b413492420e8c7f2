// Package cache holds the process-local entity cache: group and member
// records, the per-group roster, and the identity registry that keeps one
// handle per cached record.
package cache

// Sex of a group member.
type Sex string

const (
    Male       Sex = "male"
    Female     Sex = "female"
    UnknownSex Sex = "unknown"
)

// Role of a group member.
type Role string

const (
    Owner  Role = "owner"
    Admin  Role = "admin"
    Member Role = "member"
)

// GroupInfo is the cached profile of a group.
type GroupInfo struct {
    GroupID           int64  `json:"group_id"`
    Name              string `json:"group_name"`
    MemberCount       int    `json:"member_count"`
    MaxMemberCount    int    `json:"max_member_count"`
    OwnerID           int64  `json:"owner_id"`
    LastJoinTime      int64  `json:"last_join_time"`
    LastSentTime      int64  `json:"last_sent_time,omitempty"`
    ShutupTimeWhole   int64  `json:"shutup_time_whole"`
    ShutupTimeMe      int64  `json:"shutup_time_me"`
    CreateTime        int64  `json:"create_time,omitempty"`
    Grade             int    `json:"grade,omitempty"`
    MaxAdminCount     int    `json:"max_admin_count,omitempty"`
    ActiveMemberCount int    `json:"active_member_count,omitempty"`
    // UpdateTime is the unix time of the last refresh attempt.
    UpdateTime int64 `json:"update_time"`
}

// MemberInfo is the cached profile of one group member.
type MemberInfo struct {
    GroupID         int64  `json:"group_id"`
    UserID          int64  `json:"user_id"`
    Nickname        string `json:"nickname"`
    Card            string `json:"card"`
    Sex             Sex    `json:"sex"`
    Age             int    `json:"age"`
    Area            string `json:"area,omitempty"`
    JoinTime        int64  `json:"join_time"`
    LastSentTime    int64  `json:"last_sent_time"`
    Level           int    `json:"level"`
    Rank            string `json:"rank,omitempty"`
    Role            Role   `json:"role"`
    Title           string `json:"title"`
    TitleExpireTime int64  `json:"title_expire_time"`
    ShutupTime      int64  `json:"shutup_time"`
    UpdateTime      int64  `json:"update_time"`
}

// Some returns a pointer to v, for building patches.
func Some[T any](v T) *T { return &v }

// GroupPatch carries the fields present in one server response. Nil fields
// leave the cached value untouched.
type GroupPatch struct {
    Name              *string
    MemberCount       *int
    MaxMemberCount    *int
    OwnerID           *int64
    LastJoinTime      *int64
    LastSentTime      *int64
    ShutupTimeWhole   *int64
    ShutupTimeMe      *int64
    CreateTime        *int64
    Grade             *int
    MaxAdminCount     *int
    ActiveMemberCount *int
    UpdateTime        *int64
}

// Apply writes the present fields into g.
func (p GroupPatch) Apply(g *GroupInfo) {
    set(&g.Name, p.Name)
    set(&g.MemberCount, p.MemberCount)
    set(&g.MaxMemberCount, p.MaxMemberCount)
    set(&g.OwnerID, p.OwnerID)
    set(&g.LastJoinTime, p.LastJoinTime)
    set(&g.LastSentTime, p.LastSentTime)
    set(&g.ShutupTimeWhole, p.ShutupTimeWhole)
    set(&g.ShutupTimeMe, p.ShutupTimeMe)
    set(&g.CreateTime, p.CreateTime)
    set(&g.Grade, p.Grade)
    set(&g.MaxAdminCount, p.MaxAdminCount)
    set(&g.ActiveMemberCount, p.ActiveMemberCount)
    set(&g.UpdateTime, p.UpdateTime)
}

// MemberPatch is the member counterpart of GroupPatch.
type MemberPatch struct {
    Nickname        *string
    Card            *string
    Sex             *Sex
    Age             *int
    Area            *string
    JoinTime        *int64
    LastSentTime    *int64
    Level           *int
    Rank            *string
    Role            *Role
    Title           *string
    TitleExpireTime *int64
    ShutupTime      *int64
    UpdateTime      *int64
}

// Apply writes the present fields into m.
func (p MemberPatch) Apply(m *MemberInfo) {
    set(&m.Nickname, p.Nickname)
    set(&m.Card, p.Card)
    set(&m.Sex, p.Sex)
    set(&m.Age, p.Age)
    set(&m.Area, p.Area)
    set(&m.JoinTime, p.JoinTime)
    set(&m.LastSentTime, p.LastSentTime)
    set(&m.Level, p.Level)
    set(&m.Rank, p.Rank)
    set(&m.Role, p.Role)
    set(&m.Title, p.Title)
    set(&m.TitleExpireTime, p.TitleExpireTime)
    set(&m.ShutupTime, p.ShutupTime)
    set(&m.UpdateTime, p.UpdateTime)
}

func set[T any](dst *T, src *T) {
    if src != nil { *dst = *src }
}
