package cli

import (
    "bytes"
    "encoding/json"
    "strings"
    "testing"

    "github.com/spf13/cobra"

    "github.com/amirimatin/go-groupchat/pkg/cache"
    "github.com/amirimatin/go-groupchat/pkg/message"
)

func run(t *testing.T, args ...string) (string, error) {
    t.Helper()
    root := &cobra.Command{Use: "gchatctl", SilenceUsage: true, SilenceErrors: true}
    AddAll(root)
    var out bytes.Buffer
    root.SetOut(&out)
    root.SetErr(&out)
    root.SetArgs(append([]string{"--transport", "loopback", "--uin", "10001"}, args...))
    err := root.Execute()
    return out.String(), err
}

func TestInfoCommand(t *testing.T) {
    out, err := run(t, "info", "284840486")
    if err != nil { t.Fatalf("info: %v", err) }
    var info cache.GroupInfo
    if err := json.Unmarshal([]byte(out), &info); err != nil { t.Fatalf("decode %q: %v", out, err) }
    if info.Name != "demo group" || info.OwnerID != 20002 || info.MemberCount != 4 { t.Fatalf("info %+v", info) }
}

func TestMembersCommand(t *testing.T) {
    out, err := run(t, "members", "284840486")
    if err != nil { t.Fatalf("members: %v", err) }
    var list []cache.MemberInfo
    if err := json.Unmarshal([]byte(out), &list); err != nil { t.Fatalf("decode %q: %v", out, err) }
    if len(list) != 4 || list[0].UserID != 20002 { t.Fatalf("list %+v", list) }
    if list[1].Role != cache.Admin || list[2].Role != cache.Member { t.Fatalf("roles %+v", list) }
}

func TestSendCommand(t *testing.T) {
    out, err := run(t, "send", "284840486", "hello")
    if err != nil { t.Fatalf("send: %v", err) }
    var ret message.Ret
    if err := json.Unmarshal([]byte(out), &ret); err != nil { t.Fatalf("decode %q: %v", out, err) }
    id, err := message.ParseGroupID(ret.MessageID)
    if err != nil { t.Fatalf("message id: %v", err) }
    if id.GroupID != 284840486 || id.UserID != 10001 || id.Seq != ret.Seq { t.Fatalf("id %+v ret %+v", id, ret) }
}

func TestActionCommands(t *testing.T) {
    for _, args := range [][]string{
        {"kick", "284840486", "20005"},
        {"mute", "284840486", "20005", "--duration", "10m"},
        {"mute", "284840486"},
        {"admin", "284840486", "20004"},
    } {
        out, err := run(t, args...)
        if err != nil { t.Fatalf("%v: %v", args, err) }
        if !strings.Contains(out, `"ok": true`) { t.Fatalf("%v: %q", args, out) }
    }
}

func TestBadArguments(t *testing.T) {
    if _, err := run(t, "info", "abc"); err == nil { t.Fatalf("non-numeric gid accepted") }
    if _, err := run(t, "kick", "1"); err == nil { t.Fatalf("missing uid accepted") }
    root := &cobra.Command{Use: "gchatctl", SilenceUsage: true, SilenceErrors: true}
    AddAll(root)
    root.SetOut(&bytes.Buffer{})
    root.SetArgs([]string{"--transport", "smoke-signal", "--uin", "1", "info", "1"})
    if err := root.Execute(); err == nil { t.Fatalf("unknown transport accepted") }
}
