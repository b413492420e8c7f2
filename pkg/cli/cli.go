// Package cli provides the gchatctl cobra commands. Services embedding the
// client can attach them to their own root with AddAll.
package cli

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "log"
    "os"
    "os/signal"
    "sort"
    "strconv"
    "syscall"
    "time"

    "github.com/spf13/cobra"

    "github.com/amirimatin/go-groupchat/pkg/bootstrap"
    "github.com/amirimatin/go-groupchat/pkg/cache"
    "github.com/amirimatin/go-groupchat/pkg/client"
    tracing "github.com/amirimatin/go-groupchat/pkg/observability/tracing"
    "github.com/amirimatin/go-groupchat/pkg/transport"
    gw "github.com/amirimatin/go-groupchat/pkg/transport/grpc"
)

// globals hold the persistent flags shared by every command.
type globals struct {
    config    string
    transport string
    natsURL   string
    gateway   string
    uin       int64
    trace     bool
}

// AddAll attaches the persistent flags and all gchatctl subcommands to root.
func AddAll(root *cobra.Command) {
    g := &globals{}
    pf := root.PersistentFlags()
    pf.StringVar(&g.config, "config", "", "YAML config file (GCHAT_* env vars override)")
    pf.StringVar(&g.transport, "transport", "", "backend transport: nats|grpc|loopback (loopback serves canned demo data)")
    pf.StringVar(&g.natsURL, "nats-url", "", "NATS server URL")
    pf.StringVar(&g.gateway, "gateway", "", "gRPC gateway address (host:port)")
    pf.Int64Var(&g.uin, "uin", 0, "account id")
    pf.BoolVar(&g.trace, "trace", false, "enable OpenTelemetry stdout tracing (dev)")

    root.AddCommand(newInfoCmd(g))
    root.AddCommand(newMembersCmd(g))
    root.AddCommand(newSendCmd(g))
    root.AddCommand(newRecallCmd(g))
    root.AddCommand(newMuteCmd(g))
    root.AddCommand(newKickCmd(g))
    root.AddCommand(newAdminCmd(g))
    root.AddCommand(newFSCmd(g))
    root.AddCommand(newWatchCmd(g))
    root.AddCommand(newGatewayCmd(g))
}

// load resolves the configuration: file and env first, then explicit flags.
func (g *globals) load(cmd *cobra.Command) (bootstrap.Config, error) {
    cfg, err := bootstrap.ReadConfig(g.config)
    if err != nil { return cfg, err }
    flags := cmd.Flags()
    if flags.Changed("transport") { cfg.Transport = g.transport }
    if flags.Changed("nats-url") { cfg.NATS.URL = g.natsURL }
    if flags.Changed("gateway") { cfg.Gateway.Addr = g.gateway }
    if flags.Changed("uin") { cfg.Uin = g.uin }
    if cfg.Transport == bootstrap.TransportLoopback {
        if cfg.Uin == 0 { cfg.Uin = 10001 }
        cfg.Session = DemoSession(cfg.Uin)
    }
    cfg.Logger = log.Default()
    return cfg, cfg.Validate()
}

// open builds a client for a one-shot command. The returned func releases it.
func (g *globals) open(cmd *cobra.Command) (*client.Client, func(), error) {
    cfg, err := g.load(cmd)
    if err != nil { return nil, nil, err }
    stopTrace := g.setupTracing()
    c, err := bootstrap.Build(cmd.Context(), cfg)
    if err != nil { stopTrace(); return nil, nil, err }
    return c, func() { _ = c.Close(); stopTrace() }, nil
}

func (g *globals) setupTracing() func() {
    if !g.trace { return func() {} }
    shutdown, err := tracing.Setup(true)
    if err != nil {
        log.Printf("tracing setup error: %v", err)
        return func() {}
    }
    return func() { _ = shutdown(context.Background()) }
}

func printJSON(w io.Writer, v any) error {
    enc := json.NewEncoder(w)
    enc.SetIndent("", "  ")
    return enc.Encode(v)
}

func parseID(s, what string) (int64, error) {
    v, err := strconv.ParseInt(s, 10, 64)
    if err != nil || v <= 0 { return 0, fmt.Errorf("invalid %s %q", what, s) }
    return v, nil
}

// groupArgs parses the leading <gid> and optional <uid> positional args.
func groupArgs(args []string) (gid, uid int64, err error) {
    gid, err = parseID(args[0], "group id")
    if err != nil || len(args) < 2 { return gid, 0, err }
    uid, err = parseID(args[1], "user id")
    return gid, uid, err
}

func result(w io.Writer, action string, ok bool) error {
    if !ok { return fmt.Errorf("%s rejected by server", action) }
    return printJSON(w, map[string]any{"action": action, "ok": true})
}

func newInfoCmd(g *globals) *cobra.Command {
    return &cobra.Command{
        Use:   "info <gid>",
        Short: "Fetch group info",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            gid, _, err := groupArgs(args)
            if err != nil { return err }
            c, done, err := g.open(cmd)
            if err != nil { return err }
            defer done()
            info, err := c.Group(gid).FetchInfo(cmd.Context())
            if err != nil { return err }
            return printJSON(cmd.OutOrStdout(), info)
        },
    }
}

func newMembersCmd(g *globals) *cobra.Command {
    var force bool
    cmd := &cobra.Command{
        Use:   "members <gid>",
        Short: "List group members",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            gid, _, err := groupArgs(args)
            if err != nil { return err }
            c, done, err := g.open(cmd)
            if err != nil { return err }
            defer done()
            roster, err := c.Group(gid).GetMemberList(cmd.Context(), force)
            if err != nil { return err }
            list := make([]cache.MemberInfo, 0, len(roster))
            for _, m := range roster { list = append(list, m) }
            sort.Slice(list, func(i, j int) bool { return list[i].UserID < list[j].UserID })
            return printJSON(cmd.OutOrStdout(), list)
        },
    }
    cmd.Flags().BoolVar(&force, "force", false, "bypass the cached roster")
    return cmd
}

func newSendCmd(g *globals) *cobra.Command {
    var (
        anonymous, discuss bool
    )
    cmd := &cobra.Command{
        Use:   "send <gid> <text>",
        Short: "Send a text message and wait for confirmation",
        Args:  cobra.ExactArgs(2),
        RunE: func(cmd *cobra.Command, args []string) error {
            gid, _, err := groupArgs(args[:1])
            if err != nil { return err }
            c, done, err := g.open(cmd)
            if err != nil { return err }
            defer done()
            ctx := cmd.Context()
            switch {
            case discuss:
                _, err = c.Discuss(gid).SendMessage(ctx, args[1])
                if err != nil { return err }
                return result(cmd.OutOrStdout(), "send", true)
            case anonymous:
                ret, err := c.Group(gid).SendAnonymous(ctx, args[1], nil)
                if err != nil { return err }
                return printJSON(cmd.OutOrStdout(), ret)
            default:
                ret, err := c.Group(gid).SendMessage(ctx, args[1])
                if err != nil { return err }
                return printJSON(cmd.OutOrStdout(), ret)
            }
        },
    }
    cmd.Flags().BoolVar(&anonymous, "anonymous", false, "send with the group's anonymous identity")
    cmd.Flags().BoolVar(&discuss, "discuss", false, "treat <gid> as a discussion id")
    return cmd
}

func newRecallCmd(g *globals) *cobra.Command {
    return &cobra.Command{
        Use:   "recall <gid> <message-id>",
        Short: "Recall a sent message",
        Args:  cobra.ExactArgs(2),
        RunE: func(cmd *cobra.Command, args []string) error {
            gid, _, err := groupArgs(args[:1])
            if err != nil { return err }
            c, done, err := g.open(cmd)
            if err != nil { return err }
            defer done()
            ok, err := c.Group(gid).RecallMessageID(cmd.Context(), args[1])
            if err != nil { return err }
            return result(cmd.OutOrStdout(), "recall", ok)
        },
    }
}

func newMuteCmd(g *globals) *cobra.Command {
    var duration time.Duration
    cmd := &cobra.Command{
        Use:   "mute <gid> [uid]",
        Short: "Mute a member, or the whole group when uid is omitted",
        Args:  cobra.RangeArgs(1, 2),
        RunE: func(cmd *cobra.Command, args []string) error {
            gid, uid, err := groupArgs(args)
            if err != nil { return err }
            c, done, err := g.open(cmd)
            if err != nil { return err }
            defer done()
            if uid == 0 {
                ok, err := c.Group(gid).MuteAll(cmd.Context(), duration > 0)
                if err != nil { return err }
                return result(cmd.OutOrStdout(), "mute-all", ok)
            }
            ok, err := c.Group(gid).MuteMember(cmd.Context(), uid, int64(duration/time.Second))
            if err != nil { return err }
            return result(cmd.OutOrStdout(), "mute", ok)
        },
    }
    cmd.Flags().DurationVar(&duration, "duration", client.DefaultMuteSeconds*time.Second, "mute duration (0 unmutes)")
    return cmd
}

func newKickCmd(g *globals) *cobra.Command {
    var block bool
    cmd := &cobra.Command{
        Use:   "kick <gid> <uid>",
        Short: "Remove a member from the group",
        Args:  cobra.ExactArgs(2),
        RunE: func(cmd *cobra.Command, args []string) error {
            gid, uid, err := groupArgs(args)
            if err != nil { return err }
            c, done, err := g.open(cmd)
            if err != nil { return err }
            defer done()
            ok, err := c.Group(gid).KickMember(cmd.Context(), uid, block)
            if err != nil { return err }
            return result(cmd.OutOrStdout(), "kick", ok)
        },
    }
    cmd.Flags().BoolVar(&block, "block", false, "refuse future join requests from the member")
    return cmd
}

func newAdminCmd(g *globals) *cobra.Command {
    var unset bool
    cmd := &cobra.Command{
        Use:   "admin <gid> <uid>",
        Short: "Grant or revoke the admin role",
        Args:  cobra.ExactArgs(2),
        RunE: func(cmd *cobra.Command, args []string) error {
            gid, uid, err := groupArgs(args)
            if err != nil { return err }
            c, done, err := g.open(cmd)
            if err != nil { return err }
            defer done()
            ok, err := c.Group(gid).SetAdmin(cmd.Context(), uid, !unset)
            if err != nil { return err }
            return result(cmd.OutOrStdout(), "admin", ok)
        },
    }
    cmd.Flags().BoolVar(&unset, "unset", false, "revoke instead of grant")
    return cmd
}

// newWatchCmd keeps a client open, prints domain events and serves the
// status endpoints until interrupted.
func newWatchCmd(g *globals) *cobra.Command {
    var addr string
    cmd := &cobra.Command{
        Use:   "watch",
        Short: "Print domain events as JSON and serve /status, /healthz and /metrics",
        RunE: func(cmd *cobra.Command, args []string) error {
            cfg, err := g.load(cmd)
            if err != nil { return err }
            if cmd.Flags().Changed("addr") || cfg.MetricsAddr == "" { cfg.MetricsAddr = addr }
            ctx, cancel := signalContext()
            defer cancel()
            defer g.setupTracing()()
            n, err := bootstrap.Run(ctx, cfg)
            if err != nil { return err }
            defer n.Close()
            fmt.Fprintf(os.Stderr, "watching uin=%d, status on %s. Press Ctrl+C to exit.\n", n.Client.Uin(), n.Server.Addr())
            enc := json.NewEncoder(cmd.OutOrStdout())
            for ev := range n.Client.Subscribe(ctx) {
                if err := enc.Encode(ev); err != nil { return err }
            }
            return nil
        },
    }
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:17951", "status/metrics listen address")
    return cmd
}

// newGatewayCmd serves the gRPC gateway in front of a NATS (or demo) session.
func newGatewayCmd(g *globals) *cobra.Command {
    var bind string
    cmd := &cobra.Command{
        Use:   "gateway",
        Short: "Serve the gRPC gateway bridged to the configured backend",
        RunE: func(cmd *cobra.Command, args []string) error {
            cfg, err := g.load(cmd)
            if err != nil { return err }
            if cfg.Transport == bootstrap.TransportGRPC { return fmt.Errorf("gateway cannot front another gateway; use --transport nats") }
            if cmd.Flags().Changed("bind") { cfg.Gateway.Bind = bind }
            ctx, cancel := signalContext()
            defer cancel()
            defer g.setupTracing()()
            sess, err := bootstrap.Session(cfg)
            if err != nil { return err }
            defer sess.Close()
            srv := gw.NewServer(cfg.Gateway.Bind, sess, cfg.Logger)
            if cfg.TLS.Enable {
                s, err := cfg.TLS.Options().Server()
                if err != nil { return err }
                srv.UseTLS(s)
            }
            if err := srv.Start(ctx, gatewayStatus(sess, srv)); err != nil { return err }
            fmt.Fprintf(os.Stderr, "gateway on %s for uin=%d. Press Ctrl+C to exit.\n", srv.Addr(), sess.Uin())
            <-ctx.Done()
            return srv.Stop(context.Background())
        },
    }
    cmd.Flags().StringVar(&bind, "bind", ":17950", "gateway listen address")
    return cmd
}

func gatewayStatus(sess transport.Session, srv *gw.Server) transport.StatusFunc {
    return func(context.Context) ([]byte, error) {
        return json.Marshal(map[string]any{"uin": sess.Uin(), "subscribers": srv.Subscribers()})
    }
}

func signalContext() (context.Context, context.CancelFunc) {
    ctx, cancel := context.WithCancel(context.Background())
    go func() {
        ch := make(chan os.Signal, 1)
        signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
        <-ch
        cancel()
    }()
    return ctx, cancel
}
