package cli

import (
    "fmt"
    "os"

    "github.com/spf13/cobra"

    "github.com/amirimatin/go-groupchat/pkg/gfs"
)

// fsCmd adapts one gfs operation into a "fs <name> <gid> ..." subcommand.
func fsCmd(g *globals, use, short string, nargs int, run func(cmd *cobra.Command, fs *gfs.FS, args []string) error) *cobra.Command {
    return &cobra.Command{
        Use:   use,
        Short: short,
        Args:  cobra.ExactArgs(nargs + 1),
        RunE: func(cmd *cobra.Command, args []string) error {
            gid, err := parseID(args[0], "group id")
            if err != nil { return err }
            c, done, err := g.open(cmd)
            if err != nil { return err }
            defer done()
            return run(cmd, c.Group(gid).FS(), args[1:])
        },
    }
}

func newFSCmd(g *globals) *cobra.Command {
    parent := &cobra.Command{Use: "fs", Short: "Group file-store commands"}

    parent.AddCommand(fsCmd(g, "df <gid>", "Show space and file-count usage", 0, func(cmd *cobra.Command, fs *gfs.FS, _ []string) error {
        u, err := fs.DF(cmd.Context())
        if err != nil { return err }
        return printJSON(cmd.OutOrStdout(), u)
    }))

    var start, limit int
    ls := fsCmd(g, "ls <gid> [dir]", "List a directory (root by default)", 0, func(cmd *cobra.Command, fs *gfs.FS, args []string) error {
        pid := "/"
        if len(args) > 0 { pid = args[0] }
        list, err := fs.Ls(cmd.Context(), pid, start, limit)
        if err != nil { return err }
        return printJSON(cmd.OutOrStdout(), list)
    })
    ls.Args = cobra.RangeArgs(1, 2)
    ls.Flags().IntVar(&start, "start", 0, "index of the first entry")
    ls.Flags().IntVar(&limit, "limit", 100, "maximum entries")
    parent.AddCommand(ls)

    parent.AddCommand(fsCmd(g, "stat <gid> <fid>", "Show a file or directory", 1, func(cmd *cobra.Command, fs *gfs.FS, args []string) error {
        st, err := fs.Stat(cmd.Context(), args[0])
        if err != nil { return err }
        return printJSON(cmd.OutOrStdout(), st)
    }))
    parent.AddCommand(fsCmd(g, "mkdir <gid> <name>", "Create a root-level directory", 1, func(cmd *cobra.Command, fs *gfs.FS, args []string) error {
        d, err := fs.Mkdir(cmd.Context(), args[0])
        if err != nil { return err }
        return printJSON(cmd.OutOrStdout(), d)
    }))
    parent.AddCommand(fsCmd(g, "rm <gid> <fid>", "Remove a file or directory", 1, func(cmd *cobra.Command, fs *gfs.FS, args []string) error {
        if err := fs.Rm(cmd.Context(), args[0]); err != nil { return err }
        return result(cmd.OutOrStdout(), "rm", true)
    }))
    parent.AddCommand(fsCmd(g, "rename <gid> <fid> <name>", "Rename a file or directory", 2, func(cmd *cobra.Command, fs *gfs.FS, args []string) error {
        if err := fs.Rename(cmd.Context(), args[0], args[1]); err != nil { return err }
        return result(cmd.OutOrStdout(), "rename", true)
    }))
    parent.AddCommand(fsCmd(g, "mv <gid> <fid> <dir>", "Move a file to another directory", 2, func(cmd *cobra.Command, fs *gfs.FS, args []string) error {
        if err := fs.Mv(cmd.Context(), args[0], args[1]); err != nil { return err }
        return result(cmd.OutOrStdout(), "mv", true)
    }))

    var pid, name string
    up := fsCmd(g, "upload <gid> <path>", "Upload a local file", 1, func(cmd *cobra.Command, fs *gfs.FS, args []string) error {
        progress := func(p float64) { fmt.Fprintf(os.Stderr, "\ruploading %5.1f%%", p) }
        st, err := fs.Upload(cmd.Context(), gfs.FromFile(args[0]), pid, name, progress)
        fmt.Fprintln(os.Stderr)
        if err != nil { return err }
        return printJSON(cmd.OutOrStdout(), st)
    })
    up.Flags().StringVar(&pid, "dir", "/", "target directory id")
    up.Flags().StringVar(&name, "name", "", "stored file name (defaults to the local name)")
    parent.AddCommand(up)

    parent.AddCommand(fsCmd(g, "download <gid> <fid>", "Resolve a download URL", 1, func(cmd *cobra.Command, fs *gfs.FS, args []string) error {
        d, err := fs.Download(cmd.Context(), args[0])
        if err != nil { return err }
        return printJSON(cmd.OutOrStdout(), d)
    }))
    return parent
}
