package main

import (
    "context"
    "log"
    "os"
    "os/signal"
    "syscall"

    "github.com/joho/godotenv"
    "github.com/spf13/cobra"

    gchatcli "github.com/amirimatin/go-groupchat/pkg/cli"
)

func main() {
    // GCHAT_* settings may live in a local .env file.
    if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
        log.Printf("warning: .env not loaded: %v", err)
    }
    ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer cancel()
    if err := newRoot().ExecuteContext(ctx); err != nil {
        log.Fatal(err)
    }
}

func newRoot() *cobra.Command {
    root := &cobra.Command{
        Use:           "gchatctl",
        Short:         "group-chat client CLI",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    gchatcli.AddAll(root)
    return root
}
