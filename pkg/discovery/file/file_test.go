package file

import (
    "context"
    "os"
    "path/filepath"
    "testing"
    "time"
)

func TestEnvOverridesFile(t *testing.T) {
    dir := t.TempDir()
    f := filepath.Join(dir, "gateways.txt")
    if err := os.WriteFile(f, []byte("a:1\n"), 0o644); err != nil { t.Fatal(err) }
    const envName = "TEST_GCHAT_GATEWAYS"
    t.Setenv(envName, "y:8,x:9")
    got := New(Options{Path: f, Env: envName, Refresh: 5 * time.Millisecond}).Endpoints(context.Background())
    if len(got) != 2 || got[0] != "x:9" || got[1] != "y:8" { t.Fatalf("env override failed, got %#v", got) }
}

func TestFileReadAndCacheRefresh(t *testing.T) {
    dir := t.TempDir()
    f := filepath.Join(dir, "gateways.txt")
    if err := os.WriteFile(f, []byte("# gateways\na:1\nb:2\n"), 0o644); err != nil { t.Fatal(err) }
    r := New(Options{Path: f, Refresh: 10 * time.Millisecond})
    got1 := r.Endpoints(context.Background())
    if len(got1) != 2 || got1[0] != "a:1" || got1[1] != "b:2" { t.Fatalf("unexpected initial endpoints: %#v", got1) }

    if err := os.WriteFile(f, []byte("b:2\nc:3\n"), 0o644); err != nil { t.Fatal(err) }
    time.Sleep(15 * time.Millisecond)
    got2 := r.Endpoints(context.Background())
    if len(got2) != 2 || got2[0] != "b:2" || got2[1] != "c:3" { t.Fatalf("expected refreshed endpoints, got %#v", got2) }
}

func TestGlobReadsUniqueSorted(t *testing.T) {
    dir := t.TempDir()
    if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a:1\nb:2\n"), 0o644); err != nil { t.Fatal(err) }
    if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b:2, c:3\n"), 0o644); err != nil { t.Fatal(err) }
    got := New(Options{Path: filepath.Join(dir, "*.txt"), Refresh: 5 * time.Millisecond}).Endpoints(context.Background())
    want := []string{"a:1", "b:2", "c:3"}
    if len(got) != len(want) { t.Fatalf("got %#v", got) }
    for i := range want {
        if got[i] != want[i] { t.Fatalf("item %d: got %q want %q", i, got[i], want[i]) }
    }
}
