package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// failingBackend returns err from every operation.
type failingBackend struct{ err error }

func (f failingBackend) Load(context.Context) ([]byte, error) { return nil, f.err }
func (f failingBackend) Update(context.Context, func([]byte) ([]byte, error)) error {
	return f.err
}
func (f failingBackend) Close() error { return nil }

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	dir := t.TempDir()
	sq, err := OpenSQLite(filepath.Join(dir, "prefs.db"), "")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Backend{
		"memory": NewMemoryBackend(nil),
		"file":   NewFileBackend(filepath.Join(dir, "sub", "prefs.json")),
		"sqlite": sq,
	}
}

func TestSetThenGetKeepsBothKeys(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := New(b, newTestLogger())
			s.Set(ctx, KeySelectedNetwork, 46)
			s.Set(ctx, KeySelectedWallet, "metamask")

			if n, ok := s.GetUint64(ctx, KeySelectedNetwork); !ok || n != 46 {
				t.Errorf("selectedNetwork = %d, %v; want 46", n, ok)
			}
			if w, ok := s.GetString(ctx, KeySelectedWallet); !ok || w != "metamask" {
				t.Errorf("selectedWallet = %q, %v; want metamask", w, ok)
			}
		})
	}
}

func TestGetAbsent(t *testing.T) {
	s := New(NewMemoryBackend(nil), newTestLogger())
	if _, ok := s.Get(context.Background(), KeyWasIntroShown); ok {
		t.Error("expected absent key on empty store")
	}
}

func TestCorruptBlobReadsAsEmpty(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend(nil)
	s := New(mem, newTestLogger())
	s.Set(ctx, KeySelectedNetwork, 44)

	mem.Raw([]byte(`{"selectedNetwork": 44,`))

	if _, ok := s.Get(ctx, KeySelectedNetwork); ok {
		t.Error("expected absent after corruption")
	}

	// A write after corruption starts from an empty object.
	s.Set(ctx, KeyWasIntroShown, true)
	if v, ok := s.GetBool(ctx, KeyWasIntroShown); !ok || !v {
		t.Errorf("wasIntroShown = %v, %v; want true", v, ok)
	}
	if _, ok := s.Get(ctx, KeySelectedNetwork); ok {
		t.Error("corrupt content should not be recovered")
	}
}

func TestNonObjectBlobReadsAsEmpty(t *testing.T) {
	for _, raw := range []string{`null`, `[]`, `"str"`, `42`} {
		mem := NewMemoryBackend([]byte(raw))
		s := New(mem, newTestLogger())
		if got := s.All(context.Background()); len(got) != 0 {
			t.Errorf("blob %s: All = %v, want empty", raw, got)
		}
	}
}

func TestCorruptFileReadsAsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prefs.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	s := New(NewFileBackend(path), newTestLogger())
	if _, ok := s.Get(ctx, KeySelectedNetwork); ok {
		t.Error("expected absent for corrupt file")
	}
	s.Set(ctx, KeySelectedNetwork, 44)
	if n, ok := s.GetUint64(ctx, KeySelectedNetwork); !ok || n != 44 {
		t.Errorf("selectedNetwork = %d, %v; want 44", n, ok)
	}
}

func TestSetPreservesUnknownKeys(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend([]byte(`{"theme":"dark","selectedNetwork":44}`))
	s := New(mem, newTestLogger())

	s.Set(ctx, KeySelectedNetwork, 46)

	all := s.All(ctx)
	if string(all["theme"]) != `"dark"` {
		t.Errorf("theme = %s, want \"dark\"", all["theme"])
	}
	if string(all["selectedNetwork"]) != "46" {
		t.Errorf("selectedNetwork = %s, want 46", all["selectedNetwork"])
	}
}

func TestSetUnknownKeyIsNoop(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend(nil), newTestLogger())
	s.Set(ctx, Key("theme"), "dark")
	if len(s.All(ctx)) != 0 {
		t.Error("unknown key should not be written")
	}
}

func TestSetUnencodableValueIsNoop(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend(nil), newTestLogger())
	s.Set(ctx, KeySelectedWallet, make(chan int))
	if _, ok := s.Get(ctx, KeySelectedWallet); ok {
		t.Error("unencodable value should not be stored")
	}
}

func TestBackendFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	s := New(failingBackend{err: errors.New("quota exceeded")}, newTestLogger())

	s.Set(ctx, KeySelectedNetwork, 44)
	s.Delete(ctx, KeySelectedNetwork)
	s.Clear(ctx)
	if _, ok := s.Get(ctx, KeySelectedNetwork); ok {
		t.Error("failing backend should read as absent")
	}
	if len(s.All(ctx)) != 0 {
		t.Error("failing backend should read as empty")
	}
}

func TestDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend(nil), newTestLogger())
	s.Set(ctx, KeySelectedNetwork, 44)
	s.Set(ctx, KeyIsConnectedToWallet, true)

	s.Delete(ctx, KeySelectedNetwork)
	if _, ok := s.Get(ctx, KeySelectedNetwork); ok {
		t.Error("selectedNetwork should be deleted")
	}
	if _, ok := s.Get(ctx, KeyIsConnectedToWallet); !ok {
		t.Error("isConnectedToWallet should survive delete of another key")
	}

	s.Clear(ctx)
	if len(s.All(ctx)) != 0 {
		t.Error("Clear should drop everything")
	}
}

func TestGetUint64AcceptsString(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend([]byte(`{"selectedNetwork":"46"}`)), newTestLogger())
	if n, ok := s.GetUint64(ctx, KeySelectedNetwork); !ok || n != 46 {
		t.Errorf("GetUint64 = %d, %v; want 46", n, ok)
	}
	s = New(NewMemoryBackend([]byte(`{"selectedNetwork":"crab"}`)), newTestLogger())
	if _, ok := s.GetUint64(ctx, KeySelectedNetwork); ok {
		t.Error("non-numeric string should not parse")
	}
}

func TestConcurrentWritersKeepAllKeys(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := New(b, newTestLogger())

			var wg sync.WaitGroup
			for i, key := range Keys {
				wg.Add(1)
				go func(i int, key Key) {
					defer wg.Done()
					for j := 0; j < 10; j++ {
						s.Set(ctx, key, fmt.Sprintf("v%d-%d", i, j))
					}
				}(i, key)
			}
			wg.Wait()

			all := s.All(ctx)
			for i, key := range Keys {
				var v string
				if err := json.Unmarshal(all[string(key)], &v); err != nil {
					t.Fatalf("%s missing: %v", key, err)
				}
				if want := fmt.Sprintf("v%d-9", i); v != want {
					t.Errorf("%s = %q, want %q", key, v, want)
				}
			}
		})
	}
}

func TestSQLiteStoresSeparateNamespaces(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")

	a, err := OpenSQLite(path, "app-a")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := OpenSQLite(path, "app-b")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	New(a, newTestLogger()).Set(ctx, KeySelectedNetwork, 44)
	New(b, newTestLogger()).Set(ctx, KeySelectedNetwork, 46)

	if n, _ := New(a, newTestLogger()).GetUint64(ctx, KeySelectedNetwork); n != 44 {
		t.Errorf("namespace a = %d, want 44", n)
	}
	if n, _ := New(b, newTestLogger()).GetUint64(ctx, KeySelectedNetwork); n != 46 {
		t.Errorf("namespace b = %d, want 46", n)
	}
}

func TestFilePersistsAcrossStores(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prefs.json")

	New(NewFileBackend(path), newTestLogger()).Set(ctx, KeySelectedNetwork, 46)

	s := New(NewFileBackend(path), newTestLogger())
	if n, ok := s.GetUint64(ctx, KeySelectedNetwork); !ok || n != 46 {
		t.Errorf("selectedNetwork = %d, %v; want 46", n, ok)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be renamed away")
	}
}

func TestOpenBackendKinds(t *testing.T) {
	dir := t.TempDir()
	for _, kind := range []string{"", "file", "sqlite", "memory"} {
		b, err := Open(kind, "", dir, "")
		if err != nil {
			t.Fatalf("Open(%q): %v", kind, err)
		}
		b.Close()
	}
	if _, err := Open("redis", "", dir, ""); err == nil {
		t.Error("expected error for unknown backend")
	}
}
