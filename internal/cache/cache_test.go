package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
)

type failingBackend struct{}

var errBroken = errors.New("disk on fire")

func (failingBackend) Get(context.Context, string) ([]byte, error) { return nil, errBroken }
func (failingBackend) Set(context.Context, string, []byte) error   { return errBroken }
func (failingBackend) Delete(context.Context, string) error        { return errBroken }
func (failingBackend) DeletePrefix(context.Context, string) error  { return errBroken }
func (failingBackend) Close() error                                { return nil }

func TestGetSetRemove(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend(), "civic")

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Fatal("expected miss for unset key")
	}

	if err := c.Set(ctx, "greeting", []byte("hello")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok := c.Get(ctx, "greeting")
	if !ok {
		t.Fatal("expected hit after set")
	}
	if string(got) != "hello" {
		t.Errorf("value = %q, want %q", got, "hello")
	}

	if err := c.Remove(ctx, "greeting"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := c.Get(ctx, "greeting"); ok {
		t.Error("expected miss after remove")
	}
}

func TestKeysAreNamespaced(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	c := New(backend, "civic:")

	if got := c.Key("sync", "", "last"); got != "civic:sync:last" {
		t.Errorf("key = %q, want %q", got, "civic:sync:last")
	}

	c.Set(ctx, KeySettings, []byte("{}"))
	if _, err := backend.Get(ctx, "civic:settings"); err != nil {
		t.Errorf("expected namespaced key in backend: %v", err)
	}
}

func TestClearAllWipesNamespaceOnly(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	device := New(backend, "civic")
	other := New(backend, "civicx")

	device.Set(ctx, KeySettings, []byte("a"))
	device.Set(ctx, KeyLastSync, []byte("b"))
	device.Set(ctx, BalanceKey(7), []byte("c"))
	other.Set(ctx, KeySettings, []byte("keep"))

	if err := device.ClearAll(ctx); err != nil {
		t.Fatalf("clear all: %v", err)
	}

	for _, key := range []string{KeySettings, KeyLastSync, BalanceKey(7)} {
		if _, ok := device.Get(ctx, key); ok {
			t.Errorf("key %q survived ClearAll", key)
		}
	}
	if got, ok := other.Get(ctx, KeySettings); !ok || string(got) != "keep" {
		t.Errorf("other namespace = %q, %v; want %q, true", got, ok, "keep")
	}
}

func TestBackendFailuresDegradeToMiss(t *testing.T) {
	ctx := context.Background()
	c := New(failingBackend{}, "civic", WithLogger(slog.Default()))

	if _, ok := c.Get(ctx, "anything"); ok {
		t.Error("expected miss from failing backend")
	}
	var v map[string]string
	if c.GetJSON(ctx, "anything", &v) {
		t.Error("expected GetJSON miss from failing backend")
	}
	if err := c.Set(ctx, "anything", []byte("x")); !errors.Is(err, errBroken) {
		t.Errorf("set error = %v, want %v", err, errBroken)
	}
	if err := c.ClearAll(ctx); !errors.Is(err, errBroken) {
		t.Errorf("clear error = %v, want %v", err, errBroken)
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend(), "civic")

	type snapshot struct {
		Balance int `json:"balance"`
	}
	if err := c.SetJSON(ctx, BalanceKey(1), snapshot{Balance: 40}); err != nil {
		t.Fatalf("set json: %v", err)
	}

	var got snapshot
	if !c.GetJSON(ctx, BalanceKey(1), &got) {
		t.Fatal("expected json hit")
	}
	if got.Balance != 40 {
		t.Errorf("balance = %d, want 40", got.Balance)
	}

	c.Set(ctx, "broken", []byte("{not json"))
	if c.GetJSON(ctx, "broken", &got) {
		t.Error("expected undecodable value to read as a miss")
	}
}

func TestConcurrentAccessWithClearAll(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend(), "civic")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Set(ctx, KeySettings, []byte("v"))
			c.Get(ctx, KeySettings)
		}()
		go func() {
			defer wg.Done()
			c.ClearAll(ctx)
		}()
	}
	wg.Wait()
}
