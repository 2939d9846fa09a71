package engine

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bamsammich/courier/internal/event"
	"github.com/bamsammich/courier/internal/transport"
)

// fixture is a mux over in-memory volumes: "src" and "dst" are local,
// "r1" and "r2" are remote.
type fixture struct {
	mux *transport.Mux
	src *transport.MemoryVolume
	dst *transport.MemoryVolume
	r1  *transport.MemoryVolume
	r2  *transport.MemoryVolume
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		src: transport.NewMemoryVolume("src", false),
		dst: transport.NewMemoryVolume("dst", false),
		r1:  transport.NewMemoryVolume("r1", true),
		r2:  transport.NewMemoryVolume("r2", true),
	}
	f.mux = transport.NewMux(
		[]transport.Volume{f.src, f.dst, f.r1, f.r2},
		transport.WithSpoolDir(t.TempDir()),
	)
	t.Cleanup(func() { _ = f.mux.Close() })
	return f
}

// entry stats volume:path through the mux.
func (f *fixture) entry(t *testing.T, volume, p string) transport.Entry {
	t.Helper()
	e, err := f.mux.Stat(context.Background(), transport.Entry{Volume: volume, Path: p})
	require.NoError(t, err)
	return e
}

// writeFiles creates files (and their parents) on v. Keys ending in "/"
// create empty directories.
func writeFiles(t *testing.T, v *transport.MemoryVolume, files map[string]string) {
	t.Helper()
	for p, content := range files {
		if strings.HasSuffix(p, "/") {
			require.NoError(t, v.MkdirAll(p))
			continue
		}
		require.NoError(t, v.WriteFile(p, []byte(content)))
	}
}

func exists(v *transport.MemoryVolume, p string) bool {
	_, err := v.Stat(context.Background(), p)
	return err == nil
}

// recorder collects every published event.
type recorder struct {
	mu       sync.Mutex
	events   []event.Event
	terminal chan event.Event
}

func record(m *Manager) *recorder {
	r := &recorder{terminal: make(chan event.Event, 16)}
	m.Subscribe(func(ev event.Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
		if ev.Type.Terminal() {
			r.terminal <- ev
		}
	})
	return r
}

// wait returns the next terminal lifecycle event.
func (r *recorder) wait(t *testing.T) event.Event {
	t.Helper()
	select {
	case ev := <-r.terminal:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for batch to finish")
		return event.Event{}
	}
}

func (r *recorder) all() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

func (r *recorder) ofType(types ...event.Type) []event.Event {
	var out []event.Event
	for _, ev := range r.all() {
		for _, typ := range types {
			if ev.Type == typ {
				out = append(out, ev)
			}
		}
	}
	return out
}

func (r *recorder) count(typ event.Type) int { return len(r.ofType(typ)) }

func newManager(t *testing.T, fs FileSystem, cfg Config) *Manager {
	t.Helper()
	m := New(fs, cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Close(ctx)
	})
	return m
}

// gatedFS blocks CreateFile for one path until the call's context is
// cancelled, signalling reached when the call arrives.
type gatedFS struct {
	FileSystem
	gate    string
	reached chan struct{}
	once    sync.Once
}

func newGatedFS(fs FileSystem, gate string) *gatedFS {
	return &gatedFS{FileSystem: fs, gate: gate, reached: make(chan struct{})}
}

func (g *gatedFS) CreateFile(ctx context.Context, dir transport.Entry, rel string) (transport.Entry, error) {
	if dir.Child(rel).Path == g.gate {
		g.once.Do(func() { close(g.reached) })
		<-ctx.Done()
		return transport.Entry{}, ctx.Err()
	}
	return g.FileSystem.CreateFile(ctx, dir, rel)
}

// failingFS fails every write to failPath, calling before (if set) first.
type failingFS struct {
	FileSystem
	before   func()
	failPath string
	err      error
}

func (f *failingFS) CreateFile(ctx context.Context, dir transport.Entry, rel string) (transport.Entry, error) {
	if dir.Child(rel).Path == f.failPath {
		if f.before != nil {
			f.before()
		}
		return transport.Entry{}, f.err
	}
	return f.FileSystem.CreateFile(ctx, dir, rel)
}

// countingRemover counts Remove calls.
type countingRemover struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (c *countingRemover) Remove(_ context.Context, e transport.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, e.Path)
	return c.fail[e.Path]
}

func (c *countingRemover) removed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// mapProber answers Exists from a fixed set of occupied relative paths.
type mapProber struct {
	occupied map[string]bool
	probes   []string
	err      error
}

func (p *mapProber) Exists(_ context.Context, dir transport.Entry, rel string) (transport.Entry, error) {
	p.probes = append(p.probes, rel)
	if p.err != nil {
		return transport.Entry{}, p.err
	}
	if p.occupied[rel] {
		return dir.Child(rel), nil
	}
	return transport.Entry{}, transport.ErrNotFound
}

func readAll(t *testing.T, r io.ReadCloser) string {
	t.Helper()
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}
