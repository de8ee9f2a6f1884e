// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/markxiv/internal/cache"
	"github.com/pdiddy/markxiv/internal/diskcache"
	"github.com/pdiddy/markxiv/pkg/types"
)

var (
	latest = types.DocumentKey{BaseID: "1601.00001"}
	v2     = types.DocumentKey{BaseID: "1601.00001", Version: "2"}
	other  = types.DocumentKey{BaseID: "1601.00002"}
	pdf    = []byte("%PDF-1.5 rendered")
)

func tarOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg, Format: tar.FormatUSTAR,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

// fakeMeta serves metadata by base id. gate, when set, blocks every call
// until it is closed or the context ends.
type fakeMeta struct {
	meta  map[string]types.Metadata
	err   error
	gate  chan struct{}
	calls atomic.Int32
}

func (f *fakeMeta) FetchMetadata(ctx context.Context, baseID string) (types.Metadata, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return types.Metadata{}, ctx.Err()
		}
	}
	if f.err != nil {
		return types.Metadata{}, f.err
	}
	m, ok := f.meta[baseID]
	if !ok {
		return types.Metadata{}, fmt.Errorf("feed for %s: %w", baseID, types.ErrNotFound)
	}
	return m, nil
}

type fakeSource struct {
	mu          sync.Mutex
	sources     map[string]types.Source
	sourceErr   error
	rendered    []byte
	renderedErr error

	sourceCalls   atomic.Int32
	renderedCalls atomic.Int32
}

func (f *fakeSource) FetchSource(ctx context.Context, key types.DocumentKey) (types.Source, error) {
	f.sourceCalls.Add(1)
	if f.sourceErr != nil {
		return types.Source{}, f.sourceErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sources[key.String()]
	if !ok {
		return types.Source{}, types.ErrNotFound
	}
	return s, nil
}

func (f *fakeSource) FetchRendered(ctx context.Context, key types.DocumentKey) ([]byte, error) {
	f.renderedCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetching PDF: %w", err)
	}
	if f.renderedErr != nil {
		return nil, f.renderedErr
	}
	if f.rendered == nil {
		return nil, types.ErrSourceUnavailable
	}
	return f.rendered, nil
}

func (f *fakeSource) set(key types.DocumentKey, src types.Source) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources[key.String()] = src
}

// fakeConverter echoes the selected entry point's contents by default, the
// way an identity converter would, and extracts raw text by prefixing.
type fakeConverter struct {
	structured func(ctx context.Context, path string) (string, error)
	raw        func(ctx context.Context, pdf []byte) (string, error)

	structuredCalls atomic.Int32
	rawCalls        atomic.Int32
}

func (f *fakeConverter) ConvertStructured(ctx context.Context, path string) (string, error) {
	f.structuredCalls.Add(1)
	if f.structured != nil {
		return f.structured(ctx, path)
	}
	b, err := os.ReadFile(path)
	return string(b), err
}

func (f *fakeConverter) ExtractRaw(ctx context.Context, pdf []byte) (string, error) {
	f.rawCalls.Add(1)
	if f.raw != nil {
		return f.raw(ctx, pdf)
	}
	return "raw text of " + string(pdf), nil
}

type fixture struct {
	meta    *fakeMeta
	source  *fakeSource
	conv    *fakeConverter
	memory  *cache.Memory
	disk    *diskcache.Store
	workDir string
	opts    Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		meta: &fakeMeta{meta: map[string]types.Metadata{
			"1601.00001": {Title: "T", Abstract: "A"},
			"1601.00002": {Title: "Other <i>paper</i>", Abstract: "First.\n\nSecond &amp; last."},
		}},
		source: &fakeSource{sources: map[string]types.Source{
			"1601.00001":   {Form: types.FormArchive, Data: tarOf(t, map[string]string{"paper.tex": "Body"})},
			"1601.00001v2": {Form: types.FormArchive, Data: tarOf(t, map[string]string{"paper.tex": "Version two"})},
			"1601.00002":   {Form: types.FormRendered, Data: pdf},
		}},
		conv:    &fakeConverter{},
		memory:  cache.NewMemory(8),
		workDir: t.TempDir(),
	}
	disk, err := diskcache.Open(context.Background(), diskcache.Options{Root: t.TempDir(), CapBytes: 1 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })
	f.disk = disk
	f.opts = Options{
		Metadata:  f.meta,
		Source:    f.source,
		Converter: f.conv,
		Memory:    f.memory,
		Disk:      f.disk,
		WorkDir:   f.workDir,
		Logger:    newTextLogger(io.Discard),
	}
	return f
}

func newTextLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, nil))
}

func (f *fixture) resolver() *Resolver { return New(f.opts) }

func (f *fixture) providerCalls() int32 {
	return f.meta.calls.Load() + f.source.sourceCalls.Load() + f.source.renderedCalls.Load() +
		f.conv.structuredCalls.Load() + f.conv.rawCalls.Load()
}

func (f *fixture) assertNothingCached(t *testing.T, key types.DocumentKey) {
	t.Helper()
	_, ok := f.memory.Get(key)
	assert.False(t, ok, "memory tier must not hold %s", key)
	_, ok, err := f.disk.Get(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok, "disk tier must not hold %s", key)
}

func (f *fixture) assertWorkDirEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "workspaces must be removed")
}

func requireKind(t *testing.T, err error, kind types.FailureKind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind.String(), types.KindOf(err).String(), "error: %v", err)
}

func TestResolveAssemblesArtifact(t *testing.T) {
	f := newFixture(t)
	f.source.set(latest, types.Source{Form: types.FormArchive, Data: tarOf(t, map[string]string{
		"main.tex": "Body\n<figure><img src=\"f.png\"><figcaption>x</figcaption></figure>\n<span>",
	})})

	a, err := f.resolver().Resolve(context.Background(), latest, false)
	require.NoError(t, err)

	md := a.Markdown()
	assert.True(t, strings.HasPrefix(md, "# T\n"), md)
	assert.Equal(t, "# T\n\n## Abstract\nA\n\nBody", md)
	assert.NotContains(t, md, "<figure")
	assert.NotContains(t, md, "<span")
	assert.Equal(t, types.SourceStructured, a.SourceKind)
	assert.Equal(t, len(md), a.SizeBytes)
	f.assertWorkDirEmpty(t)
}

func TestResolveSanitizesMetadata(t *testing.T) {
	f := newFixture(t)
	a, err := f.resolver().Resolve(context.Background(), other, false)
	require.NoError(t, err)
	assert.Equal(t, "Other paper", a.Title)
	assert.Equal(t, "First.\n\nSecond & last.", a.Abstract)
}

func TestResolveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	r := f.resolver()
	ctx := context.Background()

	first, origin, err := r.Fetch(ctx, latest, false)
	require.NoError(t, err)
	assert.Equal(t, OriginPipeline, origin)
	calls := f.providerCalls()

	second, origin, err := r.Fetch(ctx, latest, false)
	require.NoError(t, err)
	assert.Equal(t, OriginMemory, origin)
	assert.Equal(t, first.Markdown(), second.Markdown())
	assert.Equal(t, calls, f.providerCalls(), "a cache hit must not call any provider")
}

func TestResolvePromotesDiskHits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.resolver().Resolve(ctx, latest, false)
	require.NoError(t, err)
	calls := f.providerCalls()

	// A fresh memory tier, as after a restart, over the same disk tier.
	f.memory = cache.NewMemory(8)
	f.opts.Memory = f.memory
	r := f.resolver()

	a, origin, err := r.Fetch(ctx, latest, false)
	require.NoError(t, err)
	assert.Equal(t, OriginDisk, origin)
	assert.Equal(t, first.Markdown(), a.Markdown())

	_, origin, err = r.Fetch(ctx, latest, false)
	require.NoError(t, err)
	assert.Equal(t, OriginMemory, origin)
	assert.Equal(t, calls, f.providerCalls())
}

func TestForceRefreshReplacesBothTiers(t *testing.T) {
	f := newFixture(t)
	r := f.resolver()
	ctx := context.Background()
	_, err := r.Resolve(ctx, latest, false)
	require.NoError(t, err)

	f.source.set(latest, types.Source{Form: types.FormArchive, Data: tarOf(t, map[string]string{"main.tex": "Revised"})})
	before := f.meta.calls.Load()

	a, origin, err := r.Fetch(ctx, latest, true)
	require.NoError(t, err)
	assert.Equal(t, OriginPipeline, origin)
	assert.Equal(t, "Revised", a.Body)
	assert.Equal(t, before+1, f.meta.calls.Load())

	mem, ok := f.memory.Get(latest)
	require.True(t, ok)
	assert.Equal(t, "Revised", mem.Body)
	onDisk, ok, err := f.disk.Get(ctx, latest)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Revised", onDisk.Body)
}

func TestRefreshOfLatestKeepsVersionedEntries(t *testing.T) {
	f := newFixture(t)
	r := f.resolver()
	ctx := context.Background()

	a, err := r.Resolve(ctx, latest, false)
	require.NoError(t, err)
	b, err := r.Resolve(ctx, v2, false)
	require.NoError(t, err)
	assert.Equal(t, "Body", a.Body)
	assert.Equal(t, "Version two", b.Body)
	assert.Equal(t, int32(2), f.source.sourceCalls.Load(), "versioned and latest keys are distinct entries")

	_, err = r.Resolve(ctx, latest, true)
	require.NoError(t, err)
	_, origin, err := r.Fetch(ctx, v2, false)
	require.NoError(t, err)
	assert.Equal(t, OriginMemory, origin)
}

func TestResolveSingleFlight(t *testing.T) {
	f := newFixture(t)
	f.meta.gate = make(chan struct{})
	r := f.resolver()

	const n = 16
	results := make([]*types.Artifact, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Resolve(context.Background(), latest, false)
		}(i)
	}

	// The first caller holds the flight; give the rest time to join it.
	require.Eventually(t, func() bool {
		return f.meta.calls.Load() == 1 && r.flights.InFlight() == 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(f.meta.gate)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, int32(1), f.meta.calls.Load())
	assert.Equal(t, int32(1), f.source.sourceCalls.Load())
	assert.Equal(t, int32(1), f.conv.structuredCalls.Load())
}

// gatedMemory blocks the blockOn-th Get until gate is closed.
type gatedMemory struct {
	*cache.Memory
	gets    atomic.Int32
	blockOn int32
	entered chan struct{}
	gate    chan struct{}
}

func (m *gatedMemory) Get(key types.DocumentKey) (*types.Artifact, bool) {
	if m.gets.Add(1) == m.blockOn {
		close(m.entered)
		<-m.gate
	}
	return m.Memory.Get(key)
}

func TestForcedRefreshDoesNotShareAPlainCacheProbe(t *testing.T) {
	f := newFixture(t)
	mem := &gatedMemory{Memory: f.memory, blockOn: 2, entered: make(chan struct{}), gate: make(chan struct{})}
	f.opts.Memory = mem
	f.opts.Disk = nil
	r := f.resolver()

	plain := make(chan *types.Artifact, 1)
	go func() {
		a, err := r.Resolve(context.Background(), latest, false)
		assert.NoError(t, err)
		plain <- a
	}()

	// The plain call missed, entered its flight and is re-probing memory.
	<-mem.entered
	stale := types.NewArtifact(latest, types.Metadata{Title: "OLD"}, "stale body", types.SourceStructured, time.Now())
	f.memory.Put(latest, stale)

	forced := make(chan *types.Artifact, 1)
	go func() {
		a, err := r.Resolve(context.Background(), latest, true)
		assert.NoError(t, err)
		forced <- a
	}()
	time.Sleep(50 * time.Millisecond)
	close(mem.gate)

	assert.Same(t, stale, <-plain)
	fresh := <-forced
	require.NotNil(t, fresh)
	assert.Equal(t, "T", fresh.Title)
	assert.Equal(t, "Body", fresh.Body)
	assert.Equal(t, int32(1), f.meta.calls.Load(), "forced refresh must run the pipeline")

	got, ok := f.memory.Get(latest)
	require.True(t, ok)
	assert.Same(t, fresh, got)
}
