package sourcekey

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appSource = `package app

func build(reg *proxy.Registry) {
	ticks := reg.Track("ticks", func() rx.Source { return rt.Of(1, 2) })
	reg.Track("a", nil)
	reg.Track("b", nil)
	_ = ticks
}

func (s *Server) Start() {
	s.feed = reg.TrackSubject("x", func() rx.Source { return rt.Subject() })
}

var loader = reg.TrackFunc("f", load)
`

// Same sites after reformatting and editing literals and closures.
const appSourceEdited = `package app

func build(reg *proxy.Registry) {
	ticks :=
		reg.Track("ticks-renamed", func() rx.Source {
			return rt.Of(3, 4, 5).Pipe(rt.Map(double))
		})
	reg.Track("a2", nil)
	reg.Track("b2",   nil)
	_ = ticks
}

func (s  *Server) Start() {
	s.feed = reg.TrackSubject("y", func() rx.Source { return nil })
}

var loader = reg.TrackFunc("g", other)
`

func extract(t *testing.T, src string) []CallSite {
	t.Helper()
	sites, err := NewExtractor().Extract(context.Background(), "app/app.go", []byte(src))
	require.NoError(t, err)
	return sites
}

func TestExtract_FindsTrackedCalls(t *testing.T) {
	sites := extract(t, appSource)
	require.Len(t, sites, 5)

	want := []CallSite{
		{File: "app/app.go", Func: "build", Target: "ticks", Call: "Track", Ordinal: 0, Line: 4},
		{File: "app/app.go", Func: "build", Call: "Track", Ordinal: 0, Line: 5},
		{File: "app/app.go", Func: "build", Call: "Track", Ordinal: 1, Line: 6},
		{File: "app/app.go", Func: "Server.Start", Target: "s.feed", Call: "TrackSubject", Ordinal: 0, Line: 11},
		{File: "app/app.go", Func: "var", Target: "loader", Call: "TrackFunc", Ordinal: 0, Line: 14},
	}
	for i, w := range want {
		got := sites[i]
		assert.Len(t, got.Key, 16, "site %d", i)
		got.Key = ""
		assert.Equal(t, w, got, "site %d", i)
	}
}

func TestExtract_KeysAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range extract(t, appSource) {
		assert.False(t, seen[s.Key], "duplicate key %s", s.Key)
		seen[s.Key] = true
	}
}

func TestExtract_KeysSurviveCosmeticEdits(t *testing.T) {
	before := extract(t, appSource)
	after := extract(t, appSourceEdited)
	require.Len(t, after, len(before))

	for i := range before {
		assert.Equal(t, before[i].Key, after[i].Key, "site %d", i)
	}
}

func TestExtract_KeysFollowLocation(t *testing.T) {
	renamed := extract(t, `package app

func setup(reg *proxy.Registry) {
	ticks := reg.Track("ticks", nil)
	_ = ticks
}
`)
	original := extract(t, appSource)
	require.Len(t, renamed, 1)
	assert.NotEqual(t, original[0].Key, renamed[0].Key)

	moved, err := NewExtractor().Extract(context.Background(), "app/other.go", []byte(appSource))
	require.NoError(t, err)
	assert.NotEqual(t, original[0].Key, moved[0].Key)
}

func TestExtract_CustomCallNames(t *testing.T) {
	sites, err := NewExtractor("Watch").Extract(context.Background(), "x.go", []byte(`package x

func f() {
	Watch(src)
	reg.Track("t", nil)
}
`))
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "Watch", sites[0].Call)
	assert.Equal(t, "f", sites[0].Func)
}

func TestExtract_RejectsHugeFiles(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), "big.go", make([]byte, MaxFileSize+1))
	assert.Error(t, err)
}

func TestExtractDir_SkipsIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app", "app.go"), appSource)
	writeFile(t, filepath.Join(root, "testdata", "skip.go"), appSource)
	writeFile(t, filepath.Join(root, "_old", "skip.go"), appSource)
	writeFile(t, filepath.Join(root, "README.md"), "reg.Track()")

	sites, err := NewExtractor().ExtractDir(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, sites, 5)
	assert.Equal(t, extract(t, appSource), sites)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
