package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/keyhub-labs/keyhub/internal/addontest"
	"github.com/keyhub-labs/keyhub/internal/errcode"
	"github.com/keyhub-labs/keyhub/internal/fetcher"
	"github.com/keyhub-labs/keyhub/internal/reconcile"
	"github.com/keyhub-labs/keyhub/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store       *store.Store
	addonsDir   string
	softwareDir string
	inst        *Installer
}

func newFixture(t *testing.T, fetch *fakeFetcher) fixture {
	t.Helper()
	root := t.TempDir()
	s, err := store.Create(context.Background(), filepath.Join(root, "registry.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	addons := filepath.Join(root, "addons")
	software := filepath.Join(root, "software")
	rec := reconcile.New(s, addons, nil)

	var f fetcher.Fetcher
	if fetch != nil {
		f = fetch
	}
	return fixture{
		store:       s,
		addonsDir:   addons,
		softwareDir: software,
		inst:        New(s, rec, addons, software, f, nil),
	}
}

// fakeFetcher serves packages from a name -> directory map.
type fakeFetcher struct {
	dirs      map[string]string
	beforeOut func()
	requested []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, name, version string) (string, func(), error) {
	f.requested = append(f.requested, name+"@"+version)
	dir, ok := f.dirs[name]
	if !ok {
		return "", func() {}, errcode.New(errcode.FetchFailure, "no package %s", name)
	}
	if f.beforeOut != nil {
		f.beforeOut()
	}
	return dir, func() {}, nil
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	list, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range list {
		names = append(names, e.Name())
	}
	return names
}

func TestInstallLocalCopy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	src := addontest.Write(t, t.TempDir(), addontest.Package{Name: "echo-detector"})
	addontest.WriteFile(t, filepath.Join(src, "node_modules", "dep", "index.js"), "x")
	addontest.WriteFile(t, filepath.Join(src, "lib", ".DS_Store"), "x")
	addontest.WriteFile(t, filepath.Join(src, "lib", "util.js"), "x")

	rec, err := f.inst.Install(ctx, src, Options{Local: true})
	require.NoError(t, err)

	dest := filepath.Join(f.addonsDir, "echo-detector")
	assert.Equal(t, "echo-detector", rec.Name)
	assert.False(t, rec.IsLink)
	assert.Equal(t, filepath.Join(dest, "index.js"), rec.InstallPath)

	assert.FileExists(t, filepath.Join(dest, "lib", "util.js"))
	assert.NoFileExists(t, filepath.Join(dest, "lib", ".DS_Store"))
	assert.NoDirExists(t, filepath.Join(dest, "node_modules"))
	assert.DirExists(t, filepath.Join(f.softwareDir, "echo-detector"))
	assert.Equal(t, []string{"echo-detector"}, entries(t, f.addonsDir), "no staging directory left behind")

	stored, err := f.store.Get(ctx, "echo-detector")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, stored.ID)
}

func TestInstallExistingPathWithoutLocalFlag(t *testing.T) {
	f := newFixture(t, nil)
	src := addontest.Write(t, t.TempDir(), addontest.Package{Name: "echo-detector"})

	_, err := f.inst.Install(context.Background(), src, Options{})
	require.NoError(t, err)
}

func TestInstallUsesManifestName(t *testing.T) {
	f := newFixture(t, nil)
	src := addontest.Write(t, t.TempDir(), addontest.Package{Name: "echo-detector"})
	renamed := filepath.Join(filepath.Dir(src), "checkout-42")
	require.NoError(t, os.Rename(src, renamed))

	rec, err := f.inst.Install(context.Background(), renamed, Options{Local: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.addonsDir, "echo-detector"), rec.PackageDir)
}

func TestInstallLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	src := addontest.Write(t, t.TempDir(), addontest.Package{Name: "echo-detector"})

	rec, err := f.inst.Install(ctx, src, Options{UseLink: true})
	require.NoError(t, err)
	assert.True(t, rec.IsLink)

	target, err := os.Readlink(filepath.Join(f.addonsDir, "echo-detector"))
	require.NoError(t, err)
	assert.Equal(t, src, target)

	require.NoError(t, f.inst.Uninstall(ctx, "echo-detector"))
	assert.FileExists(t, filepath.Join(src, "manifest.yaml"), "uninstalling a link keeps the source")
}

func TestInstallAlreadyInstalled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	src := addontest.Write(t, t.TempDir(), addontest.Package{Name: "echo-detector"})

	_, err := f.inst.Install(ctx, src, Options{Local: true})
	require.NoError(t, err)

	_, err = f.inst.Install(ctx, src, Options{Local: true})
	assert.True(t, errors.Is(err, errcode.AlreadyInstalled))
}

func TestInstallForceReplaces(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	v1 := addontest.Write(t, t.TempDir(), addontest.Package{Name: "echo-detector"})
	first, err := f.inst.Install(ctx, v1, Options{UseLink: true})
	require.NoError(t, err)

	v2 := addontest.Write(t, t.TempDir(), addontest.Package{Name: "echo-detector", Version: "2.0.0"})
	second, err := f.inst.Install(ctx, v2, Options{Local: true, Force: true})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "2.0.0", second.Version)
	assert.False(t, second.IsLink)
	assert.FileExists(t, filepath.Join(v1, "manifest.yaml"), "replacing a link keeps its source")
}

func TestInstallInvalidManifest(t *testing.T) {
	f := newFixture(t, nil)
	src := t.TempDir()
	addontest.WriteFile(t, filepath.Join(src, "manifest.yaml"), "name: broken\n")

	_, err := f.inst.Install(context.Background(), src, Options{Local: true})
	assert.True(t, errors.Is(err, errcode.InvalidManifest))
	assert.Empty(t, entries(t, f.addonsDir))
}

func TestInstallFetchedByName(t *testing.T) {
	src := addontest.Write(t, t.TempDir(), addontest.Package{Name: "echo-detector"})
	f := newFixture(t, &fakeFetcher{dirs: map[string]string{"echo-detector": src}})

	rec, err := f.inst.Install(context.Background(), "echo-detector", Options{Version: "^1.0.0"})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", rec.Version)
	assert.Equal(t, []string{"echo-detector@^1.0.0"}, f.inst.fetcher.(*fakeFetcher).requested)
}

func TestInstallWithoutFetcher(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.inst.Install(context.Background(), "echo-detector", Options{})
	assert.True(t, errors.Is(err, errcode.FetchFailure))
}

func TestInstallCancelledLeavesNothing(t *testing.T) {
	src := addontest.Write(t, t.TempDir(), addontest.Package{Name: "echo-detector"})
	for i := 0; i < 20; i++ {
		addontest.WriteFile(t, filepath.Join(src, "lib", "mod"+string(rune('a'+i))+".js"), "x")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, &fakeFetcher{
		dirs:      map[string]string{"echo-detector": src},
		beforeOut: cancel,
	})

	_, err := f.inst.Install(ctx, "echo-detector", Options{})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, entries(t, f.addonsDir), "neither the package nor its staging dir may remain")

	_, err = f.store.Get(context.Background(), "echo-detector")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestUninstall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	src := addontest.Write(t, t.TempDir(), addontest.Package{Name: "echo-detector"})
	_, err := f.inst.Install(ctx, src, Options{Local: true})
	require.NoError(t, err)

	require.NoError(t, f.inst.Uninstall(ctx, "echo-detector"))
	assert.NoDirExists(t, filepath.Join(f.addonsDir, "echo-detector"))
	assert.NoDirExists(t, filepath.Join(f.softwareDir, "echo-detector"))

	_, err = f.store.Get(ctx, "echo-detector")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestUninstallNotInRegistry(t *testing.T) {
	f := newFixture(t, nil)
	err := f.inst.Uninstall(context.Background(), "ghost")
	assert.True(t, errors.Is(err, errcode.NotInRegistry))
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestUninstallMissingDirectoryStillRemovesRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	src := addontest.Write(t, t.TempDir(), addontest.Package{Name: "echo-detector"})
	_, err := f.inst.Install(ctx, src, Options{Local: true})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(f.addonsDir, "echo-detector")))

	require.NoError(t, f.inst.Uninstall(ctx, "echo-detector"))
	_, err = f.store.Get(ctx, "echo-detector")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestExcluded(t *testing.T) {
	cases := map[string]bool{
		".git":                     true,
		"node_modules":             true,
		"lib/node_modules":         true,
		"lib/.DS_Store":            true,
		".DS_Store":                true,
		"index.js":                 false,
		"lib/git.js":               false,
		"docs/node_modules.md":     false,
		"vendor/.github/workflows": false,
	}
	for rel, want := range cases {
		assert.Equal(t, want, excluded(rel, false), rel)
	}
}
