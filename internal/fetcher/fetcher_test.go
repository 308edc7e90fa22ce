package fetcher

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keyhub-labs/keyhub/internal/errcode"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

type fakeIndex struct {
	srv       *httptest.Server
	tarballs  map[string][]byte
	shasums   map[string]string
	indexHits atomic.Int32
	failFirst int32
}

func newFakeIndex(t *testing.T, versions map[string]map[string]string, latest string) *fakeIndex {
	t.Helper()
	fi := &fakeIndex{tarballs: map[string][]byte{}, shasums: map[string]string{}}
	for v, files := range versions {
		data := tarball(t, files)
		fi.tarballs[v] = data
		sum := sha1.Sum(data)
		fi.shasums[v] = hex.EncodeToString(sum[:])
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/echo-detector", func(w http.ResponseWriter, r *http.Request) {
		if fi.indexHits.Add(1) <= fi.failFirst {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		doc := map[string]any{
			"name":      "echo-detector",
			"dist-tags": map[string]string{"latest": latest},
		}
		vers := map[string]any{}
		for v := range fi.tarballs {
			vers[v] = map[string]any{
				"version": v,
				"dist": map[string]string{
					"tarball": fi.srv.URL + "/tarballs/" + v + ".tgz",
					"shasum":  fi.shasums[v],
				},
			}
		}
		doc["versions"] = vers
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	})
	mux.HandleFunc("/tarballs/", func(w http.ResponseWriter, r *http.Request) {
		v := filepath.Base(r.URL.Path)
		v = v[:len(v)-len(".tgz")]
		data, ok := fi.tarballs[v]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	})
	fi.srv = httptest.NewServer(mux)
	t.Cleanup(fi.srv.Close)
	return fi
}

func newTestHTTP(fi *fakeIndex) *HTTP {
	return NewHTTP(fi.srv.URL, 2, 5*time.Second, nil, WithRetryWait(time.Millisecond, 5*time.Millisecond))
}

func manifestFor(version string) map[string]string {
	return map[string]string{
		"package/manifest.yaml": "name: echo-detector\ntype: detector\nversion: " + version + "\nentry: index.js\ncapabilities: [run]\n",
		"package/index.js":      "module.exports = { run: function (k, x) { return x; } };",
	}
}

func TestHTTPFetchLatest(t *testing.T) {
	fi := newFakeIndex(t, map[string]map[string]string{
		"1.0.0": manifestFor("1.0.0"),
		"1.2.0": manifestFor("1.2.0"),
	}, "1.0.0")

	dir, cleanup, err := newTestHTTP(fi).Fetch(context.Background(), "echo-detector", "")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "manifest.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "version: 1.0.0", "latest dist-tag wins when no version is given")

	cleanup()
	cleanup()
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "cleanup removes the download")
}

func TestHTTPFetchConstraint(t *testing.T) {
	fi := newFakeIndex(t, map[string]map[string]string{
		"1.0.0": manifestFor("1.0.0"),
		"1.4.2": manifestFor("1.4.2"),
		"2.0.0": manifestFor("2.0.0"),
	}, "2.0.0")

	dir, cleanup, err := newTestHTTP(fi).Fetch(context.Background(), "echo-detector", "^1.0")
	require.NoError(t, err)
	defer cleanup()

	data, err := os.ReadFile(filepath.Join(dir, "manifest.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "version: 1.4.2")
}

func TestHTTPFetchRetriesIndex(t *testing.T) {
	fi := newFakeIndex(t, map[string]map[string]string{"1.0.0": manifestFor("1.0.0")}, "1.0.0")
	fi.failFirst = 1

	_, cleanup, err := newTestHTTP(fi).Fetch(context.Background(), "echo-detector", "")
	require.NoError(t, err)
	cleanup()
	assert.Equal(t, int32(2), fi.indexHits.Load())
}

func TestHTTPFetchErrors(t *testing.T) {
	fi := newFakeIndex(t, map[string]map[string]string{"1.0.0": manifestFor("1.0.0")}, "1.0.0")
	h := newTestHTTP(fi)

	_, _, err := h.Fetch(context.Background(), "unknown-addon", "")
	assert.True(t, errors.Is(err, errcode.FetchFailure))

	_, _, err = h.Fetch(context.Background(), "echo-detector", ">=3.0.0")
	assert.True(t, errors.Is(err, errcode.FetchFailure))
}

func TestHTTPFetchCancelled(t *testing.T) {
	fi := newFakeIndex(t, map[string]map[string]string{"1.0.0": manifestFor("1.0.0")}, "1.0.0")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, cleanup, err := newTestHTTP(fi).Fetch(ctx, "echo-detector", "")
	cleanup()
	assert.Error(t, err)
}

func TestExtractRejectsTraversal(t *testing.T) {
	data := tarball(t, map[string]string{"../evil.txt": "x"})
	err := extractTarGz(context.Background(), bytes.NewReader(data), t.TempDir())
	assert.ErrorContains(t, err, "escapes")
}

func TestLocalFetch(t *testing.T) {
	dir := t.TempDir()
	got, cleanup, err := Local{}.Fetch(context.Background(), dir, "")
	require.NoError(t, err)
	cleanup()
	assert.Equal(t, dir, got)

	_, _, err = Local{}.Fetch(context.Background(), filepath.Join(dir, "missing"), "")
	assert.True(t, errors.Is(err, errcode.FetchFailure))
}

func TestUnavailable(t *testing.T) {
	_, cleanup, err := Unavailable{}.Fetch(context.Background(), "echo-detector", "")
	cleanup()
	assert.True(t, errors.Is(err, errcode.FetchFailure))
}
