package fetcher

import (
	"archive/tar"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/keyhub-labs/keyhub/internal/branding"
	"github.com/keyhub-labs/keyhub/internal/errcode"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// maxPackageBytes caps the unpacked size of a fetched package.
const maxPackageBytes = 512 << 20

// HTTP fetches packages from an npm-style registry: GET <base>/<name>
// returns a document listing versions and their tarball URLs.
type HTTP struct {
	baseURL string
	client  *retryablehttp.Client
	log     *zap.Logger
}

// HTTPOption customises an HTTP fetcher.
type HTTPOption func(*HTTP)

// WithHTTPClient replaces the underlying transport client (useful in tests).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client.HTTPClient = c }
}

// WithRetryWait sets the retry backoff bounds.
func WithRetryWait(minWait, maxWait time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.client.RetryWaitMin = minWait
		h.client.RetryWaitMax = maxWait
	}
}

// NewHTTP returns a fetcher for the registry at baseURL.
func NewHTTP(baseURL string, retries int, timeout time.Duration, log *zap.Logger, opts ...HTTPOption) *HTTP {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("add-ons:fetcher")

	client := retryablehttp.NewClient()
	client.RetryMax = retries
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 10 * time.Second
	client.Logger = leveledLogger{log.Sugar()}
	if timeout > 0 {
		client.HTTPClient.Timeout = timeout
	}

	h := &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// packument is the registry's description of one package.
type packument struct {
	Name     string                   `json:"name"`
	DistTags map[string]string        `json:"dist-tags"`
	Versions map[string]packageRelease `json:"versions"`
}

type packageRelease struct {
	Version string `json:"version"`
	Dist    struct {
		Tarball string `json:"tarball"`
		Shasum  string `json:"shasum"`
	} `json:"dist"`
}

// Fetch downloads and unpacks the release of name that best matches
// version: a dist-tag, a semver constraint, or "" for the latest tag. The
// package is unpacked into a temporary directory removed by cleanup.
func (h *HTTP) Fetch(ctx context.Context, name, version string) (string, func(), error) {
	doc, err := h.packument(ctx, name)
	if err != nil {
		return "", noop, err
	}

	release, err := selectRelease(doc, version)
	if err != nil {
		return "", noop, errcode.Wrap(errcode.FetchFailure, err, "resolving %s@%s", name, version)
	}

	tmp, err := os.MkdirTemp("", branding.CLIName()+"-fetch-*")
	if err != nil {
		return "", noop, errcode.Wrap(errcode.FetchFailure, err, "creating download directory")
	}
	cleanup := onceCleanup(func() { os.RemoveAll(tmp) })

	h.log.Info("downloading add-on",
		zap.String("addon", name),
		zap.String("version", release.Version),
		zap.String("url", release.Dist.Tarball),
	)

	dir, err := h.download(ctx, release, tmp)
	if err != nil {
		cleanup()
		return "", noop, errcode.Wrap(errcode.FetchFailure, err, "downloading %s@%s", name, release.Version)
	}
	return dir, cleanup, nil
}

func (h *HTTP) packument(ctx context.Context, name string) (*packument, error) {
	if h.baseURL == "" {
		return nil, errcode.New(errcode.FetchFailure, "no package index configured")
	}
	u := h.baseURL + "/" + url.PathEscape(name)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errcode.Wrap(errcode.FetchFailure, err, "creating index request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", branding.CLIName()+"-fetcher")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errcode.Wrap(errcode.FetchFailure, err, "querying %s", u)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errcode.New(errcode.FetchFailure, "package %s not found in %s", name, h.baseURL)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errcode.New(errcode.FetchFailure, "index returned status %d for %s", resp.StatusCode, name)
	}

	var doc packument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, errcode.Wrap(errcode.FetchFailure, err, "decoding index document for %s", name)
	}
	return &doc, nil
}

// selectRelease picks the release named by version.
func selectRelease(doc *packument, version string) (packageRelease, error) {
	if version == "" {
		version = "latest"
	}
	if tagged, ok := doc.DistTags[version]; ok {
		version = tagged
	}
	if rel, ok := doc.Versions[version]; ok {
		if rel.Version == "" {
			rel.Version = version
		}
		return rel, nil
	}

	constraint, err := semver.NewConstraint(version)
	if err != nil {
		return packageRelease{}, fmt.Errorf("no release or tag %q: %w", version, err)
	}

	var (
		best    *semver.Version
		bestRel packageRelease
	)
	for raw, rel := range doc.Versions {
		v, err := semver.NewVersion(raw)
		if err != nil || !constraint.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestRel = v, rel
			if bestRel.Version == "" {
				bestRel.Version = raw
			}
		}
	}
	if best == nil {
		return packageRelease{}, fmt.Errorf("no release satisfies %q", version)
	}
	return bestRel, nil
}

// download fetches the tarball of rel and unpacks it into dest. It returns
// the package root: the single top-level directory of the archive, or dest.
func (h *HTTP) download(ctx context.Context, rel packageRelease, dest string) (string, error) {
	if rel.Dist.Tarball == "" {
		return "", fmt.Errorf("release has no tarball")
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rel.Dist.Tarball, nil)
	if err != nil {
		return "", fmt.Errorf("creating download request: %w", err)
	}
	req.Header.Set("User-Agent", branding.CLIName()+"-fetcher")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", rel.Dist.Tarball, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	sum := sha1.New()
	if err := extractTarGz(ctx, io.TeeReader(resp.Body, sum), dest); err != nil {
		return "", err
	}
	if rel.Dist.Shasum != "" {
		actual := hex.EncodeToString(sum.Sum(nil))
		if !strings.EqualFold(actual, rel.Dist.Shasum) {
			return "", fmt.Errorf("checksum mismatch: expected %s, got %s", rel.Dist.Shasum, actual)
		}
	}

	return packageRoot(dest)
}

// extractTarGz unpacks a gzip-compressed tarball into dest. Entries that
// would land outside dest are rejected.
func extractTarGz(ctx context.Context, r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gz.Close()

	var written int64
	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		name := filepath.FromSlash(strings.TrimPrefix(hdr.Name, "./"))
		if name == "" || name == "." {
			continue
		}
		if !filepath.IsLocal(name) {
			return fmt.Errorf("archive entry %q escapes the package", hdr.Name)
		}
		target := filepath.Join(dest, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("creating %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("creating %s: %w", filepath.Dir(target), err)
			}
			mode := os.FileMode(hdr.Mode).Perm() | 0600
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
			if err != nil {
				return fmt.Errorf("creating %s: %w", target, err)
			}
			n, err := io.Copy(out, io.LimitReader(tr, maxPackageBytes-written+1))
			out.Close()
			if err != nil {
				return fmt.Errorf("extracting %s: %w", hdr.Name, err)
			}
			written += n
			if written > maxPackageBytes {
				return fmt.Errorf("package exceeds %d bytes", maxPackageBytes)
			}
		default:
			// Links and devices are not part of add-on packages.
		}
	}

	// Drain so the checksum covers the whole stream.
	_, _ = io.Copy(io.Discard, r)
	return nil
}

// packageRoot returns dest's only child directory when dest holds exactly
// one entry, as npm tarballs do ("package/").
func packageRoot(dest string) (string, error) {
	entries, err := os.ReadDir(dest)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dest, entries[0].Name()), nil
	}
	return dest, nil
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
