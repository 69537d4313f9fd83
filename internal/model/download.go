package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// LockFile records the checksum of every fetched artifact so reruns skip
// unchanged files.
const LockFile = "download-manifest.lock.json"

type DownloadOptions struct {
	BaseURL string
	OutDir  string
	Files   []ModelFile
	Token   string
	Client  *http.Client
	Stdout  io.Writer
}

// ErrAccessDenied is returned when the host answers 401 or 403.
type ErrAccessDenied struct {
	URL string
	Msg string
}

func (e *ErrAccessDenied) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "access denied for " + e.URL
}

type lockManifest struct {
	BaseURL   string                `json:"base_url"`
	Generated string                `json:"generated"`
	Files     map[string]lockRecord `json:"files"`
}

type lockRecord struct {
	SHA256 string `json:"sha256"`
}

var shaPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Download fetches each file from BaseURL into OutDir. The expected checksum
// of a file is its pinned SHA256, else the lock manifest entry, else a sha256
// ETag advertised by the host. Files with no expected checksum are trusted on
// first download and recorded in the lock manifest.
func Download(ctx context.Context, opts DownloadOptions) error {
	switch {
	case opts.BaseURL == "":
		return fmt.Errorf("base URL is required")
	case opts.OutDir == "":
		return fmt.Errorf("out dir is required")
	}
	if len(opts.Files) == 0 {
		opts.Files = DefaultFiles()
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	lockPath := filepath.Join(opts.OutDir, LockFile)
	lock := readLockManifest(lockPath)
	if lock.BaseURL != opts.BaseURL {
		lock.Files = map[string]lockRecord{}
	}
	lock.BaseURL = opts.BaseURL

	for _, f := range opts.Files {
		sum, err := fetch(ctx, opts, f, lock.Files[f.Filename].SHA256)
		if err != nil {
			return err
		}
		lock.Files[f.Filename] = lockRecord{SHA256: sum}
	}

	lock.Generated = time.Now().UTC().Format(time.RFC3339)
	if err := writeLockManifest(lockPath, lock); err != nil {
		return err
	}
	fmt.Fprintf(opts.Stdout, "wrote lock manifest: %s\n", lockPath)

	return nil
}

// fetch brings one file up to date and returns its sha256.
func fetch(ctx context.Context, opts DownloadOptions, f ModelFile, locked string) (string, error) {
	want := strings.ToLower(f.SHA256)
	if want == "" && isSHA256Hex(locked) {
		want = strings.ToLower(locked)
	}
	if want == "" {
		want = resolveChecksumFromMetadata(ctx, opts.Client, opts.BaseURL, f, opts.Token)
	}

	dst := filepath.Join(opts.OutDir, filepath.FromSlash(f.Filename))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create local subdir: %w", err)
	}

	if want != "" {
		ok, err := existingMatches(dst, want)
		if err != nil {
			return "", err
		}
		if ok {
			fmt.Fprintf(opts.Stdout, "skip %s (checksum match)\n", f.Filename)
			return want, nil
		}
	}

	fmt.Fprintf(opts.Stdout, "download %s -> %s\n", resolveURL(opts.BaseURL, f), dst)
	got, err := downloadWithProgress(ctx, opts.Client, opts.BaseURL, f, opts.Token, dst, opts.Stdout)
	if err != nil {
		return "", err
	}
	if want != "" && got != want {
		_ = os.Remove(dst)
		return "", fmt.Errorf("checksum mismatch for %s: expected %s got %s", f.Filename, want, got)
	}
	fmt.Fprintf(opts.Stdout, "verified %s (sha256=%s)\n", f.Filename, got)

	return got, nil
}

func existingMatches(path, expected string) (bool, error) {
	fi, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat existing file: %w", err)
	case fi.IsDir():
		return false, fmt.Errorf("expected file at %s, found directory", path)
	}

	actual, err := fileSHA256(path)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}

// progressWriter reports bytes written at most every interval.
type progressWriter struct {
	w        io.Writer
	total    int64
	written  int64
	interval time.Duration
	last     time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if time.Since(p.last) < p.interval {
		return len(b), nil
	}
	p.last = time.Now()

	if p.total > 0 {
		fmt.Fprintf(p.w, "  progress: %.1f%% (%s/%s)\n",
			float64(p.written)*100/float64(p.total),
			humanize.Bytes(uint64(p.written)), humanize.Bytes(uint64(p.total)))
	} else {
		fmt.Fprintf(p.w, "  progress: %s\n", humanize.Bytes(uint64(p.written)))
	}
	return len(b), nil
}

// downloadWithProgress streams the file into a temp file beside dst and
// renames it into place, returning the sha256 of the body.
func downloadWithProgress(ctx context.Context, client *http.Client, baseURL string, file ModelFile, token, dst string, stdout io.Writer) (string, error) {
	if stdout == nil {
		stdout = io.Discard
	}
	url := resolveURL(baseURL, file)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	setAuth(req, token)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return "", &ErrAccessDenied{URL: url, Msg: fmt.Sprintf("access denied for %s; provide a token with --token", url)}
	case resp.StatusCode/100 != 2:
		return "", fmt.Errorf("download failed for %s: %s", file.Filename, resp.Status)
	}

	tmp := dst + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	h := sha256.New()
	progress := &progressWriter{w: stdout, total: resp.ContentLength, interval: 700 * time.Millisecond, last: time.Now()}
	_, copyErr := io.Copy(io.MultiWriter(fh, h, progress), resp.Body)
	closeErr := fh.Close()

	if copyErr != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("download %s: %w", file.Filename, copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close temp file: %w", closeErr)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("move temp file into place: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// resolveChecksumFromMetadata returns the sha256 advertised by a HEAD
// response, or "" when none is usable. Hugging Face serves LFS digests in
// X-Linked-Etag.
func resolveChecksumFromMetadata(ctx context.Context, client *http.Client, baseURL string, f ModelFile, token string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, resolveURL(baseURL, f), nil)
	if err != nil {
		return ""
	}
	setAuth(req, token)

	resp, err := client.Do(req)
	if err != nil {
		return ""
	}
	resp.Body.Close()

	if resp.StatusCode/100 != 2 && resp.StatusCode/100 != 3 {
		return ""
	}

	for _, key := range []string{"X-Linked-Etag", "Etag"} {
		if v := normalizeETag(resp.Header.Get(key)); isSHA256Hex(v) {
			return strings.ToLower(v)
		}
	}
	return ""
}

func setAuth(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// normalizeETag strips quoting and the weak-validator prefix.
func normalizeETag(v string) string {
	v = strings.Trim(strings.TrimSpace(v), `"`)
	return strings.Trim(strings.TrimPrefix(v, "W/"), `"`)
}

func isSHA256Hex(v string) bool {
	return shaPattern.MatchString(v)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read file for checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readLockManifest(path string) lockManifest {
	empty := lockManifest{Files: map[string]lockRecord{}}

	b, err := os.ReadFile(path)
	if err != nil {
		return empty
	}
	var m lockManifest
	if err := json.Unmarshal(b, &m); err != nil {
		return empty
	}
	if m.Files == nil {
		m.Files = map[string]lockRecord{}
	}
	return m
}

func writeLockManifest(path string, lock lockManifest) error {
	b, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lock manifest: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write lock manifest: %w", err)
	}
	return nil
}
