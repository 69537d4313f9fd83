package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// fileServer serves a fixed set of files and counts GET requests.
func fileServer(t *testing.T, files map[string][]byte, headers map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		if r.Method == http.MethodGet {
			gets.Add(1)
			_, _ = w.Write(body)
		}
	}))
	t.Cleanup(srv.Close)

	return srv, &gets
}

func TestErrAccessDenied(t *testing.T) {
	withMsg := &ErrAccessDenied{URL: "http://x/model.onnx", Msg: "custom error"}
	if withMsg.Error() != "custom error" {
		t.Errorf("Error() = %q; want %q", withMsg.Error(), "custom error")
	}

	bare := &ErrAccessDenied{URL: "http://x/model.onnx"}
	if !strings.Contains(bare.Error(), "http://x/model.onnx") {
		t.Errorf("Error() = %q; should mention URL", bare.Error())
	}
}

func TestDefaultFiles(t *testing.T) {
	files := DefaultFiles()
	want := []string{"kitten_tts_nano_v0_1.onnx", "voices.json"}
	if len(files) != len(want) {
		t.Fatalf("len(DefaultFiles()) = %d; want %d", len(files), len(want))
	}
	for i, f := range files {
		if f.Filename != want[i] {
			t.Errorf("files[%d] = %q; want %q", i, f.Filename, want[i])
		}
		if f.SHA256 != "" {
			t.Errorf("files[%d] has pinned checksum %q; want none", i, f.SHA256)
		}
	}
}

func TestApplyChecksums(t *testing.T) {
	sum := strings.Repeat("ab", 32)

	tests := []struct {
		name    string
		pairs   []string
		want    string
		wantErr bool
	}{
		{"none", nil, "", false},
		{"pinned", []string{"voices.json=" + sum}, sum, false},
		{"uppercase digest", []string{"voices.json=" + strings.ToUpper(sum)}, sum, false},
		{"missing separator", []string{"voices.json"}, "", true},
		{"empty name", []string{"=" + sum}, "", true},
		{"short digest", []string{"voices.json=abc"}, "", true},
		{"unknown file", []string{"other.bin=" + sum}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyChecksums(DefaultFiles(), tt.pairs)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyChecksums: %v", err)
			}
			if got[1].SHA256 != tt.want {
				t.Errorf("voices.json sha = %q; want %q", got[1].SHA256, tt.want)
			}
			if got[0].SHA256 != "" {
				t.Errorf("model sha = %q; want unchanged", got[0].SHA256)
			}
		})
	}
}

func TestApplyChecksums_DoesNotMutateInput(t *testing.T) {
	files := DefaultFiles()
	if _, err := ApplyChecksums(files, []string{"voices.json=" + strings.Repeat("0", 64)}); err != nil {
		t.Fatalf("ApplyChecksums: %v", err)
	}
	if files[1].SHA256 != "" {
		t.Errorf("input mutated: %q", files[1].SHA256)
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base, file, want string
	}{
		{"http://host/model", "voices.json", "http://host/model/voices.json"},
		{"http://host/model/", "voices.json", "http://host/model/voices.json"},
		{"http://host", "/sub/./a.onnx", "http://host/sub/a.onnx"},
	}
	for _, tt := range tests {
		got := resolveURL(tt.base, ModelFile{Filename: tt.file})
		if got != tt.want {
			t.Errorf("resolveURL(%q, %q) = %q; want %q", tt.base, tt.file, got, tt.want)
		}
	}
}

func TestExistingMatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	content := []byte("hello")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	ok, err := existingMatches(filepath.Join(dir, "missing"), sha256Hex(content))
	if err != nil || ok {
		t.Errorf("missing file: ok=%v err=%v; want false, nil", ok, err)
	}

	ok, err = existingMatches(path, strings.Repeat("0", 64))
	if err != nil || ok {
		t.Errorf("mismatch: ok=%v err=%v; want false, nil", ok, err)
	}

	ok, err = existingMatches(path, sha256Hex(content))
	if err != nil || !ok {
		t.Errorf("match: ok=%v err=%v; want true, nil", ok, err)
	}

	if _, err := existingMatches(dir, sha256Hex(content)); err == nil {
		t.Error("directory: expected error")
	}
}

func TestFileSHA256(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := fileSHA256(path)
	if err != nil {
		t.Fatalf("fileSHA256: %v", err)
	}
	const emptySHA = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != emptySHA {
		t.Errorf("fileSHA256(empty) = %q; want %q", got, emptySHA)
	}

	if _, err := fileSHA256(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLockManifest_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFile)

	in := lockManifest{
		BaseURL:   "http://host/model",
		Generated: "2026-01-01T00:00:00Z",
		Files:     map[string]lockRecord{"voices.json": {SHA256: strings.Repeat("a", 64)}},
	}
	if err := writeLockManifest(path, in); err != nil {
		t.Fatalf("writeLockManifest: %v", err)
	}

	out := readLockManifest(path)
	if out.BaseURL != in.BaseURL {
		t.Errorf("BaseURL = %q; want %q", out.BaseURL, in.BaseURL)
	}
	if out.Files["voices.json"].SHA256 != in.Files["voices.json"].SHA256 {
		t.Errorf("voices.json sha = %q", out.Files["voices.json"].SHA256)
	}
}

func TestReadLockManifest_MissingOrInvalid(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{filepath.Join(dir, "missing.json"), bad} {
		m := readLockManifest(path)
		if m.Files == nil || len(m.Files) != 0 {
			t.Errorf("readLockManifest(%s).Files = %v; want empty non-nil map", filepath.Base(path), m.Files)
		}
	}
}

func TestSetAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	setAuth(req, "")
	if got := req.Header.Get("Authorization"); got != "" {
		t.Errorf("empty token set Authorization = %q", got)
	}

	setAuth(req, "tok")
	if got := req.Header.Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Authorization = %q; want %q", got, "Bearer tok")
	}
}

func TestNormalizeETag(t *testing.T) {
	tests := map[string]string{
		`"abc"`:     "abc",
		`W/"abc"`:   "abc",
		"  abc  ":   "abc",
		`"W/"abc""`: "abc",
		"":          "",
	}
	for in, want := range tests {
		if got := normalizeETag(in); got != want {
			t.Errorf("normalizeETag(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestIsSHA256Hex(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{strings.Repeat("a", 64), true},
		{strings.Repeat("A", 64), true},
		{strings.Repeat("a", 63), false},
		{strings.Repeat("g", 64), false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isSHA256Hex(tt.in); got != tt.want {
			t.Errorf("isSHA256Hex(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestResolveChecksumFromMetadata(t *testing.T) {
	sum := strings.Repeat("c", 64)
	other := strings.Repeat("d", 64)

	tests := []struct {
		name    string
		headers map[string]string
		status  int
		want    string
	}{
		{"linked etag wins", map[string]string{"X-Linked-Etag": `"` + sum + `"`, "Etag": `"` + other + `"`}, 200, sum},
		{"etag fallback", map[string]string{"Etag": `W/"` + strings.ToUpper(sum) + `"`}, 200, sum},
		{"non-digest etag", map[string]string{"Etag": `"abc-123"`}, 200, ""},
		{"forbidden", nil, http.StatusForbidden, ""},
		{"server error", nil, http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodHead {
					t.Errorf("method = %s; want HEAD", r.Method)
				}
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			got := resolveChecksumFromMetadata(context.Background(), srv.Client(), srv.URL, ModelFile{Filename: "voices.json"}, "")
			if got != tt.want {
				t.Errorf("checksum = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestResolveChecksumFromMetadata_SendsToken(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	resolveChecksumFromMetadata(context.Background(), srv.Client(), srv.URL, ModelFile{Filename: "voices.json"}, "secret")
	if auth != "Bearer secret" {
		t.Errorf("Authorization = %q; want %q", auth, "Bearer secret")
	}
}

func TestDownloadWithProgress(t *testing.T) {
	body := []byte("model-bytes")
	srv, _ := fileServer(t, map[string][]byte{"model.onnx": body}, nil)

	out := filepath.Join(t.TempDir(), "model.onnx")
	var log strings.Builder
	sum, err := downloadWithProgress(context.Background(), srv.Client(), srv.URL, ModelFile{Filename: "model.onnx"}, "", out, &log)
	if err != nil {
		t.Fatalf("downloadWithProgress: %v", err)
	}
	if sum != sha256Hex(body) {
		t.Errorf("sha = %q; want %q", sum, sha256Hex(body))
	}
	got, err := os.ReadFile(out)
	if err != nil || string(got) != string(body) {
		t.Errorf("file content = %q, err %v", got, err)
	}
	if _, err := os.Stat(out + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestDownloadWithProgress_StatusErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantAccess bool
	}{
		{"unauthorized", http.StatusUnauthorized, true},
		{"forbidden", http.StatusForbidden, true},
		{"not found", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			out := filepath.Join(t.TempDir(), "x")
			_, err := downloadWithProgress(context.Background(), srv.Client(), srv.URL, ModelFile{Filename: "x"}, "", out, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			var denied *ErrAccessDenied
			if got := errors.As(err, &denied); got != tt.wantAccess {
				t.Errorf("errors.As(ErrAccessDenied) = %v; want %v (err: %v)", got, tt.wantAccess, err)
			}
			if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
				t.Error("output file created on failure")
			}
		})
	}
}

func TestDownload_RequiresBaseURLAndOutDir(t *testing.T) {
	if err := Download(context.Background(), DownloadOptions{OutDir: t.TempDir()}); err == nil {
		t.Error("expected error for empty base URL")
	}
	if err := Download(context.Background(), DownloadOptions{BaseURL: "http://x"}); err == nil {
		t.Error("expected error for empty out dir")
	}
}

func TestDownload_FetchesDefaultFilesAndWritesLock(t *testing.T) {
	files := map[string][]byte{
		"kitten_tts_nano_v0_1.onnx": []byte("onnx-graph"),
		"voices.json":               []byte(`{"expr-voice-2-f":[0.1,0.2]}`),
	}
	srv, gets := fileServer(t, files, nil)
	dir := t.TempDir()

	var log strings.Builder
	if err := Download(context.Background(), DownloadOptions{BaseURL: srv.URL, OutDir: dir, Client: srv.Client(), Stdout: &log}); err != nil {
		t.Fatalf("Download: %v", err)
	}

	for name, body := range files {
		got, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil || string(got) != string(body) {
			t.Errorf("%s content = %q, err %v", name, got, err)
		}
	}

	lock := readLockManifest(filepath.Join(dir, LockFile))
	if lock.BaseURL != srv.URL {
		t.Errorf("lock BaseURL = %q; want %q", lock.BaseURL, srv.URL)
	}
	for name, body := range files {
		if lock.Files[name].SHA256 != sha256Hex(body) {
			t.Errorf("lock %s = %q; want %q", name, lock.Files[name].SHA256, sha256Hex(body))
		}
	}
	if gets.Load() != 2 {
		t.Errorf("GET count = %d; want 2", gets.Load())
	}
	if !strings.Contains(log.String(), "wrote lock manifest") {
		t.Errorf("log missing lock line:\n%s", log.String())
	}

	// Second run trusts the lock manifest and skips both files.
	log.Reset()
	if err := Download(context.Background(), DownloadOptions{BaseURL: srv.URL, OutDir: dir, Client: srv.Client(), Stdout: &log}); err != nil {
		t.Fatalf("second Download: %v", err)
	}
	if gets.Load() != 2 {
		t.Errorf("GET count after rerun = %d; want 2", gets.Load())
	}
	if strings.Count(log.String(), "skip ") != 2 {
		t.Errorf("expected two skip lines:\n%s", log.String())
	}
}

func TestDownload_ChecksumMismatchRemovesFile(t *testing.T) {
	srv, _ := fileServer(t, map[string][]byte{"voices.json": []byte("{}")}, nil)
	dir := t.TempDir()

	err := Download(context.Background(), DownloadOptions{
		BaseURL: srv.URL,
		OutDir:  dir,
		Client:  srv.Client(),
		Files:   []ModelFile{{Filename: "voices.json", SHA256: strings.Repeat("0", 64)}},
	})
	if err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Fatalf("err = %v; want checksum mismatch", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "voices.json")); !os.IsNotExist(statErr) {
		t.Error("mismatched file left on disk")
	}
}

func TestDownload_UsesETagChecksum(t *testing.T) {
	body := []byte("{}")
	srv, gets := fileServer(t, map[string][]byte{"voices.json": body}, map[string]string{
		"X-Linked-Etag": `"` + sha256Hex(body) + `"`,
	})
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "voices.json"), body, 0o644); err != nil {
		t.Fatal(err)
	}

	err := Download(context.Background(), DownloadOptions{
		BaseURL: srv.URL,
		OutDir:  dir,
		Client:  srv.Client(),
		Files:   []ModelFile{{Filename: "voices.json"}},
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if gets.Load() != 0 {
		t.Errorf("GET count = %d; want 0 for a file matching the advertised checksum", gets.Load())
	}
}

func TestDownload_BaseURLChangeResetsLock(t *testing.T) {
	body := []byte("{}")
	srv, gets := fileServer(t, map[string][]byte{"voices.json": body}, nil)
	dir := t.TempDir()

	stale := lockManifest{
		BaseURL: "http://elsewhere",
		Files:   map[string]lockRecord{"voices.json": {SHA256: strings.Repeat("0", 64)}},
	}
	if err := writeLockManifest(filepath.Join(dir, LockFile), stale); err != nil {
		t.Fatal(err)
	}

	err := Download(context.Background(), DownloadOptions{
		BaseURL: srv.URL,
		OutDir:  dir,
		Client:  srv.Client(),
		Files:   []ModelFile{{Filename: "voices.json"}},
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if gets.Load() != 1 {
		t.Errorf("GET count = %d; want 1", gets.Load())
	}
}
