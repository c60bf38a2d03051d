package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/any-hub/stowage/internal/stowage"
)

func TestFetchSourceThenList(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("tarball"))
	}))
	t.Cleanup(upstream.Close)

	useBufferWriters(t)
	www := useTempPrefix(t)

	src := upstream.URL + "/owner/repo/archive/v2.0.1.tar.gz"
	if code := run([]string{"fetch", "src", "github.com/owner/repo@2.0.1", src}); code != 0 {
		t.Fatalf("fetch src 失败，退出码 %d: %s", code, stdErrBuffer().String())
	}
	dst := filepath.Join(www, "github.com∕owner∕repo-2.0.1.tar.gz")
	if got := strings.TrimSpace(stdOutBuffer().String()); got != dst {
		t.Fatalf("expected %s, got %s", dst, got)
	}
	if data, err := os.ReadFile(dst); err != nil || string(data) != "tarball" {
		t.Fatalf("unexpected stowed content %q (%v)", data, err)
	}

	// 再次获取命中本地缓存，不再访问上游。
	stdOutBuffer().Reset()
	if code := run([]string{"fetch", "src", "github.com/owner/repo@2.0.1", src}); code != 0 {
		t.Fatalf("second fetch failed: %s", stdErrBuffer().String())
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one upstream hit, got %d", hits.Load())
	}

	stdOutBuffer().Reset()
	if code := run([]string{"ls", "-o", "json"}); code != 0 {
		t.Fatalf("ls 失败: %s", stdErrBuffer().String())
	}
	var records []stowage.Record
	if err := json.Unmarshal(stdOutBuffer().Bytes(), &records); err != nil {
		t.Fatalf("decode ls output: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %+v", records)
	}
	rec := records[0]
	if rec.Type != stowage.TypeSource || rec.Project != "github.com/owner/repo" || rec.Version != "2.0.1" || rec.Extname != ".tar.gz" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestFetchScriptWritesBodyToStdout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("#!/bin/sh\necho hi\n"))
	}))
	t.Cleanup(upstream.Close)

	useBufferWriters(t)
	www := useTempPrefix(t)

	if code := run([]string{"fetch", "script", upstream.URL + "/install.sh"}); code != 0 {
		t.Fatalf("fetch script 失败: %s", stdErrBuffer().String())
	}
	if got := stdOutBuffer().String(); got != "#!/bin/sh\necho hi\n" {
		t.Fatalf("unexpected script body %q", got)
	}
	entries, err := os.ReadDir(www)
	if err != nil {
		t.Fatalf("read www: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("scripts must not be stowed, found %d entries", len(entries))
	}
}

func TestFetchBottleFromDistURL(t *testing.T) {
	var gotPath atomic.Value
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		_, _ = w.Write([]byte("bottle"))
	}))
	t.Cleanup(upstream.Close)

	useBufferWriters(t)
	useTempPrefix(t)
	t.Setenv("STOWAGE_DISTURL", upstream.URL)

	if code := run([]string{"fetch", "bottle", "zlib.net@1.2.13"}); code != 0 {
		t.Fatalf("fetch bottle 失败: %s", stdErrBuffer().String())
	}
	path, _ := gotPath.Load().(string)
	if !strings.HasPrefix(path, "/zlib.net/") || !strings.HasSuffix(path, "/v1.2.13.tar.gz") {
		t.Fatalf("unexpected upstream path %q", path)
	}

	stdOutBuffer().Reset()
	if code := run([]string{"ls", "-o", "yaml"}); code != 0 {
		t.Fatalf("ls 失败: %s", stdErrBuffer().String())
	}
	var records []stowage.Record
	if err := yaml.Unmarshal(stdOutBuffer().Bytes(), &records); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if len(records) != 1 || records[0].Type != stowage.TypeBottle || records[0].Compression != "gz" {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestFetchPrivateBottleWithoutTokenFails(t *testing.T) {
	useBufferWriters(t)
	useTempPrefix(t)
	t.Setenv("STOWAGE_DISTURL", "https://github.com/teaxyz/private/releases/download")
	t.Setenv("GITHUB_TOKEN", "")

	if code := run([]string{"fetch", "bottle", "tea.xyz@0.30.0"}); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stdErrBuffer().String(), "GITHUB_TOKEN") {
		t.Fatalf("error should mention GITHUB_TOKEN, got %q", stdErrBuffer().String())
	}
}
