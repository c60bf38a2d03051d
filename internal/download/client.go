package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Request 描述一次下载：Dst 为空表示结果只保留在内存中（脚本类请求）。
type Request struct {
	Src     *url.URL
	Dst     string
	Headers http.Header
}

// Result 是下载产物。写入磁盘时 Path 为最终路径；内存下载时 Body 持有正文。
type Result struct {
	URL       string
	Path      string
	Body      []byte
	SizeBytes int64
	Cached    bool
}

// StatusError 表示上游返回了非 2xx 状态码。
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download %s: HTTP %d", e.URL, e.StatusCode)
}

// Client 通过共享 http.Client 下载制品，同一目标路径的写入通过 entryLock 串行化。
type Client struct {
	http   *http.Client
	logger *logrus.Logger

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// NewClient 构建下载器；httpClient 为空时使用 http.DefaultClient。
func NewClient(httpClient *http.Client, logger *logrus.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		http:   httpClient,
		logger: logger,
		locks:  make(map[string]*entryLock),
	}
}

// Download 执行 GET 请求并根据 Dst 决定落盘或保留在内存中。
func (c *Client) Download(ctx context.Context, req Request) (*Result, error) {
	if req.Src == nil {
		return nil, errors.New("download source required")
	}
	if req.Dst == "" {
		return c.fetchToMemory(ctx, req)
	}

	unlock := c.lockEntry(req.Dst)
	defer unlock()

	if info, err := os.Stat(req.Dst); err == nil && info.Mode().IsRegular() {
		c.logger.WithFields(logrus.Fields{
			"action": "download",
			"url":    req.Src.String(),
			"dst":    req.Dst,
		}).Debug("download_cached")
		return &Result{URL: req.Src.String(), Path: req.Dst, SizeBytes: info.Size(), Cached: true}, nil
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return c.fetchToFile(ctx, req)
}

func (c *Client) fetchToMemory(ctx context.Context, req Request) (*Result, error) {
	resp, err := c.get(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body bytes.Buffer
	written, err := copyWithContext(ctx, &body, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.Src, err)
	}
	return &Result{URL: req.Src.String(), Body: body.Bytes(), SizeBytes: written}, nil
}

func (c *Client) fetchToFile(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	if err := os.MkdirAll(filepath.Dir(req.Dst), 0o755); err != nil {
		return nil, err
	}

	resp, err := c.get(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	tempFile, err := os.CreateTemp(filepath.Dir(req.Dst), ".download-*")
	if err != nil {
		return nil, err
	}
	tempName := tempFile.Name()

	written, err := copyWithContext(ctx, tempFile, resp.Body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return nil, err
	}

	if err := os.Rename(tempName, req.Dst); err != nil {
		os.Remove(tempName)
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"action":     "download",
		"url":        req.Src.String(),
		"dst":        req.Dst,
		"size_bytes": written,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Info("download_complete")

	return &Result{URL: req.Src.String(), Path: req.Dst, SizeBytes: written}, nil
}

func (c *Client) get(ctx context.Context, req Request) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.Src.String(), http.NoBody)
	if err != nil {
		return nil, err
	}
	for key, values := range req.Headers {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{URL: req.Src.String(), StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (c *Client) lockEntry(key string) func() {
	c.mu.Lock()
	lock := c.locks[key]
	if lock == nil {
		lock = &entryLock{}
		c.locks[key] = lock
	}
	lock.refs++
	c.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		c.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(c.locks, key)
		}
		c.mu.Unlock()
	}
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
