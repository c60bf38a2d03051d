// Package fetch turns bottle, source and script requests into downloads: it
// resolves the source URL, computes the stowage destination, attaches the
// credentials a private artifact needs and hands the transfer to a Downloader.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/stowage/internal/download"
	"github.com/any-hub/stowage/internal/logging"
	"github.com/any-hub/stowage/internal/stowage"
)

// 私有仓库的 bottle 托管在 GitHub 上，匿名请求无法访问，必须携带 token。
const (
	privateNamespace = "tea.xyz"
	privateForgeHost = "github.com"

	// TokenEnv 是私有仓库 bearer token 所在的环境变量。
	TokenEnv = "GITHUB_TOKEN"
)

// ErrMissingCredential 表示私有仓库请求缺少 TokenEnv。
var ErrMissingCredential = errors.New("private repos require a " + TokenEnv)

// Downloader 是实际执行传输的原语，错误原样向上传递。
type Downloader interface {
	Download(ctx context.Context, req download.Request) (*download.Result, error)
}

// URLResolver 计算对象存储上 bottle 的下载地址。
type URLResolver interface {
	URL(s stowage.Stowage) (*url.URL, error)
}

// Options 汇总 Fetcher 的依赖，便于测试注入。
type Options struct {
	Layout     stowage.Layout
	Resolver   URLResolver
	Downloader Downloader
	Logger     *logrus.Logger
	// Getenv 默认为 os.Getenv。
	Getenv func(string) string
	// Workers 限制 FetchAll 的并发数，<=0 时为 1。
	Workers int
}

// Fetcher 无内部状态，多个 goroutine 可共享同一实例。
type Fetcher struct {
	layout     stowage.Layout
	resolver   URLResolver
	downloader Downloader
	logger     *logrus.Logger
	getenv     func(string) string
	workers    int
}

// New 校验依赖后构建 Fetcher。
func New(opts Options) (*Fetcher, error) {
	if opts.Resolver == nil {
		return nil, errors.New("url resolver is required")
	}
	if opts.Downloader == nil {
		return nil, errors.New("downloader is required")
	}
	if opts.Layout.Dir() == "" {
		return nil, errors.New("stowage layout is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Fetcher{
		layout:     opts.Layout,
		resolver:   opts.Resolver,
		downloader: opts.Downloader,
		logger:     logger,
		getenv:     getenv,
		workers:    workers,
	}, nil
}

// Fetch 解析请求的源地址与目标路径后委托 Downloader 下载。
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*download.Result, error) {
	started := time.Now()
	p, err := f.plan(req)
	if err != nil {
		return nil, err
	}

	result, err := f.downloader.Download(ctx, download.Request{
		Src:     p.src,
		Dst:     p.dst,
		Headers: p.headers,
	})

	fields := logging.StowageFields(string(req.Kind()), p.pkg.Project, versionOf(p.pkg))
	fields["action"] = "fetch"
	fields["url"] = p.src.String()
	fields["dst"] = p.dst
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		f.logger.WithFields(fields).WithError(err).Error("fetch_failed")
		return nil, err
	}
	fields["cached"] = result.Cached
	f.logger.WithFields(fields).Info("fetch_complete")
	return result, nil
}

// FetchAll 并发执行多个请求，并发度受 Workers 限制；首个错误会取消其余请求。
// 返回结果与 reqs 一一对应。
func (f *Fetcher) FetchAll(ctx context.Context, reqs []Request) ([]*download.Result, error) {
	results := make([]*download.Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for i, req := range reqs {
		g.Go(func() error {
			result, err := f.Fetch(gctx, req)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

type fetchPlan struct {
	src     *url.URL
	dst     string
	headers http.Header
	pkg     stowage.Package
}

func (f *Fetcher) plan(req Request) (fetchPlan, error) {
	headers := http.Header{}
	switch r := req.(type) {
	case BottleRequest:
		// Host 只解析一次，保证下载地址与目标文件名指向同一平台。
		h := f.layout.Host()
		if !h.Known() {
			f.logger.WithFields(logging.StowageFields(string(KindBottle), r.Pkg.Project, versionOf(r.Pkg))).
				WithField("host", h.String()).Warn("unsupported_host")
		}
		bottle := stowage.Bottle{Pkg: r.Pkg, Host: &h, Compression: stowage.CompressionGz}
		src, err := f.resolver.URL(bottle)
		if err != nil {
			return fetchPlan{}, fmt.Errorf("resolve %s: %w", r.Pkg, err)
		}
		dst, err := f.layout.Path(bottle)
		if err != nil {
			return fetchPlan{}, err
		}
		if requiresCredential(r.Pkg, src) {
			token := f.getenv(TokenEnv)
			if token == "" {
				return fetchPlan{}, ErrMissingCredential
			}
			headers.Set("Authorization", "bearer "+token)
		}
		return fetchPlan{src: src, dst: dst, headers: headers, pkg: r.Pkg}, nil
	case SourceRequest:
		if r.URL == nil {
			return fetchPlan{}, fmt.Errorf("%w: source url required for %s", stowage.ErrInvalidDescriptor, r.Pkg)
		}
		dst, err := f.layout.Path(stowage.Source{Pkg: r.Pkg, Extname: Extname(r.URL.Path)})
		if err != nil {
			return fetchPlan{}, err
		}
		return fetchPlan{src: r.URL, dst: dst, headers: headers, pkg: r.Pkg}, nil
	case ScriptRequest:
		if r.URL == nil {
			return fetchPlan{}, errors.New("script url required")
		}
		return fetchPlan{src: r.URL, headers: headers}, nil
	default:
		return fetchPlan{}, fmt.Errorf("unsupported fetch request %T", req)
	}
}

func versionOf(pkg stowage.Package) string {
	if pkg.Version == nil {
		return ""
	}
	return pkg.Version.String()
}

func requiresCredential(pkg stowage.Package, src *url.URL) bool {
	return pkg.Project == privateNamespace && src.Host == privateForgeHost
}

var tarExtname = regexp.MustCompile(`\.tar\.\w+$`)

// Extname 返回 URL 路径的扩展名，.tar.* 视为一个整体。
func Extname(p string) string {
	base := path.Base(p)
	if m := tarExtname.FindString(base); m != "" {
		return m
	}
	return path.Ext(base)
}
