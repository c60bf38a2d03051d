// Package offlicense computes canonical download URLs for artifacts hosted on
// the distribution object store.
package offlicense

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/any-hub/stowage/internal/host"
	"github.com/any-hub/stowage/internal/stowage"
)

// DefaultDistURL 是发行制品所在对象存储的公共入口。
const DefaultDistURL = "https://dist.tea.xyz"

// Resolver 将描述符映射为 <base>/<project>[/<platform>/<arch>]/v<version><ext>。
type Resolver struct {
	base        *url.URL
	currentHost func() host.Host
}

// NewResolver 校验 base 后构建 Resolver；base 为空时使用 DefaultDistURL。
func NewResolver(base string) (*Resolver, error) {
	if strings.TrimSpace(base) == "" {
		base = DefaultDistURL
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse dist url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("dist url must be http/https: %s", base)
	}
	if parsed.Host == "" {
		return nil, errors.New("dist url missing host")
	}
	return &Resolver{base: parsed, currentHost: host.Current}, nil
}

// WithHostFunc overrides runtime host detection for bottles without a host.
func (r *Resolver) WithHostFunc(fn func() host.Host) *Resolver {
	if fn != nil {
		r.currentHost = fn
	}
	return r
}

// URL 返回描述符在对象存储上的下载地址。
func (r *Resolver) URL(s stowage.Stowage) (*url.URL, error) {
	key, err := r.Key(s)
	if err != nil {
		return nil, err
	}
	return r.base.JoinPath(strings.Split(key, "/")...), nil
}

// Key 返回对象存储中的相对键。
func (r *Resolver) Key(s stowage.Stowage) (string, error) {
	if s == nil {
		return "", fmt.Errorf("%w: nil stowage", stowage.ErrInvalidDescriptor)
	}
	pkg := s.Package()
	if pkg.Project == "" || pkg.Version == nil {
		return "", fmt.Errorf("%w: incomplete package %q", stowage.ErrInvalidDescriptor, pkg.String())
	}

	switch v := s.(type) {
	case stowage.Bottle:
		h := r.currentHost()
		if v.Host != nil {
			h = *v.Host
		}
		return fmt.Sprintf("%s/%s/%s/v%s.tar.%s", pkg.Project, h.Platform, h.Arch, pkg.Version, v.Compression), nil
	case stowage.Source:
		return fmt.Sprintf("%s/v%s%s", pkg.Project, pkg.Version, v.Extname), nil
	default:
		return "", fmt.Errorf("%w: unknown stowage type %T", stowage.ErrInvalidDescriptor, s)
	}
}
