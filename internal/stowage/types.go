package stowage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/any-hub/stowage/internal/host"
)

// Type 区分 bottle 与源码包两种缓存形态。
type Type string

const (
	TypeBottle Type = "bottle"
	TypeSource Type = "src"
)

// Compression 是 bottle 的 tar 压缩格式。
type Compression string

const (
	CompressionGz Compression = "gz"
	CompressionXz Compression = "xz"
)

var (
	// ErrInvalidDescriptor 表示描述符缺少 project/version 或字段非法。
	ErrInvalidDescriptor = errors.New("invalid stowage descriptor")
	// ErrUnreadable 表示 www 目录无法枚举（不存在或无权限）。
	ErrUnreadable = errors.New("stowage directory unreadable")
)

// Package 是项目标识 + 版本。Project 允许包含 `/`（例如 owner/name）。
type Package struct {
	Project string
	Version *semver.Version
}

func (p Package) String() string {
	if p.Version == nil {
		return p.Project
	}
	return p.Project + "@" + p.Version.String()
}

// ParsePackage 解析 `project@version` 形式的包描述，版本必须是严格的三段式 semver。
func ParsePackage(spec string) (Package, error) {
	idx := strings.LastIndex(spec, "@")
	if idx <= 0 || idx == len(spec)-1 {
		return Package{}, fmt.Errorf("%w: expected project@version, got %q", ErrInvalidDescriptor, spec)
	}
	version, err := semver.StrictNewVersion(spec[idx+1:])
	if err != nil {
		return Package{}, fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, spec, err)
	}
	pkg := Package{Project: spec[:idx], Version: version}
	if err := validatePackage(pkg); err != nil {
		return Package{}, err
	}
	return pkg, nil
}

// Stowage 是可缓存制品的描述符，只有 Bottle 与 Source 两种实现。
type Stowage interface {
	Type() Type
	Package() Package
	sealed()
}

// Bottle 描述预编译二进制包。Host 为 nil 时编码阶段使用当前运行环境。
type Bottle struct {
	Pkg         Package
	Host        *host.Host
	Compression Compression
}

func (Bottle) Type() Type { return TypeBottle }
func (b Bottle) Package() Package { return b.Pkg }
func (Bottle) sealed() {}

// Source 描述源码归档，Extname 带前导点，可以是 .tar.gz 这类多段扩展名。
type Source struct {
	Pkg     Package
	Extname string
}

func (Source) Type() Type { return TypeSource }
func (s Source) Package() Package { return s.Pkg }
func (Source) sealed() {}

// Stowed 是在 www 目录中找到的制品及其绝对路径。
type Stowed struct {
	Stowage Stowage
	Path    string
}

// Inventory 是一次目录扫描的结果；Unrecognized 记录被跳过的条目名。
type Inventory struct {
	Stowed       []Stowed
	Unrecognized []string
}
