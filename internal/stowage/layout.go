package stowage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/any-hub/stowage/internal/host"
)

// Layout 绑定 www 目录与默认 Host 探测函数，本身无状态，可被多个 goroutine 共享。
type Layout struct {
	dir         string
	currentHost func() host.Host
}

// NewLayout 以 dir 作为 www 目录构建 Layout，不触碰文件系统。
func NewLayout(dir string) Layout {
	return Layout{dir: dir, currentHost: host.Current}
}

// WithHostFunc 返回替换默认 Host 探测函数后的副本，主要用于测试。
func (l Layout) WithHostFunc(fn func() host.Host) Layout {
	if fn != nil {
		l.currentHost = fn
	}
	return l
}

// Dir 返回 www 目录。
func (l Layout) Dir() string {
	return l.dir
}

// Path 计算描述符在 www 目录中的绝对路径，纯函数，不检查文件是否存在。
func (l Layout) Path(s Stowage) (string, error) {
	name, err := l.Filename(s)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.dir, name), nil
}

// Filename 返回描述符对应的文件名。
func (l Layout) Filename(s Stowage) (string, error) {
	if s == nil {
		return "", fmt.Errorf("%w: nil stowage", ErrInvalidDescriptor)
	}
	if err := validatePackage(s.Package()); err != nil {
		return "", err
	}

	var name string
	switch v := s.(type) {
	case Bottle:
		if v.Compression != CompressionGz && v.Compression != CompressionXz {
			return "", fmt.Errorf("%w: unsupported compression %q", ErrInvalidDescriptor, v.Compression)
		}
		h := l.resolveHost(v.Host)
		if h.Platform == "" || h.Arch == "" || strings.ContainsAny(string(h.Platform)+string(h.Arch), "+"+pathSeparators) {
			return "", fmt.Errorf("%w: invalid host %q", ErrInvalidDescriptor, h.String())
		}
		name = stem(v.Pkg) + bottleSuffix(h, v.Compression)
		s = Bottle{Pkg: v.Pkg, Host: &h, Compression: v.Compression}
	case Source:
		if !strings.HasPrefix(v.Extname, ".") || len(v.Extname) < 2 {
			return "", fmt.Errorf("%w: extname %q must start with a dot", ErrInvalidDescriptor, v.Extname)
		}
		if strings.ContainsAny(v.Extname, pathSeparators) {
			return "", fmt.Errorf("%w: extname %q contains a path separator", ErrInvalidDescriptor, v.Extname)
		}
		name = stem(v.Pkg) + v.Extname
	default:
		return "", fmt.Errorf("%w: unknown stowage type %T", ErrInvalidDescriptor, s)
	}

	// 文件名必须能被 Decode 还原为同一描述符，否则 List 会把它归到别的包下。
	if decoded, ok := Decode(name); !ok || !sameStowage(s, decoded) {
		return "", fmt.Errorf("%w: %q does not decode back to %s", ErrInvalidDescriptor, name, s.Package())
	}
	return name, nil
}

// www 是扁平目录，文件名中不能出现任何路径分隔符。
const pathSeparators = `/\`

func sameStowage(a, b Stowage) bool {
	if a.Type() != b.Type() {
		return false
	}
	pa, pb := a.Package(), b.Package()
	if pa.Project != pb.Project || !pa.Version.Equal(pb.Version) {
		return false
	}
	switch av := a.(type) {
	case Bottle:
		bv := b.(Bottle)
		return av.Compression == bv.Compression && *av.Host == *bv.Host
	case Source:
		return av.Extname == b.(Source).Extname
	}
	return false
}

// Host 返回未指定 Host 的 bottle 所使用的默认 Host。
func (l Layout) Host() host.Host {
	return l.resolveHost(nil)
}

func (l Layout) resolveHost(h *host.Host) host.Host {
	if h != nil {
		return *h
	}
	if l.currentHost == nil {
		return host.Current()
	}
	return l.currentHost()
}

func validatePackage(pkg Package) error {
	if pkg.Project == "" {
		return fmt.Errorf("%w: empty project", ErrInvalidDescriptor)
	}
	if strings.Contains(pkg.Project, divisionSlash) {
		return fmt.Errorf("%w: project %q contains reserved %q", ErrInvalidDescriptor, pkg.Project, divisionSlash)
	}
	if pkg.Version == nil {
		return fmt.Errorf("%w: empty version for %s", ErrInvalidDescriptor, pkg.Project)
	}
	if pkg.Version.Prerelease() != "" || pkg.Version.Metadata() != "" {
		return fmt.Errorf("%w: version %s must be major.minor.patch", ErrInvalidDescriptor, pkg.Version.Original())
	}
	return nil
}

// List 枚举 www 目录中所有可识别的制品，顺序不作保证。
func (l Layout) List(ctx context.Context) ([]Stowed, error) {
	inv, err := l.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return inv.Stowed, nil
}

// Scan 与 List 相同，但额外返回被跳过的条目名。单个条目解析失败不会中断扫描，
// 只有目录本身无法读取时才返回 ErrUnreadable。
func (l Layout) Scan(ctx context.Context) (*Inventory, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}

	inv := &Inventory{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		full := filepath.Join(l.dir, entry.Name())
		if !isRegularFile(full, entry) {
			continue
		}
		s, ok := Decode(entry.Name())
		if !ok {
			inv.Unrecognized = append(inv.Unrecognized, entry.Name())
			continue
		}
		inv.Stowed = append(inv.Stowed, Stowed{Stowage: s, Path: full})
	}
	return inv, nil
}

// isRegularFile 跟随符号链接判断条目是否为普通文件，断链或指向目录的链接视为非文件。
func isRegularFile(full string, entry fs.DirEntry) bool {
	mode := entry.Type()
	if mode.IsRegular() {
		return true
	}
	if mode&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(full)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
