// Package host reports the platform/architecture pair that bottles are built for.
package host

import "runtime"

// Platform 是 bottle 构建目标的操作系统标识。
type Platform string

// Arch 是 bottle 构建目标的 CPU 架构标识。
type Arch string

const (
	PlatformDarwin  Platform = "darwin"
	PlatformLinux   Platform = "linux"
	PlatformWindows Platform = "windows"

	ArchX86_64  Arch = "x86-64"
	ArchAarch64 Arch = "aarch64"
)

// Host 描述 bottle 的执行目标。
type Host struct {
	Platform Platform `json:"platform" yaml:"platform"`
	Arch     Arch     `json:"arch" yaml:"arch"`
}

func (h Host) String() string {
	return string(h.Platform) + "/" + string(h.Arch)
}

// Current 返回当前进程所在的 Host。未知的 GOARCH 原样透传。
func Current() Host {
	return Detect(runtime.GOOS, runtime.GOARCH)
}

// Detect 将 Go 的 GOOS/GOARCH 映射为 bottle 命名使用的标识。
func Detect(goos, goarch string) Host {
	var arch Arch
	switch goarch {
	case "amd64":
		arch = ArchX86_64
	case "arm64":
		arch = ArchAarch64
	default:
		arch = Arch(goarch)
	}
	return Host{Platform: Platform(goos), Arch: arch}
}

// Known reports whether both halves of h are among the supported values.
func (h Host) Known() bool {
	switch h.Platform {
	case PlatformDarwin, PlatformLinux, PlatformWindows:
	default:
		return false
	}
	return h.Arch == ArchX86_64 || h.Arch == ArchAarch64
}
