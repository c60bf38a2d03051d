package stowage

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/any-hub/stowage/internal/host"
)

// 文件名语法（编码与解码共用）：
//
//	bottle: <escaped-project>-<version>+<platform>+<arch>.tar.<gz|xz>
//	src:    <escaped-project>-<version><extname>
//
// project 中的 `/` 替换为 U+2215，解码时还原。任何编码改动都必须保证旧文件名仍可解码，
// 否则已有缓存会在列表中静默消失。

const divisionSlash = "∕"

var (
	bottlePattern = regexp.MustCompile(`^(.*)-([0-9]+\.[0-9]+\.[0-9]+)(\+(.+?)\+(.+?))?\.tar\.[gx]z$`)
	sourcePattern = regexp.MustCompile(`^(.*)-([0-9]+\.[0-9]+\.[0-9]+)(\..+)$`)
)

func escapeProject(project string) string {
	return strings.ReplaceAll(project, "/", divisionSlash)
}

func unescapeProject(escaped string) string {
	return strings.ReplaceAll(escaped, divisionSlash, "/")
}

func stem(pkg Package) string {
	return escapeProject(pkg.Project) + "-" + pkg.Version.String()
}

func bottleSuffix(h host.Host, compression Compression) string {
	return "+" + string(h.Platform) + "+" + string(h.Arch) + ".tar." + string(compression)
}

// Decode 将 www 目录中的条目名还原为描述符；无法识别时返回 false。
func Decode(name string) (Stowage, bool) {
	if m := bottlePattern.FindStringSubmatch(name); m != nil {
		pkg, ok := decodePackage(m[1], m[2])
		if !ok {
			return nil, false
		}
		if m[3] != "" {
			compression := CompressionXz
			if strings.HasSuffix(name, ".tar.gz") {
				compression = CompressionGz
			}
			return Bottle{
				Pkg:         pkg,
				Host:        &host.Host{Platform: host.Platform(m[4]), Arch: host.Arch(m[5])},
				Compression: compression,
			}, true
		}
		return Source{Pkg: pkg, Extname: name[len(m[1])+1+len(m[2]):]}, true
	}

	m := sourcePattern.FindStringSubmatch(name)
	if m == nil {
		return nil, false
	}
	pkg, ok := decodePackage(m[1], m[2])
	if !ok {
		return nil, false
	}
	return Source{Pkg: pkg, Extname: m[3]}, true
}

func decodePackage(escaped, rawVersion string) (Package, bool) {
	if escaped == "" {
		return Package{}, false
	}
	version, err := semver.StrictNewVersion(rawVersion)
	if err != nil {
		return Package{}, false
	}
	return Package{Project: unescapeProject(escaped), Version: version}, true
}
