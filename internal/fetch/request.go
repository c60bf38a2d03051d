package fetch

import (
	"net/url"

	"github.com/any-hub/stowage/internal/stowage"
)

// Kind 区分三种下载请求。
type Kind string

const (
	KindBottle Kind = "bottle"
	KindSource Kind = "src"
	KindScript Kind = "script"
)

// Request 只有 BottleRequest、SourceRequest、ScriptRequest 三种实现。
type Request interface {
	Kind() Kind
	sealed()
}

// BottleRequest 下载当前 Host 的 gz bottle，地址由 URLResolver 计算。
type BottleRequest struct {
	Pkg stowage.Package
}

// SourceRequest 从调用方提供的 URL 下载源码归档。
type SourceRequest struct {
	Pkg stowage.Package
	URL *url.URL
}

// ScriptRequest 下载临时脚本，不写入 www 目录。
type ScriptRequest struct {
	URL *url.URL
}

func (BottleRequest) Kind() Kind { return KindBottle }
func (BottleRequest) sealed() {}

func (SourceRequest) Kind() Kind { return KindSource }
func (SourceRequest) sealed() {}

func (ScriptRequest) Kind() Kind { return KindScript }
func (ScriptRequest) sealed() {}
