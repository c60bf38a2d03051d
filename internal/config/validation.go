package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置进入运行期。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", "无法识别的日志级别 "+g.LogLevel)
	}
	if !filepath.IsAbs(g.WWW()) {
		return newFieldError("Global.WWWPath", "制品目录必须是绝对路径: "+g.WWW())
	}
	if err := validateUpstream(g.DistURL); err != nil {
		return fmt.Errorf("Global.DistURL: %w", err)
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.Workers <= 0 {
		return newFieldError("Global.Workers", "必须大于 0")
	}
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.LogMaxSize < 0 || g.LogMaxBackups < 0 {
		return newFieldError("Global.LogMaxSize/LogMaxBackups", "不能为负数")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
