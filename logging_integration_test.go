package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggingFallbackToStderr(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root 可绕过目录权限，无法构造写入失败")
	}
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	logPath := filepath.Join(blocked, "sub", "stowage.log")
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "info"
LogFilePath = "%s"
Prefix = "%s"
ListenPort = 5000
`, logPath, filepath.Join(dir, "prefix")))

	useBufferWriters(t)
	code := run([]string{"--config", configPath, "check-config"})
	if code != 0 {
		t.Fatalf("日志 fallback 不应导致失败，得到 %d: %s", code, stdErrBuffer().String())
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(file, []byte(strings.TrimSpace(content)), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return file
}
