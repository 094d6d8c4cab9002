package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RecoveryAshes/zonehwatch/internal/models"
)

func TestHeaderConfigLoader_LoadConfig(t *testing.T) {
	t.Run("首次运行自动生成配置文件", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "configs", "headers.yaml")
		loader := NewHeaderConfigLoader(configPath)

		cfg, err := loader.LoadConfig()
		if err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}
		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("配置文件应该被自动生成: %v", err)
		}
		if cfg.Headers == nil || len(cfg.Headers) != 0 {
			t.Errorf("模板应解析为空的头部集合, 实际 %v", cfg.Headers)
		}
	})

	t.Run("加载已存在的配置文件", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "headers.yaml")
		content := "headers:\n  Accept-Language: \"de-DE\"\n  Referer: \"https://www.zone-h.org/archive\"\n"
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		cfg, err := NewHeaderConfigLoader(configPath).LoadConfig()
		if err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}
		if len(cfg.Headers) != 2 {
			t.Fatalf("期望2个头部, 实际 %d", len(cfg.Headers))
		}
		for name, value := range cfg.Headers {
			if strings.EqualFold(name, "Accept-Language") && value != "de-DE" {
				t.Errorf("Accept-Language = %s", value)
			}
		}
	})

	t.Run("YAML格式错误返回ConfigError", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "headers.yaml")
		if err := os.WriteFile(configPath, []byte("headers: [unclosed\n"), 0644); err != nil {
			t.Fatal(err)
		}

		_, err := NewHeaderConfigLoader(configPath).LoadConfig()
		var cfgErr *models.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("期望ConfigError, 实际 %v", err)
		}
		if cfgErr.FilePath != configPath {
			t.Errorf("FilePath = %s", cfgErr.FilePath)
		}
	})

	t.Run("配置文件过大", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "headers.yaml")
		big := make([]byte, MaxConfigFileSize+1)
		if err := os.WriteFile(configPath, big, 0644); err != nil {
			t.Fatal(err)
		}

		err := NewHeaderConfigLoader(configPath).ValidateFileSize()
		var cfgErr *models.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("期望ConfigError, 实际 %v", err)
		}
	})

	t.Run("默认路径", func(t *testing.T) {
		if got := NewHeaderConfigLoader("").Path(); got != DefaultConfigFile {
			t.Errorf("Path() = %s", got)
		}
	})
}
