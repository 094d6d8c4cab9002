package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/RecoveryAshes/zonehwatch/internal/models"
)

func TestHeaderManager_GetMergedHeaders(t *testing.T) {
	t.Run("默认站点头部", func(t *testing.T) {
		hm, err := NewHeaderManager("", nil)
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}

		headers := hm.GetMergedHeaders()
		if headers.Get("User-Agent") != DefaultUserAgent {
			t.Errorf("User-Agent = %s", headers.Get("User-Agent"))
		}
		if headers.Get("Accept-Encoding") != "gzip, deflate, br" {
			t.Errorf("Accept-Encoding = %s", headers.Get("Accept-Encoding"))
		}
		if headers.Get("Upgrade-Insecure-Requests") != "1" || headers.Get("Cache-Control") != "max-age=0" {
			t.Errorf("缺少站点头部: %v", headers)
		}
		if headers.Get("Host") != "" || headers.Get("Connection") != "" {
			t.Error("Host与Connection应由传输层管理")
		}
	})

	t.Run("优先级 默认<配置文件<命令行", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "headers.yaml")
		content := "headers:\n  Accept-Language: \"de-DE\"\n  User-Agent: \"FileBot/1.0\"\n"
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		hm, err := NewHeaderManager(configPath, []string{"User-Agent: CliBot/2.0"})
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}

		headers, err := hm.GetHeaders()
		if err != nil {
			t.Fatalf("获取头部失败: %v", err)
		}
		if headers.Get("User-Agent") != "CliBot/2.0" {
			t.Errorf("命令行应覆盖配置文件, 实际 %s", headers.Get("User-Agent"))
		}
		if headers.Get("Accept-Language") != "de-DE" {
			t.Errorf("配置文件应覆盖默认, 实际 %s", headers.Get("Accept-Language"))
		}
	})

	t.Run("返回副本", func(t *testing.T) {
		hm, err := NewHeaderManager(filepath.Join(t.TempDir(), "headers.yaml"), nil)
		if err != nil {
			t.Fatal(err)
		}
		first, err := hm.GetHeaders()
		if err != nil {
			t.Fatal(err)
		}
		first.Set("User-Agent", "mutated")

		second, _ := hm.GetHeaders()
		if second.Get("User-Agent") != DefaultUserAgent {
			t.Error("修改返回值不应影响后续请求")
		}
	})
}

func TestHeaderManager_Validation(t *testing.T) {
	t.Run("命令行格式错误", func(t *testing.T) {
		if _, err := NewHeaderManager("", []string{"NoColon"}); err == nil {
			t.Error("期望返回错误")
		}
	})

	t.Run("禁止设置Cookie", func(t *testing.T) {
		hm, err := NewHeaderManager(filepath.Join(t.TempDir(), "headers.yaml"), []string{"Cookie: ZHE=1"})
		if err != nil {
			t.Fatal(err)
		}
		_, err = hm.GetHeaders()
		var vErr *models.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("期望ValidationError, 实际 %v", err)
		}
	})

	t.Run("敏感头部脱敏", func(t *testing.T) {
		hm, err := NewHeaderManager("", []string{"Authorization: Bearer secret-token-12345"})
		if err != nil {
			t.Fatal(err)
		}
		if got := hm.GetSafeHeaders()["Authorization"]; got != "Bearer ***" {
			t.Errorf("Authorization = %s", got)
		}
	})
}
