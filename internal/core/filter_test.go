package core

import (
	"testing"

	"github.com/RecoveryAshes/zonehwatch/internal/models"
)

func TestFilterEngine_Inactive(t *testing.T) {
	engine, err := BuildFilters(models.FilterConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if engine.Active() {
		t.Error("未配置任何过滤条件时引擎不应生效")
	}
	if engine.HasDomainFilters() {
		t.Error("不应有域名过滤")
	}
	for _, rec := range []models.Record{{}, {Country: "Brazil", DefacedURL: "a.com.br"}} {
		if !engine.Matches(rec) {
			t.Errorf("引擎未生效时应放行所有记录: %+v", rec)
		}
	}
	if engine.Describe() != "none" {
		t.Errorf("Describe = %s", engine.Describe())
	}
}

func TestDomainFilter_Match(t *testing.T) {
	filter := NewDomainFilter([]string{"example.com", ".GOV.BR"})

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"子域名带路径", "sub.evil.example.com/path", true},
		{"域名本身", "example.com", true},
		{"带协议和端口", "https://www.example.com:8443/index.php", true},
		{"大写主机名", "WWW.EXAMPLE.COM/x", true},
		{"前导点配置", "prefeitura.sp.gov.br/", true},
		{"没有标签边界", "evil-example.com", false},
		{"后缀作为前缀", "example.com.evil.net", false},
		{"空URL", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filter.Match(models.Record{DefacedURL: tt.url})
			if got != tt.want {
				t.Errorf("Match(%q) = %v, 期望 %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestFilterEngine_Selective(t *testing.T) {
	engine, err := BuildFilters(models.FilterConfig{
		Countries: []string{"br", "Germany"},
		Domains:   []string{"gov.ua"},
		Notifiers: []string{"alpha"},
	})
	if err != nil {
		t.Fatalf("创建过滤器失败: %v", err)
	}
	if !engine.Active() || !engine.HasDomainFilters() {
		t.Fatal("引擎应生效且包含域名过滤")
	}

	tests := []struct {
		name string
		rec  models.Record
		want bool
	}{
		{"国家代码转换", models.Record{Country: "Brazil"}, true},
		{"国家全名", models.Record{Country: "Germany"}, true},
		{"域名", models.Record{DefacedURL: "kyiv.gov.ua/"}, true},
		{"通报者", models.Record{Notifier: "alpha"}, true},
		{"通报者区分大小写", models.Record{Notifier: "Alpha"}, false},
		{"都不满足", models.Record{Country: "France", DefacedURL: "a.fr", Notifier: "beta"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.Matches(tt.rec); got != tt.want {
				t.Errorf("Matches = %v, 期望 %v", got, tt.want)
			}
		})
	}

	if engine.Describe() != "country,domain,notifier" {
		t.Errorf("Describe = %s", engine.Describe())
	}
}

func TestBuildFilters_UnknownCountry(t *testing.T) {
	if _, err := BuildFilters(models.FilterConfig{Countries: []string{"QQ"}}); err == nil {
		t.Error("未知国家代码应返回错误")
	}
}

func TestFilterEngine_OnlyNotifier(t *testing.T) {
	engine, err := BuildFilters(models.FilterConfig{Notifiers: []string{"alpha"}})
	if err != nil {
		t.Fatal(err)
	}
	if engine.HasDomainFilters() {
		t.Error("只有通报者过滤时不应触发镜像补全")
	}
	if engine.Matches(models.Record{Notifier: "beta"}) {
		t.Error("引擎生效后不应无条件放行")
	}
}
