package core

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/RecoveryAshes/zonehwatch/internal/models"
)

// Filter 单项记录过滤条件
// 只有三种实现: CountryFilter, DomainFilter, NotifierFilter
type Filter interface {
	// Empty 未配置任何条件
	Empty() bool
	// Match 记录是否满足条件
	Match(rec models.Record) bool
	// Name 过滤器名称
	Name() string
}

// CountryFilter 按国家过滤,比较国家全名
type CountryFilter struct {
	countries map[string]struct{}
}

// NewCountryFilter 创建国家过滤器
// 两位代码转换为站点使用的国家名,未知代码返回错误
func NewCountryFilter(values []string) (*CountryFilter, error) {
	f := &CountryFilter{countries: make(map[string]struct{}, len(values))}
	for _, v := range values {
		name, err := models.NormalizeCountry(v)
		if err != nil {
			return nil, err
		}
		f.countries[name] = struct{}{}
	}
	return f, nil
}

func (f *CountryFilter) Empty() bool  { return len(f.countries) == 0 }
func (f *CountryFilter) Name() string { return "country" }

func (f *CountryFilter) Match(rec models.Record) bool {
	_, ok := f.countries[rec.Country]
	return ok
}

// DomainFilter 按被篡改站点的域名后缀过滤
// 按标签边界匹配: gov.br 匹配 gov.br 和 x.gov.br,不匹配 xgov.br
type DomainFilter struct {
	suffixes []string
}

// NewDomainFilter 创建域名过滤器
func NewDomainFilter(values []string) *DomainFilter {
	f := &DomainFilter{}
	for _, v := range values {
		suffix := strings.TrimLeft(strings.ToLower(strings.TrimSpace(v)), ".")
		if suffix != "" {
			f.suffixes = append(f.suffixes, suffix)
		}
	}
	return f
}

func (f *DomainFilter) Empty() bool  { return len(f.suffixes) == 0 }
func (f *DomainFilter) Name() string { return "domain" }

func (f *DomainFilter) Match(rec models.Record) bool {
	host := hostOf(rec.DefacedURL)
	if host == "" {
		return false
	}
	for _, suffix := range f.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// hostOf 取出URL的主机名,没有协议时按 http 补全
func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := u.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(strings.ToLower(host), ".")
}

// NotifierFilter 按通报者精确匹配
type NotifierFilter struct {
	notifiers map[string]struct{}
}

// NewNotifierFilter 创建通报者过滤器
func NewNotifierFilter(values []string) *NotifierFilter {
	f := &NotifierFilter{notifiers: make(map[string]struct{}, len(values))}
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			f.notifiers[v] = struct{}{}
		}
	}
	return f
}

func (f *NotifierFilter) Empty() bool  { return len(f.notifiers) == 0 }
func (f *NotifierFilter) Name() string { return "notifier" }

func (f *NotifierFilter) Match(rec models.Record) bool {
	_, ok := f.notifiers[rec.Notifier]
	return ok
}

// FilterEngine 组合过滤器
// 全部过滤器为空时放行所有记录,否则记录满足任一非空过滤器即匹配
type FilterEngine struct {
	filters []Filter
	domain  *DomainFilter
}

// NewFilterEngine 创建组合过滤器
func NewFilterEngine(country *CountryFilter, domain *DomainFilter, notifier *NotifierFilter) *FilterEngine {
	return &FilterEngine{
		filters: []Filter{country, domain, notifier},
		domain:  domain,
	}
}

// BuildFilters 根据配置创建组合过滤器
func BuildFilters(cfg models.FilterConfig) (*FilterEngine, error) {
	country, err := NewCountryFilter(cfg.Countries)
	if err != nil {
		return nil, fmt.Errorf("国家过滤配置无效: %w", err)
	}
	return NewFilterEngine(country, NewDomainFilter(cfg.Domains), NewNotifierFilter(cfg.Notifiers)), nil
}

// Active 是否配置了任何过滤条件
func (e *FilterEngine) Active() bool {
	for _, f := range e.filters {
		if !f.Empty() {
			return true
		}
	}
	return false
}

// HasDomainFilters 是否配置了域名过滤
// 只有此时才需要为截断的URL访问镜像页
func (e *FilterEngine) HasDomainFilters() bool {
	return !e.domain.Empty()
}

// Matches 记录是否满足任一非空过滤器
// 引擎未生效时总是返回 true
func (e *FilterEngine) Matches(rec models.Record) bool {
	if !e.Active() {
		return true
	}
	for _, f := range e.filters {
		if !f.Empty() && f.Match(rec) {
			return true
		}
	}
	return false
}

// Describe 已配置过滤器的简要说明,用于日志
func (e *FilterEngine) Describe() string {
	var parts []string
	for _, f := range e.filters {
		if !f.Empty() {
			parts = append(parts, f.Name())
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}
