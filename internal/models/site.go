package models

import (
	"fmt"
	"strings"
)

// DefaultBaseURL 默认的归档站点地址
const DefaultBaseURL = "https://www.zone-h.org"

// ArchiveType 归档分区类型
type ArchiveType string

const (
	ArchiveMain    ArchiveType = "archive" // 主归档
	ArchiveSpecial ArchiveType = "special" // 特殊目标
	ArchiveOnHold  ArchiveType = "onhold"  // 待审核
)

// ArchiveTypes 返回所有支持的归档分区
func ArchiveTypes() []ArchiveType {
	return []ArchiveType{ArchiveMain, ArchiveSpecial, ArchiveOnHold}
}

// ParseArchiveType 解析归档分区名称
func ParseArchiveType(s string) (ArchiveType, error) {
	switch ArchiveType(strings.ToLower(strings.TrimSpace(s))) {
	case ArchiveMain:
		return ArchiveMain, nil
	case ArchiveSpecial:
		return ArchiveSpecial, nil
	case ArchiveOnHold:
		return ArchiveOnHold, nil
	}
	return "", fmt.Errorf("未知的归档类型: %q (有效值: archive, special, onhold)", s)
}

// PageCursor 归档分页游标
type PageCursor struct {
	Archive ArchiveType `json:"archive"`
	Page    int         `json:"page"`
}

// WithPage 返回同一分区下指定页码的游标
func (c PageCursor) WithPage(page int) PageCursor {
	return PageCursor{Archive: c.Archive, Page: page}
}

func (c PageCursor) String() string {
	return fmt.Sprintf("%s#%d", c.Archive, c.Page)
}

// Site 站点URL模板
// 所有出站请求的地址都由这里拼出,便于在测试中替换为本地服务
type Site struct {
	BaseURL string
}

// NewSite 创建站点URL模板
func NewSite(baseURL string) Site {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return Site{BaseURL: strings.TrimRight(baseURL, "/")}
}

// LandingURL 首页地址(反爬脚本所在页)
func (s Site) LandingURL() string {
	return s.BaseURL + "/"
}

// ProbeURL 会话校验探针地址
func (s Site) ProbeURL() string {
	return s.BaseURL + "/?hz=1"
}

// ChallengeScriptURL 反爬挑战脚本地址
func (s Site) ChallengeScriptURL() string {
	return s.BaseURL + "/z.js"
}

// PageURL 归档分页地址
func (s Site) PageURL(c PageCursor) string {
	archive := s.BaseURL + "/archive"
	switch c.Archive {
	case ArchiveSpecial:
		return fmt.Sprintf("%s/special=1/page=%d", archive, c.Page)
	case ArchiveOnHold:
		return fmt.Sprintf("%s/published=0/page=%d", archive, c.Page)
	default:
		return fmt.Sprintf("%s/page=%d", archive, c.Page)
	}
}

// MirrorURL 镜像详情页地址
func (s Site) MirrorURL(mirrorID int) string {
	return fmt.Sprintf("%s/mirror/id/%d", s.BaseURL, mirrorID)
}

// CaptchaURL 验证码图片地址,n 为 [1,1000] 内的随机数
func (s Site) CaptchaURL(n int) string {
	return fmt.Sprintf("%s/captcha.py?%d", s.BaseURL, n)
}

// MassDefacementURL 同一IP批量篡改列表地址
func (s Site) MassDefacementURL(ip string) string {
	return fmt.Sprintf("%s/archive/ip=%s", s.BaseURL, ip)
}

// RedefacementURL 同一域名重复篡改列表地址
func (s Site) RedefacementURL(domain string) string {
	return fmt.Sprintf("%s/archive/domain=%s", s.BaseURL, domain)
}
