package models

import (
	"fmt"
	"time"
)

// RunStatus 抓取服务状态
type RunStatus string

const (
	RunStatusIdle    RunStatus = "idle"    // 未启动
	RunStatusRunning RunStatus = "running" // 运行中
	RunStatusFailed  RunStatus = "failed"  // 抓取协程因错误退出
	RunStatusStopped RunStatus = "stopped" // 已停止
)

// FilterConfig 记录过滤配置
type FilterConfig struct {
	Countries []string `mapstructure:"countries" json:"countries"` // ISO 3166 两位代码或国家全名
	Domains   []string `mapstructure:"domains" json:"domains"`     // 域名后缀
	Notifiers []string `mapstructure:"notifiers" json:"notifiers"` // 通报者
}

// ScrapeConfig 抓取配置 (对应配置文件中的 zoneh 段)
type ScrapeConfig struct {
	BaseURL             string       `mapstructure:"base_url" json:"base_url"`
	Archive             string       `mapstructure:"archive" json:"archive"`                             // archive|special|onhold
	StartPage           int          `mapstructure:"start_page" json:"start_page"`                       // 起始页 (默认:1)
	EndPage             int          `mapstructure:"end_page" json:"end_page"`                           // 结束页,0表示不限
	RescanPeriod        int          `mapstructure:"rescan_period" json:"rescan_period"`                 // 两轮扫描间隔(秒)
	RandomUA            bool         `mapstructure:"random_ua" json:"random_ua"`                         // 每次请求随机User-Agent
	TLSBypass           bool         `mapstructure:"tls_bypass" json:"tls_bypass"`                       // 启用浏览器指纹传输层
	RequestTimeout      int          `mapstructure:"request_timeout" json:"request_timeout"`             // 请求超时(秒)
	DelayMin            int          `mapstructure:"delay_min" json:"delay_min"`                         // 请求间最小随机延迟(秒)
	DelayMax            int          `mapstructure:"delay_max" json:"delay_max"`                         // 请求间最大随机延迟(秒)
	RefreshDelay        int          `mapstructure:"refresh_delay" json:"refresh_delay"`                 // 强制刷新会话后的等待(秒)
	CaptchaPoll         int          `mapstructure:"captcha_poll" json:"captcha_poll"`                   // 验证码状态轮询间隔(秒)
	CaptchaTimeout      int          `mapstructure:"captcha_timeout" json:"captcha_timeout"`             // 验证码最长等待(秒),0表示不限
	MaxSessionRefreshes int          `mapstructure:"max_session_refreshes" json:"max_session_refreshes"` // 连续强制刷新上限,0表示不限
	StopOnSeen          bool         `mapstructure:"stop_on_seen" json:"stop_on_seen"`                   // 遇到已见记录即结束本轮
	DedupCapacity       int          `mapstructure:"dedup_capacity" json:"dedup_capacity"`               // 去重窗口容量
	CookieFile          string       `mapstructure:"cookie_file" json:"cookie_file"`                     // 会话快照文件
	Filters             FilterConfig `mapstructure:"filters" json:"filters"`
}

// Validate 验证配置
func (c *ScrapeConfig) Validate() error {
	if err := ValidateURL(c.BaseURL); err != nil {
		return fmt.Errorf("站点地址无效: %w", err)
	}
	if _, err := ParseArchiveType(c.Archive); err != nil {
		return err
	}
	if c.StartPage < 1 {
		return fmt.Errorf("起始页必须大于等于1")
	}
	if c.EndPage != 0 && c.EndPage < c.StartPage {
		return fmt.Errorf("结束页(%d)不能小于起始页(%d)", c.EndPage, c.StartPage)
	}
	if c.RescanPeriod < 0 || c.RequestTimeout < 0 || c.RefreshDelay < 0 ||
		c.CaptchaPoll < 0 || c.CaptchaTimeout < 0 || c.MaxSessionRefreshes < 0 {
		return fmt.Errorf("时间与次数类配置不能为负数")
	}
	if c.DelayMin < 0 || c.DelayMax < c.DelayMin {
		return fmt.Errorf("随机延迟区间无效: [%d, %d]", c.DelayMin, c.DelayMax)
	}
	if c.DedupCapacity < 1 {
		return fmt.Errorf("去重窗口容量必须大于0")
	}
	return nil
}

// StartCursor 返回配置的起始游标
func (c *ScrapeConfig) StartCursor() PageCursor {
	archive, err := ParseArchiveType(c.Archive)
	if err != nil {
		archive = ArchiveMain
	}
	return PageCursor{Archive: archive, Page: c.StartPage}
}

// PassStats 单轮扫描统计
type PassStats struct {
	RunID      string     `json:"run_id"`
	Start      PageCursor `json:"start"`
	LastCursor PageCursor `json:"last_cursor"` // 最后一次成功解析的页
	StartedAt  time.Time  `json:"started_at"`
	Duration   float64    `json:"duration"`   // 秒
	Pages      int        `json:"pages"`      // 成功解析的页数
	Records    int        `json:"records"`    // 解析出的记录数
	Accepted   int        `json:"accepted"`   // 通过去重的记录数
	Matched    int        `json:"matched"`    // 通过过滤进入推送队列的记录数
	Enriched   int        `json:"enriched"`   // 通过镜像页补全URL的记录数
	Challenges int        `json:"challenges"` // 遇到的验证码次数
	Refreshes  int        `json:"refreshes"`  // 强制刷新会话次数
}
