package models

import (
	"strconv"
	"strings"
)

// Record 归档中的一条篡改通报记录
// 结构体所有字段均可比较,去重时按全部字段做结构相等判断
type Record struct {
	Date               string `json:"date"`                // 通报日期
	Notifier           string `json:"notifier"`            // 通报者
	HomepageDefacement bool   `json:"homepage_defacement"` // 是否篡改首页
	MassDefacement     string `json:"mass_defacement"`     // 批量篡改的IP,空表示无
	Redefacement       string `json:"redefacement"`        // 重复篡改的域名,空表示无
	Country            string `json:"country"`             // 国家名称(可能为空)
	Special            bool   `json:"special"`             // 是否为特殊目标
	DefacedURL         string `json:"defaced_url"`         // 被篡改URL(站点可能截断)
	OS                 string `json:"os"`                  // 操作系统
	MirrorID           int    `json:"mirror"`              // 镜像页ID
}

// truncationMarker 站点截断长URL时使用的省略号
const truncationMarker = "..."

// LooksTruncated 判断DefacedURL是否被站点截断
// 含省略号且不含路径分隔符时才认为是截断值
func (r Record) LooksTruncated() bool {
	return strings.Contains(r.DefacedURL, truncationMarker) && !strings.Contains(r.DefacedURL, "/")
}

// RecordFields 导出时使用的列名,顺序与Values一致
func RecordFields() []string {
	return []string{
		"date",
		"notifier",
		"homepage_defacement",
		"mass_defacement",
		"redefacement",
		"country",
		"special",
		"defaced_url",
		"os",
		"mirror",
	}
}

// Values 按RecordFields的顺序返回字符串形式的字段值
func (r Record) Values() []string {
	return []string{
		r.Date,
		r.Notifier,
		strconv.FormatBool(r.HomepageDefacement),
		r.MassDefacement,
		r.Redefacement,
		r.Country,
		strconv.FormatBool(r.Special),
		r.DefacedURL,
		r.OS,
		strconv.Itoa(r.MirrorID),
	}
}

// MirrorDetail 镜像详情页中的扩展信息
type MirrorDetail struct {
	Date       string `json:"date"`
	Notifier   string `json:"notifier"`
	DefacedURL string `json:"defaced_url_full"` // 完整的被篡改URL
	IP         string `json:"ip"`
	Country    string `json:"country"`
	OS         string `json:"os"`
	Server     string `json:"server"`
}
