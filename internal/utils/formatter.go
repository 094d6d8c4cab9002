package utils

import (
	"fmt"
	"strings"

	"github.com/RecoveryAshes/zonehwatch/internal/models"
)

// RecordFormatter 将记录渲染为面向操作员的多行文本
type RecordFormatter struct {
	site models.Site
}

// NewRecordFormatter 创建记录格式化器
func NewRecordFormatter(site models.Site) *RecordFormatter {
	return &RecordFormatter{site: site}
}

// Format 渲染第 num 条记录
func (f *RecordFormatter) Format(rec models.Record, num int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Record #%d\n", num)
	fmt.Fprintf(&b, "Date: %s\n", rec.Date)
	fmt.Fprintf(&b, "Notifier: %s\n", rec.Notifier)
	fmt.Fprintf(&b, "Homepage Defacement: %t\n", rec.HomepageDefacement)
	fmt.Fprintf(&b, "Mass Defacement: %s\n", f.linkOrFalse(rec.MassDefacement, f.site.MassDefacementURL))
	fmt.Fprintf(&b, "Redefacement: %s\n", f.linkOrFalse(rec.Redefacement, f.site.RedefacementURL))
	fmt.Fprintf(&b, "Country: %s\n", rec.Country)
	fmt.Fprintf(&b, "Special: %t\n", rec.Special)
	fmt.Fprintf(&b, "URL: %s\n", rec.DefacedURL)
	fmt.Fprintf(&b, "OS: %s\n", rec.OS)
	fmt.Fprintf(&b, "Mirror: %s", f.MirrorURL(rec))
	return b.String()
}

// MirrorURL 记录对应的镜像页地址
func (f *RecordFormatter) MirrorURL(rec models.Record) string {
	return f.site.MirrorURL(rec.MirrorID)
}

func (f *RecordFormatter) linkOrFalse(value string, link func(string) string) string {
	if value == "" {
		return "False"
	}
	return link(value)
}
