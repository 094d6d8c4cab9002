package models

import "time"

// ScanReport 单次扫描(scan命令)报告
type ScanReport struct {
	RunID     string    `json:"run_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 各归档分区结果
	Archives []ArchiveScanResult `json:"archives"`

	// 汇总
	TotalPages   int `json:"total_pages"`
	TotalRecords int `json:"total_records"`
	Matched      int `json:"matched"`

	// 导出文件路径(未导出为空)
	ExportPath string `json:"export_path,omitempty"`

	// 配置快照
	Config ScrapeConfig `json:"config"`
}

// ArchiveScanResult 单个归档分区的扫描结果
type ArchiveScanResult struct {
	Archive ArchiveType `json:"archive"`
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Stats   PassStats   `json:"stats"`
}
