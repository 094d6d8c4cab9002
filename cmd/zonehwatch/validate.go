package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/RecoveryAshes/zonehwatch/internal/models"
)

// ValidatePages 验证起止页,0 表示未指定
func ValidatePages(start, end int) error {
	if start < 0 {
		return fmt.Errorf("起始页不能为负数,当前值: %d", start)
	}
	if end < 0 {
		return fmt.Errorf("结束页不能为负数,当前值: %d", end)
	}
	if start > 0 && end > 0 && end < start {
		return fmt.Errorf("结束页(%d)不能小于起始页(%d)", end, start)
	}
	return nil
}

// ParseArchives 解析并去重归档分区列表,为空时使用 fallback
func ParseArchives(values []string, fallback string) ([]models.ArchiveType, error) {
	if len(values) == 0 {
		values = []string{fallback}
	}

	seen := make(map[models.ArchiveType]bool)
	var archives []models.ArchiveType
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			archive, err := models.ParseArchiveType(part)
			if err != nil {
				return nil, err
			}
			if !seen[archive] {
				seen[archive] = true
				archives = append(archives, archive)
			}
		}
	}
	if len(archives) == 0 {
		return nil, fmt.Errorf("至少需要指定一个归档分区")
	}
	return archives, nil
}

// ValidateExportPath 验证导出文件扩展名,空路径表示不导出
func ValidateExportPath(path string) error {
	if path == "" {
		return nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx", ".json":
		return nil
	}
	return fmt.Errorf("不支持的导出格式: %q (有效值: .csv, .xlsx, .json)", path)
}
