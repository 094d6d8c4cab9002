package utils

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/RecoveryAshes/zonehwatch/internal/models"
	"github.com/schollz/progressbar/v3"
	"github.com/xuri/excelize/v2"
)

// Reporter 报告与导出生成器
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// ExportRecords 导出记录,格式由扩展名决定 (.csv / .xlsx / .json)
// 相对路径放在输出目录下,返回实际写入的路径
func (r *Reporter) ExportRecords(path string, records []models.Record) (string, error) {
	if path == "" {
		return "", fmt.Errorf("导出路径不能为空")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.outputDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("创建导出目录失败: %w", err)
	}

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		err = r.writeCSVFile(path, records)
	case ".xlsx":
		err = writeXLSX(path, records)
	case ".json":
		err = r.saveJSON(path, records)
	default:
		return "", fmt.Errorf("不支持的导出格式: %s (可选: .csv, .xlsx, .json)", filepath.Ext(path))
	}
	if err != nil {
		return "", err
	}

	Infof("✅ 已导出 %d 条记录: %s", len(records), path)
	return path, nil
}

func (r *Reporter) writeCSVFile(path string, records []models.Record) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建CSV文件失败: %w", err)
	}
	defer file.Close()

	return WriteCSV(file, records)
}

// WriteCSV 以CSV格式写出记录,首行为列名
func WriteCSV(w io.Writer, records []models.Record) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(models.RecordFields()); err != nil {
		return fmt.Errorf("写入CSV表头失败: %w", err)
	}
	for _, rec := range records {
		if err := writer.Write(rec.Values()); err != nil {
			return fmt.Errorf("写入CSV记录失败: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// writeXLSX 以Excel工作簿格式写出记录
func writeXLSX(path string, records []models.Record) error {
	const sheet = "Records"

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("创建工作表失败: %w", err)
	}

	writeRow := func(row int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		cells := make([]interface{}, len(values))
		for i, v := range values {
			cells[i] = v
		}
		return f.SetSheetRow(sheet, cell, &cells)
	}

	if err := writeRow(1, models.RecordFields()); err != nil {
		return fmt.Errorf("写入表头失败: %w", err)
	}
	for i, rec := range records {
		if err := writeRow(i+2, rec.Values()); err != nil {
			return fmt.Errorf("写入第%d条记录失败: %w", i+1, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("保存工作簿失败: %w", err)
	}
	return nil
}

// SaveScanReport 保存scan命令的运行报告
func (r *Reporter) SaveScanReport(report *models.ScanReport) (string, error) {
	reportsDir := filepath.Join(r.outputDir, "reports")
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	path := filepath.Join(reportsDir, fmt.Sprintf("scan_%s.json", report.RunID))
	if err := r.saveJSON(path, report); err != nil {
		return "", err
	}
	Infof("✅ 报告已生成: %s", path)
	return path, nil
}

// saveJSON 保存JSON文件
func (r *Reporter) saveJSON(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入文件失败: %w", err)
	}

	Debugf("保存文件: %s", path)
	return nil
}

// RecordJournal 以JSON Lines追加写出已推送的记录
type RecordJournal struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// OpenRecordJournal 打开(或创建)记录日志文件
func OpenRecordJournal(path string) (*RecordJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("创建记录日志目录失败: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开记录日志失败: %w", err)
	}
	return &RecordJournal{file: file, enc: json.NewEncoder(file)}, nil
}

// Append 追加一条记录
func (j *RecordJournal) Append(rec models.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(rec)
}

// Close 关闭文件
func (j *RecordJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// ReadRecordJournal 读取记录日志,跳过空行
func ReadRecordJournal(path string) ([]models.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开记录日志失败: %w", err)
	}
	defer file.Close()

	var records []models.Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec models.Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("记录日志第%d行格式错误: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取记录日志失败: %w", err)
	}
	return records, nil
}

// NewProgressBar 创建进度条
// max 为 -1 时显示不定长进度
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("页"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
