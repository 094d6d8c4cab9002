package utils

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RecoveryAshes/zonehwatch/internal/models"
	"github.com/xuri/excelize/v2"
)

func sampleRecords() []models.Record {
	return []models.Record{
		{Date: "2024/05/01", Notifier: "alpha", HomepageDefacement: true, Country: "Brazil", DefacedURL: "a.com.br", OS: "Linux", MirrorID: 11},
		{Date: "2024/05/02", Notifier: "beta", MassDefacement: "10.0.0.1", Redefacement: "b.org", Special: true, DefacedURL: "b.org/x", OS: "Win", MirrorID: 12},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleRecords()); err != nil {
		t.Fatalf("WriteCSV失败: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("读取CSV失败: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("期望3行(含表头), 实际 %d", len(rows))
	}
	if rows[0][0] != "date" || rows[0][9] != "mirror" {
		t.Errorf("表头不正确: %v", rows[0])
	}
	if rows[2][3] != "10.0.0.1" || rows[2][6] != "true" {
		t.Errorf("第二条记录不正确: %v", rows[2])
	}
}

func TestReporter_ExportRecords(t *testing.T) {
	dir := t.TempDir()
	reporter := NewReporter(dir)

	t.Run("CSV相对路径写入输出目录", func(t *testing.T) {
		path, err := reporter.ExportRecords("seen.csv", sampleRecords())
		if err != nil {
			t.Fatalf("导出失败: %v", err)
		}
		if path != filepath.Join(dir, "seen.csv") {
			t.Errorf("导出路径 = %s", path)
		}
	})

	t.Run("JSON导出", func(t *testing.T) {
		path, err := reporter.ExportRecords(filepath.Join(dir, "seen.json"), sampleRecords())
		if err != nil {
			t.Fatalf("导出失败: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		var records []models.Record
		if err := json.Unmarshal(data, &records); err != nil {
			t.Fatalf("JSON无效: %v", err)
		}
		if len(records) != 2 || records[1].Redefacement != "b.org" {
			t.Errorf("JSON内容不正确: %+v", records)
		}
	})

	t.Run("XLSX导出", func(t *testing.T) {
		path, err := reporter.ExportRecords("seen.xlsx", sampleRecords())
		if err != nil {
			t.Fatalf("导出失败: %v", err)
		}
		f, err := excelize.OpenFile(path)
		if err != nil {
			t.Fatalf("打开工作簿失败: %v", err)
		}
		defer f.Close()
		value, err := f.GetCellValue("Records", "B2")
		if err != nil {
			t.Fatal(err)
		}
		if value != "alpha" {
			t.Errorf("B2 = %q, 期望 alpha", value)
		}
	})

	t.Run("不支持的格式", func(t *testing.T) {
		if _, err := reporter.ExportRecords("seen.txt", sampleRecords()); err == nil {
			t.Error("期望返回错误")
		}
	})
}

func TestRecordJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "records.jsonl")
	journal, err := OpenRecordJournal(path)
	if err != nil {
		t.Fatalf("打开失败: %v", err)
	}
	for _, rec := range sampleRecords() {
		if err := journal.Append(rec); err != nil {
			t.Fatalf("追加失败: %v", err)
		}
	}
	if err := journal.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Errorf("期望2行, 实际 %d", len(lines))
	}

	records, err := ReadRecordJournal(path)
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if len(records) != 2 || records[1].MassDefacement != "10.0.0.1" || records[0].MirrorID != 11 {
		t.Errorf("读回的记录不正确: %+v", records)
	}
}

func TestReadRecordJournal_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("文件不存在", func(t *testing.T) {
		if _, err := ReadRecordJournal(filepath.Join(dir, "missing.jsonl")); err == nil {
			t.Error("期望返回错误")
		}
	})

	t.Run("格式错误的行", func(t *testing.T) {
		path := filepath.Join(dir, "broken.jsonl")
		content := "{\"notifier\":\"a\",\"mirror\":1}\n\nnot-json\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := ReadRecordJournal(path)
		if err == nil || !strings.Contains(err.Error(), "第3行") {
			t.Errorf("应指出出错行号: %v", err)
		}
	})
}

func TestRecordFormatter_Format(t *testing.T) {
	formatter := NewRecordFormatter(models.NewSite(models.DefaultBaseURL))
	recs := sampleRecords()

	first := formatter.Format(recs[0], 1)
	if !strings.HasPrefix(first, "Record #1\n") {
		t.Errorf("缺少编号: %s", first)
	}
	if !strings.Contains(first, "Mass Defacement: False") || !strings.Contains(first, "Redefacement: False") {
		t.Errorf("缺省字段应显示False: %s", first)
	}
	if !strings.HasSuffix(first, "Mirror: https://www.zone-h.org/mirror/id/11") {
		t.Errorf("镜像地址不正确: %s", first)
	}

	second := formatter.Format(recs[1], 2)
	if !strings.Contains(second, "Mass Defacement: https://www.zone-h.org/archive/ip=10.0.0.1") {
		t.Errorf("批量篡改链接不正确: %s", second)
	}
	if !strings.Contains(second, "Redefacement: https://www.zone-h.org/archive/domain=b.org") {
		t.Errorf("重复篡改链接不正确: %s", second)
	}
}

func TestSleepContext(t *testing.T) {
	t.Run("正常睡眠", func(t *testing.T) {
		if err := SleepContext(context.Background(), time.Millisecond); err != nil {
			t.Errorf("期望nil, 实际 %v", err)
		}
	})

	t.Run("取消后立即返回", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		start := time.Now()
		if err := SleepContext(ctx, time.Hour); err == nil {
			t.Error("期望返回取消错误")
		}
		if time.Since(start) > time.Second {
			t.Error("取消后不应继续等待")
		}
	})
}

func TestRandomDuration(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := RandomDuration(7*time.Second, 11*time.Second)
		if d < 7*time.Second || d > 11*time.Second {
			t.Fatalf("超出区间: %v", d)
		}
	}
	if d := RandomDuration(time.Second, time.Second); d != time.Second {
		t.Errorf("区间退化时应返回下界, 实际 %v", d)
	}
}

func TestReadListFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domains.txt")
	content := "# 关注的域名\nexample.com\n\n  gov.br  \n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	items, err := ReadListFile(path)
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if len(items) != 2 || items[0] != "example.com" || items[1] != "gov.br" {
		t.Errorf("读取结果不正确: %v", items)
	}
}
