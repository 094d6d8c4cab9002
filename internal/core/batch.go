package core

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/zonehwatch/internal/models"
	"github.com/RecoveryAshes/zonehwatch/internal/utils"
)

// CaptchaSink 验证码展示方
type CaptchaSink interface {
	PushCaptcha(ctx context.Context, challenge CaptchaSnapshot) error
}

// BatchOptions 单次扫描参数
type BatchOptions struct {
	Pipeline        PipelineOptions
	ArchiveDelay    time.Duration // 两个归档分区之间的等待
	ContinueOnError bool          // 某个分区失败后继续扫描其余分区
	Progress        bool          // 显示进度条
	DedupCapacity   int
	CaptchaInterval time.Duration // 检查待展示验证码的间隔
}

// BatchScanner 对一个或多个归档分区做一次性扫描
// 各分区共用同一个去重窗口,只收集通过过滤的记录
type BatchScanner struct {
	fetcher    ArchiveFetcher
	classifier PageClassifier
	captcha    *CaptchaCoordinator
	filters    *FilterEngine
	sink       CaptchaSink
	scrape     models.ScrapeConfig
	opts       BatchOptions
}

// NewBatchScanner 创建批量扫描器
func NewBatchScanner(fetcher ArchiveFetcher, classifier PageClassifier, captcha *CaptchaCoordinator, filters *FilterEngine, sink CaptchaSink, scrape models.ScrapeConfig, opts BatchOptions) *BatchScanner {
	if opts.CaptchaInterval <= 0 {
		opts.CaptchaInterval = time.Second
	}
	return &BatchScanner{
		fetcher:    fetcher,
		classifier: classifier,
		captcha:    captcha,
		filters:    filters,
		sink:       sink,
		scrape:     scrape,
		opts:       opts,
	}
}

// Scan 依次扫描各归档分区,返回报告和匹配的记录(按抓取顺序)
func (b *BatchScanner) Scan(ctx context.Context, archives []models.ArchiveType) (*models.ScanReport, []models.Record, error) {
	if len(archives) == 0 {
		return nil, nil, fmt.Errorf("没有要扫描的归档分区")
	}

	report := &models.ScanReport{
		RunID:     models.NewRunID(),
		StartTime: time.Now(),
		Archives:  make([]models.ArchiveScanResult, 0, len(archives)),
		Config:    b.scrape,
	}
	utils.Infof("🚀 开始扫描: %d个归档分区, 过滤条件: %s", len(archives), b.filters.Describe())

	// 扫描期间把验证码交给操作员
	captchaCtx, stopCaptcha := context.WithCancel(ctx)
	defer stopCaptcha()
	if b.sink != nil {
		go b.forwardCaptcha(captchaCtx)
	}

	gate := NewRecordGate(b.opts.DedupCapacity, b.filters)
	var matched []models.Record

	for i, archive := range archives {
		utils.Infof("==================== [%d/%d] %s ====================", i+1, len(archives), archive)

		result := b.scanArchive(ctx, archive, gate, &matched)
		report.Archives = append(report.Archives, result)
		report.TotalPages += result.Stats.Pages
		report.TotalRecords += result.Stats.Records

		if !result.Success {
			utils.Errorf("❌ 扫描失败: %s", result.Error)
			if ctx.Err() != nil {
				break
			}
			if !b.opts.ContinueOnError {
				utils.Warn("扫描中止 (--continue-on-error=false)")
				break
			}
		}

		if i < len(archives)-1 && b.opts.ArchiveDelay > 0 {
			utils.Debugf("等待 %.0f 秒后扫描下一个分区...", b.opts.ArchiveDelay.Seconds())
			if err := utils.SleepContext(ctx, b.opts.ArchiveDelay); err != nil {
				break
			}
		}
	}

	report.Matched = len(matched)
	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime).Seconds()

	b.printSummary(report)
	return report, matched, ctx.Err()
}

// scanArchive 扫描单个归档分区
func (b *BatchScanner) scanArchive(ctx context.Context, archive models.ArchiveType, gate *RecordGate, matched *[]models.Record) models.ArchiveScanResult {
	result := models.ArchiveScanResult{Archive: archive}

	opts := b.opts.Pipeline
	opts.Start = models.PageCursor{Archive: archive, Page: opts.Start.Page}
	pipeline := NewScraperPipeline(b.fetcher, b.classifier, b.captcha, b.filters, opts)

	if b.opts.Progress {
		total := -1
		if opts.EndPage > 0 {
			total = opts.EndPage - opts.Start.Page + 1
		}
		bar := utils.NewProgressBar(total, string(archive))
		defer bar.Finish()
		pipeline.OnPage(func(models.PageCursor, int) {
			bar.Add(1)
		})
	}

	accepted := 0
	stats, err := pipeline.Run(ctx, func(rec models.Record) bool {
		ok, match := gate.Check(rec)
		if ok {
			accepted++
		}
		if match {
			*matched = append(*matched, rec)
		}
		return true
	})
	stats.Accepted = accepted
	result.Stats = stats

	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true
	return result
}

// forwardCaptcha 扫描期间轮询待展示的验证码
func (b *BatchScanner) forwardCaptcha(ctx context.Context) {
	ticker := time.NewTicker(b.opts.CaptchaInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if challenge, ok := b.captcha.TakePending(); ok {
			if err := b.sink.PushCaptcha(ctx, challenge); err != nil {
				utils.Warnf("推送验证码失败: %v", err)
			}
		}
	}
}

// printSummary 打印扫描摘要
func (b *BatchScanner) printSummary(report *models.ScanReport) {
	utils.Info("==================================================")
	utils.Info("📊 扫描摘要")
	utils.Info("==================================================")
	utils.Infof("归档分区数: %d", len(report.Archives))
	utils.Infof("📄 总页数: %d", report.TotalPages)
	utils.Infof("📦 总记录数: %d", report.TotalRecords)
	utils.Infof("✅ 匹配记录: %d", report.Matched)
	utils.Infof("⏱️  总耗时: %.2f秒", report.Duration)
	utils.Info("==================================================")

	for _, result := range report.Archives {
		if !result.Success {
			utils.Warnf("  - %s: %s", result.Archive, result.Error)
		}
	}
}
