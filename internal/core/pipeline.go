package core

import (
	"context"
	"errors"
	"time"

	"github.com/RecoveryAshes/zonehwatch/internal/crawlers"
	"github.com/RecoveryAshes/zonehwatch/internal/models"
	"github.com/RecoveryAshes/zonehwatch/internal/utils"
	"github.com/rs/zerolog"
)

// ArchiveFetcher 流水线需要的站点操作
// *crawlers.ArchiveClient 是唯一的生产实现
type ArchiveFetcher interface {
	Bootstrap(ctx context.Context, force bool) error
	FetchPage(ctx context.Context, cursor models.PageCursor) (string, error)
	FetchMirror(ctx context.Context, mirrorID int) (string, error)
}

// PageClassifier 页面分类
// *crawlers.RecordParser 是唯一的生产实现
type PageClassifier interface {
	Classify(html string) crawlers.PageResult
	ClassifyMirror(html string) crawlers.MirrorResult
}

// PipelineOptions 流水线参数
type PipelineOptions struct {
	Start          models.PageCursor
	EndPage        int           // 0 表示不限
	DelayMin       time.Duration // 请求间随机延迟下限
	DelayMax       time.Duration // 请求间随机延迟上限
	RefreshDelay   time.Duration // 强制刷新会话后的等待
	CaptchaPoll    time.Duration // 验证码状态轮询间隔
	CaptchaTimeout time.Duration // 0 表示一直等待
	MaxRefreshes   int           // 连续强制刷新上限,0 表示不限
}

// PageHook 每成功解析一页后调用
type PageHook func(cursor models.PageCursor, records int)

// ScraperPipeline 归档翻页抓取流水线
// 状态: 抓取页面 → 分类 → (补全镜像)* → 交付记录 → 推进游标。
// 验证码和会话失效两种中断处理完后都从同一游标重新抓取
type ScraperPipeline struct {
	fetcher    ArchiveFetcher
	classifier PageClassifier
	captcha    *CaptchaCoordinator
	filters    *FilterEngine
	opts       PipelineOptions
	stack      *CursorStack
	onPage     PageHook
	log        zerolog.Logger

	// 当前这一轮的状态,只在 Run 内使用
	refreshes int
	stats     models.PassStats
}

// NewScraperPipeline 创建流水线
func NewScraperPipeline(fetcher ArchiveFetcher, classifier PageClassifier, captcha *CaptchaCoordinator, filters *FilterEngine, opts PipelineOptions) *ScraperPipeline {
	if opts.Start.Page < 1 {
		opts.Start.Page = 1
	}
	if opts.Start.Archive == "" {
		opts.Start.Archive = models.ArchiveMain
	}
	return &ScraperPipeline{
		fetcher:    fetcher,
		classifier: classifier,
		captcha:    captcha,
		filters:    filters,
		opts:       opts,
		stack:      NewCursorStack(opts.Start),
		log:        utils.Component("pipeline"),
	}
}

// OnPage 设置翻页回调
func (p *ScraperPipeline) OnPage(hook PageHook) {
	p.onPage = hook
}

// Options 流水线参数
func (p *ScraperPipeline) Options() PipelineOptions {
	return p.opts
}

// Run 从起始页开始翻页,把每条记录交给 yield
// yield 返回 false 时本轮立即结束。可恢复的中断在内部处理,
// 其余错误以 *models.ScraperError 返回;ctx 取消时返回 ctx.Err()。
// 同一个流水线不能并发执行 Run
func (p *ScraperPipeline) Run(ctx context.Context, yield func(models.Record) bool) (models.PassStats, error) {
	p.stack.Reset(p.opts.Start)
	p.refreshes = 0
	p.stats = models.PassStats{Start: p.opts.Start, StartedAt: time.Now()}
	defer func() {
		p.stats.Duration = time.Since(p.stats.StartedAt).Seconds()
	}()

	if err := p.fetcher.Bootstrap(ctx, false); err != nil {
		return p.finish(ctx, p.opts.Start, err)
	}

	nap := false
	for {
		if err := ctx.Err(); err != nil {
			return p.stats, err
		}
		cursor, ok := p.stack.Pop()
		if !ok {
			break
		}

		if nap {
			if err := p.sleep(ctx); err != nil {
				return p.stats, err
			}
		}
		nap = false

		if attempt := p.stack.Attempts(cursor); attempt > 1 {
			p.log.Debug().Str("cursor", cursor.String()).Int("attempt", attempt).Msg("重新抓取同一页")
		}

		html, err := p.fetcher.FetchPage(ctx, cursor)
		if err != nil {
			return p.finish(ctx, cursor, err)
		}

		result := p.classifier.Classify(html)
		switch result.Class {
		case crawlers.PageChallenge:
			if err := p.awaitCaptcha(ctx, cursor); err != nil {
				return p.finish(ctx, cursor, err)
			}
			p.stack.Push(cursor)
			continue
		case crawlers.PageInvalidated:
			if err := p.refreshSession(ctx, cursor); err != nil {
				return p.finish(ctx, cursor, err)
			}
			p.stack.Push(cursor)
			continue
		case crawlers.PageFatal:
			return p.finish(ctx, cursor, result.Err)
		}

		p.refreshes = 0
		p.stats.Pages++
		p.stats.LastCursor = cursor
		p.log.Debug().
			Str("archive", string(cursor.Archive)).
			Int("page", cursor.Page).
			Int("records", len(result.Records)).
			Int("next", result.NextPage).
			Msg("页面解析完成")

		for _, rec := range result.Records {
			p.stats.Records++
			if p.needsEnrichment(rec) {
				rec, err = p.enrich(ctx, cursor, rec)
				if err != nil {
					return p.finish(ctx, cursor, err)
				}
			}
			if !yield(rec) {
				p.log.Debug().Str("cursor", cursor.String()).Msg("调用方结束本轮")
				return p.stats, nil
			}
		}

		if p.onPage != nil {
			p.onPage(cursor, len(result.Records))
		}

		if next := result.NextPage; next > 0 && (p.opts.EndPage == 0 || next <= p.opts.EndPage) {
			p.stack.Push(cursor.WithPage(next))
		}
		nap = true
	}

	return p.stats, nil
}

// finish 把错误包装为 ScraperError,取消引起的错误原样返回
func (p *ScraperPipeline) finish(ctx context.Context, cursor models.PageCursor, err error) (models.PassStats, error) {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return p.stats, ctx.Err()
	}
	p.log.Error().Err(err).Str("cursor", cursor.String()).Msg("抓取终止")
	return p.stats, &models.ScraperError{Cursor: cursor, Cause: err}
}

// sleep 请求间的随机延迟
func (p *ScraperPipeline) sleep(ctx context.Context) error {
	return utils.SleepContext(ctx, utils.RandomDuration(p.opts.DelayMin, p.opts.DelayMax))
}

// needsEnrichment 配置了域名过滤且URL被截断时才访问镜像页
func (p *ScraperPipeline) needsEnrichment(rec models.Record) bool {
	return p.filters != nil && p.filters.HasDomainFilters() && rec.LooksTruncated()
}

// enrich 用镜像页中的完整URL替换被截断的URL
func (p *ScraperPipeline) enrich(ctx context.Context, cursor models.PageCursor, rec models.Record) (models.Record, error) {
	for {
		if err := p.sleep(ctx); err != nil {
			return rec, err
		}
		html, err := p.fetcher.FetchMirror(ctx, rec.MirrorID)
		if err != nil {
			return rec, err
		}

		result := p.classifier.ClassifyMirror(html)
		switch result.Class {
		case crawlers.PageOK:
			if full := result.Detail.DefacedURL; full != "" {
				p.log.Debug().Int("mirror_id", rec.MirrorID).Str("url", full).Msg("补全被截断的URL")
				rec.DefacedURL = full
				p.stats.Enriched++
			}
			return rec, nil
		case crawlers.PageChallenge:
			// 验证码提交到触发它的归档页地址
			if err := p.awaitCaptcha(ctx, cursor); err != nil {
				return rec, err
			}
		case crawlers.PageInvalidated:
			if err := p.refreshSession(ctx, cursor); err != nil {
				return rec, err
			}
		default:
			return rec, result.Err
		}
	}
}

// awaitCaptcha 发起验证码挑战并等待操作员解决
func (p *ScraperPipeline) awaitCaptcha(ctx context.Context, cursor models.PageCursor) error {
	p.stats.Challenges++
	if err := p.captcha.BeginChallenge(ctx, cursor); err != nil {
		return err
	}
	if err := p.captcha.WaitResolved(ctx, p.opts.CaptchaPoll, p.opts.CaptchaTimeout); err != nil {
		p.captcha.Abandon()
		return err
	}
	p.log.Info().Str("cursor", cursor.String()).Msg("验证码已解决,继续抓取")
	return nil
}

// refreshSession 强制重建会话后等待片刻
func (p *ScraperPipeline) refreshSession(ctx context.Context, cursor models.PageCursor) error {
	if p.opts.MaxRefreshes > 0 && p.refreshes >= p.opts.MaxRefreshes {
		return models.ErrSessionRejected
	}
	p.refreshes++
	p.stats.Refreshes++
	p.log.Warn().Str("cursor", cursor.String()).Int("attempt", p.refreshes).Msg("会话失效,强制刷新")

	if err := p.fetcher.Bootstrap(ctx, true); err != nil {
		return err
	}
	return utils.SleepContext(ctx, p.opts.RefreshDelay)
}
