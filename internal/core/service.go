package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/RecoveryAshes/zonehwatch/internal/crawlers"
	"github.com/RecoveryAshes/zonehwatch/internal/models"
	"github.com/RecoveryAshes/zonehwatch/internal/utils"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Consumer 记录与验证码的下游接收方
type Consumer interface {
	// PushRecord 交付一条通过过滤的记录
	PushRecord(ctx context.Context, rec models.Record) error
	// PushCaptcha 向操作员展示验证码图片
	PushCaptcha(ctx context.Context, challenge CaptchaSnapshot) error
}

// ServiceOptions 服务参数
type ServiceOptions struct {
	RescanPeriod     time.Duration // 两轮扫描间隔
	DispatchInterval time.Duration // 推送协程轮询间隔
	Rate             float64       // 每秒推送记录数,<=0 表示不限
	StopOnSeen       bool          // 遇到已见记录即结束本轮
	DedupCapacity    int
}

// ServiceStatus 服务状态快照
type ServiceStatus struct {
	RunID     string
	State     models.RunStatus
	LastError error
	Pending   int // 推送队列长度
	Seen      int // 去重窗口中的记录数
	Pushed    int // 本次运行已推送的记录数
	Passes    int // 本次运行完成的扫描轮数
	LastPass  models.PassStats
	Captcha   bool // 是否有未解决的验证码
}

// serviceRun 一次 Start 到 Stop 之间的运行
type serviceRun struct {
	id     string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Service 抓取服务
// 抓取协程反复执行流水线并把记录送入闸门,推送协程把闸门中的记录和
// 待展示的验证码交给下游
type Service struct {
	pipeline *ScraperPipeline
	captcha  *CaptchaCoordinator
	gate     *RecordGate
	consumer Consumer
	monitor  *crawlers.ResourceMonitor
	opts     ServiceOptions
	log      zerolog.Logger

	mu       sync.Mutex
	run      *serviceRun
	state    models.RunStatus
	runID    string
	lastErr  error
	pushed   int
	passes   int
	lastPass models.PassStats
}

// NewService 创建抓取服务
func NewService(pipeline *ScraperPipeline, captcha *CaptchaCoordinator, filters *FilterEngine, consumer Consumer, monitor *crawlers.ResourceMonitor, opts ServiceOptions) *Service {
	if opts.DispatchInterval <= 0 {
		opts.DispatchInterval = time.Second
	}
	return &Service{
		pipeline: pipeline,
		captcha:  captcha,
		gate:     NewRecordGate(opts.DedupCapacity, filters),
		consumer: consumer,
		monitor:  monitor,
		opts:     opts,
		log:      utils.Component("service"),
		state:    models.RunStatusIdle,
	}
}

// Start 启动抓取与推送协程
// 已在运行时返回 ErrPipelineAlreadyRunning
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil {
		return models.ErrPipelineAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &serviceRun{id: models.NewRunID(), cancel: cancel}
	s.run = run
	s.runID = run.id
	s.state = models.RunStatusRunning
	s.lastErr = nil
	s.pushed = 0
	s.passes = 0

	s.log.Info().
		Str("run_id", run.id).
		Str("start", s.pipeline.Options().Start.String()).
		Str("filters", s.gate.Filters().Describe()).
		Msg("抓取服务启动")

	run.wg.Add(2)
	go s.scrapeLoop(runCtx, run)
	go s.dispatchLoop(runCtx, run)
	return nil
}

// Stop 停止协程并等待退出
// 正在进行的请求会先完成;未在运行时返回 ErrPipelineNotRunning
func (s *Service) Stop() error {
	s.mu.Lock()
	run := s.run
	if run == nil {
		s.mu.Unlock()
		return models.ErrPipelineNotRunning
	}
	s.run = nil
	s.mu.Unlock()

	run.cancel()
	run.wg.Wait()
	s.captcha.Abandon()

	s.mu.Lock()
	if s.state == models.RunStatusRunning {
		s.state = models.RunStatusStopped
	}
	s.mu.Unlock()

	s.log.Info().Str("run_id", run.id).Msg("抓取服务已停止")
	return nil
}

// Running 是否处于运行状态
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil
}

// SubmitCaptchaText 提交操作员识别的验证码
func (s *Service) SubmitCaptchaText(ctx context.Context, text string) (bool, error) {
	return s.captcha.SubmitSolution(ctx, text)
}

// NeedsCaptcha 是否有未解决的验证码
func (s *Service) NeedsCaptcha() bool {
	return s.captcha.IsActive()
}

// SeenRecords 去重窗口快照,从新到旧
func (s *Service) SeenRecords() []models.Record {
	return s.gate.Seen()
}

// LastError 抓取协程退出的原因
func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Status 服务状态快照
func (s *Service) Status() ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ServiceStatus{
		RunID:     s.runID,
		State:     s.state,
		LastError: s.lastErr,
		Pending:   s.gate.Pending(),
		Seen:      s.gate.SeenCount(),
		Pushed:    s.pushed,
		Passes:    s.passes,
		LastPass:  s.lastPass,
		Captcha:   s.captcha.IsActive(),
	}
}

// scrapeLoop 抓取协程: 一轮扫描结束后等待 rescan 间隔再开始下一轮
func (s *Service) scrapeLoop(ctx context.Context, run *serviceRun) {
	defer run.wg.Done()

	for {
		stats, err := s.runPass(ctx, run.id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.fail(run, err)
			return
		}

		s.recordPass(run, stats)
		if err := utils.SleepContext(ctx, s.opts.RescanPeriod); err != nil {
			return
		}
	}
}

// runPass 执行一轮扫描
func (s *Service) runPass(ctx context.Context, runID string) (models.PassStats, error) {
	var accepted, matched int
	stats, err := s.pipeline.Run(ctx, func(rec models.Record) bool {
		ok, match := s.gate.Offer(rec)
		if !ok {
			// 归档按时间倒序,遇到见过的记录说明后面都已处理
			return !s.opts.StopOnSeen
		}
		accepted++
		if match {
			matched++
		}
		return true
	})
	stats.RunID = runID
	stats.Accepted = accepted
	stats.Matched = matched
	return stats, err
}

func (s *Service) recordPass(run *serviceRun, stats models.PassStats) {
	event := s.log.Info().
		Str("run_id", run.id).
		Int("pages", stats.Pages).
		Int("records", stats.Records).
		Int("accepted", stats.Accepted).
		Int("matched", stats.Matched).
		Int("enriched", stats.Enriched).
		Int("challenges", stats.Challenges).
		Int("refreshes", stats.Refreshes).
		Float64("duration", stats.Duration)
	if s.monitor != nil {
		if host, err := s.monitor.Status(); err == nil {
			event = event.Str("host", host.String())
		}
	}
	event.Msg("本轮扫描完成")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.passes++
	s.lastPass = stats
}

func (s *Service) fail(run *serviceRun, err error) {
	s.log.Error().Err(err).Str("run_id", run.id).Msg("抓取协程退出")

	var scraperErr *models.ScraperError
	if errors.As(err, &scraperErr) {
		s.log.Error().Str("cursor", scraperErr.Cursor.String()).Msg("需要重新启动才能继续抓取")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runID == run.id {
		s.state = models.RunStatusFailed
		s.lastErr = err
	}
}

// dispatchLoop 推送协程: 先推送待展示的验证码,再按速率推送记录
func (s *Service) dispatchLoop(ctx context.Context, run *serviceRun) {
	defer run.wg.Done()

	limit := rate.Inf
	if s.opts.Rate > 0 {
		limit = rate.Limit(s.opts.Rate)
	}
	limiter := rate.NewLimiter(limit, 1)

	ticker := time.NewTicker(s.opts.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if challenge, ok := s.captcha.TakePending(); ok {
			if err := s.consumer.PushCaptcha(ctx, challenge); err != nil {
				s.log.Error().Err(err).Str("challenge_id", challenge.ID).Msg("推送验证码失败")
			}
		}

		for _, rec := range s.gate.Drain() {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			if err := s.consumer.PushRecord(ctx, rec); err != nil {
				s.log.Error().Err(err).Int("mirror_id", rec.MirrorID).Msg("推送记录失败")
				continue
			}
			s.mu.Lock()
			s.pushed++
			s.mu.Unlock()
		}
	}
}
