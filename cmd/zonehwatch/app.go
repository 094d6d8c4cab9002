package main

import (
	"fmt"

	"github.com/RecoveryAshes/zonehwatch/internal/core"
	"github.com/RecoveryAshes/zonehwatch/internal/crawlers"
	"github.com/RecoveryAshes/zonehwatch/internal/utils"
)

// application 进程内唯一的组件集合,启动时创建一次
type application struct {
	config    *core.Config
	headers   *core.HeaderManager
	monitor   *crawlers.ResourceMonitor
	evaluator *crawlers.BrowserEvaluator
	session   *crawlers.SessionManager
	client    *crawlers.ArchiveClient
	parser    *crawlers.RecordParser
	filters   *core.FilterEngine
	captcha   *core.CaptchaCoordinator
}

// newApplication 组装会话、解析器、过滤器与验证码协调器
func newApplication(config *core.Config) (*application, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	headerManager, err := core.NewHeaderManager(headersFile, headers)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	// 提前暴露头部配置错误,避免在第一次请求时才失败
	if _, err := headerManager.GetHeaders(); err != nil {
		return nil, fmt.Errorf("HTTP头部配置无效: %w", err)
	}

	filters, err := core.BuildFilters(config.Zoneh.Filters)
	if err != nil {
		return nil, err
	}

	monitor := crawlers.NewResourceMonitor(config.Browser.MinFreeMemory)
	evaluator := crawlers.NewBrowserEvaluator(config.Browser, monitor)
	solver := crawlers.NewChallengeSolver(evaluator)

	session, err := crawlers.NewSessionManager(config.SessionConfig(), headerManager, solver)
	if err != nil {
		evaluator.Close()
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}
	client := crawlers.NewArchiveClient(session)

	utils.Debugf("会话快照文件: %s", session.CookieFile())
	utils.Debugf("过滤条件: %s", filters.Describe())

	return &application{
		config:    config,
		headers:   headerManager,
		monitor:   monitor,
		evaluator: evaluator,
		session:   session,
		client:    client,
		parser:    crawlers.NewRecordParser(),
		filters:   filters,
		captcha:   core.NewCaptchaCoordinator(client),
	}, nil
}

// pipeline 创建抓取流水线
func (a *application) pipeline() *core.ScraperPipeline {
	return core.NewScraperPipeline(a.client, a.parser, a.captcha, a.filters, a.config.PipelineOptions())
}

// Close 释放浏览器
func (a *application) Close() {
	if err := a.evaluator.Close(); err != nil {
		utils.Warnf("关闭浏览器失败: %v", err)
	}
}
