package crawlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/RecoveryAshes/zonehwatch/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserConfig 浏览器配置
type BrowserConfig struct {
	Headless      bool   `mapstructure:"headless"`
	Bin           string `mapstructure:"bin"`             // Chromium路径,为空时自动查找或下载
	MinFreeMemory int    `mapstructure:"min_free_memory"` // 启动前要求的最小可用内存(MB)
}

// browserProcess 本地浏览器进程,由 *launcher.Launcher 实现
type browserProcess interface {
	Launch() (string, error)
	Kill()
}

// BrowserEvaluator 基于无头浏览器的JS执行器
// 浏览器在第一次执行时启动,之后复用,Close 后可再次启动
type BrowserEvaluator struct {
	config     BrowserConfig
	monitor    *ResourceMonitor
	newProcess func() browserProcess

	mu      sync.Mutex
	process browserProcess
	browser *rod.Browser
	page    *rod.Page
}

// NewBrowserEvaluator 创建浏览器JS执行器
func NewBrowserEvaluator(config BrowserConfig, monitor *ResourceMonitor) *BrowserEvaluator {
	e := &BrowserEvaluator{config: config, monitor: monitor}
	e.newProcess = e.newLauncher
	return e
}

func (e *BrowserEvaluator) newLauncher() browserProcess {
	l := launcher.New().Headless(e.config.Headless)
	if e.config.Bin != "" {
		l = l.Bin(e.config.Bin)
	}
	return l
}

// Evaluate 在空白页中以全局作用域执行脚本,返回最后一个表达式的字符串值
func (e *BrowserEvaluator) Evaluate(ctx context.Context, script string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureBrowser(); err != nil {
		return "", err
	}

	res, err := e.page.Context(ctx).Eval(`(src) => String((0, eval)(src))`, script)
	if err != nil {
		// 页面可能已崩溃,下次调用重新启动
		e.closeLocked()
		return "", fmt.Errorf("执行脚本失败: %w", err)
	}
	return res.Value.Str(), nil
}

// ensureBrowser 启动浏览器
func (e *BrowserEvaluator) ensureBrowser() error {
	if e.page != nil {
		return nil
	}

	if err := e.monitor.CheckBrowserLaunch(); err != nil {
		return err
	}

	process := e.newProcess()
	controlURL, err := process.Launch()
	if err != nil {
		process.Kill()
		return fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		process.Kill()
		return fmt.Errorf("连接浏览器失败: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		process.Kill()
		return fmt.Errorf("创建页面失败: %w", err)
	}

	e.process = process
	e.browser = browser
	e.page = page
	utils.Debugf("浏览器已启动: %s", controlURL)
	return nil
}

// Close 关闭浏览器
func (e *BrowserEvaluator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeLocked()
}

func (e *BrowserEvaluator) closeLocked() error {
	if e.browser == nil {
		return nil
	}
	err := e.browser.Close()
	// 浏览器未响应关闭命令时进程仍在运行
	e.process.Kill()
	e.process = nil
	e.browser = nil
	e.page = nil
	utils.Debugf("浏览器已关闭")
	return err
}
