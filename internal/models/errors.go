package models

import (
	"errors"
	"fmt"
)

// 控制类错误
var (
	ErrChallengeExtraction    = errors.New("反爬挑战脚本提取失败")
	ErrCaptchaStateViolation  = errors.New("验证码状态机违规")
	ErrPipelineAlreadyRunning = errors.New("抓取流水线已在运行")
	ErrPipelineNotRunning     = errors.New("抓取流水线未在运行")
	ErrCaptchaTimeout         = errors.New("等待验证码超时")
	ErrSessionRejected        = errors.New("会话多次刷新后仍被拒绝")
)

// ConfigError 配置文件错误
// 表示配置文件解析或校验失败
type ConfigError struct {
	// FilePath 配置文件路径
	FilePath string

	// Cause 底层错误 (如viper.ConfigParseError)
	Cause error
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	if e.FilePath == "" {
		return fmt.Sprintf("配置错误: %v", e.Cause)
	}
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NetworkError 传输层错误
// 客户端本身不重试,是否重来由调用方决定
type NetworkError struct {
	Method string
	URL    string
	Cause  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("网络请求失败 [%s %s]: %v", e.Method, e.URL, e.Cause)
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// ParseError 页面结构与预期不符,且既不是验证码页也不是登录前页面
type ParseError struct {
	Stage  string // 出错的解析阶段,如 "table"、"row"、"mirror"
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("页面解析失败 [%s]: %s", e.Stage, e.Reason)
}

// ScraperError 流水线不可恢复的错误
type ScraperError struct {
	Cursor PageCursor
	Cause  error
}

func (e *ScraperError) Error() string {
	return fmt.Sprintf("抓取终止 [%s]: %v", e.Cursor, e.Cause)
}

func (e *ScraperError) Unwrap() error {
	return e.Cause
}
