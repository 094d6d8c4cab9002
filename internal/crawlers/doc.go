// Package crawlers 提供归档站点的访问与页面解析
//
// # 概述
//
// crawlers包负责与归档站点之间的一切交互:维持会话Cookie、通过反爬挑战、
// 取回归档分页与镜像页、提交验证码,以及把HTML解析为记录。
// 包内不做重试,页面属于哪一类(正常/验证码/会话失效/未知)由 RecordParser 判断,
// 如何处理由上层流水线决定。
//
// # 核心组件
//
// ## SessionManager
//
// 基于Colly的同步会话,持有Cookie罐并在每次请求前应用头部。
// Bootstrap 依次尝试已有Cookie、快照文件和反爬挑战:
//
//	session, err := NewSessionManager(SessionConfig{BaseURL: models.DefaultBaseURL}, headers, solver)
//	err = session.Bootstrap(ctx, false) // force=true 时清空后重建
//
// ## ChallengeSolver
//
// 从首页最后一个内联脚本中提取解密函数和Cookie属性,
// 与 z.js 拼接后交给 JSEvaluator 执行,得到 ZHE Cookie。
// BrowserEvaluator 使用go-rod在无头浏览器的空白页中执行脚本,
// 启动前由 ResourceMonitor 检查剩余内存。
//
// ## RecordParser
//
// 基于goquery解析归档表格(首行为表头,末两行为分页与页脚)和镜像详情页。
// Classify 先按正常页面解析,失败后再识别验证码页与会话失效页:
//
//	result := parser.Classify(html)
//	switch result.Class {
//	case PageOK:          // result.Records, result.NextPage
//	case PageChallenge:   // 需要人工识别验证码
//	case PageInvalidated: // 需要强制刷新会话
//	case PageFatal:       // result.Err
//	}
//
// ## ArchiveClient
//
// 面向流水线的页面接口: FetchPage、FetchMirror、FetchCaptchaImage、SolveCaptcha。
//
// # 并发
//
// SessionManager 串行化出站请求,ArchiveClient 和 RecordParser 可在多个goroutine间共享。
// BrowserEvaluator 同一时刻只执行一个脚本。
package crawlers
