package crawlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/RecoveryAshes/zonehwatch/internal/models"
	"github.com/RecoveryAshes/zonehwatch/internal/utils"
	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"
	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"
)

// responseKey 在colly上下文中保存响应的键
const responseKey = "zonehwatch.response"

// SessionState 会话状态
type SessionState int

const (
	SessionUninitialized SessionState = iota // 尚未建立
	SessionValid                             // 已建立且未被站点拒绝
	SessionStale                             // 已被清除,等待重新建立
)

func (s SessionState) String() string {
	switch s {
	case SessionUninitialized:
		return "uninitialized"
	case SessionValid:
		return "valid"
	case SessionStale:
		return "stale"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// Response 一次请求的结果,Body 已解压
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Text 响应体文本
func (r *Response) Text() string {
	return string(r.Body)
}

// SessionConfig 会话配置
type SessionConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	RandomUA       bool   // 每次请求随机User-Agent
	TLSBypass      bool   // 使用模拟浏览器TLS指纹的传输层
	CookieFile     string // 会话快照路径,为空时使用默认路径
}

// SessionManager 持有与站点之间的HTTP会话
// 负责请求头、Cookie罐、反爬挑战与会话快照的持久化
type SessionManager struct {
	site      models.Site
	collector *colly.Collector
	solver    *ChallengeSolver
	store     *CookieStore
	parser    *RecordParser
	log       zerolog.Logger

	reqMu sync.Mutex // 串行化出站请求
	mu    sync.Mutex // 保护 state 与 Bootstrap
	state SessionState
}

// NewSessionManager 创建会话管理器
func NewSessionManager(config SessionConfig, headers models.HeaderProvider, solver *ChallengeSolver) (*SessionManager, error) {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	c.SetRequestTimeout(config.RequestTimeout)

	if config.TLSBypass {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		c.WithTransport(cloudflarebp.AddCloudFlareByPass(transport))
	}

	sm := &SessionManager{
		site:      models.NewSite(config.BaseURL),
		collector: c,
		solver:    solver,
		store:     NewCookieStore(config.CookieFile),
		parser:    NewRecordParser(),
		log:       utils.Component("session"),
		state:     SessionUninitialized,
	}
	if err := sm.resetJar(); err != nil {
		return nil, err
	}

	c.OnRequest(func(r *colly.Request) {
		if headers == nil {
			return
		}
		hdr, err := headers.GetHeaders()
		if err != nil {
			sm.log.Warn().Err(err).Msg("获取HTTP头部失败")
			return
		}
		for name, values := range hdr {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
	})
	// 随机UA需要在固定头部之后设置
	if config.RandomUA {
		extensions.RandomUserAgent(c)
	}

	c.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(responseKey, r)
	})

	return sm, nil
}

// Site 会话对应的站点
func (s *SessionManager) Site() models.Site {
	return s.site
}

// State 当前会话状态
func (s *SessionManager) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CookieFile 会话快照路径
func (s *SessionManager) CookieFile() string {
	return s.store.Path()
}

// Cookies 当前Cookie罐中对站点可见的Cookie
func (s *SessionManager) Cookies() []*http.Cookie {
	return s.collector.Cookies(s.site.LandingURL())
}

// Get 发送GET请求
func (s *SessionManager) Get(ctx context.Context, rawURL string) (*Response, error) {
	return s.do(ctx, http.MethodGet, rawURL, nil, nil)
}

// PostForm 以表单形式发送POST请求
func (s *SessionManager) PostForm(ctx context.Context, rawURL string, form url.Values) (*Response, error) {
	hdr := http.Header{}
	hdr.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()), hdr)
}

// do 发送请求,传输层失败统一包装为 NetworkError
// HTTP错误状态码不视为失败,由调用方根据内容判断
func (s *SessionManager) do(ctx context.Context, method, rawURL string, body io.Reader, hdr http.Header) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	s.log.Debug().Str("method", method).Str("url", rawURL).Msg("发送请求")

	cctx := colly.NewContext()
	if err := s.collector.Request(method, rawURL, body, cctx, hdr); err != nil {
		return nil, &models.NetworkError{Method: method, URL: rawURL, Cause: err}
	}

	r, ok := cctx.GetAny(responseKey).(*colly.Response)
	if !ok || r == nil {
		return nil, &models.NetworkError{Method: method, URL: rawURL, Cause: fmt.Errorf("没有收到响应")}
	}

	resp := &Response{StatusCode: r.StatusCode, Header: http.Header{}}
	if r.Headers != nil {
		resp.Header = *r.Headers
	}
	resp.Body = decodeBody(resp.Header.Get("Content-Encoding"), r.Body)
	return resp, nil
}

// Bootstrap 确保存在可用的会话Cookie
// force 为 true 时清空Cookie罐和快照文件后重新建立
// 依次尝试: 已有Cookie -> 快照文件 -> 执行反爬挑战
func (s *SessionManager) Bootstrap(ctx context.Context, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if force {
		s.log.Info().Msg("强制刷新会话")
		if err := s.resetJar(); err != nil {
			return err
		}
		if err := s.store.Purge(); err != nil {
			s.log.Warn().Err(err).Msg("清空会话快照失败")
		}
		s.state = SessionStale
	}

	if len(s.Cookies()) > 0 {
		return nil
	}

	cookies, err := s.store.Load()
	if err != nil {
		s.log.Warn().Err(err).Str("file", s.store.Path()).Msg("读取会话快照失败,重新建立会话")
	}
	if len(cookies) > 0 {
		if err := s.collector.SetCookies(s.site.LandingURL(), cookies); err != nil {
			return fmt.Errorf("载入快照Cookie失败: %w", err)
		}
		s.state = SessionValid
		s.log.Info().Str("file", s.store.Path()).Int("cookies", len(cookies)).Msg("已从快照载入会话")
		return nil
	}

	return s.establish(ctx)
}

// establish 执行反爬挑战,校验通过后保存快照
func (s *SessionManager) establish(ctx context.Context) error {
	s.log.Debug().Msg("初始化会话Cookie")

	landing, err := s.Get(ctx, s.site.LandingURL())
	if err != nil {
		return err
	}
	script, err := s.Get(ctx, s.site.ChallengeScriptURL())
	if err != nil {
		return err
	}

	cookie, err := s.solver.DeriveCookie(ctx, landing.Text(), script.Text())
	if err != nil {
		return err
	}
	if err := s.collector.SetCookies(s.site.LandingURL(), []*http.Cookie{cookie}); err != nil {
		return fmt.Errorf("设置会话Cookie失败: %w", err)
	}

	valid, err := s.validate(ctx)
	if err != nil {
		return err
	}
	if !valid {
		s.state = SessionStale
		s.log.Warn().Msg("会话Cookie未通过校验,不保存快照")
		return nil
	}

	s.state = SessionValid
	if err := s.store.Save(s.site.BaseURL, s.Cookies()); err != nil {
		s.log.Warn().Err(err).Msg("保存会话快照失败")
	} else {
		s.log.Info().Str("file", s.store.Path()).Msg("会话快照已保存")
	}
	return nil
}

// validate 访问探针页,站点仍返回登录前页面即视为无效
func (s *SessionManager) validate(ctx context.Context) (bool, error) {
	probe, err := s.Get(ctx, s.site.ProbeURL())
	if err != nil {
		return false, err
	}
	return !s.parser.IsCookieInvalid(probe.Text()), nil
}

func (s *SessionManager) resetJar() error {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return fmt.Errorf("创建Cookie罐失败: %w", err)
	}
	s.collector.SetCookieJar(jar)
	return nil
}
