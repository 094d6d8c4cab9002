package crawlers

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/zonehwatch/internal/models"
	"github.com/RecoveryAshes/zonehwatch/internal/utils"
)

// ChallengeCookieName 反爬挑战派生出的Cookie名称
const ChallengeCookieName = "ZHE"

// challengePattern 从首页最后一个内联脚本中取出:
// 1. 解密辅助函数 2. 生成Cookie值的表达式 3. expires 属性 4. path 属性
var challengePattern = regexp.MustCompile(`^(function.+)document.*(toHex.+)\+.*(expires.+?);.*(path=.+?)"`)

// cookieExpiresLayouts document.cookie 中 expires 可能出现的时间格式
var cookieExpiresLayouts = []string{
	time.RFC1123,
	"Mon, 02-Jan-2006 15:04:05 MST",
	"Mon, 02-Jan-06 15:04:05 MST",
	time.RFC850,
}

// JSEvaluator JavaScript执行器
// 返回脚本最后一个表达式的字符串值
type JSEvaluator interface {
	Evaluate(ctx context.Context, script string) (string, error)
}

// ChallengeFragments 从首页脚本中提取出的挑战片段
type ChallengeFragments struct {
	Funcs   string // 需要与挑战脚本一起执行的JS代码
	Expires string // Cookie的 expires 属性原文
	Path    string // Cookie的 path 属性
}

// ChallengeSolver 反爬挑战求解器
type ChallengeSolver struct {
	evaluator JSEvaluator
}

// NewChallengeSolver 创建挑战求解器
func NewChallengeSolver(evaluator JSEvaluator) *ChallengeSolver {
	return &ChallengeSolver{evaluator: evaluator}
}

// ExtractFragments 从首页HTML中提取挑战片段
func (s *ChallengeSolver) ExtractFragments(landingHTML string) (*ChallengeFragments, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(landingHTML))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrChallengeExtraction, err)
	}

	script := strings.TrimSpace(doc.Find("script").Last().Text())
	if script == "" {
		return nil, fmt.Errorf("%w: 首页没有内联脚本", models.ErrChallengeExtraction)
	}

	m := challengePattern.FindStringSubmatch(script)
	if m == nil {
		return nil, fmt.Errorf("%w: 脚本结构不匹配", models.ErrChallengeExtraction)
	}

	_, expires, _ := strings.Cut(m[3], "=")
	_, path, _ := strings.Cut(m[4], "=")
	return &ChallengeFragments{
		Funcs:   m[1] + "\n" + m[2],
		Expires: strings.TrimSpace(expires),
		Path:    strings.TrimSpace(path),
	}, nil
}

// DeriveCookie 执行挑战脚本,得到会话Cookie
// challengeScript 为 z.js 的内容
func (s *ChallengeSolver) DeriveCookie(ctx context.Context, landingHTML, challengeScript string) (*http.Cookie, error) {
	fragments, err := s.ExtractFragments(landingHTML)
	if err != nil {
		return nil, err
	}

	value, err := s.evaluator.Evaluate(ctx, challengeScript+"\n"+fragments.Funcs)
	if err != nil {
		return nil, fmt.Errorf("执行挑战脚本失败: %w", err)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: 挑战脚本返回空值", models.ErrChallengeExtraction)
	}

	cookie := &http.Cookie{
		Name:  ChallengeCookieName,
		Value: value,
		Path:  fragments.Path,
	}
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	if fragments.Expires != "" {
		if t, ok := parseCookieExpires(fragments.Expires); ok {
			cookie.Expires = t
		} else {
			utils.Debugf("无法解析Cookie过期时间: %s", fragments.Expires)
		}
	}
	return cookie, nil
}

func parseCookieExpires(s string) (time.Time, bool) {
	for _, layout := range cookieExpiresLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
