package crawlers

import (
	"context"
	"math/rand/v2"
	"net/url"

	"github.com/RecoveryAshes/zonehwatch/internal/models"
	"github.com/RecoveryAshes/zonehwatch/internal/utils"
)

// ArchiveClient 归档站点的页面访问接口
// 只负责取回页面,不做重试,页面含义由 RecordParser 判断
type ArchiveClient struct {
	session *SessionManager
	parser  *RecordParser
}

// NewArchiveClient 创建归档客户端
func NewArchiveClient(session *SessionManager) *ArchiveClient {
	return &ArchiveClient{session: session, parser: NewRecordParser()}
}

// Session 底层会话
func (c *ArchiveClient) Session() *SessionManager {
	return c.session
}

// Bootstrap 确保会话可用,见 SessionManager.Bootstrap
func (c *ArchiveClient) Bootstrap(ctx context.Context, force bool) error {
	return c.session.Bootstrap(ctx, force)
}

// FetchPage 获取归档分页HTML
func (c *ArchiveClient) FetchPage(ctx context.Context, cursor models.PageCursor) (string, error) {
	resp, err := c.session.Get(ctx, c.session.Site().PageURL(cursor))
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// FetchMirror 获取镜像详情页HTML
func (c *ArchiveClient) FetchMirror(ctx context.Context, mirrorID int) (string, error) {
	resp, err := c.session.Get(ctx, c.session.Site().MirrorURL(mirrorID))
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// FetchCaptchaImage 获取新的验证码图片
// 地址带一个随机数,避免拿到缓存的图片
func (c *ArchiveClient) FetchCaptchaImage(ctx context.Context) ([]byte, error) {
	resp, err := c.session.Get(ctx, c.session.Site().CaptchaURL(rand.IntN(1000)+1))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// SolveCaptcha 向验证码所在页提交识别结果
// 返回页面是否已不再是验证码页
func (c *ArchiveClient) SolveCaptcha(ctx context.Context, cursor models.PageCursor, text string) (bool, error) {
	utils.Infof("提交验证码 %q, 页面 %s", text, cursor)
	resp, err := c.session.PostForm(ctx, c.session.Site().PageURL(cursor), url.Values{"captcha": {text}})
	if err != nil {
		return false, err
	}
	return !c.parser.IsCaptcha(resp.Text()), nil
}
