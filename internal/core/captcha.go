package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/zonehwatch/internal/models"
	"github.com/RecoveryAshes/zonehwatch/internal/utils"
	"github.com/rs/zerolog"
)

// CaptchaCaption 发给操作员的验证码提示
const CaptchaCaption = "Captcha request, please type what you see"

// CaptchaRemote 验证码相关的站点操作
type CaptchaRemote interface {
	FetchCaptchaImage(ctx context.Context) ([]byte, error)
	SolveCaptcha(ctx context.Context, cursor models.PageCursor, text string) (bool, error)
}

// CaptchaSnapshot 验证码状态的一致快照
type CaptchaSnapshot struct {
	ID             string
	Active         bool
	Sent           bool
	Image          []byte
	Cursor         models.PageCursor
	FailedAttempts int
	Caption        string
}

// CaptchaCoordinator 验证码状态机
// 抓取协程发起挑战并等待,操作员输入通过 SubmitSolution 提交,
// 推送协程通过 TakePending 取走待展示的图片。所有状态读写共用一把锁
type CaptchaCoordinator struct {
	remote CaptchaRemote
	log    zerolog.Logger

	mu             sync.Mutex
	id             string
	active         bool
	sent           bool
	image          []byte
	cursor         models.PageCursor
	failedAttempts int
}

// NewCaptchaCoordinator 创建验证码协调器
func NewCaptchaCoordinator(remote CaptchaRemote) *CaptchaCoordinator {
	return &CaptchaCoordinator{
		remote: remote,
		log:    utils.Component("captcha"),
	}
}

// setActive 切换激活标志,设置为当前值视为状态机违规
func (c *CaptchaCoordinator) setActive(active bool) error {
	if c.active == active {
		if active {
			return fmt.Errorf("%w: 验证码已处于激活状态", models.ErrCaptchaStateViolation)
		}
		return fmt.Errorf("%w: 验证码已处于未激活状态", models.ErrCaptchaStateViolation)
	}
	c.active = active
	return nil
}

// setSent 切换已发送标志,设置为当前值视为状态机违规
func (c *CaptchaCoordinator) setSent(sent bool) error {
	if c.sent == sent {
		if sent {
			return fmt.Errorf("%w: 验证码已发送", models.ErrCaptchaStateViolation)
		}
		return fmt.Errorf("%w: 验证码尚未发送", models.ErrCaptchaStateViolation)
	}
	c.sent = sent
	return nil
}

func (c *CaptchaCoordinator) resetLocked() {
	c.id = ""
	c.active = false
	c.sent = false
	c.image = nil
	c.cursor = models.PageCursor{}
	c.failedAttempts = 0
}

// BeginChallenge 为触发验证码的页面发起挑战并获取图片
func (c *CaptchaCoordinator) BeginChallenge(ctx context.Context, cursor models.PageCursor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.setActive(true); err != nil {
		c.log.Error().Err(err).Msg("发起验证码挑战失败")
		return err
	}
	c.id = models.NewRunID()
	c.cursor = cursor

	image, err := c.remote.FetchCaptchaImage(ctx)
	if err != nil {
		c.resetLocked()
		return fmt.Errorf("获取验证码图片失败: %w", err)
	}
	c.image = image

	c.log.Info().Str("challenge_id", c.id).Str("cursor", cursor.String()).Msg("需要人工识别验证码")
	return nil
}

// SubmitSolution 提交操作员识别的验证码
// 站点仍返回验证码页时更换图片并返回 false,挑战保持激活
func (c *CaptchaCoordinator) SubmitSolution(ctx context.Context, text string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.log.Info().Str("challenge_id", c.id).Str("text", text).Msg("提交验证码")
	if err := c.setSent(false); err != nil {
		c.log.Error().Err(err).Msg("提交验证码失败")
		return false, err
	}

	solved, err := c.remote.SolveCaptcha(ctx, c.cursor, text)
	if err != nil {
		return false, fmt.Errorf("提交验证码失败: %w", err)
	}
	if solved {
		c.log.Info().Str("challenge_id", c.id).Int("failed_attempts", c.failedAttempts).Msg("验证码已通过")
		c.resetLocked()
		return true, nil
	}

	c.log.Info().Str("challenge_id", c.id).Msg("验证码未通过,更换图片")
	c.failedAttempts++
	image, err := c.remote.FetchCaptchaImage(ctx)
	if err != nil {
		return false, fmt.Errorf("获取验证码图片失败: %w", err)
	}
	c.image = image
	return false, nil
}

// TakePending 取走待展示的验证码
// 只有激活且尚未发送时返回 true,并同时标记为已发送
func (c *CaptchaCoordinator) TakePending() (CaptchaSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active || c.sent {
		return CaptchaSnapshot{}, false
	}
	// 上面已确认 sent 为 false
	_ = c.setSent(true)
	return c.snapshotLocked(), true
}

// IsActive 是否有未解决的验证码
func (c *CaptchaCoordinator) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Snapshot 当前状态的一致快照
func (c *CaptchaCoordinator) Snapshot() CaptchaSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *CaptchaCoordinator) snapshotLocked() CaptchaSnapshot {
	return CaptchaSnapshot{
		ID:             c.id,
		Active:         c.active,
		Sent:           c.sent,
		Image:          c.image,
		Cursor:         c.cursor,
		FailedAttempts: c.failedAttempts,
		Caption:        CaptchaCaption,
	}
}

// WaitResolved 轮询直到挑战解除
// timeout 为 0 时不限时,超时返回 ErrCaptchaTimeout
func (c *CaptchaCoordinator) WaitResolved(ctx context.Context, poll, timeout time.Duration) error {
	if poll <= 0 {
		poll = time.Second
	}
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for c.IsActive() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return models.ErrCaptchaTimeout
		case <-ticker.C:
		}
	}
	return nil
}

// Abandon 放弃当前挑战,用于取消或超时
func (c *CaptchaCoordinator) Abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		c.log.Warn().Str("challenge_id", c.id).Msg("放弃未解决的验证码")
	}
	c.resetLocked()
}
