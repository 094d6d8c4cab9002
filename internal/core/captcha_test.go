package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/zonehwatch/internal/models"
)

// fakeCaptchaRemote 记录调用并按预设答案判定
type fakeCaptchaRemote struct {
	mu       sync.Mutex
	answer   string
	images   int
	attempts []string
	imageErr error
}

func (f *fakeCaptchaRemote) FetchCaptchaImage(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	f.images++
	return []byte{byte(f.images)}, nil
}

func (f *fakeCaptchaRemote) SolveCaptcha(ctx context.Context, cursor models.PageCursor, text string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, text)
	return text == f.answer, nil
}

var testCursor = models.PageCursor{Archive: models.ArchiveMain, Page: 4}

func TestCaptchaCoordinator_Lifecycle(t *testing.T) {
	ctx := context.Background()
	remote := &fakeCaptchaRemote{answer: "x7k2"}
	c := NewCaptchaCoordinator(remote)

	if _, ok := c.TakePending(); ok {
		t.Fatal("未激活时不应有待展示的验证码")
	}

	if err := c.BeginChallenge(ctx, testCursor); err != nil {
		t.Fatalf("BeginChallenge 失败: %v", err)
	}
	if err := c.BeginChallenge(ctx, testCursor); !errors.Is(err, models.ErrCaptchaStateViolation) {
		t.Errorf("重复发起应返回状态机违规, got %v", err)
	}

	// 尚未发给操作员就提交
	if _, err := c.SubmitSolution(ctx, "x7k2"); !errors.Is(err, models.ErrCaptchaStateViolation) {
		t.Errorf("未发送时提交应返回状态机违规, got %v", err)
	}

	snap, ok := c.TakePending()
	if !ok {
		t.Fatal("应有待展示的验证码")
	}
	if snap.Caption != CaptchaCaption || snap.Cursor != testCursor || snap.ID == "" || len(snap.Image) != 1 {
		t.Errorf("快照内容不正确: %+v", snap)
	}
	if _, ok := c.TakePending(); ok {
		t.Error("同一张图片只应取走一次")
	}

	solved, err := c.SubmitSolution(ctx, "wrong")
	if err != nil || solved {
		t.Fatalf("错误答案: solved=%v err=%v", solved, err)
	}
	snap = c.Snapshot()
	if !snap.Active || snap.Sent || snap.FailedAttempts != 1 || snap.Image[0] != 2 {
		t.Errorf("失败后应保持激活并更换图片: %+v", snap)
	}

	if _, ok := c.TakePending(); !ok {
		t.Fatal("更换图片后应再次待展示")
	}
	solved, err = c.SubmitSolution(ctx, "x7k2")
	if err != nil || !solved {
		t.Fatalf("正确答案: solved=%v err=%v", solved, err)
	}
	snap = c.Snapshot()
	if snap.Active || snap.Sent || snap.FailedAttempts != 0 || snap.Image != nil {
		t.Errorf("通过后应完全复位: %+v", snap)
	}
	if len(remote.attempts) != 2 {
		t.Errorf("远端提交次数 = %d", len(remote.attempts))
	}
}

func TestCaptchaCoordinator_ImageFailure(t *testing.T) {
	c := NewCaptchaCoordinator(&fakeCaptchaRemote{imageErr: errors.New("boom")})
	if err := c.BeginChallenge(context.Background(), testCursor); err == nil {
		t.Fatal("获取图片失败应返回错误")
	}
	if c.IsActive() {
		t.Error("获取图片失败后不应保持激活")
	}
}

func TestCaptchaCoordinator_TakePendingOnce(t *testing.T) {
	c := NewCaptchaCoordinator(&fakeCaptchaRemote{})
	if err := c.BeginChallenge(context.Background(), testCursor); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	taken := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := c.TakePending(); ok {
				mu.Lock()
				taken++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if taken != 1 {
		t.Errorf("并发取走次数 = %d, 期望 1", taken)
	}
}

func TestCaptchaCoordinator_WaitResolved(t *testing.T) {
	ctx := context.Background()

	t.Run("未激活立即返回", func(t *testing.T) {
		c := NewCaptchaCoordinator(&fakeCaptchaRemote{})
		if err := c.WaitResolved(ctx, time.Millisecond, 0); err != nil {
			t.Errorf("WaitResolved = %v", err)
		}
	})

	t.Run("解决后返回", func(t *testing.T) {
		c := NewCaptchaCoordinator(&fakeCaptchaRemote{answer: "ok"})
		if err := c.BeginChallenge(ctx, testCursor); err != nil {
			t.Fatal(err)
		}
		go func() {
			c.TakePending()
			c.SubmitSolution(ctx, "ok")
		}()
		if err := c.WaitResolved(ctx, 5*time.Millisecond, 2*time.Second); err != nil {
			t.Errorf("WaitResolved = %v", err)
		}
	})

	t.Run("超时", func(t *testing.T) {
		c := NewCaptchaCoordinator(&fakeCaptchaRemote{})
		if err := c.BeginChallenge(ctx, testCursor); err != nil {
			t.Fatal(err)
		}
		err := c.WaitResolved(ctx, 5*time.Millisecond, 30*time.Millisecond)
		if !errors.Is(err, models.ErrCaptchaTimeout) {
			t.Errorf("应返回 ErrCaptchaTimeout, got %v", err)
		}
		c.Abandon()
		if c.IsActive() {
			t.Error("Abandon 后不应激活")
		}
	})

	t.Run("取消", func(t *testing.T) {
		c := NewCaptchaCoordinator(&fakeCaptchaRemote{})
		if err := c.BeginChallenge(ctx, testCursor); err != nil {
			t.Fatal(err)
		}
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if err := c.WaitResolved(cctx, time.Hour, 0); !errors.Is(err, context.Canceled) {
			t.Errorf("应返回 context.Canceled, got %v", err)
		}
	})
}
