package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/zonehwatch/internal/models"
)

type fakeConsumer struct {
	mu       sync.Mutex
	records  []models.Record
	captchas []CaptchaSnapshot
}

func (c *fakeConsumer) PushRecord(ctx context.Context, rec models.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return nil
}

func (c *fakeConsumer) PushCaptcha(ctx context.Context, challenge CaptchaSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captchas = append(c.captchas, challenge)
	return nil
}

func (c *fakeConsumer) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records), len(c.captchas)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("等待超时: %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func newTestService(fetcher *fakeFetcher, classifier *fakeClassifier, filterCfg models.FilterConfig) (*Service, *fakeConsumer) {
	filters, err := BuildFilters(filterCfg)
	if err != nil {
		panic(err)
	}
	pipeline, captcha := newTestPipeline(fetcher, classifier, filters, PipelineOptions{})
	consumer := &fakeConsumer{}
	service := NewService(pipeline, captcha, filters, consumer, nil, ServiceOptions{
		RescanPeriod:     10 * time.Millisecond,
		DispatchInterval: 5 * time.Millisecond,
		StopOnSeen:       true,
		DedupCapacity:    100,
	})
	return service, consumer
}

func TestService_StartStopGuards(t *testing.T) {
	fetcher, classifier := standardSite()
	service, _ := newTestService(fetcher, classifier, models.FilterConfig{})

	if err := service.Stop(); !errors.Is(err, models.ErrPipelineNotRunning) {
		t.Errorf("未启动时 Stop 应返回 ErrPipelineNotRunning, got %v", err)
	}
	if err := service.Start(context.Background()); err != nil {
		t.Fatalf("Start 失败: %v", err)
	}
	if err := service.Start(context.Background()); !errors.Is(err, models.ErrPipelineAlreadyRunning) {
		t.Errorf("重复 Start 应返回 ErrPipelineAlreadyRunning, got %v", err)
	}
	if !service.Running() {
		t.Error("应处于运行状态")
	}
	if err := service.Stop(); err != nil {
		t.Fatalf("Stop 失败: %v", err)
	}
	if err := service.Stop(); !errors.Is(err, models.ErrPipelineNotRunning) {
		t.Errorf("重复 Stop 应返回 ErrPipelineNotRunning, got %v", err)
	}
	if st := service.Status(); st.State != models.RunStatusStopped || st.RunID == "" {
		t.Errorf("状态不正确: %+v", st)
	}

	// 停止后可以重新启动
	if err := service.Start(context.Background()); err != nil {
		t.Fatalf("重新启动失败: %v", err)
	}
	if err := service.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestService_PushesEachRecordOnce(t *testing.T) {
	fetcher, classifier := standardSite()
	service, consumer := newTestService(fetcher, classifier, models.FilterConfig{})

	if err := service.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "推送全部记录", func() bool {
		n, _ := consumer.counts()
		return n == 6
	})
	// 至少再完成一轮,第二轮遇到已见记录立即结束
	waitFor(t, "第二轮扫描", func() bool { return service.Status().Passes >= 2 })
	if err := service.Stop(); err != nil {
		t.Fatal(err)
	}

	n, _ := consumer.counts()
	if n != 6 {
		t.Errorf("每条记录只应推送一次, 实际推送 %d", n)
	}
	seen := map[int]bool{}
	for _, r := range consumer.records {
		if seen[r.MirrorID] {
			t.Errorf("重复推送: %d", r.MirrorID)
		}
		seen[r.MirrorID] = true
	}

	st := service.Status()
	if st.Seen != 6 || st.Pushed != 6 || st.Pending != 0 {
		t.Errorf("状态不正确: %+v", st)
	}
	if st.LastPass.Accepted != 0 || st.LastPass.Pages != 1 {
		t.Errorf("后续轮次应在第一页结束: %+v", st.LastPass)
	}
	if len(service.SeenRecords()) != 6 {
		t.Errorf("SeenRecords = %d", len(service.SeenRecords()))
	}
}

func TestService_FiltersRecords(t *testing.T) {
	fetcher, classifier := standardSite()
	service, consumer := newTestService(fetcher, classifier, models.FilterConfig{Notifiers: []string{"n22"}})

	if err := service.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "完成一轮扫描", func() bool { return service.Status().Passes >= 1 })
	waitFor(t, "推送匹配记录", func() bool {
		n, _ := consumer.counts()
		return n == 1
	})
	if err := service.Stop(); err != nil {
		t.Fatal(err)
	}

	if consumer.records[0].Notifier != "n22" {
		t.Errorf("推送了不匹配的记录: %+v", consumer.records[0])
	}
	if st := service.Status(); st.Seen != 6 {
		t.Errorf("未匹配的记录也应进入去重窗口: %d", st.Seen)
	}
}

func TestService_CaptchaRoundTrip(t *testing.T) {
	fetcher, classifier := standardSite()
	fetcher.pages[cursorAt(1)] = []string{"captcha", "ok1"}
	service, consumer := newTestService(fetcher, classifier, models.FilterConfig{})

	if err := service.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer service.Stop()

	waitFor(t, "推送验证码", func() bool {
		_, c := consumer.counts()
		return c == 1
	})
	if !service.NeedsCaptcha() {
		t.Fatal("应有未解决的验证码")
	}
	consumer.mu.Lock()
	challenge := consumer.captchas[0]
	consumer.mu.Unlock()
	if challenge.Caption != CaptchaCaption || challenge.Cursor != cursorAt(1) {
		t.Errorf("验证码内容不正确: %+v", challenge)
	}

	solved, err := service.SubmitCaptchaText(context.Background(), "solved")
	if err != nil || !solved {
		t.Fatalf("提交验证码: solved=%v err=%v", solved, err)
	}
	waitFor(t, "验证码后继续推送", func() bool {
		n, _ := consumer.counts()
		return n == 6
	})
}

func TestService_FailureKeepsStatus(t *testing.T) {
	fetcher, classifier := standardSite()
	fetcher.pages[cursorAt(2)] = []string{"garbage"}
	service, consumer := newTestService(fetcher, classifier, models.FilterConfig{})

	if err := service.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "抓取协程失败", func() bool { return service.Status().State == models.RunStatusFailed })

	var scraperErr *models.ScraperError
	if !errors.As(service.LastError(), &scraperErr) || scraperErr.Cursor != cursorAt(2) {
		t.Errorf("LastError = %v", service.LastError())
	}
	// 失败前解析出的记录仍会推送
	waitFor(t, "推送第一页记录", func() bool {
		n, _ := consumer.counts()
		return n == 2
	})

	if err := service.Stop(); err != nil {
		t.Fatalf("失败后仍应可以 Stop: %v", err)
	}
	if st := service.Status(); st.State != models.RunStatusFailed {
		t.Errorf("Stop 不应覆盖失败状态: %s", st.State)
	}
}
