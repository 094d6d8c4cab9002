package crawlers

import (
	"context"
	"errors"
	"net"
	"testing"
)

// fakeProcess 记录 Kill 调用的浏览器进程
type fakeProcess struct {
	url       string
	launchErr error
	killed    int
}

func (p *fakeProcess) Launch() (string, error) { return p.url, p.launchErr }
func (p *fakeProcess) Kill()                   { p.killed++ }

// closedPort 返回一个当前没有监听的本地端口地址
func closedPort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestBrowserEvaluator_KillsProcessOnStartupFailure(t *testing.T) {
	tests := []struct {
		name    string
		process *fakeProcess
	}{
		{"启动失败", &fakeProcess{launchErr: errors.New("no chromium")}},
		{"连接失败", &fakeProcess{url: "ws://" + closedPort(t) + "/devtools/browser/x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewBrowserEvaluator(BrowserConfig{Headless: true}, NewResourceMonitor(0))
			e.newProcess = func() browserProcess { return tt.process }

			if _, err := e.Evaluate(context.Background(), "1+1"); err == nil {
				t.Fatal("期望返回错误")
			}
			if tt.process.killed != 1 {
				t.Errorf("Kill 调用次数 = %d, 期望 1", tt.process.killed)
			}
			if e.browser != nil || e.process != nil {
				t.Error("失败后不应保留浏览器")
			}
		})
	}
}
