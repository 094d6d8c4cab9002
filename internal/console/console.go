// Package console 操作员控制台
//
// 从输入流逐行读取命令,以 / 开头的行是命令,其余非空行在有未解决的
// 验证码时作为验证码文本提交。推送的记录和验证码提示写到输出流。
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/RecoveryAshes/zonehwatch/internal/core"
	"github.com/RecoveryAshes/zonehwatch/internal/models"
	"github.com/RecoveryAshes/zonehwatch/internal/utils"
	"github.com/rs/zerolog"
)

const (
	// CaptchaImageName 验证码图片文件名
	CaptchaImageName = "captcha.png"
	// DefaultExportName /csv 未指定路径时的导出文件
	DefaultExportName = "records.csv"

	helpText = "Use /run to run data gathering\n" +
		"Use /stop to stop data gathering\n" +
		"Use /csv [file] to export gathered records (.csv, .xlsx, .json)\n" +
		"Use /status to show scraper status\n" +
		"Use /quit to exit\n" +
		"Any other text is sent as the captcha solution when a captcha is requested"
)

// CaptchaInput 接收操作员输入的验证码
type CaptchaInput interface {
	NeedsCaptcha() bool
	SubmitCaptchaText(ctx context.Context, text string) (bool, error)
}

// Controller 控制台驱动的抓取服务,由 *core.Service 实现
type Controller interface {
	CaptchaInput
	Start(ctx context.Context) error
	Stop() error
	Running() bool
	SeenRecords() []models.Record
	Status() core.ServiceStatus
}

// Console 操作员控制台,同时作为服务的下游接收方
type Console struct {
	in        io.Reader
	out       io.Writer
	name      string
	formatter *utils.RecordFormatter
	reporter  *utils.Reporter
	outputDir string
	log       zerolog.Logger

	control Controller
	captcha CaptchaInput
	journal *utils.RecordJournal

	outMu  sync.Mutex
	recNum int
}

// New 创建控制台
func New(name string, in io.Reader, out io.Writer, site models.Site, outputDir string) *Console {
	return &Console{
		in:        in,
		out:       out,
		name:      name,
		formatter: utils.NewRecordFormatter(site),
		reporter:  utils.NewReporter(outputDir),
		outputDir: outputDir,
		log:       utils.Component("console"),
	}
}

// Attach 绑定抓取服务
func (c *Console) Attach(control Controller) {
	c.control = control
	c.captcha = control
}

// AttachCaptcha 只绑定验证码输入,用于一次性扫描
func (c *Console) AttachCaptcha(input CaptchaInput) {
	c.captcha = input
}

// SetJournal 设置记录日志,每条推送的记录都追加写入
func (c *Console) SetJournal(journal *utils.RecordJournal) {
	c.journal = journal
}

// CaptchaImagePath 验证码图片的保存位置
func (c *Console) CaptchaImagePath() string {
	return filepath.Join(c.outputDir, CaptchaImageName)
}

// PushRecord 输出一条记录
func (c *Console) PushRecord(ctx context.Context, rec models.Record) error {
	c.outMu.Lock()
	c.recNum++
	text := c.formatter.Format(rec, c.recNum)
	_, err := fmt.Fprintf(c.out, "%s\n\n", text)
	c.outMu.Unlock()
	if err != nil {
		return fmt.Errorf("输出记录失败: %w", err)
	}

	if c.journal != nil {
		if err := c.journal.Append(rec); err != nil {
			return fmt.Errorf("写入记录日志失败: %w", err)
		}
	}
	return nil
}

// PushCaptcha 保存验证码图片并提示操作员
func (c *Console) PushCaptcha(ctx context.Context, challenge core.CaptchaSnapshot) error {
	path := c.CaptchaImagePath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建验证码目录失败: %w", err)
	}
	if err := os.WriteFile(path, challenge.Image, 0644); err != nil {
		return fmt.Errorf("保存验证码图片失败: %w", err)
	}

	c.log.Info().
		Str("challenge_id", challenge.ID).
		Str("cursor", challenge.Cursor.String()).
		Int("failed_attempts", challenge.FailedAttempts).
		Str("image", path).
		Msg("验证码已发给操作员")

	msg := fmt.Sprintf("%s: %s", challenge.Caption, path)
	if challenge.FailedAttempts > 0 {
		msg = fmt.Sprintf("%s (failed attempts: %d)", msg, challenge.FailedAttempts)
	}
	c.reply(msg)
	return nil
}

// Run 读取输入直到 /quit、输入结束或 ctx 取消
func (c *Console) Run(ctx context.Context) error {
	c.reply(fmt.Sprintf("%s started, see /help for available commands", c.name))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case err := <-readErr:
			c.shutdown()
			return err
		case line := <-lines:
			if c.Handle(ctx, line) {
				c.shutdown()
				return nil
			}
		}
	}
}

// Handle 处理一行输入,返回 true 表示退出
func (c *Console) Handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.solveCaptcha(ctx, line)
		return false
	}

	fields := strings.Fields(line)
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	c.log.Debug().Str("command", cmd).Strs("args", args).Msg("收到命令")

	switch cmd {
	case "/help", "/start":
		c.reply(helpText)
	case "/run":
		c.cmdRun(ctx)
	case "/stop":
		c.cmdStop()
	case "/csv":
		c.cmdExport(args)
	case "/status":
		c.cmdStatus()
	case "/quit", "/exit":
		return true
	default:
		c.reply(fmt.Sprintf("Unknown command %s, see /help", cmd))
	}
	return false
}

func (c *Console) cmdRun(ctx context.Context) {
	if c.control == nil {
		c.reply("Not available in this mode")
		return
	}
	if err := c.control.Start(ctx); err != nil {
		if errors.Is(err, models.ErrPipelineAlreadyRunning) {
			c.reply("Already running")
			return
		}
		c.log.Error().Err(err).Msg("启动抓取失败")
		c.reply("Failed to start scraping")
		return
	}
	c.reply("Scraping started")
}

func (c *Console) cmdStop() {
	if c.control == nil {
		c.reply("Not available in this mode")
		return
	}
	if err := c.control.Stop(); err != nil {
		if errors.Is(err, models.ErrPipelineNotRunning) {
			c.reply("Already stopped")
			return
		}
		c.reply(err.Error())
		return
	}
	c.reply("Scraping stopped")
}

func (c *Console) cmdExport(args []string) {
	if c.control == nil {
		c.reply("Not available in this mode")
		return
	}
	name := DefaultExportName
	if len(args) > 0 {
		name = args[0]
	}
	path, err := c.reporter.ExportRecords(name, c.control.SeenRecords())
	if err != nil {
		c.reply(err.Error())
		return
	}
	c.reply("Records exported: " + path)
}

func (c *Console) cmdStatus() {
	if c.control == nil {
		c.reply("Not available in this mode")
		return
	}
	st := c.control.Status()
	var b strings.Builder
	fmt.Fprintf(&b, "State: %s\n", st.State)
	if st.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", st.RunID)
	}
	fmt.Fprintf(&b, "Passes: %d, pushed: %d, pending: %d, seen: %d\n", st.Passes, st.Pushed, st.Pending, st.Seen)
	if st.Passes > 0 {
		fmt.Fprintf(&b, "Last pass: %d pages, %d records, %d new, %d matched\n",
			st.LastPass.Pages, st.LastPass.Records, st.LastPass.Accepted, st.LastPass.Matched)
	}
	fmt.Fprintf(&b, "Captcha requested: %t", st.Captcha)
	if st.LastError != nil {
		fmt.Fprintf(&b, "\nLast error: %v", st.LastError)
	}
	c.reply(b.String())
}

// solveCaptcha 把非命令输入当作验证码提交
func (c *Console) solveCaptcha(ctx context.Context, text string) {
	if c.captcha == nil || !c.captcha.NeedsCaptcha() {
		c.reply("No captcha requested, see /help for available commands")
		return
	}
	solved, err := c.captcha.SubmitCaptchaText(ctx, text)
	switch {
	case errors.Is(err, models.ErrCaptchaStateViolation):
		// 图片还没发给操作员或已被其他输入处理
		c.reply("Captcha is not ready yet, wait for the image")
	case err != nil:
		c.reply(err.Error())
	case solved:
		c.reply("Captcha solved")
	default:
		c.reply("Try once more")
	}
}

// shutdown 退出前停止仍在运行的服务
func (c *Console) shutdown() {
	if c.control != nil && c.control.Running() {
		if err := c.control.Stop(); err != nil {
			c.log.Warn().Err(err).Msg("停止抓取服务失败")
		}
	}
}

func (c *Console) reply(msg string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.out, msg)
}

type coordinatorInput struct {
	captcha *core.CaptchaCoordinator
}

func (c coordinatorInput) NeedsCaptcha() bool {
	return c.captcha.IsActive()
}

func (c coordinatorInput) SubmitCaptchaText(ctx context.Context, text string) (bool, error) {
	return c.captcha.SubmitSolution(ctx, text)
}

// CoordinatorInput 把验证码协调器适配为控制台输入
func CoordinatorInput(captcha *core.CaptchaCoordinator) CaptchaInput {
	return coordinatorInput{captcha: captcha}
}
