package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RecoveryAshes/zonehwatch/internal/console"
	"github.com/RecoveryAshes/zonehwatch/internal/core"
	"github.com/RecoveryAshes/zonehwatch/internal/models"
	"github.com/RecoveryAshes/zonehwatch/internal/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

const appName = "zonehwatch"

// 命令行参数
var (
	// 全局参数
	configFile  string
	envFile     string
	verbose     bool
	logLevel    string
	headersFile string
	headers     []string // 自定义HTTP请求头

	// 抓取参数
	archive   string
	startPage int
	endPage   int
	autoStart bool

	// 过滤参数
	countries   []string
	domains     []string
	notifiers   []string
	domainsFile string

	// scan 参数
	scanArchives    []string
	exportPath      string
	archiveDelay    int
	continueOnError bool
	noProgress      bool

	// export 参数
	journalPath string
	outputPath  string
)

// appConfig 在 PersistentPreRunE 中加载
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Zone-H 篡改通报归档监控工具",
	Long: `zonehwatch - Zone-H 篡改通报归档监控工具

持续翻页抓取 Zone-H 归档中的篡改通报记录,去重并按国家、域名、通报者过滤后推送到控制台:
  • 自动通过站点的反爬脚本挑战并复用会话
  • 遇到验证码时暂停,由操作员在控制台输入后从同一页继续
  • 会话失效时强制刷新并从同一页继续
  • 单次扫描多个归档分区并导出为 CSV/XLSX/JSON

示例:
  # 启动控制台,输入 /run 开始抓取
  zonehwatch run

  # 只关注特定国家和域名
  zonehwatch run --autostart --country UA --domain .gov.ua

  # 扫描 special 和 onhold 分区的前5页并导出
  zonehwatch scan --archives special,onhold --end-page 5 -e records.xlsx

  # 检查请求头配置
  zonehwatch headers

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("加载环境变量文件失败: %w", err)
		}

		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		config.MergeCLIFlags(archive, startPage, endPage, logLevel)
		if err := config.MergeFilterFlags(countries, domains, notifiers, domainsFile); err != nil {
			return err
		}
		if verbose && logLevel == "" {
			config.Logging.Level = "debug"
		}

		if err := utils.InitLogger(config.LogConfig()); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		if config.Path() != "" {
			utils.Debugf("使用配置文件: %s", config.Path())
		}

		appConfig = config
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "启动控制台并持续监控归档",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidatePages(startPage, endPage); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := newApplication(appConfig)
		if err != nil {
			return err
		}
		defer app.Close()

		cons := console.New(appName, os.Stdin, os.Stdout, app.session.Site(), appConfig.Dispatch.OutputDir)
		if appConfig.Dispatch.JSONL != "" {
			journal, err := utils.OpenRecordJournal(appConfig.Dispatch.JSONL)
			if err != nil {
				return err
			}
			defer journal.Close()
			cons.SetJournal(journal)
		}

		service := core.NewService(app.pipeline(), app.captcha, app.filters, cons, app.monitor, appConfig.ServiceOptions())
		cons.Attach(service)

		if autoStart {
			if err := service.Start(ctx); err != nil {
				return err
			}
		}

		err = cons.Run(ctx)
		if errors.Is(err, context.Canceled) {
			utils.Warn("收到中断信号,已停止")
			return nil
		}
		return err
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "对一个或多个归档分区做一次性扫描",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidatePages(startPage, endPage); err != nil {
			return err
		}
		archives, err := ParseArchives(scanArchives, appConfig.Zoneh.Archive)
		if err != nil {
			return err
		}
		if err := ValidateExportPath(exportPath); err != nil {
			return err
		}
		if appConfig.Zoneh.EndPage == 0 {
			utils.Warn("未指定结束页,将一直翻到归档末尾")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := newApplication(appConfig)
		if err != nil {
			return err
		}
		defer app.Close()

		// 控制台只用于输入验证码
		cons := console.New(appName, os.Stdin, os.Stderr, app.session.Site(), appConfig.Dispatch.OutputDir)
		cons.AttachCaptcha(console.CoordinatorInput(app.captcha))
		consoleCtx, stopConsole := context.WithCancel(ctx)
		defer stopConsole()
		go cons.Run(consoleCtx)

		scanner := core.NewBatchScanner(app.client, app.parser, app.captcha, app.filters, cons, appConfig.Zoneh, core.BatchOptions{
			Pipeline:        appConfig.PipelineOptions(),
			ArchiveDelay:    utils.Seconds(archiveDelay),
			ContinueOnError: continueOnError,
			Progress:        !noProgress,
			DedupCapacity:   appConfig.Zoneh.DedupCapacity,
			CaptchaInterval: appConfig.DispatchInterval(),
		})

		report, records, scanErr := scanner.Scan(ctx, archives)
		if report == nil {
			return scanErr
		}

		reporter := utils.NewReporter(appConfig.Dispatch.OutputDir)
		if exportPath != "" {
			path, err := reporter.ExportRecords(exportPath, records)
			if err != nil {
				return err
			}
			report.ExportPath = path
		}
		if _, err := reporter.SaveScanReport(report); err != nil {
			utils.Warnf("保存扫描报告失败: %v", err)
		}

		if errors.Is(scanErr, context.Canceled) {
			utils.Warn("扫描被中断,已导出中断前的结果")
			return nil
		}
		return scanErr
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "把记录日志(JSONL)转换为 CSV/XLSX/JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		from := journalPath
		if from == "" {
			from = appConfig.Dispatch.JSONL
		}
		if from == "" {
			return fmt.Errorf("未指定记录日志文件 (--from 或配置 dispatch.jsonl)")
		}
		if err := ValidateExportPath(outputPath); err != nil {
			return err
		}

		records, err := utils.ReadRecordJournal(from)
		if err != nil {
			return err
		}
		_, err = utils.NewReporter(appConfig.Dispatch.OutputDir).ExportRecords(outputPath, records)
		return err
	},
}

var headersCmd = &cobra.Command{
	Use:   "headers",
	Short: "验证并显示当前生效的HTTP请求头",
	RunE: func(cmd *cobra.Command, args []string) error {
		utils.Info("🔍 验证HTTP头部配置...")
		headerManager, err := core.NewHeaderManager(headersFile, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}
		if err := headerManager.LoadConfig(); err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		if err := headerManager.Validate(); err != nil {
			return fmt.Errorf("配置验证失败: %w", err)
		}

		// 显示合并后的头部(脱敏)
		safeHeaders := headerManager.GetSafeHeaders()
		utils.Info("✅ 配置验证通过!")
		fmt.Printf("当前有效的HTTP头部 (%d个):\n", len(safeHeaders))
		for name, value := range safeHeaders {
			fmt.Printf("  %s: %s\n", name, value)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", appName, Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
		fmt.Printf("默认站点: %s\n", models.DefaultBaseURL)
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "环境变量文件")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&headersFile, "headers-file", "", "请求头配置文件 (默认: configs/headers.yaml)")
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")

	// 抓取参数
	for _, cmd := range []*cobra.Command{runCmd, scanCmd} {
		cmd.Flags().StringVarP(&archive, "archive", "a", "", "归档分区 (archive|special|onhold)")
		cmd.Flags().IntVar(&startPage, "start-page", 0, "起始页")
		cmd.Flags().IntVar(&endPage, "end-page", 0, "结束页 (0表示不限)")
		cmd.Flags().StringSliceVar(&countries, "country", nil, "只推送这些国家的记录 (两位代码或全名)")
		cmd.Flags().StringSliceVar(&domains, "domain", nil, "只推送这些域名后缀的记录")
		cmd.Flags().StringSliceVar(&notifiers, "notifier", nil, "只推送这些通报者的记录")
		cmd.Flags().StringVar(&domainsFile, "domains-file", "", "域名后缀列表文件 (每行一个)")
	}
	runCmd.Flags().BoolVar(&autoStart, "autostart", false, "启动后立即开始抓取")

	scanCmd.Flags().StringSliceVar(&scanArchives, "archives", nil, "要扫描的归档分区,逗号分隔 (默认: --archive 或配置)")
	scanCmd.Flags().StringVarP(&exportPath, "export", "e", "", "导出匹配记录 (.csv|.xlsx|.json)")
	scanCmd.Flags().IntVar(&archiveDelay, "archive-delay", 5, "分区间等待时间(秒)")
	scanCmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "某个分区失败后继续扫描")
	scanCmd.Flags().BoolVar(&noProgress, "no-progress", false, "不显示进度条")

	exportCmd.Flags().StringVar(&journalPath, "from", "", "记录日志文件 (默认: dispatch.jsonl)")
	exportCmd.Flags().StringVarP(&outputPath, "output", "o", "records.csv", "导出文件 (.csv|.xlsx|.json)")

	rootCmd.AddCommand(runCmd, scanCmd, exportCmd, headersCmd, versionCmd)
}

func main() {
	start := time.Now()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
	utils.Debugf("运行结束, 耗时 %.2f秒", time.Since(start).Seconds())
}
