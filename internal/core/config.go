package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/zonehwatch/internal/crawlers"
	"github.com/RecoveryAshes/zonehwatch/internal/models"
	"github.com/RecoveryAshes/zonehwatch/internal/utils"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀,如 ZONEHWATCH_ZONEH_ARCHIVE=special
const EnvPrefix = "ZONEHWATCH"

// Config 应用程序配置
type Config struct {
	Zoneh    models.ScrapeConfig    `mapstructure:"zoneh"`
	Browser  crawlers.BrowserConfig `mapstructure:"browser"`
	Dispatch DispatchConfig         `mapstructure:"dispatch"`
	Logging  LoggingConfig          `mapstructure:"logging"`

	// 实际读取的配置文件,未找到配置文件时为空
	path string
}

// DispatchConfig 推送配置
type DispatchConfig struct {
	Interval  int     `mapstructure:"interval"`   // 推送协程轮询间隔(秒)
	Rate      float64 `mapstructure:"rate"`       // 每秒推送记录数
	OutputDir string  `mapstructure:"output_dir"` // 验证码图片与导出文件目录
	JSONL     string  `mapstructure:"jsonl"`      // 记录日志文件,为空时不写
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// LoadConfig 加载配置文件
// configPath 为空时搜索默认位置,找不到配置文件时使用默认值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".zonehwatch"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: err}
		}
		utils.Debugf("未找到配置文件,使用默认配置")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: err}
	}
	config.path = v.ConfigFileUsed()

	if config.Zoneh.CookieFile == "" {
		config.Zoneh.CookieFile = crawlers.DefaultCookieFile()
	}

	return &config, nil
}

// DefaultConfig 仅包含默认值的配置
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	// 默认值均为基本类型,解码不会失败
	_ = v.Unmarshal(&config)
	config.Zoneh.CookieFile = crawlers.DefaultCookieFile()
	return &config
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("zoneh.base_url", models.DefaultBaseURL)
	v.SetDefault("zoneh.archive", string(models.ArchiveMain))
	v.SetDefault("zoneh.start_page", 1)
	v.SetDefault("zoneh.end_page", 0)
	v.SetDefault("zoneh.rescan_period", 300)
	v.SetDefault("zoneh.random_ua", false)
	v.SetDefault("zoneh.tls_bypass", false)
	v.SetDefault("zoneh.request_timeout", 30)
	v.SetDefault("zoneh.delay_min", 7)
	v.SetDefault("zoneh.delay_max", 11)
	v.SetDefault("zoneh.refresh_delay", 2)
	v.SetDefault("zoneh.captcha_poll", 1)
	v.SetDefault("zoneh.captcha_timeout", 0)
	v.SetDefault("zoneh.max_session_refreshes", 5)
	v.SetDefault("zoneh.stop_on_seen", true)
	v.SetDefault("zoneh.dedup_capacity", DefaultDedupCapacity)
	v.SetDefault("zoneh.cookie_file", "")
	v.SetDefault("zoneh.filters.countries", []string{})
	v.SetDefault("zoneh.filters.domains", []string{})
	v.SetDefault("zoneh.filters.notifiers", []string{})

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.min_free_memory", 256)

	v.SetDefault("dispatch.interval", 1)
	v.SetDefault("dispatch.rate", 1.0)
	v.SetDefault("dispatch.output_dir", "output")
	v.SetDefault("dispatch.jsonl", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)
}

// Path 实际读取的配置文件路径
func (c *Config) Path() string {
	return c.path
}

// Validate 校验配置,失败时返回 *models.ConfigError
func (c *Config) Validate() error {
	fail := func(err error) error {
		return &models.ConfigError{FilePath: c.path, Cause: err}
	}

	if err := c.Zoneh.Validate(); err != nil {
		return fail(err)
	}
	if _, err := BuildFilters(c.Zoneh.Filters); err != nil {
		return fail(err)
	}
	if c.Dispatch.Interval < 1 {
		return fail(fmt.Errorf("推送间隔必须大于等于1秒"))
	}
	if c.Dispatch.Rate <= 0 {
		return fail(fmt.Errorf("推送速率必须大于0"))
	}
	if c.Browser.MinFreeMemory < 0 {
		return fail(fmt.Errorf("浏览器最小可用内存不能为负数"))
	}
	return nil
}

// LogConfig 转换为日志系统配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}

// SessionConfig 转换为会话配置
func (c *Config) SessionConfig() crawlers.SessionConfig {
	return crawlers.SessionConfig{
		BaseURL:        c.Zoneh.BaseURL,
		RequestTimeout: utils.Seconds(c.Zoneh.RequestTimeout),
		RandomUA:       c.Zoneh.RandomUA,
		TLSBypass:      c.Zoneh.TLSBypass,
		CookieFile:     c.Zoneh.CookieFile,
	}
}

// PipelineOptions 转换为流水线参数
func (c *Config) PipelineOptions() PipelineOptions {
	return PipelineOptions{
		Start:          c.Zoneh.StartCursor(),
		EndPage:        c.Zoneh.EndPage,
		DelayMin:       utils.Seconds(c.Zoneh.DelayMin),
		DelayMax:       utils.Seconds(c.Zoneh.DelayMax),
		RefreshDelay:   utils.Seconds(c.Zoneh.RefreshDelay),
		CaptchaPoll:    utils.Seconds(c.Zoneh.CaptchaPoll),
		CaptchaTimeout: utils.Seconds(c.Zoneh.CaptchaTimeout),
		MaxRefreshes:   c.Zoneh.MaxSessionRefreshes,
	}
}

// DispatchInterval 推送协程轮询间隔
func (c *Config) DispatchInterval() time.Duration {
	return utils.Seconds(c.Dispatch.Interval)
}

// ServiceOptions 转换为服务参数
func (c *Config) ServiceOptions() ServiceOptions {
	return ServiceOptions{
		RescanPeriod:     utils.Seconds(c.Zoneh.RescanPeriod),
		DispatchInterval: c.DispatchInterval(),
		Rate:             c.Dispatch.Rate,
		StopOnSeen:       c.Zoneh.StopOnSeen,
		DedupCapacity:    c.Zoneh.DedupCapacity,
	}
}

// MergeCLIFlags 合并命令行参数到配置,零值表示未指定
func (c *Config) MergeCLIFlags(archive string, startPage, endPage int, logLevel string) {
	if archive != "" {
		c.Zoneh.Archive = archive
	}
	if startPage > 0 {
		c.Zoneh.StartPage = startPage
	}
	if endPage > 0 {
		c.Zoneh.EndPage = endPage
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// MergeFilterFlags 把命令行过滤条件追加到配置
// domainsFile 每行一个域名后缀,# 开头为注释
func (c *Config) MergeFilterFlags(countries, domains, notifiers []string, domainsFile string) error {
	if domainsFile != "" {
		items, err := utils.ReadListFile(domainsFile)
		if err != nil {
			return err
		}
		domains = append(domains, items...)
	}

	f := &c.Zoneh.Filters
	f.Countries = append(f.Countries, countries...)
	f.Domains = append(f.Domains, domains...)
	f.Notifiers = append(f.Notifiers, notifiers...)
	return nil
}
