package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/RecoveryAshes/zonehwatch/internal/core"
	"github.com/RecoveryAshes/zonehwatch/internal/crawlers"
	"github.com/go-rod/rod/lib/launcher"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  zonehwatch 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	fmt.Printf("✅ Go版本: %s\n", runtime.Version())
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 检查配置
	fmt.Println()
	fmt.Println("检查配置...")
	config, err := core.LoadConfig("")
	if err != nil {
		fmt.Printf("❌ 加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if config.Path() != "" {
		fmt.Printf("✅ 配置文件: %s\n", config.Path())
	} else {
		fmt.Println("⚠️  未找到配置文件,使用默认配置")
	}
	if err := config.Validate(); err != nil {
		fmt.Printf("❌ %v\n", err)
		allOK = false
	} else {
		fmt.Printf("✅ 站点: %s, 分区: %s\n", config.Zoneh.BaseURL, config.Zoneh.Archive)
	}

	// 检查浏览器
	fmt.Println()
	fmt.Println("检查浏览器...")
	switch {
	case config.Browser.Bin != "":
		if _, err := os.Stat(config.Browser.Bin); err != nil {
			fmt.Printf("❌ 配置的浏览器不存在: %s\n", config.Browser.Bin)
			allOK = false
		} else {
			fmt.Printf("✅ 浏览器: %s\n", config.Browser.Bin)
		}
	default:
		if path, found := launcher.LookPath(); found {
			fmt.Printf("✅ 浏览器: %s\n", path)
		} else {
			fmt.Println("⚠️  未找到本地Chromium,首次通过脚本挑战时会自动下载")
		}
	}

	monitor := crawlers.NewResourceMonitor(config.Browser.MinFreeMemory)
	if status, err := monitor.Status(); err == nil {
		fmt.Printf("✅ 主机资源: %s\n", status)
	}
	if err := monitor.CheckBrowserLaunch(); err != nil {
		fmt.Printf("⚠️  %v\n", err)
	}

	// 检查可写目录
	fmt.Println()
	fmt.Println("检查目录...")
	for _, dir := range []string{
		filepath.Dir(config.Zoneh.CookieFile),
		config.Dispatch.OutputDir,
		config.Logging.LogDir,
	} {
		if err := checkWritable(dir); err != nil {
			fmt.Printf("❌ %s 不可写: %v\n", dir, err)
			allOK = false
		} else {
			fmt.Printf("✅ %s/\n", dir)
		}
	}

	// 检查请求头
	headerManager, err := core.NewHeaderManager("", nil)
	if err == nil {
		_, err = headerManager.GetHeaders()
	}
	if err != nil {
		fmt.Printf("❌ 请求头配置无效: %v\n", err)
		allOK = false
	} else {
		fmt.Println("✅ 请求头配置有效")
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'go build ./cmd/zonehwatch' 构建项目")
		fmt.Println("  2. 运行 './zonehwatch run' 打开控制台")
		os.Exit(0)
	}
	fmt.Println("❌ 环境验证失败,请解决上述问题。")
	os.Exit(1)
}

// checkWritable 确认目录存在且可写
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".verify-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
