package utils

import (
	"bufio"
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"time"
)

// ReadListFile 从文件中读取列表项 (每行一项)
// 空行和 # 开头的注释行会被跳过
func ReadListFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开列表文件失败: %w", err)
	}
	defer file.Close()

	items := make([]string, 0)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取列表文件失败: %w", err)
	}

	Debugf("从文件 %s 加载了 %d 项", path, len(items))
	return items, nil
}

// SleepContext 可被取消的睡眠
// ctx 先结束时返回 ctx.Err()
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RandomDuration 返回 [min, max] 内均匀分布的随机时长
func RandomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}

// Seconds 将整数秒转换为时长
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
