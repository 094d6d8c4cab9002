package crawlers

import (
	"fmt"
	"time"

	"github.com/RecoveryAshes/zonehwatch/internal/utils"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitor 主机资源检查
// 启动浏览器前确认剩余内存,扫描统计中附带主机状态
type ResourceMonitor struct {
	minFreeMemory uint64 // 字节,0 表示不检查
}

// HostStatus 主机资源快照
type HostStatus struct {
	TotalMemory     uint64  // 系统总内存(字节)
	AvailableMemory uint64  // 可用内存(字节)
	UsedPercent     float64 // 内存占用百分比
	CPUPercent      float64 // 所有核心的平均CPU使用率
}

// String 便于日志输出
func (s HostStatus) String() string {
	return fmt.Sprintf("内存 %.0fMB/%.0fMB (%.1f%%), CPU %.1f%%",
		float64(s.TotalMemory-s.AvailableMemory)/(1024*1024),
		float64(s.TotalMemory)/(1024*1024),
		s.UsedPercent, s.CPUPercent)
}

// NewResourceMonitor 创建资源监控器,minFreeMB 为启动浏览器所需的最小可用内存(MB)
func NewResourceMonitor(minFreeMB int) *ResourceMonitor {
	if minFreeMB < 0 {
		minFreeMB = 0
	}
	return &ResourceMonitor{minFreeMemory: uint64(minFreeMB) * 1024 * 1024}
}

// Status 采样当前主机状态
// CPU 使用 100ms 采样窗口
func (rm *ResourceMonitor) Status() (HostStatus, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return HostStatus{}, fmt.Errorf("获取系统内存失败: %w", err)
	}
	status := HostStatus{
		TotalMemory:     vm.Total,
		AvailableMemory: vm.Available,
		UsedPercent:     vm.UsedPercent,
	}

	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		utils.Debugf("获取CPU使用率失败: %v", err)
	} else if len(percentages) > 0 {
		status.CPUPercent = percentages[0]
	}
	return status, nil
}

// CheckBrowserLaunch 剩余内存不足时拒绝启动浏览器
// 无法读取内存信息时放行
func (rm *ResourceMonitor) CheckBrowserLaunch() error {
	if rm == nil || rm.minFreeMemory == 0 {
		return nil
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		utils.Warnf("获取系统内存失败,跳过内存检查: %v", err)
		return nil
	}
	if vm.Available < rm.minFreeMemory {
		return fmt.Errorf("可用内存不足,拒绝启动浏览器: 可用 %dMB, 需要 %dMB",
			vm.Available/(1024*1024), rm.minFreeMemory/(1024*1024))
	}
	return nil
}
