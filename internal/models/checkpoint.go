package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CookieEntry 持久化的单个Cookie
type CookieEntry struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Domain  string    `json:"domain,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// SessionSnapshot 会话快照
// 校验通过的Cookie集合,下次启动时直接复用
type SessionSnapshot struct {
	BaseURL string        `json:"base_url"` // 会话所属站点
	Cookies []CookieEntry `json:"cookies"`  // Cookie列表
	SavedAt time.Time     `json:"saved_at"` // 保存时间
}

// Empty 快照是否不含任何Cookie
func (s *SessionSnapshot) Empty() bool {
	return s == nil || len(s.Cookies) == 0
}

// ToJSON 序列化为JSON
func (s *SessionSnapshot) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// FromJSON 从JSON反序列化
func (s *SessionSnapshot) FromJSON(data []byte) error {
	return json.Unmarshal(data, s)
}

// SaveToFile 原子地保存到文件
// 先写同目录临时文件再重命名,读者不会看到写了一半的快照
func (s *SessionSnapshot) SaveToFile(path string) error {
	data, err := s.ToJSON()
	if err != nil {
		return fmt.Errorf("序列化会话快照失败: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建快照目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时快照文件失败: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("写入会话快照失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("写入会话快照失败: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("替换会话快照失败: %w", err)
	}
	return nil
}

// LoadSessionSnapshot 从文件加载会话快照
// 文件不存在或为空时返回 (nil, nil)
func LoadSessionSnapshot(path string) (*SessionSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取会话快照失败: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var snapshot SessionSnapshot
	if err := snapshot.FromJSON(data); err != nil {
		return nil, fmt.Errorf("解析会话快照失败: %w", err)
	}
	return &snapshot, nil
}
