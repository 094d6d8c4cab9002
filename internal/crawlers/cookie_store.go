package crawlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/zonehwatch/internal/models"
)

// DefaultCookieFileName 会话快照的默认文件名,位于系统临时目录
const DefaultCookieFileName = "zoneh_cookiejar.json"

// DefaultCookieFile 默认的会话快照路径
func DefaultCookieFile() string {
	return filepath.Join(os.TempDir(), DefaultCookieFileName)
}

// CookieStore 会话快照的文件存储
type CookieStore struct {
	path string
}

// NewCookieStore 创建Cookie存储,path 为空时使用默认路径
func NewCookieStore(path string) *CookieStore {
	if path == "" {
		path = DefaultCookieFile()
	}
	return &CookieStore{path: path}
}

// Path 快照文件路径
func (s *CookieStore) Path() string {
	return s.path
}

// Load 读取快照中的Cookie
// 文件不存在或为空时返回 nil
func (s *CookieStore) Load() ([]*http.Cookie, error) {
	snapshot, err := models.LoadSessionSnapshot(s.path)
	if err != nil {
		return nil, err
	}
	if snapshot.Empty() {
		return nil, nil
	}

	cookies := make([]*http.Cookie, 0, len(snapshot.Cookies))
	for _, entry := range snapshot.Cookies {
		cookies = append(cookies, &http.Cookie{
			Name:    entry.Name,
			Value:   entry.Value,
			Path:    entry.Path,
			Domain:  entry.Domain,
			Expires: entry.Expires,
		})
	}
	return cookies, nil
}

// Save 保存Cookie快照
func (s *CookieStore) Save(baseURL string, cookies []*http.Cookie) error {
	snapshot := &models.SessionSnapshot{
		BaseURL: baseURL,
		Cookies: make([]models.CookieEntry, 0, len(cookies)),
		SavedAt: time.Now(),
	}
	for _, c := range cookies {
		snapshot.Cookies = append(snapshot.Cookies, models.CookieEntry{
			Name:    c.Name,
			Value:   c.Value,
			Path:    c.Path,
			Domain:  c.Domain,
			Expires: c.Expires,
		})
	}
	return snapshot.SaveToFile(s.path)
}

// Purge 清空快照文件
// 保留一个空文件,下次加载时视为没有快照
func (s *CookieStore) Purge() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("创建快照目录失败: %w", err)
	}
	if err := os.WriteFile(s.path, nil, 0600); err != nil {
		return fmt.Errorf("清空会话快照失败: %w", err)
	}
	return nil
}
