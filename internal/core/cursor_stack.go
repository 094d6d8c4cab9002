package core

import (
	"sync"

	"github.com/RecoveryAshes/zonehwatch/internal/models"
)

// CursorStack 待抓取游标栈
// 翻页链不会分叉,栈中通常最多只有一个游标;
// 可恢复的中断把同一游标重新压栈,下一次取出的仍是它
type CursorStack struct {
	mu      sync.Mutex
	pending []models.PageCursor
	visited map[models.PageCursor]int // 每个游标被取出的次数
}

// NewCursorStack 创建以 start 为种子的游标栈
func NewCursorStack(start models.PageCursor) *CursorStack {
	return &CursorStack{
		pending: []models.PageCursor{start},
		visited: make(map[models.PageCursor]int),
	}
}

// Push 压入游标
func (s *CursorStack) Push(cursor models.PageCursor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, cursor)
}

// Pop 取出最近压入的游标,栈空时返回 false
func (s *CursorStack) Pop() (models.PageCursor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.pending)
	if n == 0 {
		return models.PageCursor{}, false
	}
	cursor := s.pending[n-1]
	s.pending = s.pending[:n-1]
	s.visited[cursor]++
	return cursor, true
}

// Len 栈中游标数
func (s *CursorStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Attempts 游标被取出的次数,用于日志中区分首次抓取与重试
func (s *CursorStack) Attempts(cursor models.PageCursor) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visited[cursor]
}

// Reset 清空栈并重新以 start 为种子
func (s *CursorStack) Reset(start models.PageCursor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending[:0], start)
	s.visited = make(map[models.PageCursor]int)
}
