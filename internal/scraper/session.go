package scraper

import (
	"math/rand/v2"
	"sync"
)

const (
	sessionMin = 100000
	sessionMax = 999999
)

// Session 渲染服务的会话号，同一商店的连续请求共用，超时后轮换。
type Session struct {
	mu sync.Mutex
	n  int
}

// NewSession 创建随机会话号。
func NewSession() *Session {
	return &Session{n: randomSession()}
}

// Number 返回当前会话号。
func (s *Session) Number() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Rotate 生成新的会话号并返回。
func (s *Session) Rotate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := randomSession()
	for next == s.n {
		next = randomSession()
	}
	s.n = next
	return next
}

func randomSession() int {
	return sessionMin + rand.IntN(sessionMax-sessionMin+1)
}
