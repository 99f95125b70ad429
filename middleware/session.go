package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	SessionCookieName     = "session_id"
	DefaultSessionTimeout = 24 * time.Hour

	sessionContextKey = "sessionID"
)

type Session struct {
	ID        string
	CreatedAt time.Time
	LastSeen  time.Time
}

// SessionManager 内存会话管理，进程退出后全部失效
type SessionManager struct {
	sessions map[string]*Session
	timeout  time.Duration
	mu       sync.RWMutex

	// OnExpire 会话过期被清理时调用，用于释放该会话的任务
	OnExpire func(sessionID string)
}

// NewSessionManager 创建会话管理器
func NewSessionManager(timeout time.Duration) *SessionManager {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		timeout:  timeout,
	}
}

// generateSessionID 生成随机会话 ID
func generateSessionID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(b)
}

// GetOrCreateSession 获取或创建会话
func (sm *SessionManager) GetOrCreateSession(sessionID string) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	if sessionID != "" {
		if session, exists := sm.sessions[sessionID]; exists {
			if now.Sub(session.LastSeen) < sm.timeout {
				session.LastSeen = now
				return session
			}
			delete(sm.sessions, sessionID)
		}
	}

	newSession := &Session{
		ID:        generateSessionID(),
		CreatedAt: now,
		LastSeen:  now,
	}
	sm.sessions[newSession.ID] = newSession
	return newSession
}

// GetSession 获取会话（不创建新会话）
func (sm *SessionManager) GetSession(sessionID string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[sessionID]
	if !exists || time.Since(session.LastSeen) >= sm.timeout {
		return nil, false
	}
	return session, true
}

// Cleanup 删除过期会话，返回删除数量
func (sm *SessionManager) Cleanup(now time.Time) int {
	sm.mu.Lock()
	var expired []string
	for id, session := range sm.sessions {
		if now.Sub(session.LastSeen) >= sm.timeout {
			delete(sm.sessions, id)
			expired = append(expired, id)
		}
	}
	sm.mu.Unlock()

	if sm.OnExpire != nil {
		for _, id := range expired {
			sm.OnExpire(id)
		}
	}
	return len(expired)
}

// Run 定期清理过期会话，直到 ctx 结束
func (sm *SessionManager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sm.Cleanup(now)
		}
	}
}

// Middleware Gin 中间件：确保每个请求都有会话
func (sm *SessionManager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, _ := c.Cookie(SessionCookieName)

		session := sm.GetOrCreateSession(sessionID)

		if sessionID != session.ID {
			isSecure := c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https"
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(
				SessionCookieName,
				session.ID,
				int(sm.timeout.Seconds()),
				"/",
				"",
				isSecure,
				true, // httpOnly
			)
		}

		c.Set(sessionContextKey, session.ID)
		c.Next()
	}
}

// GetSessionID 从上下文获取会话 ID
func GetSessionID(c *gin.Context) string {
	return c.GetString(sessionContextKey)
}
