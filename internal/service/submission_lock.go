package service

import (
	"fmt"
	"sync"
	"time"
)

// SubmissionLockManager 进程级的 (student, exam) 提交互斥。
// 同一把钥匙的并发 Complete 只有第一个能拿到锁，其余立即被拒绝而不是排队，
// 把竞态变成客户端可重试的显式冲突。崩溃残留的锁由定期清扫回收
type SubmissionLockManager struct {
	mu        sync.Mutex
	locks     map[string]time.Time
	staleness time.Duration
}

func NewSubmissionLockManager(staleness time.Duration) *SubmissionLockManager {
	if staleness <= 0 {
		staleness = 5 * time.Minute
	}
	return &SubmissionLockManager{
		locks:     make(map[string]time.Time),
		staleness: staleness,
	}
}

func lockKey(userID, examID uint) string {
	return fmt.Sprintf("%d:%d", userID, examID)
}

// TryAcquire 非阻塞抢锁。已被占用（且未过期）时返回 false
func (m *SubmissionLockManager) TryAcquire(userID, examID uint) bool {
	key := lockKey(userID, examID)
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if acquiredAt, exists := m.locks[key]; exists {
		if now.Sub(acquiredAt) < m.staleness {
			return false
		}
		// 过期锁视为失效，允许接管
	}
	m.locks[key] = now
	return true
}

func (m *SubmissionLockManager) Release(userID, examID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, lockKey(userID, examID))
}

// SweepStale 清除超过过期阈值的锁，返回清除数量。由后台定时任务调用
func (m *SubmissionLockManager) SweepStale() int {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, acquiredAt := range m.locks {
		if now.Sub(acquiredAt) >= m.staleness {
			delete(m.locks, key)
			removed++
		}
	}
	return removed
}

// Held 仅供测试与指标观察
func (m *SubmissionLockManager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
