// Package lock provides chat-level locking so that all messages of one chat
// are processed strictly in delivery order, even when the transport fans
// updates out across goroutines.
package lock

import "sync"

// chatMutex wraps a mutex with reference counting for cleanup.
type chatMutex struct {
	mu       sync.Mutex
	refCount int
}

// ChatLock provides per-chat locking. The ledger assumes a single logical
// writer per chat; this lock is what enforces it inside the process.
type ChatLock struct {
	locks sync.Map // map[int64]*chatMutex
	pool  sync.Pool
}

// NewChatLock creates a new ChatLock instance.
func NewChatLock() *ChatLock {
	return &ChatLock{
		pool: sync.Pool{
			New: func() any {
				return &chatMutex{}
			},
		},
	}
}

// getLock retrieves or creates a mutex for the given chat ID.
func (cl *ChatLock) getLock(chatID int64) *chatMutex {
	// Try to load existing lock
	if v, ok := cl.locks.Load(chatID); ok {
		return v.(*chatMutex)
	}

	// Create new lock from pool
	newLock := cl.pool.Get().(*chatMutex)
	newLock.refCount = 0

	// Store or load existing (handles race condition)
	actual, loaded := cl.locks.LoadOrStore(chatID, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool
		cl.pool.Put(newLock)
	}
	return actual.(*chatMutex)
}

// Lock acquires the lock for a chat.
func (cl *ChatLock) Lock(chatID int64) {
	lock := cl.getLock(chatID)
	lock.mu.Lock()
	lock.refCount++
}

// Unlock releases the lock for a chat.
func (cl *ChatLock) Unlock(chatID int64) {
	if v, ok := cl.locks.Load(chatID); ok {
		lock := v.(*chatMutex)
		lock.refCount--
		lock.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (cl *ChatLock) TryLock(chatID int64) bool {
	lock := cl.getLock(chatID)
	if lock.mu.TryLock() {
		lock.refCount++
		return true
	}
	return false
}

// WithLock executes a function while holding the chat's lock.
func (cl *ChatLock) WithLock(chatID int64, fn func() error) error {
	cl.Lock(chatID)
	defer cl.Unlock(chatID)
	return fn()
}
