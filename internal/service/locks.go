package service

import "sync"

// enrollmentLockRegistry 按报名 ID 提供互斥锁。
// 展开与延期会改写同一报名的排期，必须串行；不同报名互不影响。
type enrollmentLockRegistry struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func newEnrollmentLockRegistry() *enrollmentLockRegistry {
	return &enrollmentLockRegistry{locks: make(map[uint]*sync.Mutex)}
}

// Acquire 锁定指定报名并返回解锁函数。
func (r *enrollmentLockRegistry) Acquire(enrollmentID uint) func() {
	r.mu.Lock()
	lock, ok := r.locks[enrollmentID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[enrollmentID] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// scheduleLocks 为全进程共享的报名锁注册表。
var scheduleLocks = newEnrollmentLockRegistry()
