// Package lock 提供按 key 串行化的互斥锁，分配操作用它保证同一位置同一时刻只有一个写者。
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLockTimeout 表示在等待时限内没有拿到锁
var ErrLockTimeout = errors.New("timeout waiting for lock")

// Unlock 释放已获得的锁，可以重复调用
type Unlock func()

// Locker 是分布式锁或本地锁的统一抽象
type Locker interface {
	// Lock 阻塞直到拿到 key 对应的锁，或 ctx 结束
	Lock(ctx context.Context, key string) (Unlock, error)
}

// LocalLocker 是进程内的按 key 互斥锁，只在单实例部署时提供保证
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}

// release 在没有等待者时回收 slot，避免 map 无限增长
func (l *LocalLocker) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
