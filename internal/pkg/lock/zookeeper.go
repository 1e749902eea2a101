package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
	zlog "github.com/rs/zerolog/log"
)

const (
	lockRoot = "/distributed_locks" // 所有分布式锁的根节点
)

// ConnectZookeeper 建立 ZooKeeper 会话，zk 自身的日志输出到 zerolog
func ConnectZookeeper(servers []string, sessionTimeout time.Duration) (*zk.Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout, zk.WithLogger(&zlog.Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to connect zookeeper: %w", err)
	}
	return conn, nil
}

// ZookeeperLocker 使用临时顺序节点实现公平的分布式锁
type ZookeeperLocker struct {
	conn *zk.Conn
}

func NewZookeeperLocker(conn *zk.Conn) *ZookeeperLocker {
	return &ZookeeperLocker{conn: conn}
}

func (z *ZookeeperLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	l, err := newDistributedLock(z.conn, key)
	if err != nil {
		return nil, err
	}
	if err := l.lock(ctx); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := l.unlock(); err != nil {
				zlog.Error().Err(err).Str("path", l.path).Msg("failed to release zookeeper lock")
			}
		})
	}, nil
}

// distributedLock 是一次加锁的状态
type distributedLock struct {
	conn     *zk.Conn
	path     string // 锁的路径，例如 /distributed_locks/icu_bed:pune
	lockNode string // 成功获取锁后，自己创建的节点路径
}

func newDistributedLock(conn *zk.Conn, key string) (*distributedLock, error) {
	// 节点名中不能出现 '/'
	lockPath := lockRoot + "/" + strings.ReplaceAll(key, "/", "_")

	for _, p := range []string{lockRoot, lockPath} {
		_, err := conn.Create(p, []byte(""), 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return nil, fmt.Errorf("failed to create lock node %s: %w", p, err)
		}
	}
	return &distributedLock{conn: conn, path: lockPath}, nil
}

func (l *distributedLock) lock(ctx context.Context) error {
	// 1. 在锁路径下创建一个临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath
	myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")

	for {
		// 2. 获取锁路径下的所有子节点，按序号排序
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			_ = l.unlock()
			return fmt.Errorf("failed to get children nodes: %w", err)
		}
		sort.Slice(children, func(i, j int) bool {
			return sequenceOf(children[i]) < sequenceOf(children[j])
		})

		// 3. 判断自己是否是最小的节点
		myIndex := -1
		for i, child := range children {
			if child == myNodeName {
				myIndex = i
				break
			}
		}
		if myIndex == 0 {
			return nil
		}
		if myIndex < 0 {
			return errors.New("lock node disappeared, session may have expired")
		}

		// 4. 不是最小节点，监听前一个节点
		prevNodePath := l.path + "/" + children[myIndex-1]
		exists, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			_ = l.unlock()
			return fmt.Errorf("failed to watch previous node: %w", err)
		}
		if !exists {
			continue
		}

		select {
		case <-eventChan:
			// 前一个节点有变化，重新竞争
		case <-ctx.Done():
			_ = l.unlock()
			return fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
		}
	}
}

func (l *distributedLock) unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}

// sequenceOf 取出顺序节点名末尾的 10 位序号。
// 受保护的节点名带有 GUID 前缀，不能直接按字符串排序。
func sequenceOf(node string) string {
	if len(node) < 10 {
		return node
	}
	return node[len(node)-10:]
}
