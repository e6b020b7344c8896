package mgo

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"PPChat/data/database/mgo/mongoutil"
	"PPChat/logger"
	"PPChat/tools/errs"
	"PPChat/tools/safe"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	baseBackoff = 200 * time.Millisecond
	maxBackoff  = 5 * time.Second
	healthEvery = 10 * time.Second // 健康检查周期
	failThresh  = 3                // 连续失败阈值
)

// MongoManager 负责建连（退避重试）和健康探测；断线重连交给驱动本身
type MongoManager struct {
	cfg *mongoutil.Config

	mu        sync.RWMutex
	client    *mongoutil.Client
	readyCh   chan struct{} // 首次就绪通知；只会被 close 一次
	readyOnce sync.Once

	healthy atomic.Bool
	lastErr atomic.Value // errBox
}

// atomic.Value 要求类型一致，错误包一层
type errBox struct{ err error }

func NewManager(cfg *mongoutil.Config) *MongoManager {
	return &MongoManager{cfg: cfg, readyCh: make(chan struct{})}
}

// StartAsync 一直运行到 ctx.Done()；首次连上时 close readyCh
func (m *MongoManager) StartAsync(ctx context.Context) {
	safe.Go("mongo-manager", func() {
		if !m.connect(ctx) {
			return
		}
		m.monitor(ctx)
	})
}

func (m *MongoManager) connect(ctx context.Context) bool {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		cli, err := mongoutil.NewMongoDB(ctx, m.cfg)
		if err == nil {
			m.mu.Lock()
			m.client = cli
			m.mu.Unlock()
			m.healthy.Store(true)
			m.readyOnce.Do(func() { close(m.readyCh) })
			logger.Info("mongo connected", zap.String("database", m.cfg.Database))
			return true
		}
		m.lastErr.Store(errBox{err})
		logger.Warn("mongo connect failed", zap.Int("attempt", attempt), zap.Error(err))

		// 退避 + 抖动
		backoff := baseBackoff << attempt
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		jitter := time.Duration(rand.Int63n(int64(backoff/5) + 1)) // 0~20%
		timer := time.NewTimer(backoff - jitter/2)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		if attempt < 6 {
			attempt++
		}
	}
}

func (m *MongoManager) monitor(ctx context.Context) {
	fail := 0
	ticker := time.NewTicker(healthEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = m.Disconnect(context.Background())
			return
		case <-ticker.C:
			m.mu.RLock()
			cli := m.client
			m.mu.RUnlock()
			if cli == nil {
				// 已经 Disconnect
				return
			}
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := cli.Ping(pctx)
			cancel()
			if err != nil {
				fail++
				m.lastErr.Store(errBox{err})
				if fail >= failThresh && m.healthy.Swap(false) {
					logger.Error("mongo unhealthy", zap.Int("fails", fail), zap.Error(err))
				}
				continue
			}
			if fail >= failThresh {
				logger.Info("mongo healthy again")
			}
			fail = 0
			m.healthy.Store(true)
		}
	}
}

// Disconnect 断开连接，可重复调用；之后 Client() 不再可用
func (m *MongoManager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	cli := m.client
	m.client = nil
	m.mu.Unlock()
	m.healthy.Store(false)
	if cli == nil {
		return nil
	}
	if err := cli.Close(ctx); err != nil {
		return errs.WrapMsg(err, "mongo disconnect")
	}
	logger.Info("mongo disconnected")
	return nil
}

// Ready 首次连接成功时会 close；可 select 等待
func (m *MongoManager) Ready() <-chan struct{} {
	return m.readyCh
}

// WaitReady 等待首次连接，超时返回最近一次错误
func (m *MongoManager) WaitReady(ctx context.Context) error {
	select {
	case <-m.readyCh:
		return nil
	case <-ctx.Done():
		if err := m.Err(); err != nil {
			return fmt.Errorf("mongo not ready: %w", err)
		}
		return fmt.Errorf("mongo not ready: %w", ctx.Err())
	}
}

func (m *MongoManager) Healthy() bool { return m.healthy.Load() }

// Err 最近一次错误
func (m *MongoManager) Err() error {
	if v := m.lastErr.Load(); v != nil {
		return v.(errBox).err
	}
	return nil
}

func (m *MongoManager) Client() *mongoutil.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		panic("Mongo not ready: wait Ready() first")
	}
	return m.client
}

func (m *MongoManager) GetDB() *mongo.Database {
	return m.Client().GetDB()
}

func (m *MongoManager) GetTx() mongoutil.Tx {
	return m.Client().GetTx()
}
