package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PPChat/tools/errs"

	"github.com/redis/go-redis/v9"
)

const DefaultClientIndexTTL = 48 * time.Hour

// ClientIndex 维护 (sender, clientMessageId) -> messageId 的幂等窗口，客户端重发不会落两条
type ClientIndex interface {
	// Ensure 不存在时写入 proposed 返回 existed=false；存在时返回旧 id
	Ensure(ctx context.Context, sender, clientMsgID, proposed string) (id string, existed bool, err error)
	Del(ctx context.Context, sender, clientMsgID string) error
}

// SETNX + PEXPIRE 原子执行，命中时带回旧值
const luaEnsure = `
local ok = redis.call('SETNX', KEYS[1], ARGV[1])
if ok == 1 then
  redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[2]))
  return {0, ARGV[1]}
end
return {1, redis.call('GET', KEYS[1])}
`

type RedisClientIndex struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisClientIndex(rdb redis.UniversalClient, ttl time.Duration) *RedisClientIndex {
	if ttl <= 0 {
		ttl = DefaultClientIndexTTL
	}
	return &RedisClientIndex{rdb: rdb, prefix: "pp:cid", ttl: ttl}
}

// pp:cid:{sender}:{clientMsgID}
func (r *RedisClientIndex) key(sender, clientMsgID string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, sender, clientMsgID)
}

func (r *RedisClientIndex) Ensure(ctx context.Context, sender, clientMsgID, proposed string) (string, bool, error) {
	res, err := r.rdb.Eval(ctx, luaEnsure, []string{r.key(sender, clientMsgID)}, proposed, r.ttl.Milliseconds()).Result()
	if err != nil {
		return "", false, errs.WrapMsg(err, "client index ensure", "sender", sender)
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) != 2 {
		return "", false, errs.New("unexpected lua result", "result", fmt.Sprintf("%#v", res))
	}
	flag, _ := arr[0].(int64)
	id, _ := arr[1].(string)
	return id, flag == 1, nil
}

func (r *RedisClientIndex) Del(ctx context.Context, sender, clientMsgID string) error {
	return r.rdb.Del(ctx, r.key(sender, clientMsgID)).Err()
}

type memEntry struct {
	id    string
	expAt time.Time
}

// MemoryClientIndex 单进程部署用
type MemoryClientIndex struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]memEntry
	now func() time.Time
}

func NewMemoryClientIndex(ttl time.Duration) *MemoryClientIndex {
	if ttl <= 0 {
		ttl = DefaultClientIndexTTL
	}
	return &MemoryClientIndex{ttl: ttl, m: make(map[string]memEntry), now: time.Now}
}

func (m *MemoryClientIndex) Ensure(_ context.Context, sender, clientMsgID, proposed string) (string, bool, error) {
	k := sender + ":" + clientMsgID
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.m[k]; ok && now.Before(e.expAt) {
		return e.id, true, nil
	}
	m.m[k] = memEntry{id: proposed, expAt: now.Add(m.ttl)}
	return proposed, false, nil
}

func (m *MemoryClientIndex) Del(_ context.Context, sender, clientMsgID string) error {
	m.mu.Lock()
	delete(m.m, sender+":"+clientMsgID)
	m.mu.Unlock()
	return nil
}
