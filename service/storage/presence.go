package storage

import (
	"context"
	"strconv"
	"sync"
	"time"

	"PPChat/tools/errs"

	"github.com/redis/go-redis/v9"
)

// Presence 网关会话登记；一个用户可有多个会话（多端/多标签页）
type Presence interface {
	Connect(ctx context.Context, userID, sessionID string) error
	Touch(ctx context.Context, userID, sessionID string) error
	Disconnect(ctx context.Context, userID, sessionID string) error
	Sessions(ctx context.Context, userID string) (int64, error)
}

const DefaultPresenceTTL = 2 * time.Minute

// ===== Lua 脚本 =====

// 登记/续期一个会话
// KEYS[1] = user index key (pp:presence:{<user>})
// ARGV[1] = member (sessionID)
// ARGV[2] = expAtUnix
// ARGV[3] = nowUnix
// ARGV[4] = indexTTLSec
const luaTouch = `
local userZ  = KEYS[1]
local member = ARGV[1]
local expAt  = tonumber(ARGV[2])
local now    = tonumber(ARGV[3])
local ttl    = tonumber(ARGV[4])

redis.call("ZREMRANGEBYSCORE", userZ, "-inf", now)
redis.call("ZADD", userZ, expAt, member)
redis.call("EXPIRE", userZ, ttl)
return 1
`

// 清理过期并返回有效会话数
// KEYS[1] = user index key
// ARGV[1] = nowUnix
const luaCountActive = `
local userZ = KEYS[1]
local now   = tonumber(ARGV[1])

redis.call("ZREMRANGEBYSCORE", userZ, "-inf", now)
return redis.call("ZCARD", userZ)
`

// 单会话离线；最后一个会话离开时删索引
// KEYS[1] = user index key
// ARGV[1] = member
// 返回：1=删掉了会话；0=本就不存在（幂等）
const luaOfflineOne = `
local userZ  = KEYS[1]
local member = ARGV[1]
local existed = redis.call("ZREM", userZ, member)
if redis.call("ZCARD", userZ) == 0 then
  redis.call("DEL", userZ)
end
return existed
`

// RedisPresence 每个用户一个 zset，member=会话 id，score=过期时间；
// 进程崩溃没来得及 Disconnect 的会话靠 TTL 自然过期
type RedisPresence struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time

	touch   *redis.Script
	count   *redis.Script
	offline *redis.Script
}

var _ Presence = (*RedisPresence)(nil)

func NewRedisPresence(rdb *redis.Client, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &RedisPresence{
		rdb:     rdb,
		ttl:     ttl,
		now:     time.Now,
		touch:   redis.NewScript(luaTouch),
		count:   redis.NewScript(luaCountActive),
		offline: redis.NewScript(luaOfflineOne),
	}
}

// presenceKey 用 hash-tag，Cluster 下同一用户落在同一 slot
func presenceKey(userID string) string { return "pp:presence:{" + userID + "}" }

func (p *RedisPresence) Connect(ctx context.Context, userID, sessionID string) error {
	return p.Touch(ctx, userID, sessionID)
}

// Touch 心跳续期
func (p *RedisPresence) Touch(ctx context.Context, userID, sessionID string) error {
	now := p.now()
	args := []any{
		sessionID,
		strconv.FormatInt(now.Add(p.ttl).Unix(), 10),
		strconv.FormatInt(now.Unix(), 10),
		strconv.FormatInt(int64(2*p.ttl/time.Second), 10),
	}
	if err := p.touch.Run(ctx, p.rdb, []string{presenceKey(userID)}, args...).Err(); err != nil {
		return errs.WrapMsg(err, "presence touch", "user", userID)
	}
	return nil
}

func (p *RedisPresence) Disconnect(ctx context.Context, userID, sessionID string) error {
	if err := p.offline.Run(ctx, p.rdb, []string{presenceKey(userID)}, sessionID).Err(); err != nil {
		return errs.WrapMsg(err, "presence offline", "user", userID)
	}
	return nil
}

func (p *RedisPresence) Sessions(ctx context.Context, userID string) (int64, error) {
	n, err := p.count.Run(ctx, p.rdb, []string{presenceKey(userID)}, strconv.FormatInt(p.now().Unix(), 10)).Int64()
	if err != nil {
		return 0, errs.WrapMsg(err, "presence count", "user", userID)
	}
	return n, nil
}

// MemoryPresence 单进程部署（未配置 Redis）时使用
type MemoryPresence struct {
	mu    sync.Mutex
	users map[string]map[string]struct{}
}

var _ Presence = (*MemoryPresence)(nil)

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{users: make(map[string]map[string]struct{})}
}

func (p *MemoryPresence) Connect(_ context.Context, userID, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.users[userID]
	if !ok {
		set = make(map[string]struct{})
		p.users[userID] = set
	}
	set[sessionID] = struct{}{}
	return nil
}

func (p *MemoryPresence) Touch(ctx context.Context, userID, sessionID string) error {
	return p.Connect(ctx, userID, sessionID)
}

func (p *MemoryPresence) Disconnect(_ context.Context, userID, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	set := p.users[userID]
	delete(set, sessionID)
	if len(set) == 0 {
		delete(p.users, userID)
	}
	return nil
}

func (p *MemoryPresence) Sessions(_ context.Context, userID string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int64(len(p.users[userID])), nil
}
