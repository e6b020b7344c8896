package ids

import (
	"strconv"
	"sync"
	"time"
)

// 41bit 毫秒时间戳 | 10bit 节点 | 12bit 序列
const (
	nodeBits = 10
	seqBits  = 12
	maxNode  = 1<<nodeBits - 1
	seqMask  = 1<<seqBits - 1
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

// Generator 雪花ID生成器，网关会话ID用它生成
type Generator struct {
	mu       sync.Mutex
	nodeID   int64
	seq      int64
	lastTSMS int64
}

func NewGenerator(nodeID int64) *Generator {
	if nodeID < 0 || nodeID > maxNode {
		nodeID = 1
	}
	return &Generator{nodeID: nodeID}
}

var (
	defaultGen *Generator
	once       sync.Once
)

func std() *Generator {
	once.Do(func() { defaultGen = NewGenerator(1) })
	return defaultGen
}

// SetNodeID 设置默认生成器的 nodeID（0~1023），main 初始化时调用
func SetNodeID(nodeID int64) {
	g := std()
	if nodeID < 0 || nodeID > maxNode {
		nodeID = 1
	}
	g.mu.Lock()
	g.nodeID = nodeID
	g.mu.Unlock()
}

func Generate() int64 { return std().Next() }

func GenerateString() string { return strconv.FormatInt(Generate(), 10) }

func (g *Generator) NextString() string { return strconv.FormatInt(g.Next(), 10) }

func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < g.lastTSMS {
		// 时钟回拨：沿用上一个时间戳继续递增序列
		now = g.lastTSMS
	}
	if now == g.lastTSMS {
		g.seq = (g.seq + 1) & seqMask
		if g.seq == 0 {
			// 序列溢出，等到下一毫秒
			for now <= g.lastTSMS {
				time.Sleep(100 * time.Microsecond)
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.seq = 0
	}
	g.lastTSMS = now

	ts := (now - epoch) & (1<<41 - 1)
	return ts<<(nodeBits+seqBits) | g.nodeID<<seqBits | g.seq
}
