package ids

import (
	"sync"
	"testing"
)

func TestGeneratorUniqueAndIncreasing(t *testing.T) {
	g := NewGenerator(7)
	var last int64
	for i := 0; i < 10000; i++ {
		id := g.Next()
		if id <= last {
			t.Fatalf("id %d not greater than %d", id, last)
		}
		if (id>>seqBits)&maxNode != 7 {
			t.Fatalf("node bits lost in %d", id)
		}
		last = id
	}
}

func TestGenerateConcurrent(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				id := GenerateString()
				mu.Lock()
				if _, dup := seen[id]; dup {
					mu.Unlock()
					t.Errorf("duplicate id %s", id)
					return
				}
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}
