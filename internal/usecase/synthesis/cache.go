package synthesis

import (
	"container/list"
	"sync"
)

// audioCache is a bounded cache evicting in insertion order.
// Overwriting an existing key keeps its original position.
type audioCache struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[string]*list.Element
}

type cacheEntry struct {
	key   string
	audio []byte
}

func newAudioCache(max int) *audioCache {
	return &audioCache{
		max:     max,
		order:   list.New(),
		entries: make(map[string]*list.Element, max),
	}
}

func cacheKey(text, voice string) string {
	return text + "|" + voice
}

func (c *audioCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return el.Value.(*cacheEntry).audio, true
}

// put stores audio under key and returns the number of evicted entries.
func (c *audioCache) put(key string, audio []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).audio = audio
		return 0
	}

	c.entries[key] = c.order.PushBack(&cacheEntry{key: key, audio: audio})

	evicted := 0
	for c.order.Len() > c.max {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
		evicted++
	}
	return evicted
}

func (c *audioCache) purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.order.Len()
	c.order.Init()
	c.entries = make(map[string]*list.Element, c.max)
	return n
}

func (c *audioCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
