package pipeline

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ResidentModel is a loaded local transcription model kept warm in memory
// (§4.6.2: "lazy, cached process-wide"; §9: "process-wide cache with
// explicit init/teardown and an explicit eviction API for downgrade
// fallback").
type ResidentModel struct {
	Size    ModelSize
	Loader  func() (Transcriber, error)
	loaded  Transcriber
	loadErr error
	once    sync.Once
}

func (m *ResidentModel) Get() (Transcriber, error) {
	m.once.Do(func() {
		m.loaded, m.loadErr = m.Loader()
	})
	return m.loaded, m.loadErr
}

// ModelCache holds at most capacity resident models; evicting the
// least-recently-used one makes room for a newly requested size. An
// explicit Evict is also used by the OOM-downgrade path (§4.6.2) to free
// the failed size's memory before attempting the next rung down.
type ModelCache struct {
	mu    sync.Mutex
	cache *lru.Cache[ModelSize, *ResidentModel]
}

func NewModelCache(capacity int) (*ModelCache, error) {
	c, err := lru.New[ModelSize, *ResidentModel](capacity)
	if err != nil {
		return nil, err
	}
	return &ModelCache{cache: c}, nil
}

// GetOrLoad returns the resident model for size, constructing it with
// loader on first use.
func (mc *ModelCache) GetOrLoad(size ModelSize, loader func() (Transcriber, error)) (Transcriber, error) {
	mc.mu.Lock()
	rm, ok := mc.cache.Get(size)
	if !ok {
		rm = &ResidentModel{Size: size, Loader: loader}
		mc.cache.Add(size, rm)
	}
	mc.mu.Unlock()
	return rm.Get()
}

// Evict drops a model size from the cache, e.g. after an OOM so the next
// downgrade rung gets a clean load attempt.
func (mc *ModelCache) Evict(size ModelSize) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.cache.Remove(size)
}
