package llm

import "sync"

// baseProvider holds the model name shared by every provider.
type baseProvider struct {
	mu    sync.RWMutex
	model string
}

func (b *baseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

func (b *baseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}
