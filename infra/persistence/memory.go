package persistence

import (
	"context"
	"sync"

	"github.com/kilianp07/agvkernel/core/model"
)

// MemoryPersister keeps the model for the lifetime of the process.
type MemoryPersister struct {
	mu sync.Mutex
	m  *model.PlantModel
}

func NewMemoryPersister() *MemoryPersister { return &MemoryPersister{} }

func (p *MemoryPersister) SaveModel(_ context.Context, m model.PlantModel) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := m.Clone()
	p.m = &c
	return nil
}

func (p *MemoryPersister) LoadModel(context.Context) (model.PlantModel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		return model.PlantModel{}, errNoModel()
	}
	return p.m.Clone(), nil
}

func (p *MemoryPersister) HasModel(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.m != nil, nil
}
