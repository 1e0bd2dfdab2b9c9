package scraper

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"eazyfind/internal/model"
	"eazyfind/internal/pkg/logger"
)

// Deps 构造适配器所需的依赖。
type Deps struct {
	Logger       *slog.Logger
	Fetcher      Fetcher
	WaitSelector string
	MaxErrors    int
	MaxPages     int
}

// NewWalker 按依赖中的预算创建分页状态机。
func (d Deps) NewWalker(store model.StoreKey) *Walker {
	return NewWalker(store.String(), d.MaxErrors, d.MaxPages)
}

// Log 返回带 store 字段的日志记录器。
func (d Deps) Log(store model.StoreKey) *slog.Logger {
	return logger.OrDiscard(d.Logger).With(slog.String("store", store.String()))
}

// Constructor 适配器构造函数。
type Constructor func(Deps) Adapter

// Registry 商店标识到适配器构造函数的映射。
type Registry struct {
	mu    sync.RWMutex
	ctors map[model.StoreKey]Constructor
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[model.StoreKey]Constructor)}
}

// Register 注册构造函数，重复注册会覆盖。
func (r *Registry) Register(store model.StoreKey, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[store] = ctor
}

// New 构造商店适配器，未注册时返回 ErrUnknownStore。
func (r *Registry) New(store model.StoreKey, deps Deps) (Adapter, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[store]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStore, store)
	}
	return ctor(deps), nil
}

// Stores 返回已注册的商店，按名称排序。
func (r *Registry) Stores() []model.StoreKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.StoreKey, 0, len(r.ctors))
	for k := range r.ctors {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolver 按商店返回适配器。
type Resolver interface {
	Adapter(store model.StoreKey) (Adapter, error)
}

// Set 已构造好的适配器集合。
type Set map[model.StoreKey]Adapter

// Adapter 实现 Resolver。
func (s Set) Adapter(store model.StoreKey) (Adapter, error) {
	a, ok := s[store]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStore, store)
	}
	return a, nil
}
