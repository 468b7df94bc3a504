package task

import (
	"fmt"
	"sort"
	"sync"
)

// Registry - реестр handlers по имени task.
//
// Потокобезопасен.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register регистрирует handler.
// Если task с таким именем уже есть, она будет перезаписана.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// RegisterFunc регистрирует функцию как handler.
func (r *Registry) RegisterFunc(name string, fn HandlerFunc) {
	r.Register(name, fn)
}

// Lookup возвращает handler по имени.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Get возвращает handler или ErrUnknownTask.
func (r *Registry) Get(name string) (Handler, error) {
	h, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return h, nil
}

// Names возвращает отсортированный список имён task.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len возвращает количество зарегистрированных task.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
