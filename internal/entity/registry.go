// Package entity реализует реестр сущностей: непрозрачный ID ->
// отображение "вид компонента -> значение". Маркерные компоненты —
// значения нулевого размера в этом отображении.
package entity

import (
	"sync"
)

// ID непрозрачный идентификатор сущности
type ID uint64

// Kind тег вида компонента
type Kind string

// Registry управляет всеми сущностями процесса.
// Мутируется только владеющим циклом (тик сервера / кадр клиента);
// мьютекс защищает чтение из других горутин (метрики, тесты).
type Registry struct {
	mu       sync.RWMutex
	entities map[ID]map[Kind]interface{}
	nextID   uint64
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[ID]map[Kind]interface{}),
		nextID:   0,
	}
}

// Spawn создаёт новую сущность и возвращает её ID
func (r *Registry) Spawn() ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := ID(r.nextID)
	r.entities[id] = make(map[Kind]interface{})
	return id
}

// Despawn удаляет сущность со всеми компонентами.
// С этого момента она не существует: ни симуляции, ни репликации.
func (r *Registry) Despawn(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entities[id]; !exists {
		return false
	}
	delete(r.entities, id)
	return true
}

// Exists проверяет существование сущности
func (r *Registry) Exists(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.entities[id]
	return exists
}

// Set устанавливает компонент сущности (перезаписывает существующий)
func (r *Registry) Set(id ID, kind Kind, value interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	components, exists := r.entities[id]
	if !exists {
		return false
	}
	components[kind] = value
	return true
}

// Get возвращает компонент сущности
func (r *Registry) Get(id ID, kind Kind) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	components, exists := r.entities[id]
	if !exists {
		return nil, false
	}
	value, ok := components[kind]
	return value, ok
}

// Has проверяет наличие компонента у сущности
func (r *Registry) Has(id ID, kind Kind) bool {
	_, ok := r.Get(id, kind)
	return ok
}

// Remove удаляет компонент сущности
func (r *Registry) Remove(id ID, kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if components, exists := r.entities[id]; exists {
		delete(components, kind)
	}
}

// Each вызывает fn для каждой сущности с компонентом kind.
// Итерация идёт по снимку списка ID: fn может мутировать реестр.
func (r *Registry) Each(kind Kind, fn func(id ID, value interface{})) {
	r.mu.RLock()
	ids := make([]ID, 0, len(r.entities))
	for id, components := range r.entities {
		if _, ok := components[kind]; ok {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range ids {
		if value, ok := r.Get(id, kind); ok {
			fn(id, value)
		}
	}
}

// Count возвращает количество сущностей
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}
