package service

import "sync"

// EntityModule describes the business module that owns an entity type.
// ActionURL, when set, is a format string with one %s verb for the entity id;
// the notification publisher uses it to build deep links.
type EntityModule struct {
	Module    string
	ActionURL string
}

// EntityRegistry maps entity_type tags to their owning modules. The host
// populates it at startup; the engine only accepts submissions for
// registered types, which keeps the polymorphic (entity_type, entity_id)
// binding closed over known modules.
type EntityRegistry struct {
	mu      sync.RWMutex
	modules map[string]EntityModule
}

// NewEntityRegistry creates an empty registry.
func NewEntityRegistry() *EntityRegistry {
	return &EntityRegistry{modules: make(map[string]EntityModule)}
}

// Register binds an entity type to its module. Later registrations replace
// earlier ones.
func (r *EntityRegistry) Register(entityType string, module EntityModule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[entityType] = module
}

// Resolve returns the module for an entity type.
func (r *EntityRegistry) Resolve(entityType string) (EntityModule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[entityType]
	return m, ok
}

// Types returns all registered entity types.
func (r *EntityRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.modules))
	for t := range r.modules {
		types = append(types, t)
	}
	return types
}
