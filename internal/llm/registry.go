package llm

import (
	"fmt"
	"sync"
)

// Factory constructs a Provider from its declared configuration. Registered
// once per provider kind (glm, qwen, deepseek, local) at process start.
type Factory func(cfg ProviderConfig) (Provider, error)

// ProviderConfig is the immutable-after-load configuration for one provider
// instance, matching spec.md's ProviderConfig data model.
type ProviderConfig struct {
	Name        string
	Kind        string
	Model       string
	APIKey      string
	BaseURL     string
	Timeout     int // seconds
	MaxRetries  int
	Temperature float32
	MaxTokens   int
	Stream      bool
	MaxWorkers  int
	Role        string // "strongest" | "fastest" | "balanced", for the complexity strategy

	// RateLimit caps outbound requests per second against this provider,
	// independent of its own 429 responses. Zero disables the limiter.
	RateLimit float64
}

// Registry is a process-wide, lazily-initialized name->client map. Clients
// are constructed on first use and cached as singletons; MaxWorkers is
// resolved from the declared config without constructing anything.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	configs   map[string]ProviderConfig
	clients   map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		configs:   make(map[string]ProviderConfig),
		clients:   make(map[string]Provider),
	}
}

// RegisterKind associates a provider kind ("glm", "qwen", "deepseek",
// "local") with the factory that builds it.
func (r *Registry) RegisterKind(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Configure declares a named provider instance. Must be called before Get
// for that name.
func (r *Registry) Configure(cfg ProviderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Name] = cfg
}

// Get returns the singleton client for name, constructing it on first use.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[name]; ok {
		return c, nil
	}
	cfg, ok := r.configs[name]
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q", name)
	}
	factory, ok := r.factories[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("llm: no factory registered for provider kind %q", cfg.Kind)
	}
	client, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("llm: constructing provider %q: %w", name, err)
	}
	r.clients[name] = client
	return client, nil
}

// MaxWorkers publishes a provider's declared concurrency cap without
// constructing its client.
func (r *Registry) MaxWorkers(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[name]
	if !ok {
		return 0, fmt.Errorf("llm: unknown provider %q", name)
	}
	return cfg.MaxWorkers, nil
}

// Names returns every configured provider name, in registration order is
// not guaranteed (map iteration); callers needing document order should
// consult their own provider list from config instead.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.configs))
	for name := range r.configs {
		out = append(out, name)
	}
	return out
}

// RoleProvider returns the configured provider name tagged with role
// ("strongest", "fastest", "balanced") for the complexity assignment
// strategy. Returns ok=false if no provider carries that role.
func (r *Registry) RoleProvider(role string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, cfg := range r.configs {
		if cfg.Role == role {
			return name, true
		}
	}
	return "", false
}
