package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrProviderNotFound is returned when a requested provider doesn't exist.
var ErrProviderNotFound = errors.New("provider not found")

// Model describes one model a provider makes available.
type Model struct {
	Name       string
	ModifiedAt time.Time
}

// Provider is the interface every adapter (OpenAI, Anthropic, Google)
// implements. ChatStream is the sole streaming entry point; Stream emits
// events in the order described by StreamEvent's doc comment and closes
// after exactly one EvDone or EvError.
type Provider interface {
	Name() string
	ChatStream(ctx context.Context, req Request) (<-chan StreamEvent, error)
	ListModels(ctx context.Context) ([]Model, error)
	Close() error
}

// Factory constructs a Provider for a given model.
type Factory interface {
	Name() string
	Create(model string, opts Options) Provider
}

// Options holds provider generation settings.
type Options struct {
	Temperature float64
	APIKey      string
	Endpoint    string
}

// Registry holds available provider factories, keyed by configured name.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) RegisterFactory(name string, f Factory) {
	r.factories[name] = f
}

func (r *Registry) Create(name, model string, opts Options) (Provider, error) {
	f, ok := r.factories[name]
	if !ok {
		log.Error().Str("name", name).Str("model", model).Msg("Registry.Create: factory not found")
		return nil, ErrProviderNotFound
	}
	return f.Create(model, opts), nil
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// TaggedModel pairs a provider config name with a model.
type TaggedModel struct {
	ProviderName string
	Model        Model
}

// ListAllModels concurrently fetches models from every registered provider
// and returns the combined list. Errors from individual providers are
// logged and skipped so one unavailable provider does not block the rest.
func (r *Registry) ListAllModels(ctx context.Context, opts Options) []TaggedModel {
	type result struct {
		name   string
		models []Model
	}
	ch := make(chan result, len(r.factories))
	for name := range r.factories {
		name := name
		go func() {
			prov := r.factories[name].Create("", opts)
			models, err := prov.ListModels(ctx)
			prov.Close()
			if err != nil {
				log.Warn().Str("provider", name).Err(err).Msg("ListAllModels: provider error")
				ch <- result{name: name}
				return
			}
			ch <- result{name: name, models: models}
		}()
	}
	var all []TaggedModel
	for range r.factories {
		res := <-ch
		for _, m := range res.models {
			all = append(all, TaggedModel{ProviderName: res.name, Model: m})
		}
	}
	return all
}
