package provider

import (
	"errors"
	"strings"
)

var ErrProviderNotSupported = errors.New("provider is not supported")

type Registry struct {
	providers   map[string]Provider
	defaultCode string
}

// NewRegistry keeps the first provider as the default unless defaultCode names a registered one.
func NewRegistry(defaultCode string, providers ...Provider) *Registry {
	items := make(map[string]Provider, len(providers))
	for _, p := range providers {
		items[p.Code()] = p
	}

	defaultCode = strings.ToLower(strings.TrimSpace(defaultCode))
	if _, ok := items[defaultCode]; !ok {
		defaultCode = ""
		if len(providers) > 0 {
			defaultCode = providers[0].Code()
		}
	}

	return &Registry{providers: items, defaultCode: defaultCode}
}

func (r *Registry) Get(code string) (Provider, error) {
	provider, ok := r.providers[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return nil, ErrProviderNotSupported
	}
	return provider, nil
}

// Resolve falls back to the default provider for an empty code.
func (r *Registry) Resolve(code string) (Provider, error) {
	if strings.TrimSpace(code) == "" {
		code = r.defaultCode
	}
	return r.Get(code)
}

func (r *Registry) DefaultCode() string {
	return r.defaultCode
}
