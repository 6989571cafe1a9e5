// Package codec turns envelopes into bytes and back. Both ends of a channel
// must use the same codec.
package codec

import (
	"fmt"
	"sort"
	"strings"
)

// Codec defines a simple interface for marshaling typed messages.
type Codec interface {
	Name() string
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps codec names and content types to codecs.
type Registry struct{ byName map[string]Codec }

// NewRegistry constructs a registry preloaded with the JSON and CBOR codecs.
func NewRegistry() (*Registry, error) {
	r := &Registry{byName: make(map[string]Codec)}
	r.Register(JSON())
	c, err := CBOR()
	if err != nil {
		return nil, fmt.Errorf("cbor codec: %w", err)
	}
	r.Register(c)
	return r, nil
}

// Register adds a codec under both its name and its content type.
func (r *Registry) Register(c Codec) {
	r.byName[c.Name()] = c
	r.byName[c.ContentType()] = c
}

// Get returns a codec by name or content type, or nil.
func (r *Registry) Get(name string) Codec { return r.byName[strings.ToLower(name)] }

// Names lists the short names of the registered codecs.
func (r *Registry) Names() []string {
	var names []string
	for k, c := range r.byName {
		if k == c.Name() {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// ByName is a convenience for one-off lookups.
func ByName(name string) (Codec, error) {
	r, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	c := r.Get(name)
	if c == nil {
		return nil, fmt.Errorf("unknown codec %q (known: %s)", name, strings.Join(r.Names(), ", "))
	}
	return c, nil
}
