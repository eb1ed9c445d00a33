// Package framework provides the fluent method-registry builder used to
// assemble an executable artifact's interface.methods[], adapted from a
// ServiceMethodRegistry/MethodRegistryBuilder pattern.
package framework

import (
	"fmt"

	"github.com/emergentlabs/agentsim/internal/world"
)

// MethodBuilder builds one world.Method entry.
type MethodBuilder struct {
	m world.Method
}

// NewMethod starts building a method declaration named name.
func NewMethod(name string) *MethodBuilder {
	return &MethodBuilder{m: world.Method{Name: name}}
}

func (b *MethodBuilder) WithInputSchema(schema map[string]any) *MethodBuilder {
	b.m.InputSchema = schema
	return b
}

func (b *MethodBuilder) WithOutputSchema(schema map[string]any) *MethodBuilder {
	b.m.OutputSchema = schema
	return b
}

func (b *MethodBuilder) WithCost(cost int64) *MethodBuilder {
	b.m.Cost = cost
	return b
}

func (b *MethodBuilder) WithErrors(codes ...string) *MethodBuilder {
	b.m.Errors = append(b.m.Errors, codes...)
	return b
}

func (b *MethodBuilder) Build() world.Method { return b.m }

// RegistryBuilder assembles a full ordered method set for one artifact's
// interface, and supports looking a declaration back up by name.
type RegistryBuilder struct {
	methods map[string]world.Method
	order   []string
}

// NewRegistryBuilder starts an empty method registry.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{methods: make(map[string]world.Method)}
}

// WithMethod registers one method, built via NewMethod(...).Build().
func (r *RegistryBuilder) WithMethod(m world.Method) *RegistryBuilder {
	if _, exists := r.methods[m.Name]; !exists {
		r.order = append(r.order, m.Name)
	}
	r.methods[m.Name] = m
	return r
}

// Build returns the ordered method list ready to attach to an
// interface.methods[] field.
func (r *RegistryBuilder) Build() []world.Method {
	out := make([]world.Method, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.methods[name])
	}
	return out
}

// Lookup returns the declaration for a method name, or an error if absent.
func Lookup(methods []world.Method, name string) (world.Method, error) {
	for _, m := range methods {
		if m.Name == name {
			return m, nil
		}
	}
	return world.Method{}, fmt.Errorf("method %q is not declared", name)
}
