// Package datatype maps datafield datatypes to the handlers that build
// their form elements and validate their values.
//
// The registry is closed: handlers are registered at startup and looked up
// by tag. Datafields whose datatype has no handler still get an element,
// a disabled text input carrying an error.
package datatype

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/settings"
	"github.com/roach88/basket/internal/store"
	"github.com/roach88/basket/internal/value"
	"github.com/roach88/basket/internal/vars"
)

// Element is a rendered form element description.
type Element struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Label       string   `json:"label,omitempty"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required"`
	Disabled    bool     `json:"disabled,omitempty"`
	Multi       bool     `json:"multi,omitempty"`
	AllowCustom bool     `json:"allow_custom,omitempty"`
	Options     []string `json:"options,omitempty"`
	Errors      []string `json:"errors,omitempty"`

	// Inherited is the value the target object inherits, shown as a
	// placeholder.
	Inherited *vars.Inherited `json:"inherited,omitempty"`
}

// Handler builds elements and validates values for one datatype.
type Handler struct {
	Name string

	// Element builds the element named name from the field settings.
	Element func(ctx context.Context, r store.Reader, name string, s *settings.Map) (*Element, error)

	// Validate checks a value entered for the field.
	Validate func(v value.Value, s *settings.Map) error
}

// Registry maps datatype tags to handlers.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns a registry holding the built-in handlers.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	for tag, h := range builtins() {
		r.handlers[tag] = h
	}
	return r
}

// Register adds a handler for tag. Registering a tag twice is an error.
func (r *Registry) Register(tag string, h Handler) error {
	tag = model.DatatypeTag(tag)
	if _, ok := r.handlers[tag]; ok {
		return fmt.Errorf("datatype %q already registered", tag)
	}
	if h.Element == nil || h.Validate == nil {
		return fmt.Errorf("datatype %q: handler is incomplete", tag)
	}
	r.handlers[tag] = h
	return nil
}

// Lookup returns the handler for datatype, given either as a tag or as a
// class name.
func (r *Registry) Lookup(datatype string) (Handler, bool) {
	h, ok := r.handlers[model.DatatypeTag(datatype)]
	return h, ok
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		tags = append(tags, t)
	}
	slices.Sort(tags)
	return tags
}

// Fallback returns the element used when datatype has no handler.
func Fallback(name, datatype string) *Element {
	return &Element{
		Name:     name,
		Type:     "text",
		Disabled: true,
		Errors:   []string{fmt.Sprintf("Form element could not be created, %s is missing", datatype)},
	}
}

// ElementName is the form element name of a datafield's variable.
func ElementName(field *model.Entity) string {
	return "var_" + field.NaturalKey()
}

// Validate checks v against field's datatype. Unknown datatypes reject
// every value.
func (r *Registry) Validate(field *model.Entity, v value.Value) error {
	datatype := field.GetString("datatype")
	h, ok := r.Lookup(datatype)
	if !ok {
		return fmt.Errorf("%s: datatype %s is missing", field.Label(), datatype)
	}
	s := field.Settings
	if s == nil {
		s = settings.New()
	}
	if err := h.Validate(v, s); err != nil {
		return fmt.Errorf("%s: %w", field.Label(), err)
	}
	return nil
}

// FieldElement builds the form element for field as shown on target.
//
// The field's caption and description label the element. It is required
// when the field settings say is_required = y, unless the field belongs to
// a command or target is a template. When target inherits a value for the
// variable it is attached; failures resolving it are ignored and the
// element shows no inherited value.
func (r *Registry) FieldElement(ctx context.Context, s store.Store, field *model.Entity, target *store.Object) (*Element, error) {
	name := ElementName(field)
	datatype := field.GetString("datatype")
	h, ok := r.Lookup(datatype)
	if !ok {
		return Fallback(name, datatype), nil
	}

	fs := field.Settings
	if fs == nil {
		fs = settings.New()
	}
	el, err := h.Element(ctx, s, name, fs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field.Label(), err)
	}

	if fs.GetOr("icinga_type", "") != "command" && fs.GetOr("is_required", "") == "y" {
		el.Required = true
	}
	if caption := strings.TrimSpace(field.GetString("caption")); caption != "" {
		el.Label = caption
	}
	if desc := strings.TrimSpace(field.GetString("description")); desc != "" {
		el.Description = desc
	}

	if target == nil {
		return el, nil
	}
	if target.IsTemplate() {
		el.Required = false
	}
	inh, err := vars.ResolveInherited(ctx, s, *target, field.NaturalKey())
	if err == nil {
		el.Inherited = &inh
	}
	return el, nil
}
