package datatype

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/settings"
	"github.com/roach88/basket/internal/store"
	"github.com/roach88/basket/internal/value"
)

func builtins() map[string]Handler {
	return map[string]Handler{
		"string":     {Name: "String", Element: stringElement, Validate: validateScalar},
		"number":     {Name: "Number", Element: simple("number"), Validate: validateNumber},
		"boolean":    {Name: "Boolean", Element: booleanElement, Validate: validateBoolean},
		"datalist":   {Name: "Data List", Element: datalistElement, Validate: validateDatalist},
		"array":      {Name: "Array", Element: simple("extensibleSet"), Validate: validateArray},
		"dictionary": {Name: "Dictionary", Element: simple("dictionary"), Validate: validateDictionary},
	}
}

func simple(typ string) func(context.Context, store.Reader, string, *settings.Map) (*Element, error) {
	return func(_ context.Context, _ store.Reader, name string, _ *settings.Map) (*Element, error) {
		return &Element{Name: name, Type: typ}, nil
	}
}

func stringElement(_ context.Context, _ store.Reader, name string, s *settings.Map) (*Element, error) {
	el := &Element{Name: name, Type: "text"}
	if s.GetOr("visibility", "visible") == "hidden" {
		el.Type = "password"
	}
	return el, nil
}

func booleanElement(_ context.Context, _ store.Reader, name string, _ *settings.Map) (*Element, error) {
	return &Element{Name: name, Type: "boolean", Options: []string{"y", "n"}}, nil
}

func datalistElement(ctx context.Context, r store.Reader, name string, s *settings.Map) (*Element, error) {
	raw, ok := s.Get("datalist_id")
	if !ok {
		return nil, fmt.Errorf("datalist_id is not set")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("datalist_id %q is not an id", raw)
	}
	list, err := r.FindByID(ctx, model.KindDatalist, id)
	if err != nil {
		return nil, fmt.Errorf("datalist %d: %w", id, err)
	}

	el := &Element{
		Name:        name,
		Type:        "select",
		Multi:       s.GetOr("data_type", "string") == "array",
		AllowCustom: s.GetOr("behavior", "strict") != "strict",
	}
	if list.Entries != nil {
		el.Options = list.Entries.Names()
	}
	return el, nil
}

func validateScalar(v value.Value, _ *settings.Map) error {
	switch v.(type) {
	case value.List, value.Map:
		return fmt.Errorf("value must be a string")
	}
	return nil
}

func validateNumber(v value.Value, _ *settings.Map) error {
	switch val := v.(type) {
	case nil, value.Null, value.Int:
		return nil
	case value.String:
		if _, err := strconv.ParseFloat(strings.TrimSpace(string(val)), 64); err != nil {
			return fmt.Errorf("%q is not a number", string(val))
		}
		return nil
	}
	return fmt.Errorf("value must be a number")
}

func validateBoolean(v value.Value, _ *settings.Map) error {
	switch val := v.(type) {
	case nil, value.Null, value.Bool:
		return nil
	case value.String:
		switch strings.ToLower(string(val)) {
		case "y", "n", "true", "false":
			return nil
		}
		return fmt.Errorf("%q is not a boolean", string(val))
	}
	return fmt.Errorf("value must be a boolean")
}

func validateDatalist(v value.Value, s *settings.Map) error {
	if s.GetOr("data_type", "string") == "array" {
		return validateArray(v, s)
	}
	return validateScalar(v, s)
}

func validateArray(v value.Value, _ *settings.Map) error {
	switch val := v.(type) {
	case nil, value.Null:
		return nil
	case value.List:
		for i, elem := range val {
			switch elem.(type) {
			case value.List, value.Map:
				return fmt.Errorf("element %d must be a scalar", i)
			}
		}
		return nil
	}
	return fmt.Errorf("value must be a list")
}

func validateDictionary(v value.Value, _ *settings.Map) error {
	switch v.(type) {
	case nil, value.Null, value.Map:
		return nil
	}
	return fmt.Errorf("value must be a dictionary")
}
