package loader

import (
	"fmt"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/basket/internal/value"
)

// decodeYAML parses a YAML document. Non-string mapping keys and explicit
// timestamps are rendered as text so that date-keyed ranges survive.
func decodeYAML(data []byte) (value.Value, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	norm, err := normalizeYAML(raw)
	if err != nil {
		return nil, err
	}
	return value.FromAny(norm)
}

func normalizeYAML(v any) (any, error) {
	switch val := v.(type) {
	case time.Time:
		return yamlTime(val), nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			n, err := normalizeYAML(elem)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			n, err := normalizeYAML(elem)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			key, err := yamlKey(k)
			if err != nil {
				return nil, err
			}
			n, err := normalizeYAML(elem)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	}
	return v, nil
}

func yamlKey(k any) (string, error) {
	switch key := k.(type) {
	case string:
		return key, nil
	case time.Time:
		return yamlTime(key), nil
	case int, int64, uint64, bool:
		return fmt.Sprint(key), nil
	}
	return "", fmt.Errorf("unsupported mapping key %v (%T)", k, k)
}

func yamlTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339)
}

// decodeCUE evaluates a single CUE file. Definitions and hidden fields can
// be used to share structure; only concrete regular fields reach the
// basket.
func decodeCUE(data []byte, source string) (value.Value, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(source))
	if err := v.Err(); err != nil {
		return nil, cueError(ErrCodeBuild, source, "building CUE value", err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(ErrCodeBuild, source, "basket is not concrete", err)
	}
	js, err := v.MarshalJSON()
	if err != nil {
		return nil, cueError(ErrCodeBuild, source, "exporting CUE value", err)
	}
	return value.Decode(js)
}

func cueError(code, source, msg string, err error) *LoadError {
	le := &LoadError{Code: code, Source: source, Message: msg, Err: err}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		le.Pos = errs[0].Position()
	}
	return le
}
