// Package loader reads basket files into import documents.
//
// A basket is a JSON, YAML or CUE document whose top-level sections name
// an importable kind ("DataList", "Datafield", "TimePeriod", "ServiceSet").
// A section is either a list of payloads or an object of payloads keyed by
// natural key. Sections for kinds basket does not import are skipped.
//
// Files are decoded concurrently. The returned documents keep the order of
// the input paths, then section order (sorted by name), then payload order
// within the section.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/basket/internal/importer"
	"github.com/roach88/basket/internal/logging"
	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/value"
)

var log = logging.Component("loader")

// Format is the encoding of a basket file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatOf returns the format implied by the extension of path.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	}
	return "", &LoadError{Code: ErrCodeUnsupported, Source: path, Message: "unsupported file extension"}
}

// Options tune Load.
type Options struct {
	// Concurrency bounds the number of files decoded at once.
	// Zero means GOMAXPROCS.
	Concurrency int
}

// Load expands paths (directories are walked for basket files) and decodes
// every file. The first failing file cancels the rest.
func Load(ctx context.Context, paths []string, opts Options) ([]importer.Document, error) {
	files, err := Expand(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: "no basket files given"}
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	perFile := make([][]importer.Document, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			docs, err := LoadFile(path)
			if err != nil {
				return err
			}
			perFile[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []importer.Document
	for _, docs := range perFile {
		out = append(out, docs...)
	}
	log.Info("basket loaded", "files", len(files), "documents", len(out))
	return out, nil
}

// Expand resolves paths to basket files. Files are kept as given; each
// directory contributes its basket files in lexical order. Duplicates are
// dropped.
func Expand(paths []string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Source: p, Message: "cannot access basket", Err: err}
		}
		if !info.IsDir() {
			add(filepath.Clean(p))
			continue
		}

		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if _, ferr := FormatOf(path); ferr == nil {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScan, Source: p, Message: "scanning directory", Err: err}
		}
		slices.Sort(found)
		for _, f := range found {
			add(f)
		}
	}
	return out, nil
}

// LoadFile reads and decodes one basket file.
func LoadFile(path string) ([]importer.Document, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Source: path, Message: "reading basket", Err: err}
	}
	return Decode(data, format, path)
}

// Decode parses data in format and splits it into documents. source is
// recorded on every document and in errors.
func Decode(data []byte, format Format, source string) ([]importer.Document, error) {
	var (
		root value.Value
		err  error
	)
	switch format {
	case FormatJSON:
		root, err = value.Decode(data)
	case FormatYAML:
		root, err = decodeYAML(data)
	case FormatCUE:
		root, err = decodeCUE(data, source)
	default:
		return nil, &LoadError{Code: ErrCodeUnsupported, Source: source, Message: fmt.Sprintf("unsupported format %q", format)}
	}
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			return nil, err
		}
		return nil, &LoadError{Code: ErrCodeParse, Source: source, Message: "decoding basket", Err: err}
	}

	m, ok := root.(value.Map)
	if !ok {
		return nil, &LoadError{Code: ErrCodeShape, Source: source, Message: "basket must be an object of sections"}
	}
	return Documents(m, source)
}

// Documents splits a decoded basket into documents.
func Documents(basket value.Map, source string) ([]importer.Document, error) {
	var out []importer.Document
	for _, section := range basket.SortedKeys() {
		kind, err := model.ParseKind(section)
		if err != nil {
			log.Warn("skipping section", "source", source, "section", section)
			continue
		}
		docs, err := sectionDocuments(kind, basket[section], source)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeShape, Source: source, Message: fmt.Sprintf("section %s", section), Err: err}
		}
		out = append(out, docs...)
	}
	return out, nil
}

func sectionDocuments(kind model.Kind, section value.Value, source string) ([]importer.Document, error) {
	key := model.MustSchema(kind).Key

	switch s := section.(type) {
	case value.Null:
		return nil, nil
	case value.List:
		out := make([]importer.Document, 0, len(s))
		for i, item := range s {
			payload, ok := item.(value.Map)
			if !ok {
				return nil, fmt.Errorf("item %d is not an object", i)
			}
			out = append(out, importer.Document{Kind: kind, Payload: payload, Source: source})
		}
		return out, nil
	case value.Map:
		out := make([]importer.Document, 0, len(s))
		for _, name := range s.SortedKeys() {
			payload, ok := s[name].(value.Map)
			if !ok {
				return nil, fmt.Errorf("%q is not an object", name)
			}
			// Payloads keyed by name may omit the natural key.
			if _, has := payload[key]; !has {
				payload = payload.Clone()
				payload[key] = value.String(name)
			}
			out = append(out, importer.Document{Kind: kind, Payload: payload, Source: source})
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list or an object, got %T", section)
}
