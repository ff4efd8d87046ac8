package lineinfileplugin

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/datashades/converge/internal/resource"
)

// editConfig is a LineSpec with its patterns compiled.
type editConfig struct {
	Path     string
	Edit     resource.LineEdit
	Line     string
	Token    []string
	After    string
	Backup   bool
	Encoding string

	match       *regexp.Regexp
	insertAfter *regexp.Regexp
	target      *regexp.Regexp
}

func newEditConfig(spec *resource.LineSpec) (*editConfig, error) {
	cfg := &editConfig{
		Path:     strings.TrimSpace(spec.Path),
		Edit:     spec.Edit,
		Line:     spec.Line,
		Token:    strings.Fields(spec.Token),
		After:    strings.TrimSpace(spec.After),
		Backup:   spec.Backup,
		Encoding: strings.TrimSpace(strings.ToLower(spec.Encoding)),
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	if cfg.Encoding != "" && !isSupportedEncoding(cfg.Encoding) {
		return nil, fmt.Errorf("unsupported encoding: %s", cfg.Encoding)
	}

	var err error
	switch spec.Edit {
	case resource.EditEnsureLine:
		if cfg.Line == "" {
			return nil, fmt.Errorf("line is required")
		}
		pattern := spec.Match
		if pattern == "" {
			pattern = "^" + regexp.QuoteMeta(cfg.Line) + "$"
		}
		if cfg.match, err = regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("invalid match pattern: %w", err)
		}
		if spec.InsertAfter != "" {
			if cfg.insertAfter, err = regexp.Compile(spec.InsertAfter); err != nil {
				return nil, fmt.Errorf("invalid insert_after pattern: %w", err)
			}
		}
	case resource.EditAppendToken, resource.EditReorder:
		if len(cfg.Token) == 0 {
			return nil, fmt.Errorf("token is required")
		}
		if cfg.target, err = regexp.Compile(spec.Target); err != nil {
			return nil, fmt.Errorf("invalid target pattern: %w", err)
		}
		if spec.Edit == resource.EditReorder {
			if len(cfg.Token) != 1 || cfg.After == "" || strings.ContainsAny(cfg.After, " \t") {
				return nil, fmt.Errorf("reorder needs single-word token and after")
			}
		}
	default:
		return nil, fmt.Errorf("unknown edit %q", spec.Edit)
	}
	return cfg, nil
}

func isSupportedEncoding(name string) bool {
	_, ok := encodings[strings.ToLower(name)]
	return ok
}
