package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	convergeerrors "github.com/datashades/converge/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParseAttributes loads node attributes from disk, applies defaults and
// validates the result.
func ParseAttributes(path string) (*Attributes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, convergeerrors.NewParseError(path, 0, err)
	}
	return DecodeAttributes(path, data)
}

// DecodeAttributes is ParseAttributes for an in-memory document. Unknown
// keys are rejected so typos do not silently fall back to defaults.
func DecodeAttributes(source string, data []byte) (*Attributes, error) {
	var attrs Attributes
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&attrs); err != nil && !errors.Is(err, io.EOF) {
		return nil, convergeerrors.NewParseError(source, extractLine(err), err)
	}

	attrs.applyDefaults()
	if err := ValidateAttributes(&attrs); err != nil {
		return nil, err
	}
	return &attrs, nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	if _, scanErr := fmt.Sscanf(matches[1], "%d", &line); scanErr != nil {
		return 0
	}
	return line
}
