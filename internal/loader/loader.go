// Package loader reads network definitions from BIF, YAML and JSON documents.
// Loaders only check syntax and shape; network.New does the semantic checks.
package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Harshitk-cp/marginal/internal/network"
)

type Format string

const (
	FormatBIF  Format = "bif"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var ErrUnknownFormat = errors.New("unknown definition format")

// ParseFormat accepts a format name, case-insensitively. "yml" is an alias of
// yaml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bif":
		return FormatBIF, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// DetectFormat infers the format from a file extension.
func DetectFormat(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, path)
	}
	return ParseFormat(ext)
}

func Parse(format Format, data []byte) (network.Definition, error) {
	switch format {
	case FormatBIF:
		return ParseBIF(data)
	case FormatYAML:
		return ParseYAML(data)
	case FormatJSON:
		return ParseJSON(data)
	default:
		return network.Definition{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// LoadFile reads and parses path, picking the format from its extension.
func LoadFile(path string) (network.Definition, Format, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return network.Definition{}, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return network.Definition{}, "", fmt.Errorf("failed to read network file: %w", err)
	}
	def, err := Parse(format, data)
	if err != nil {
		return network.Definition{}, "", fmt.Errorf("parse %s: %w", path, err)
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return def, format, nil
}

// ParseYAML decodes the YAML document shape. Unknown keys are rejected.
func ParseYAML(data []byte) (network.Definition, error) {
	var def network.Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return network.Definition{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return def, nil
}

func EncodeYAML(def network.Definition) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(def); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseJSON decodes the JSON document shape. Unknown keys are rejected.
func ParseJSON(data []byte) (network.Definition, error) {
	var def network.Definition
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&def); err != nil {
		return network.Definition{}, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return def, nil
}

func EncodeJSON(def network.Definition) ([]byte, error) {
	return json.MarshalIndent(def, "", "  ")
}

// Encode writes def in format.
func Encode(format Format, def network.Definition) ([]byte, error) {
	switch format {
	case FormatBIF:
		return EncodeBIF(def), nil
	case FormatYAML:
		return EncodeYAML(def)
	case FormatJSON:
		return EncodeJSON(def)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
