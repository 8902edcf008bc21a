package main

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed mappings/*.toml
var builtinMappings embed.FS

// TypeMapping describes how one source type is rendered on the destination.
type TypeMapping struct {
	Name                string `toml:"name"`
	ToType              string `toml:"to_type"`
	TypeParameters      bool   `toml:"type_parameters"`
	NumericPrecision    *int64 `toml:"numeric_precision"`
	NumericScale        *int64 `toml:"numeric_scale"`
	MaxCharactersLength *int64 `toml:"max_characters_length"`
}

// Mappings is the type-mapping table keyed by source type name.
type Mappings map[string]TypeMapping

type mappingsFile struct {
	Mappings []TypeMapping `toml:"mappings"`
}

// Lookup returns the mapping for an exact source type name.
func (m Mappings) Lookup(typeName string) (TypeMapping, error) {
	tm, ok := m[typeName]
	if !ok {
		return TypeMapping{}, &MappingNotFoundError{TypeName: typeName}
	}
	return tm, nil
}

// loadMappings reads a mappings file from disk.
func loadMappings(path string) (Mappings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mappings: %w", err)
	}
	return parseMappings(string(data))
}

// builtinMappingsFor returns the embedded mapping table for a source/target pair.
func builtinMappingsFor(sourceType, targetType string) (Mappings, error) {
	name := fmt.Sprintf("mappings/%s_%s.toml", sourceType, targetType)
	data, err := builtinMappings.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("no built-in type mappings for %s → %s; set settings.mappings", sourceType, targetType)
	}
	return parseMappings(string(data))
}

func parseMappings(data string) (Mappings, error) {
	var f mappingsFile
	md, err := toml.Decode(data, &f)
	if err != nil {
		return nil, fmt.Errorf("parse mappings: %w", err)
	}
	if unknown := md.Undecoded(); len(unknown) > 0 {
		keys := make([]string, len(unknown))
		for i, k := range unknown {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown mapping keys: %s", strings.Join(keys, ", "))
	}
	if len(f.Mappings) == 0 {
		return nil, fmt.Errorf("mappings table is empty")
	}

	m := make(Mappings, len(f.Mappings))
	for i, tm := range f.Mappings {
		tm.Name = strings.TrimSpace(tm.Name)
		tm.ToType = strings.TrimSpace(tm.ToType)
		if tm.Name == "" {
			return nil, fmt.Errorf("mappings[%d]: name is required", i)
		}
		if tm.ToType == "" {
			return nil, fmt.Errorf("mappings[%d] (%s): to_type is required", i, tm.Name)
		}
		if _, dup := m[tm.Name]; dup {
			return nil, fmt.Errorf("mappings[%d]: duplicate mapping for %q", i, tm.Name)
		}
		m[tm.Name] = tm
	}
	return m, nil
}
