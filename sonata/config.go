// Package sonata loads SONATA simulation and circuit configurations and
// translates them into the BlueConfig block model the rest of the toolkit
// works with. Documents are decoded with yaml.v3, which accepts both the
// JSON and YAML renditions.
package sonata

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultNetwork is the circuit config used when the simulation config does
// not name one.
const DefaultNetwork = "circuit_config.json"

// configDirVar seeds the manifest so relative paths resolve against the
// config file's directory.
const configDirVar = "$__CONFIG_DIR"

// UnknownVarError reports a path entry referencing an undeclared manifest
// variable.
type UnknownVarError struct {
	Entry string
	Var   string
}

func (e *UnknownVarError) Error() string {
	return fmt.Sprintf("sonata: cannot decode path entry %q: unknown var %s", e.Entry, e.Var)
}

// manifest holds resolved path variables.
type manifest map[string]string

// buildManifest resolves the manifest node in declaration order, so later
// variables may reference earlier ones.
func buildManifest(node *yaml.Node, configDir string) (manifest, error) {
	m := manifest{configDirVar: configDir}
	if node == nil || node.Kind == 0 {
		return m, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("sonata: manifest must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1].Value
		resolved, err := m.resolve(value, key)
		if err != nil {
			return nil, err
		}
		m[key] = resolved
	}
	return m, nil
}

// pathEntriesWithoutSuffix are entry names treated as paths even though they
// lack a _file/_dir suffix.
var pathEntriesWithoutSuffix = map[string]bool{
	"network":    true,
	"nodes_file": true,
	"edges_file": true,
}

func isPathEntry(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, "_file") || strings.HasSuffix(lower, "_dir") ||
		pathEntriesWithoutSuffix[lower]
}

// resolve expands one entry value: absolute paths pass through, $VAR
// prefixes are substituted, everything else is joined to the config dir.
// Non-path entries are returned unchanged.
func (m manifest) resolve(entry, name string) (string, error) {
	if entry == "" {
		return entry, nil
	}
	if !isPathEntry(name) && !strings.HasPrefix(name, "$") {
		return entry, nil
	}
	if filepath.IsAbs(entry) {
		return entry, nil
	}
	if !strings.HasPrefix(entry, "$") {
		return filepath.Clean(filepath.Join(m[configDirVar], entry)), nil
	}
	varName, remaining := entry, ""
	if i := strings.IndexByte(entry, '/'); i >= 0 {
		varName, remaining = entry[:i], entry[i:]
	}
	base, ok := m[varName]
	if !ok {
		return "", &UnknownVarError{Entry: entry, Var: varName}
	}
	return filepath.Clean(base + remaining), nil
}

// resolveAny applies resolve to string values, recursing into maps so nested
// sections get their path entries expanded too.
func (m manifest) resolveAny(value any, name string) (any, error) {
	switch v := value.(type) {
	case string:
		return m.resolve(v, name)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			resolved, err := m.resolveAny(item, k)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	}
	return value, nil
}

// Section is one resolved configuration section.
type Section map[string]any

// GetString returns a section value rendered as a string, or def.
func (s Section) GetString(key, def string) string {
	v, ok := s[key]
	if !ok || v == nil {
		return def
	}
	return formatValue(v)
}

// SimConfig is a loaded SONATA simulation configuration with its manifest
// variables resolved.
type SimConfig struct {
	Dir string

	Network         string
	TargetSimulator string
	NodeSetsFile    string
	NodeSet         string

	Run                 Section
	Conditions          Section
	Output              Section
	Inputs              map[string]Section
	Reports             map[string]Section
	ConnectionOverrides map[string]Section

	Circuit *CircuitConfig
}

type rawSimConfig struct {
	Manifest yaml.Node `yaml:"manifest"`

	Network         string `yaml:"network"`
	TargetSimulator string `yaml:"target_simulator"`
	NodeSetsFile    string `yaml:"node_sets_file"`
	NodeSet         string `yaml:"node_set"`

	Run                 map[string]any            `yaml:"run"`
	Conditions          map[string]any            `yaml:"conditions"`
	Output              map[string]any            `yaml:"output"`
	Inputs              map[string]map[string]any `yaml:"inputs"`
	Reports             map[string]map[string]any `yaml:"reports"`
	ConnectionOverrides map[string]map[string]any `yaml:"connection_overrides"`
}

// LoadSimConfig reads a simulation config and its circuit network config.
func LoadSimConfig(path string) (*SimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sonata: open simulation config: %w", err)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	return ParseSimConfig(data, dir)
}

// ParseSimConfig decodes an in-memory simulation config, resolving relative
// paths against baseDir, and loads the circuit network config it names. For
// configs fetched from a remote artifact the network and node_sets_file
// entries must point at paths reachable on the local filesystem.
func ParseSimConfig(data []byte, baseDir string) (*SimConfig, error) {
	cfg, err := parseSimConfig(data, baseDir)
	if err != nil {
		return nil, err
	}
	cfg.Circuit, err = LoadCircuitConfig(cfg.Network)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseSimConfig(data []byte, dir string) (*SimConfig, error) {
	var raw rawSimConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("sonata: decode simulation config: %w", err)
	}
	m, err := buildManifest(&raw.Manifest, dir)
	if err != nil {
		return nil, err
	}

	cfg := &SimConfig{Dir: dir, TargetSimulator: raw.TargetSimulator, NodeSet: raw.NodeSet}

	network := raw.Network
	if network == "" {
		network = DefaultNetwork
	}
	if cfg.Network, err = m.resolve(network, "network"); err != nil {
		return nil, err
	}
	if raw.NodeSetsFile != "" {
		if cfg.NodeSetsFile, err = m.resolve(raw.NodeSetsFile, "node_sets_file"); err != nil {
			return nil, err
		}
	}

	resolveSection := func(src map[string]any) (Section, error) {
		out, err := m.resolveAny(mapOrEmpty(src), "")
		if err != nil {
			return nil, err
		}
		return Section(out.(map[string]any)), nil
	}
	if cfg.Run, err = resolveSection(raw.Run); err != nil {
		return nil, err
	}
	if cfg.Conditions, err = resolveSection(raw.Conditions); err != nil {
		return nil, err
	}
	if cfg.Output, err = resolveSection(raw.Output); err != nil {
		return nil, err
	}
	if cfg.Inputs, err = resolveSections(m, raw.Inputs); err != nil {
		return nil, err
	}
	if cfg.Reports, err = resolveSections(m, raw.Reports); err != nil {
		return nil, err
	}
	if cfg.ConnectionOverrides, err = resolveSections(m, raw.ConnectionOverrides); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mapOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func resolveSections(m manifest, src map[string]map[string]any) (map[string]Section, error) {
	out := make(map[string]Section, len(src))
	for name, section := range src {
		resolved, err := m.resolveAny(mapOrEmpty(section), "")
		if err != nil {
			return nil, err
		}
		out[name] = Section(resolved.(map[string]any))
	}
	return out, nil
}
