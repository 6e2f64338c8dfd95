package sonata

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// CircuitConfig is a loaded SONATA circuit (network) configuration.
type CircuitConfig struct {
	Dir          string
	NodeSetsFile string

	Nodes []NodeNetwork
	Edges []EdgeNetwork
}

// NodeNetwork is one nodes file with its populations.
type NodeNetwork struct {
	NodesFile   string                    `yaml:"nodes_file"`
	Populations map[string]NodePopulation `yaml:"populations"`
}

// NodePopulation carries the per-population properties used to locate cell
// models and morphologies.
type NodePopulation struct {
	Type                       string            `yaml:"type"`
	MorphologiesDir            string            `yaml:"morphologies_dir"`
	BiophysicalNeuronModelsDir string            `yaml:"biophysical_neuron_models_dir"`
	AlternateMorphologies      map[string]string `yaml:"alternate_morphologies"`
}

// EdgeNetwork is one edges file with its populations.
type EdgeNetwork struct {
	EdgesFile   string                    `yaml:"edges_file"`
	Populations map[string]EdgePopulation `yaml:"populations"`
}

// EdgePopulation describes one edge population. Source and Target may be
// declared explicitly; otherwise they are derived from the population name
// (src__dst[__suffix]).
type EdgePopulation struct {
	Type   string `yaml:"type"`
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

type rawCircuitConfig struct {
	Manifest     yaml.Node `yaml:"manifest"`
	NodeSetsFile string    `yaml:"node_sets_file"`
	Networks     struct {
		Nodes []NodeNetwork `yaml:"nodes"`
		Edges []EdgeNetwork `yaml:"edges"`
	} `yaml:"networks"`
}

// LoadCircuitConfig reads a circuit config, resolving manifest variables and
// relative paths against the config's directory.
func LoadCircuitConfig(path string) (*CircuitConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sonata: open circuit config: %w", err)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	return parseCircuitConfig(data, dir)
}

func parseCircuitConfig(data []byte, dir string) (*CircuitConfig, error) {
	var raw rawCircuitConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("sonata: decode circuit config: %w", err)
	}
	m, err := buildManifest(&raw.Manifest, dir)
	if err != nil {
		return nil, err
	}

	cfg := &CircuitConfig{Dir: dir, Nodes: raw.Networks.Nodes, Edges: raw.Networks.Edges}
	if raw.NodeSetsFile != "" {
		if cfg.NodeSetsFile, err = m.resolve(raw.NodeSetsFile, "node_sets_file"); err != nil {
			return nil, err
		}
	}
	for i := range cfg.Nodes {
		nn := &cfg.Nodes[i]
		if nn.NodesFile, err = m.resolve(nn.NodesFile, "nodes_file"); err != nil {
			return nil, err
		}
		for name, pop := range nn.Populations {
			if pop.MorphologiesDir, err = m.resolve(pop.MorphologiesDir, "morphologies_dir"); err != nil {
				return nil, err
			}
			if pop.BiophysicalNeuronModelsDir, err = m.resolve(pop.BiophysicalNeuronModelsDir, "biophysical_neuron_models_dir"); err != nil {
				return nil, err
			}
			for alt, p := range pop.AlternateMorphologies {
				if pop.AlternateMorphologies[alt], err = m.resolve(p, "morphologies_dir"); err != nil {
					return nil, err
				}
			}
			nn.Populations[name] = pop
		}
	}
	for i := range cfg.Edges {
		en := &cfg.Edges[i]
		if en.EdgesFile, err = m.resolve(en.EdgesFile, "edges_file"); err != nil {
			return nil, err
		}
		for name, pop := range en.Populations {
			if pop.Source == "" || pop.Target == "" {
				src, dst := splitEdgePopulationName(name)
				if pop.Source == "" {
					pop.Source = src
				}
				if pop.Target == "" {
					pop.Target = dst
				}
			}
			if pop.Type == "" {
				pop.Type = "chemical"
			}
			en.Populations[name] = pop
		}
	}
	return cfg, nil
}

// splitEdgePopulationName derives node populations from the conventional
// src__dst[__suffix] edge population naming.
func splitEdgePopulationName(name string) (src, dst string) {
	parts := strings.Split(name, "__")
	if len(parts) >= 2 {
		return parts[0], parts[1]
	}
	return name, name
}

// NodePopulationNames lists node population names, sorted within each nodes
// file to keep iteration deterministic.
func (c *CircuitConfig) NodePopulationNames() []string {
	var out []string
	for _, nn := range c.Nodes {
		names := make([]string, 0, len(nn.Populations))
		for name := range nn.Populations {
			names = append(names, name)
		}
		sort.Strings(names)
		out = append(out, names...)
	}
	return out
}

// DefaultPopulation is the first non-virtual node population.
func (c *CircuitConfig) DefaultPopulation() (string, error) {
	for _, nn := range c.Nodes {
		names := make([]string, 0, len(nn.Populations))
		for name := range nn.Populations {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if nn.Populations[name].Type != "virtual" {
				return name, nil
			}
		}
	}
	return "", fmt.Errorf("sonata: circuit config has no non-virtual node population")
}

// nodePopulation finds a node population with its nodes file.
func (c *CircuitConfig) nodePopulation(name string) (string, NodePopulation, bool) {
	for _, nn := range c.Nodes {
		if pop, ok := nn.Populations[name]; ok {
			return nn.NodesFile, pop, true
		}
	}
	return "", NodePopulation{}, false
}

// InnerConnectivity finds the chemical edge population wiring a node
// population to itself, returning its "edges_file:population" source.
func (c *CircuitConfig) InnerConnectivity(nodePop string) (string, bool) {
	for _, en := range c.Edges {
		for name, pop := range en.Populations {
			if pop.Source == nodePop && pop.Target == nodePop && pop.Type == "chemical" {
				return en.EdgesFile + ":" + name, true
			}
		}
	}
	return "", false
}
