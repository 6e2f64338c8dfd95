package node

import (
	"fmt"

	"github.com/neurosimlabs/neurodamus/blueconfig"
	"github.com/neurosimlabs/neurodamus/connection"
)

// connectionRules converts the Connection blocks of a parsed config into
// the rules the connection managers apply.
func connectionRules(f *blueconfig.File) ([]connection.Rule, error) {
	var rules []connection.Rule
	for _, b := range f.Blocks(blueconfig.KindConnection) {
		rule, err := ruleFromBlock(b)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func ruleFromBlock(b *blueconfig.Block) (connection.Rule, error) {
	rule := connection.Rule{
		Name:             b.Name,
		Source:           b.GetString("Source", ""),
		Destination:      b.GetString("Destination", ""),
		SynapseConfigure: b.GetString("SynapseConfigure", ""),
		ModOverride:      b.GetString("ModOverride", ""),
		CreateMode:       b.GetString("CreateMode", ""),
	}
	if rule.Source == "" || rule.Destination == "" {
		return rule, fmt.Errorf("node: connection %s: Source and Destination are required", b.Name)
	}

	var err error
	optFloat := func(key string, dst **float64) {
		if err != nil {
			return
		}
		if _, ok := b.Get(key); !ok {
			return
		}
		var v float64
		if v, err = b.GetFloat(key, 0); err == nil {
			*dst = &v
		}
	}
	optFloat("Weight", &rule.Weight)
	optFloat("SpontMinis", &rule.SpontMinis)
	optFloat("SynDelayOverride", &rule.SynDelayOverride)
	optFloat("Delay", &rule.Delay)
	if err != nil {
		return rule, fmt.Errorf("node: connection %s: %w", b.Name, err)
	}

	if _, ok := b.Get("SynapseID"); ok {
		id, err := b.GetInt("SynapseID", 0)
		if err != nil {
			return rule, fmt.Errorf("node: connection %s: %w", b.Name, err)
		}
		rule.SynapseID = &id
	}
	return rule, nil
}
