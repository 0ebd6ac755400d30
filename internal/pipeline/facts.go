package pipeline

import (
	"context"
	"strings"

	"github.com/machellerogden/thinksuit-sub000/internal/machine"
	"github.com/machellerogden/thinksuit-sub000/internal/tools"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// AggregateFacts flattens detection output and ambient context into the
// single fact list rule evaluation consumes. Signals are deduped by
// (dimension, signal) keeping the highest confidence; engine config
// becomes dotted-path Config facts; discovered tools and model
// capabilities contribute availability facts.
func AggregateFacts(ctx context.Context, in machine.Input, mc *machine.Context) (machine.Output, error) {
	facts := make([]models.Fact, 0, len(in.Signals)+32)

	index := make(map[string]int, len(in.Signals))
	for _, f := range in.Signals {
		key := f.Dimension + "\x00" + f.Signal
		if i, ok := index[key]; ok {
			if f.Conf() > facts[i].Conf() {
				facts[i] = f
			}
			continue
		}
		index[key] = len(facts)
		facts = append(facts, f)
	}

	// Engine config rides along as Config facts so rules can read
	// limits and feature switches without holding the config struct.
	// Underscore-prefixed paths are private and stay out.
	flat := mc.Config.Flatten()
	for _, path := range mc.Config.FlattenSorted() {
		if privatePath(path) {
			continue
		}
		facts = append(facts, models.NewConfig(path, flat[path]))
	}
	facts = append(facts, models.NewConfig("depth", in.Depth))

	if names := tools.Names(mc.Discovered); len(names) > 0 {
		facts = append(facts, models.NewToolAvailability(names))
	}

	if mc.Provider != nil {
		caps := mc.Provider.Capabilities(mc.Config.Model)
		if caps.Tools {
			facts = append(facts, models.NewCapability("tools"))
		}
		if caps.Vision {
			facts = append(facts, models.NewCapability("vision"))
		}
	}

	return machine.Output{Facts: facts}, nil
}

func privatePath(path string) bool {
	for _, seg := range strings.Split(path, ".") {
		if strings.HasPrefix(seg, "_") {
			return true
		}
	}
	return false
}
