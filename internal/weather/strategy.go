package weather

import (
	"fmt"
	"sort"
	"strings"
)

// Strategy names a fixed provider preference order.
type Strategy string

const (
	// StrategyPriority orders providers by ProviderConfig.Priority.
	StrategyPriority      Strategy = "priority"
	StrategyCostOptimized Strategy = "cost_optimized"
	StrategyPerformance   Strategy = "performance"
	StrategyReliability   Strategy = "reliability"
)

// ParseStrategy maps a user-supplied name to a Strategy. Empty selects the default.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return "", nil
	case StrategyPriority, StrategyCostOptimized, StrategyPerformance, StrategyReliability:
		return st, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

// byPriority returns providers ordered by priority; ties keep registration order.
func byPriority(providers []Provider) []Provider {
	out := append([]Provider(nil), providers...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Config().Priority < out[j].Config().Priority
	})
	return out
}

// resolveOrder turns a list of names into a full permutation of providers:
// named providers first, in the given order, then the rest by priority.
// Unknown names are reported.
func resolveOrder(names []string, providers []Provider) ([]Provider, []string) {
	index := make(map[string]Provider, len(providers))
	for _, p := range providers {
		index[p.Config().Name] = p
	}

	var (
		out     []Provider
		unknown []string
		placed  = make(map[string]bool, len(providers))
	)
	for _, name := range names {
		p, ok := index[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if placed[name] {
			continue
		}
		placed[name] = true
		out = append(out, p)
	}
	for _, p := range byPriority(providers) {
		if !placed[p.Config().Name] {
			out = append(out, p)
		}
	}
	return out, unknown
}
