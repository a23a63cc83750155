package style

import "github.com/MeKo-Tech/trafficmap/internal/types"

// Assignment is a per-feature style override. Prior is the style that was
// rendered before the override was applied; nil means the category default.
type Assignment struct {
	Current Style
	Prior   *Style
}

// Assignments is read access to the per-feature override table.
type Assignments interface {
	Assignment(key types.FeatureKey) (Assignment, bool)
}

// Select returns the style a feature renders with: its override if one is
// recorded, otherwise the category default. It never writes.
func Select(key types.FeatureKey, assignments Assignments, catalog *Catalog) Style {
	if assignments != nil {
		if a, ok := assignments.Assignment(key); ok {
			return a.Current
		}
	}
	return catalog.ForCategory(key.Category)
}
