package model

import "slices"

// Indicator is the sustainability metric that resources provide data for.
type Indicator struct {
	ID        string
	Name      string
	Resources []string // Resource IDs, no duplicates.
}

// HasResource reports if the resource is attached to the indicator.
func (i Indicator) HasResource(id string) bool {
	return slices.Contains(i.Resources, id)
}

// Resource is the persisted result of a completed wrapper.
type Resource struct {
	ID        string
	WrapperID string
}
