package ports

import "aadhaarlens/adapters/geo"

// BoundaryLoader provides read-only access to district boundary shapes.
type BoundaryLoader interface {
	LoadIndia() ([]geo.Boundary, error)
	LoadState(state string) ([]geo.Boundary, error)
	AvailableStates() []string
}
