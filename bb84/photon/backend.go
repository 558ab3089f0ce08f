package photon

import (
	"fmt"
	"slices"
)

// A Backend describes one execution target offered by a remote service.
type Backend struct {
	Name        string
	Simulator   bool
	Operational bool
	PendingJobs int
}

// PickBackend chooses where to run a batch. If name is non-empty the backend
// of that name is returned, whatever its state. Otherwise operational
// simulators are preferred over operational hardware, and within each group
// the backend with the fewest pending jobs wins, ties going to the one listed
// first.
func PickBackend(backends []Backend, name string) (Backend, error) {
	if name != "" {
		for _, b := range backends {
			if b.Name == name {
				return b, nil
			}
		}
		return Backend{}, fmt.Errorf("%w: backend %q not offered", ErrNoBackend, name)
	}
	for _, simulator := range []bool{true, false} {
		var eligible []Backend
		for _, b := range backends {
			if b.Operational && b.Simulator == simulator {
				eligible = append(eligible, b)
			}
		}
		if len(eligible) == 0 {
			continue
		}
		slices.SortStableFunc(eligible, func(a, b Backend) int {
			return a.PendingJobs - b.PendingJobs
		})
		return eligible[0], nil
	}
	return Backend{}, ErrNoBackend
}
