// Package balance implements team assignment validation and auto-balancing.
// Everything here is pure: callers pass in membership counts and receive
// decisions, so policies can be swapped without touching session state.
package balance

import (
	"errors"
	"math/rand"
)

// ErrInvalidTeamChange is returned when a requested change violates the
// active policy.
var ErrInvalidTeamChange = errors.New("team change violates balance policy")

// Unassigned marks membership in no team.
const Unassigned = -1

// Policy validates a single player's requested team change. counts holds the
// current per-team membership, indexed by team ID; current and requested may
// be Unassigned.
type Policy interface {
	Validate(counts []int, current, requested int) error
}

// CapPolicy is the default policy: any change is accepted as long as the
// destination team stays within MaxPerTeam.
type CapPolicy struct {
	MaxPerTeam int
}

// Validate implements Policy.
func (p CapPolicy) Validate(counts []int, current, requested int) error {
	if requested == Unassigned {
		return nil
	}
	if requested < 0 || requested >= len(counts) {
		return ErrInvalidTeamChange
	}
	if requested == current {
		return nil
	}
	if counts[requested] >= p.MaxPerTeam {
		return ErrInvalidTeamChange
	}
	return nil
}

// StrictPolicy additionally refuses any change that would leave the
// destination team more than one player larger than the smallest team.
type StrictPolicy struct {
	MaxPerTeam int
}

// Validate implements Policy.
func (p StrictPolicy) Validate(counts []int, current, requested int) error {
	if err := (CapPolicy{MaxPerTeam: p.MaxPerTeam}).Validate(counts, current, requested); err != nil {
		return err
	}
	if requested == Unassigned || requested == current {
		return nil
	}

	after := make([]int, len(counts))
	copy(after, counts)
	if current >= 0 && current < len(after) {
		after[current]--
	}
	after[requested]++

	smallest := after[0]
	for _, n := range after[1:] {
		if n < smallest {
			smallest = n
		}
	}
	if after[requested] > smallest+1 {
		return ErrInvalidTeamChange
	}
	return nil
}

// Assignment maps team ID to member actor IDs.
type Assignment map[int][]string

// AutoBalance redistributes the given actors across teamCount teams:
// pseudo-randomly permute, then round-robin. Determinism is scoped to a
// single invocation via the caller-supplied seed. The resulting team sizes
// differ by at most one.
func AutoBalance(actors []string, teamCount int, seed int64) Assignment {
	rng := rand.New(rand.NewSource(seed))

	shuffled := make([]string, len(actors))
	copy(shuffled, actors)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	out := make(Assignment, teamCount)
	for i, actor := range shuffled {
		team := i % teamCount
		out[team] = append(out[team], actor)
	}
	return out
}

// OptimalTeam returns the team with the fewest members, lowest team ID on
// ties. Used to seed a joining player's default team.
func OptimalTeam(counts []int) int {
	best := 0
	for i, n := range counts {
		if n < counts[best] {
			best = i
		}
	}
	return best
}
