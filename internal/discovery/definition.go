// Package discovery decides, over simulated time, when the settlement
// unlocks new capabilities, structures and resources.
//
// Three parts cooperate: a Tracker counts completed activities, a Ledger
// records which discoveries are complete and what they unlocked, and an
// Engine evaluates the registered rules once per check interval. Rules are
// evaluated in registration order; that order is also the tie-break order.
package discovery

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/talgya/crossroads/internal/world"
)

var (
	ErrInvalidDefinition   = errors.New("invalid discovery definition")
	ErrDuplicateDiscovery  = errors.New("duplicate discovery")
	ErrUnknownPrerequisite = errors.New("unknown prerequisite")
	ErrUnknownDiscovery    = errors.New("unknown discovery")
)

// ID identifies a registered discovery. Assigned densely from 1 in
// registration order; 0 means unregistered.
type ID uint32

// Kind selects how a discovery's per-cycle probability is computed.
type Kind uint8

const (
	KindBiome       Kind = iota // Requires biome tags near the settlement
	KindActivity                // Requires a lifetime activity count
	KindSpontaneous             // Base probability, no precondition
)

var kindNames = [...]string{"Biome", "Activity", "Spontaneous"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// ParseKind parses a kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if strings.EqualFold(n, s) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidDefinition, s)
}

// Activity names a kind of work settlers complete.
type Activity string

const (
	ActivityGatherStone Activity = "GatherStone"
	ActivityChopWood    Activity = "ChopWood"
	ActivityForage      Activity = "Forage"
	ActivityFish        Activity = "Fish"
	ActivityHunt        Activity = "Hunt"
	ActivityDigClay     Activity = "DigClay"
	ActivityCutReeds    Activity = "CutReeds"
	ActivityFarm        Activity = "Farm"
	ActivityMine        Activity = "Mine"
)

var knownActivities = map[Activity]bool{
	ActivityGatherStone: true,
	ActivityChopWood:    true,
	ActivityForage:      true,
	ActivityFish:        true,
	ActivityHunt:        true,
	ActivityDigClay:     true,
	ActivityCutReeds:    true,
	ActivityFarm:        true,
	ActivityMine:        true,
}

// Known reports whether a is one of the activities settlers perform.
func (a Activity) Known() bool {
	return knownActivities[a]
}

// Definition is one discovery rule. Definitions are handed to the engine
// once at startup and never change afterwards.
type Definition struct {
	ID          ID // Set by Engine.Register
	Name        string
	Description string
	Kind        Kind

	RequiredBiomes        []world.Biome
	RequiredActivity      Activity
	RequiredActivityCount int

	BaseProbability  float64
	RepetitionBonus  float64
	// BadLuckThreshold forces this rule after that many dry cycles when it
	// is the best candidate. Unlike a literal "counter >= threshold" test,
	// a value <= 0 disables forcing rather than forcing on the first dry cycle.
	BadLuckThreshold int

	Prerequisites []string

	UnlockedCapabilities []string
	UnlockedStructures   []string
	UnlockedResources    []string
}

// Validate checks the definition's own fields. Prerequisite names are
// checked at registration.
func (d Definition) Validate() error {
	switch {
	case strings.TrimSpace(d.Name) == "":
		return fmt.Errorf("%w: empty name", ErrInvalidDefinition)
	case int(d.Kind) >= len(kindNames):
		return fmt.Errorf("%w: %s: unknown kind %d", ErrInvalidDefinition, d.Name, d.Kind)
	case d.BaseProbability < 0 || d.BaseProbability > 1:
		return fmt.Errorf("%w: %s: base probability %.3f outside [0,1]", ErrInvalidDefinition, d.Name, d.BaseProbability)
	case d.RepetitionBonus < 0:
		return fmt.Errorf("%w: %s: negative repetition bonus", ErrInvalidDefinition, d.Name)
	case d.Kind == KindActivity && d.RequiredActivity == "":
		return fmt.Errorf("%w: %s: activity discovery without activity", ErrInvalidDefinition, d.Name)
	case d.Kind == KindActivity && d.RequiredActivityCount <= 0:
		return fmt.Errorf("%w: %s: activity count must be positive", ErrInvalidDefinition, d.Name)
	}
	return nil
}

// clone returns a copy that shares no slices with d.
func (d Definition) clone() Definition {
	d.RequiredBiomes = slices.Clone(d.RequiredBiomes)
	d.Prerequisites = slices.Clone(d.Prerequisites)
	d.UnlockedCapabilities = slices.Clone(d.UnlockedCapabilities)
	d.UnlockedStructures = slices.Clone(d.UnlockedStructures)
	d.UnlockedResources = slices.Clone(d.UnlockedResources)
	return d
}
