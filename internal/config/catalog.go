package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/talgya/crossroads/internal/discovery"
	"github.com/talgya/crossroads/internal/world"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// Catalog is the YAML form of the discovery rules.
type Catalog struct {
	Discoveries []CatalogEntry `yaml:"discoveries"`
}

// CatalogEntry is one discovery rule as written in YAML.
type CatalogEntry struct {
	Name             string   `yaml:"name"`
	Description      string   `yaml:"description"`
	Kind             string   `yaml:"kind"`
	Biomes           []string `yaml:"biomes,omitempty"`
	Activity         string   `yaml:"activity,omitempty"`
	ActivityCount    int      `yaml:"activity_count,omitempty"`
	BaseProbability  float64  `yaml:"base_probability"`
	RepetitionBonus  float64  `yaml:"repetition_bonus"`
	BadLuckThreshold int      `yaml:"bad_luck_threshold"`
	Prerequisites    []string `yaml:"prerequisites,omitempty"`
	Unlocks          Unlocks  `yaml:"unlocks"`
}

// Unlocks lists what a discovery grants.
type Unlocks struct {
	Capabilities []string `yaml:"capabilities,omitempty"`
	Structures   []string `yaml:"structures,omitempty"`
	Resources    []string `yaml:"resources,omitempty"`
}

// ParseCatalog decodes catalog YAML into definitions, in file order.
func ParseCatalog(data []byte) ([]discovery.Definition, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	defs := make([]discovery.Definition, 0, len(cat.Discoveries))
	for i, e := range cat.Discoveries {
		def, err := e.Definition()
		if err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// LoadCatalog reads a catalog file, or the built-in catalog when path is empty.
func LoadCatalog(path string) ([]discovery.Definition, error) {
	if path == "" {
		return ParseCatalog(builtinCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// Definition converts the entry and validates it.
func (e CatalogEntry) Definition() (discovery.Definition, error) {
	kind, err := discovery.ParseKind(e.Kind)
	if err != nil {
		return discovery.Definition{}, fmt.Errorf("%s: %w", e.Name, err)
	}

	biomes := make([]world.Biome, 0, len(e.Biomes))
	for _, b := range e.Biomes {
		if !world.Biome(b).Known() {
			return discovery.Definition{}, fmt.Errorf("%w: %s: unknown biome %q", discovery.ErrInvalidDefinition, e.Name, b)
		}
		biomes = append(biomes, world.Biome(b))
	}
	if e.Activity != "" && !discovery.Activity(e.Activity).Known() {
		return discovery.Definition{}, fmt.Errorf("%w: %s: unknown activity %q", discovery.ErrInvalidDefinition, e.Name, e.Activity)
	}

	def := discovery.Definition{
		Name:                  e.Name,
		Description:           e.Description,
		Kind:                  kind,
		RequiredBiomes:        biomes,
		RequiredActivity:      discovery.Activity(e.Activity),
		RequiredActivityCount: e.ActivityCount,
		BaseProbability:       e.BaseProbability,
		RepetitionBonus:       e.RepetitionBonus,
		BadLuckThreshold:      e.BadLuckThreshold,
		Prerequisites:         e.Prerequisites,
		UnlockedCapabilities:  e.Unlocks.Capabilities,
		UnlockedStructures:    e.Unlocks.Structures,
		UnlockedResources:     e.Unlocks.Resources,
	}
	if err := def.Validate(); err != nil {
		return discovery.Definition{}, err
	}
	return def, nil
}

// RegisterAll registers defs with the engine in order.
func RegisterAll(e *discovery.Engine, defs []discovery.Definition) error {
	for _, d := range defs {
		if _, err := e.Register(d); err != nil {
			return err
		}
	}
	return nil
}
