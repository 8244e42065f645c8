package models

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/gosimple/slug"
	"github.com/pelletier/go-toml/v2"
)

//go:embed territories.toml
var defaultTerritories []byte

// Territory holds the informational reward and stat-limit text for one
// territory. Nothing here is enforced.
type Territory struct {
	Name       string `toml:"name" json:"name"`
	GoldBars   int    `toml:"gold_bars" json:"gold_bars"`
	Medals     int    `toml:"medals" json:"medals"`
	Extra      string `toml:"extra" json:"extra,omitempty"`
	StatLimits string `toml:"stat_limits" json:"stat_limits"`
}

// Rewards is what a siege on a territory pays out at a given tier.
type Rewards struct {
	GoldBars int    `json:"gold_bars"`
	Medals   int    `json:"medals"`
	Extra    string `json:"extra,omitempty"`
}

// RewardsFor drops the extra item for the two lowest tiers.
func (t Territory) RewardsFor(tier string) Rewards {
	r := Rewards{GoldBars: t.GoldBars, Medals: t.Medals, Extra: t.Extra}
	if tier == "T1" || tier == "T2" {
		r.Extra = ""
	}
	return r
}

// TerritoryTable is keyed by the slug of the territory name.
type TerritoryTable map[string]Territory

type territoryFile struct {
	Territories map[string]Territory `toml:"territories"`
}

// DefaultTerritories parses the table compiled into the binary.
func DefaultTerritories() (TerritoryTable, error) {
	return parseTerritories(defaultTerritories)
}

// LoadTerritories returns the default table with entries from the TOML file
// at path layered on top. An empty path yields the defaults.
func LoadTerritories(path string) (TerritoryTable, error) {
	table, err := DefaultTerritories()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return table, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read territories %s: %w", path, err)
	}
	override, err := parseTerritories(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for k, v := range override {
		table[k] = v
	}
	return table, nil
}

func parseTerritories(data []byte) (TerritoryTable, error) {
	var f territoryFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse territories: %w", err)
	}
	table := make(TerritoryTable, len(f.Territories))
	for _, t := range f.Territories {
		table[slug.Make(t.Name)] = t
	}
	return table, nil
}

// Lookup finds a territory by display name, ignoring case and punctuation.
func (t TerritoryTable) Lookup(name string) (Territory, bool) {
	terr, ok := t[slug.Make(name)]
	return terr, ok
}
