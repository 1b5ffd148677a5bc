package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Tag classifies catalog content for gating and display. It never takes part in arithmetic.
type Tag string

const (
	TagNeutral   Tag = "NEUTRAL"
	TagEthical   Tag = "ETHICAL"
	TagUnethical Tag = "UNETHICAL"
)

func (t Tag) Valid() bool {
	switch t {
	case TagNeutral, TagEthical, TagUnethical:
		return true
	}
	return false
}

type Catalogs struct {
	Upgrades UpgradeCatalog
	Offers   OfferCatalog
}

type UpgradeCatalog struct {
	// Defs keeps file order; economy sums iterate it so results are reproducible.
	Defs   []UpgradeDef
	ByID   map[string]UpgradeDef
	Digest string
}

type UpgradeDef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon,omitempty"`

	BaseCost   float64 `json:"base_cost"`
	BaseIncome float64 `json:"base_income"` // per second
	Reputation float64 `json:"reputation"`  // per unit per second
	Climate    float64 `json:"climate"`     // per unit per second

	RequiresAscension bool `json:"requires_ascension,omitempty"`
	Tag               Tag  `json:"tag"`
}

type OfferCatalog struct {
	Defs   []OfferDef
	ByID   map[string]OfferDef
	Digest string
}

type OfferDef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon,omitempty"`

	MoneyMultiplier  float64 `json:"money_multiplier"`
	ReputationChange float64 `json:"reputation_change"`
	ClimateChange    float64 `json:"climate_change"`

	Tag Tag `json:"tag"`
}

// Load reads upgrades.json and offers.json from configDir.
func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadUpgrades(filepath.Join(configDir, "upgrades.json"), &c.Upgrades); err != nil {
		return nil, err
	}
	if err := loadOffers(filepath.Join(configDir, "offers.json"), &c.Offers); err != nil {
		return nil, err
	}
	return &c, nil
}

// New builds catalogs from in-memory definitions. Digests are taken over the canonical JSON.
func New(upgrades []UpgradeDef, offers []OfferDef) (*Catalogs, error) {
	var c Catalogs
	ub, err := json.Marshal(upgrades)
	if err != nil {
		return nil, err
	}
	if err := indexUpgrades("upgrades", upgrades, &c.Upgrades); err != nil {
		return nil, err
	}
	c.Upgrades.Digest = sha256Hex(ub)

	ob, err := json.Marshal(offers)
	if err != nil {
		return nil, err
	}
	if err := indexOffers("offers", offers, &c.Offers); err != nil {
		return nil, err
	}
	c.Offers.Digest = sha256Hex(ob)
	return &c, nil
}

func (c *Catalogs) Upgrade(id string) (UpgradeDef, bool) {
	if c == nil {
		return UpgradeDef{}, false
	}
	d, ok := c.Upgrades.ByID[id]
	return d, ok
}

func (c *Catalogs) Offer(id string) (OfferDef, bool) {
	if c == nil {
		return OfferDef{}, false
	}
	d, ok := c.Offers.ByID[id]
	return d, ok
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadUpgrades(path string, out *UpgradeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var defs []UpgradeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("upgrades.json: %w", err)
	}
	if err := indexUpgrades("upgrades.json", defs, out); err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	return nil
}

func loadOffers(path string, out *OfferCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var defs []OfferDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("offers.json: %w", err)
	}
	if err := indexOffers("offers.json", defs, out); err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	return nil
}

func indexUpgrades(src string, defs []UpgradeDef, out *UpgradeCatalog) error {
	out.Defs = make([]UpgradeDef, 0, len(defs))
	out.ByID = make(map[string]UpgradeDef, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("%s: empty id", src)
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("%s: duplicate id %s", src, d.ID)
		}
		if d.BaseCost <= 0 {
			return fmt.Errorf("%s: %s: base_cost must be > 0", src, d.ID)
		}
		if d.BaseIncome < 0 {
			return fmt.Errorf("%s: %s: base_income must be >= 0", src, d.ID)
		}
		if d.Tag == "" {
			d.Tag = TagNeutral
		}
		if !d.Tag.Valid() {
			return fmt.Errorf("%s: %s: unknown tag %q", src, d.ID, d.Tag)
		}
		out.Defs = append(out.Defs, d)
		out.ByID[d.ID] = d
	}
	return nil
}

func indexOffers(src string, defs []OfferDef, out *OfferCatalog) error {
	out.Defs = make([]OfferDef, 0, len(defs))
	out.ByID = make(map[string]OfferDef, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("%s: empty id", src)
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("%s: duplicate id %s", src, d.ID)
		}
		if d.MoneyMultiplier <= 0 {
			return fmt.Errorf("%s: %s: money_multiplier must be > 0", src, d.ID)
		}
		if d.Tag == "" {
			d.Tag = TagNeutral
		}
		if !d.Tag.Valid() {
			return fmt.Errorf("%s: %s: unknown tag %q", src, d.ID, d.Tag)
		}
		out.Defs = append(out.Defs, d)
		out.ByID[d.ID] = d
	}
	return nil
}
