package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ConfigsMatchBuiltIn(t *testing.T) {
	c, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	def := Default()

	if got, want := len(c.Upgrades.Defs), len(def.Upgrades.Defs); got != want {
		t.Fatalf("upgrades: got %d want %d", got, want)
	}
	for i, d := range def.Upgrades.Defs {
		if c.Upgrades.Defs[i] != d {
			t.Fatalf("upgrade %d differs:\nfile=%+v\nbuiltin=%+v", i, c.Upgrades.Defs[i], d)
		}
	}
	if got, want := len(c.Offers.Defs), len(def.Offers.Defs); got != want {
		t.Fatalf("offers: got %d want %d", got, want)
	}
	for i, d := range def.Offers.Defs {
		if c.Offers.Defs[i] != d {
			t.Fatalf("offer %d differs:\nfile=%+v\nbuiltin=%+v", i, c.Offers.Defs[i], d)
		}
	}
	if c.Upgrades.Digest == "" || c.Offers.Digest == "" {
		t.Fatalf("expected digests to be set")
	}
}

func TestDefault_ReferenceDatasetShape(t *testing.T) {
	c := Default()

	var unethical, ethical, locked int
	for _, d := range c.Upgrades.Defs {
		switch d.Tag {
		case TagUnethical:
			unethical++
		case TagEthical:
			ethical++
		}
		if d.RequiresAscension {
			locked++
			if d.Tag != TagEthical {
				t.Fatalf("%s requires ascension but is tagged %s", d.ID, d.Tag)
			}
		}
	}
	if unethical != 6 || ethical != 3 || locked != 3 {
		t.Fatalf("upgrades: unethical=%d ethical=%d locked=%d", unethical, ethical, locked)
	}

	unethical, ethical = 0, 0
	for _, d := range c.Offers.Defs {
		switch d.Tag {
		case TagUnethical:
			unethical++
		case TagEthical:
			ethical++
		}
	}
	if unethical != 5 || ethical != 4 {
		t.Fatalf("offers: unethical=%d ethical=%d", unethical, ethical)
	}

	if d, ok := c.Upgrade("aiBot"); !ok || d.BaseCost != 15 {
		t.Fatalf("aiBot lookup: ok=%v def=%+v", ok, d)
	}
	if _, ok := c.Offer("nope"); ok {
		t.Fatalf("unknown offer should not resolve")
	}
}

func TestNew_RejectsInvalidDefinitions(t *testing.T) {
	cases := map[string]struct {
		ups    []UpgradeDef
		offers []OfferDef
	}{
		"empty id":       {ups: []UpgradeDef{{BaseCost: 1}}},
		"zero cost":      {ups: []UpgradeDef{{ID: "a"}}},
		"duplicate":      {ups: []UpgradeDef{{ID: "a", BaseCost: 1}, {ID: "a", BaseCost: 2}}},
		"bad tag":        {ups: []UpgradeDef{{ID: "a", BaseCost: 1, Tag: "EVIL"}}},
		"zero mult":      {offers: []OfferDef{{ID: "o"}}},
		"offer bad tag":  {offers: []OfferDef{{ID: "o", MoneyMultiplier: 1, Tag: "x"}}},
		"negative yield": {ups: []UpgradeDef{{ID: "a", BaseCost: 1, BaseIncome: -1}}},
	}
	for name, tc := range cases {
		if _, err := New(tc.ups, tc.offers); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoad_MissingTagDefaultsToNeutral(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "upgrades.json"), []byte(`[{"id":"a","base_cost":10,"base_income":1}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "offers.json"), []byte(`[{"id":"o","money_multiplier":1.5}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Upgrades.ByID["a"].Tag != TagNeutral || c.Offers.ByID["o"].Tag != TagNeutral {
		t.Fatalf("expected neutral tags, got %q / %q", c.Upgrades.ByID["a"].Tag, c.Offers.ByID["o"].Tag)
	}
}
