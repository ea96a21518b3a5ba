package world

import (
	"errors"
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind Kind
		wantName string
	}{
		{"world", "Zodiark", KindWorld, "Zodiark"},
		{"world lowercase", "zodiark", KindWorld, "Zodiark"},
		{"world by id", "42", KindWorld, "Zodiark"},
		{"data center", "Light", KindDataCenter, "Light"},
		{"region", "north-america", KindRegion, "North-America"},
		{"padded", "  Aether ", KindDataCenter, "Aether"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Resolve(tt.input)
			if err != nil {
				t.Fatalf("Resolve(%q) error: %v", tt.input, err)
			}
			if s.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", s.Kind, tt.wantKind)
			}
			if s.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", s.Name, tt.wantName)
			}
		})
	}
}

func TestResolve_Unknown(t *testing.T) {
	for _, input := range []string{"", "Atlantis", "9999"} {
		if _, err := Resolve(input); !errors.Is(err, ErrUnknownWorld) {
			t.Errorf("Resolve(%q) error = %v, want ErrUnknownWorld", input, err)
		}
	}
}

func TestScope_Contains(t *testing.T) {
	light, err := Resolve("Light")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !light.Contains(42) {
		t.Error("Light should contain Zodiark (42)")
	}
	if light.Contains(80) {
		t.Error("Light should not contain Cerberus (80)")
	}

	europe, _ := Resolve("Europe")
	if len(europe.WorldIDs()) != 16 {
		t.Errorf("Europe has %d worlds, want 16", len(europe.WorldIDs()))
	}

	zodiark, _ := Resolve("Zodiark")
	if ids := zodiark.WorldIDs(); len(ids) != 1 || ids[0] != 42 {
		t.Errorf("Zodiark WorldIDs = %v, want [42]", ids)
	}
}

func TestLookups(t *testing.T) {
	if got := IDByName("Twintania"); got != 33 {
		t.Errorf("IDByName(Twintania) = %d, want 33", got)
	}
	if got := IDByName("nowhere"); got != 0 {
		t.Errorf("IDByName(nowhere) = %d, want 0", got)
	}
	if n, ok := Name(90); !ok || n != "Aegis" {
		t.Errorf("Name(90) = %q, %v", n, ok)
	}
	if got := DataCenterOf(22); got != "Materia" {
		t.Errorf("DataCenterOf(22) = %q, want Materia", got)
	}
	if got := RegionOf(73); got != "North-America" {
		t.Errorf("RegionOf(73) = %q, want North-America", got)
	}
	if got := RegionOf(1); got != "" {
		t.Errorf("RegionOf(1) = %q, want empty", got)
	}
}

func TestRegions(t *testing.T) {
	rs := Regions()
	if len(rs) != 4 {
		t.Fatalf("len(Regions) = %d, want 4", len(rs))
	}

	total := 0
	for _, r := range rs {
		for _, dc := range r.DataCenters {
			for _, w := range dc.Worlds {
				if w.Name == "" {
					t.Errorf("world %d in %s has no name", w.ID, dc.Name)
				}
				total++
			}
		}
	}
	if total != len(worldNames) {
		t.Errorf("hierarchy lists %d worlds, name table has %d", total, len(worldNames))
	}
}
