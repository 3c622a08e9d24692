package catalog

import (
	"errors"
	"testing"

	"github.com/yakan-hub/hukuwarai-hontai/fukuwarai"
)

func TestCatalogShape(t *testing.T) {
	all := All()
	if want := fukuwarai.PartTypeCount * variantsPerType; len(all) != want {
		t.Fatalf("expected %d parts, got %d", want, len(all))
	}
	for _, pt := range fukuwarai.AllPartTypes() {
		if got := len(ByType(pt)); got != variantsPerType {
			t.Fatalf("%s: expected %d variants, got %d", pt, variantsPerType, got)
		}
	}
	seen := map[string]bool{}
	for _, p := range all {
		if seen[p.ID] {
			t.Fatalf("duplicate part id %s", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("eyes-3", fukuwarai.PartTypeEyes); err != nil {
		t.Fatalf("valid part rejected: %v", err)
	}
	var invalid fukuwarai.InvalidCandidateError
	if err := Validate("eyes-3", fukuwarai.PartTypeNose); !errors.As(err, &invalid) {
		t.Fatalf("category mismatch not rejected: %v", err)
	}
	if err := Validate("no-such-part", fukuwarai.PartTypeEyes); !errors.As(err, &invalid) {
		t.Fatalf("unknown id not rejected: %v", err)
	}
}
