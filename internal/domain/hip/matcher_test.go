package hip

import (
	"testing"

	"github.com/ohcnetwork/abdm-gateway/internal/domain/abha"
)

func TestSimilarity(t *testing.T) {
	if got := similarity("Ramesh Kumar", "ramesh kumar"); got != 1 {
		t.Errorf("identical names: similarity = %v, want 1", got)
	}
	if got := similarity("Ramesh", "Xyzzy"); got != 0 {
		t.Errorf("disjoint names: similarity = %v, want 0", got)
	}
	if got := similarity("Ramesh Kumar", "Ramesh K"); got <= 0.3 {
		t.Errorf("near names: similarity = %v, want > 0.3", got)
	}
	if got := similarity("", "Ramesh"); got != 0 {
		t.Errorf("empty name: similarity = %v, want 0", got)
	}
}

func TestMatchByDemographics(t *testing.T) {
	candidates := []*abha.AbhaNumber{
		{Name: "Ramesh Kumar", Gender: "M", DateOfBirth: "1990-05-14"},
		{Name: "Ramesh Kumari", Gender: "F", DateOfBirth: "1990-01-01"},
		{Name: "Suresh Patel", Gender: "M", DateOfBirth: "1990-05-14"},
		{Name: "Ramesh Kumar", Gender: "M", DateOfBirth: "1970-05-14"},
	}

	claim := DiscoverPatient{Name: "Ramesh Kumar", Gender: "M", YearOfBirth: 1992}
	matched := matchByDemographics(candidates, claim, 0.3)
	if len(matched) != 1 {
		t.Fatalf("matched %d candidates, want 1", len(matched))
	}
	if matched[0].DateOfBirth != "1990-05-14" || matched[0].Gender != "M" {
		t.Errorf("matched wrong candidate: %+v", matched[0])
	}
}

func TestMatchByDemographics_SkipsGenderWhenUnset(t *testing.T) {
	candidates := []*abha.AbhaNumber{
		{Name: "Ramesh Kumar", DateOfBirth: "1990-05-14"},
	}
	claim := DiscoverPatient{Name: "Ramesh Kumar", Gender: "M", YearOfBirth: 1990}
	if got := matchByDemographics(candidates, claim, 0.3); len(got) != 1 {
		t.Errorf("candidate without recorded gender should still match, got %d", len(got))
	}
}

func TestIdentifierValue_PrefersVerified(t *testing.T) {
	p := DiscoverPatient{
		VerifiedIdentifiers:   []Identifier{{Type: IdentifierMobile, Value: "9876543210"}},
		UnverifiedIdentifiers: []Identifier{{Type: IdentifierMobile, Value: "1111111111"}},
	}
	if got := identifierValue(p, IdentifierMobile); got != "9876543210" {
		t.Errorf("identifierValue = %q, want verified value", got)
	}
	if got := identifierValue(p, IdentifierAbhaNumber); got != "" {
		t.Errorf("identifierValue for absent type = %q, want empty", got)
	}
}
