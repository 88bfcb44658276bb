package hip

import (
	"strings"

	"github.com/ohcnetwork/abdm-gateway/internal/domain/abha"
)

// Matched-by values reported on discovery results.
const (
	MatchedByAbhaNumber = "ABHA_NUMBER"
	MatchedByMobile     = "MOBILE"
)

// trigrams splits a lowercased, space-padded string into its letter
// trigrams, the same decomposition pg_trgm uses.
func trigrams(s string) map[string]struct{} {
	s = strings.ToLower(strings.TrimSpace(s))
	set := make(map[string]struct{})
	for _, word := range strings.Fields(s) {
		padded := "  " + word + " "
		for i := 0; i+3 <= len(padded); i++ {
			set[padded[i:i+3]] = struct{}{}
		}
	}
	return set
}

// similarity scores two names between 0 and 1 as the ratio of shared
// trigrams to total distinct trigrams.
func similarity(a, b string) float64 {
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

// matchByDemographics filters candidates that already matched on mobile
// down to those whose name, gender and year of birth agree with the claim.
// The year of birth is allowed to drift five years either way.
func matchByDemographics(candidates []*abha.AbhaNumber, claim DiscoverPatient, threshold float64) []*abha.AbhaNumber {
	var matched []*abha.AbhaNumber
	for _, cand := range candidates {
		if similarity(cand.Name, claim.Name) <= threshold {
			continue
		}
		if cand.Gender != "" && claim.Gender != "" && cand.Gender != claim.Gender {
			continue
		}
		if yob := cand.YearOfBirth(); yob != 0 && claim.YearOfBirth != 0 {
			diff := yob - claim.YearOfBirth
			if diff < -5 || diff > 5 {
				continue
			}
		}
		matched = append(matched, cand)
	}
	return matched
}

// identifierValue pulls the first identifier of the given type, checking
// verified identifiers before unverified ones.
func identifierValue(p DiscoverPatient, idType string) string {
	for _, id := range p.VerifiedIdentifiers {
		if id.Type == idType {
			return id.Value
		}
	}
	for _, id := range p.UnverifiedIdentifiers {
		if id.Type == idType {
			return id.Value
		}
	}
	return ""
}
