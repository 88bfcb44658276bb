package gateway

import "context"

// FacilityDirectory resolves the health facility id that owns a patient's
// records. Deployments with a single registered facility can use the static
// implementation; multi-facility hosts plug in their own lookup.
type FacilityDirectory interface {
	FacilityID(ctx context.Context, healthID string) (string, error)
}

// StaticFacilityDirectory answers every lookup with the configured id.
type StaticFacilityDirectory struct {
	ID string
}

func (d StaticFacilityDirectory) FacilityID(context.Context, string) (string, error) {
	return d.ID, nil
}
