package consent

import (
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var req ConsentRequest
	req.ApplyDefaults(now)

	if req.Purpose != PurposeCareManagement {
		t.Errorf("expected default purpose CAREMGT, got %s", req.Purpose)
	}
	if req.AccessMode != AccessModeView {
		t.Errorf("expected default access mode VIEW, got %s", req.AccessMode)
	}
	if req.FromTime != now.AddDate(0, 0, -30) {
		t.Errorf("expected from 30 days back, got %v", req.FromTime)
	}
	if req.ToTime != now {
		t.Errorf("expected to = now, got %v", req.ToTime)
	}
	if req.Expiry != now.AddDate(0, 0, 30) {
		t.Errorf("expected expiry 30 days out, got %v", req.Expiry)
	}
	if req.FrequencyUnit != FrequencyUnitHour || req.FrequencyValue != 1 || req.FrequencyRepeats != 0 {
		t.Errorf("unexpected frequency %s/%d/%d", req.FrequencyUnit, req.FrequencyValue, req.FrequencyRepeats)
	}
	if req.Status != StatusRequested {
		t.Errorf("expected REQUESTED, got %s", req.Status)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	now := time.Now().UTC()
	req := ConsentRequest{Purpose: PurposeResearch, FrequencyValue: 5}
	req.ApplyDefaults(now)

	if req.Purpose != PurposeResearch {
		t.Errorf("explicit purpose overwritten: %s", req.Purpose)
	}
	if req.FrequencyValue != 5 {
		t.Errorf("explicit frequency value overwritten: %d", req.FrequencyValue)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{StatusRequested, StatusGranted, true},
		{StatusRequested, StatusDenied, true},
		{StatusGranted, StatusRevoked, true},
		{StatusGranted, StatusExpired, true},
		{StatusGranted, StatusGranted, true}, // re-notification
		{StatusDenied, StatusGranted, false},
		{StatusRevoked, StatusGranted, false},
		{StatusExpired, StatusRequested, false},
		{StatusGranted, StatusRequested, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, status := range []string{StatusDenied, StatusExpired, StatusRevoked} {
		if !Terminal(status) {
			t.Errorf("expected %s to be terminal", status)
		}
	}
	for _, status := range []string{StatusRequested, StatusGranted} {
		if Terminal(status) {
			t.Errorf("expected %s to not be terminal", status)
		}
	}
}

func TestValidHIType(t *testing.T) {
	if !ValidHIType("DischargeSummary") {
		t.Error("DischargeSummary should be valid")
	}
	if ValidHIType("Selfie") {
		t.Error("Selfie should not be valid")
	}
}
