// Package abha stores the ABHA identities known to this facility and the
// care contexts that have been linked against them.
package abha

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AbhaNumber is one patient's ABHA identity as shared by the central
// registry. HealthID holds the ABHA address (user@sbx); AbhaNumber holds
// the 14-digit number.
type AbhaNumber struct {
	ID uuid.UUID `json:"id"`

	AbhaNumber string `json:"abha_number"`
	HealthID   string `json:"health_id"`

	Name       string `json:"name"`
	FirstName  string `json:"first_name"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name"`

	Gender      string `json:"gender"`
	DateOfBirth string `json:"date_of_birth"`

	Address  string `json:"address"`
	District string `json:"district"`
	State    string `json:"state"`
	Pincode  string `json:"pincode"`

	Mobile string `json:"mobile"`
	Email  string `json:"email"`

	ProfilePhoto string `json:"profile_photo,omitempty"`

	New   bool   `json:"new"`
	TxnID string `json:"txn_id,omitempty"`

	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LinkedCareContext records one episode of care linked to an ABHA identity,
// either through discovery or a token-based link.
type LinkedCareContext struct {
	ID           uuid.UUID `json:"id"`
	AbhaNumberID uuid.UUID `json:"abha_number_id"`

	PatientReference     string `json:"patient_reference"`
	CareContextReference string `json:"care_context_reference"`
	Display              string `json:"display"`
	HIType               string `json:"hi_type"`

	Linked    bool      `json:"linked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// YearOfBirth extracts the year from the stored date of birth, which the
// registry sends as YYYY-MM-DD. Returns 0 when absent or malformed.
func (a *AbhaNumber) YearOfBirth() int {
	parts := strings.SplitN(a.DateOfBirth, "-", 2)
	if len(parts) == 0 || parts[0] == "" {
		return 0
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0
	}
	return year
}

// NormalizeMobile strips the +91 country prefix so stored and incoming
// numbers compare equal regardless of form.
func NormalizeMobile(mobile string) string {
	mobile = strings.TrimSpace(mobile)
	if strings.HasPrefix(mobile, "+91") {
		return mobile[3:]
	}
	if len(mobile) == 12 && strings.HasPrefix(mobile, "91") {
		return mobile[2:]
	}
	return mobile
}
