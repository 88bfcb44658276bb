// Package consent holds the consent request and artefact model shared by
// the HIP and HIU sides of the exchange, their repositories and the status
// lifecycle rules.
package consent

import (
	"time"

	"github.com/google/uuid"
)

// Purpose codes a consent can be requested under.
const (
	PurposeCareManagement = "CAREMGT"
	PurposeBreakTheGlass  = "BTG"
	PurposePublicHealth   = "PUBHLTH"
	PurposePayment        = "HPAYMT"
	PurposeResearch       = "DSRCH"
	PurposeSelfRequested  = "PATRQT"
)

// PurposeLabels maps purpose codes to the display text sent on the wire.
var PurposeLabels = map[string]string{
	PurposeCareManagement: "Care Management",
	PurposeBreakTheGlass:  "Break the Glass",
	PurposePublicHealth:   "Public Health",
	PurposePayment:        "Healthcare Payment",
	PurposeResearch:       "Disease Specific Healthcare Research",
	PurposeSelfRequested:  "Self Requested",
}

// Access modes granted by a consent.
const (
	AccessModeView   = "VIEW"
	AccessModeStore  = "STORE"
	AccessModeQuery  = "QUERY"
	AccessModeStream = "STREAM"
)

// HITypes lists the health information document types exchanged.
var HITypes = []string{
	"Prescription",
	"DiagnosticReport",
	"OPConsultation",
	"DischargeSummary",
	"ImmunizationRecord",
	"HealthDocumentRecord",
	"WellnessRecord",
}

// Frequency units for repeated access.
const (
	FrequencyUnitHour  = "HOUR"
	FrequencyUnitDay   = "DAY"
	FrequencyUnitWeek  = "WEEK"
	FrequencyUnitMonth = "MONTH"
	FrequencyUnitYear  = "YEAR"
)

// Consent lifecycle statuses.
const (
	StatusRequested = "REQUESTED"
	StatusGranted   = "GRANTED"
	StatusDenied    = "DENIED"
	StatusExpired   = "EXPIRED"
	StatusRevoked   = "REVOKED"
)

// Data flow session statuses.
const (
	SessionPending      = "PENDING"
	SessionAcknowledged = "ACKNOWLEDGED"
	SessionTransferred  = "TRANSFERRED"
	SessionFailed       = "FAILED"
)

// CareContext ties a patient reference to one episode of care.
type CareContext struct {
	PatientReference     string `json:"patientReference"`
	CareContextReference string `json:"careContextReference"`
	Display              string `json:"display,omitempty"`
}

// ConsentRequest is the HIU-side request for access to a patient's records.
// ExternalID is the request id sent to the consent manager; ConsentID is
// the id the consent manager assigns when the request is registered.
type ConsentRequest struct {
	ID         uuid.UUID `json:"id"`
	ExternalID uuid.UUID `json:"external_id"`
	ConsentID  *string   `json:"consent_id,omitempty"`

	PatientAbhaID uuid.UUID `json:"patient_abha_id"`

	Purpose    string   `json:"purpose"`
	HITypes    []string `json:"hi_types"`
	AccessMode string   `json:"access_mode"`

	FromTime time.Time `json:"from_time"`
	ToTime   time.Time `json:"to_time"`
	Expiry   time.Time `json:"expiry"`

	FrequencyUnit    string `json:"frequency_unit"`
	FrequencyValue   int    `json:"frequency_value"`
	FrequencyRepeats int    `json:"frequency_repeats"`

	Status string `json:"status"`

	RequesterName       string `json:"requester_name"`
	RequesterIdentifier string `json:"requester_identifier"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConsentArtefact is a granted (or notified) consent covering a concrete
// set of care contexts. ConsentID doubles as the data flow correlation key:
// the health information request overwrites it with the fresh request id
// and the on-request callback overwrites it again with the transaction id.
type ConsentArtefact struct {
	ID         uuid.UUID `json:"id"`
	ArtefactID uuid.UUID `json:"artefact_id"`
	ConsentID  *string   `json:"consent_id,omitempty"`

	ConsentRequestID *uuid.UUID `json:"consent_request_id,omitempty"`
	PatientAbhaID    uuid.UUID  `json:"patient_abha_id"`

	Purpose      string        `json:"purpose"`
	HITypes      []string      `json:"hi_types"`
	AccessMode   string        `json:"access_mode"`
	CareContexts []CareContext `json:"care_contexts"`

	HIP string `json:"hip,omitempty"`
	HIU string `json:"hiu,omitempty"`
	CM  string `json:"cm,omitempty"`

	FromTime time.Time `json:"from_time"`
	ToTime   time.Time `json:"to_time"`
	Expiry   time.Time `json:"expiry"`

	FrequencyUnit    string `json:"frequency_unit"`
	FrequencyValue   int    `json:"frequency_value"`
	FrequencyRepeats int    `json:"frequency_repeats"`

	Status string `json:"status"`

	KeyMaterialAlgorithm  string `json:"-"`
	KeyMaterialCurve      string `json:"-"`
	KeyMaterialPublicKey  string `json:"-"`
	KeyMaterialPrivateKey string `json:"-"`
	KeyMaterialNonce      string `json:"-"`

	Signature string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ApplyDefaults fills the permission fields a caller left empty: the last
// 30 days of records, erased 30 days out, accessible once an hour.
func (c *ConsentRequest) ApplyDefaults(now time.Time) {
	if c.Purpose == "" {
		c.Purpose = PurposeCareManagement
	}
	if c.AccessMode == "" {
		c.AccessMode = AccessModeView
	}
	if c.FromTime.IsZero() {
		c.FromTime = now.AddDate(0, 0, -30)
	}
	if c.ToTime.IsZero() {
		c.ToTime = now
	}
	if c.Expiry.IsZero() {
		c.Expiry = now.AddDate(0, 0, 30)
	}
	if c.FrequencyUnit == "" {
		c.FrequencyUnit = FrequencyUnitHour
	}
	if c.FrequencyValue == 0 {
		c.FrequencyValue = 1
	}
	if c.Status == "" {
		c.Status = StatusRequested
	}
}

// ValidPurpose reports whether code is a known purpose.
func ValidPurpose(code string) bool {
	_, ok := PurposeLabels[code]
	return ok
}

// ValidHIType reports whether t is a known health information type.
func ValidHIType(t string) bool {
	for _, known := range HITypes {
		if known == t {
			return true
		}
	}
	return false
}

// validTransitions encodes the consent status lifecycle. REQUESTED fans out
// to any decision; GRANTED can still be revoked or expire; DENIED, EXPIRED
// and REVOKED are terminal.
var validTransitions = map[string][]string{
	StatusRequested: {StatusGranted, StatusDenied, StatusExpired, StatusRevoked},
	StatusGranted:   {StatusExpired, StatusRevoked},
}

// CanTransition reports whether a consent may move from one status to
// another. Re-asserting the current status is always allowed since the
// consent manager delivers notifications more than once.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether status ends the consent's life.
func Terminal(status string) bool {
	return status == StatusDenied || status == StatusExpired || status == StatusRevoked
}
