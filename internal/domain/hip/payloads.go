// Package hip implements the provider side of the exchange: patient
// discovery, care context linking, consent notifications and outbound
// health information transfer.
package hip

// Wire shapes for consent manager callbacks and the replies this side
// sends back. Field names follow the gateway's JSON exactly.

type responseRef struct {
	RequestID string `json:"requestId"`
}

type gatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Identifier is one verified or unverified patient identifier.
type Identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Identifier types the discovery request carries.
const (
	IdentifierMobile     = "MOBILE"
	IdentifierAbhaNumber = "ABHA_NUMBER"
	IdentifierHealthID   = "HEALTH_ID"
)

// DiscoverRequest is the consent manager asking whether this facility
// knows the patient.
type DiscoverRequest struct {
	TransactionID string          `json:"transactionId"`
	Patient       DiscoverPatient `json:"patient"`
}

type DiscoverPatient struct {
	ID                    string       `json:"id"`
	Name                  string       `json:"name"`
	Gender                string       `json:"gender"`
	YearOfBirth           int          `json:"yearOfBirth"`
	VerifiedIdentifiers   []Identifier `json:"verifiedIdentifiers"`
	UnverifiedIdentifiers []Identifier `json:"unverifiedIdentifiers"`
}

type careContextRef struct {
	ReferenceNumber string `json:"referenceNumber"`
	Display         string `json:"display,omitempty"`
}

type matchedPatient struct {
	ReferenceNumber string           `json:"referenceNumber"`
	Display         string           `json:"display"`
	CareContexts    []careContextRef `json:"careContexts"`
	HIType          string           `json:"hiType,omitempty"`
	Count           int              `json:"count"`
}

type onDiscoverPayload struct {
	TransactionID string          `json:"transactionId"`
	Patient       *matchedPatient `json:"patient,omitempty"`
	MatchedBy     []string        `json:"matchedBy,omitempty"`
	Error         *gatewayError   `json:"error,omitempty"`
	Response      responseRef     `json:"response"`
}

// LinkInitRequest is the patient-initiated linking handshake: the patient
// picked discovered care contexts in their PHR app and the consent manager
// asks this facility to authenticate them.
type LinkInitRequest struct {
	TransactionID string            `json:"transactionId"`
	AbhaAddress   string            `json:"abhaAddress"`
	Patient       []LinkInitPatient `json:"patient"`
}

type LinkInitPatient struct {
	ReferenceNumber string           `json:"referenceNumber"`
	CareContexts    []careContextRef `json:"careContexts"`
	HIType          string           `json:"hiType,omitempty"`
	Count           int              `json:"count"`
}

type linkMeta struct {
	CommunicationMedium string `json:"communicationMedium"`
	CommunicationHint   string `json:"communicationHint"`
	CommunicationExpiry string `json:"communicationExpiry"`
}

type linkRef struct {
	ReferenceNumber    string   `json:"referenceNumber"`
	AuthenticationType string   `json:"authenticationType"`
	Meta               linkMeta `json:"meta"`
}

type onLinkInitPayload struct {
	TransactionID string      `json:"transactionId"`
	Link          linkRef     `json:"link"`
	Response      responseRef `json:"response"`
}

// LinkConfirmRequest carries the OTP the patient typed back.
type LinkConfirmRequest struct {
	TransactionID string `json:"transactionId"`
	Confirmation  struct {
		LinkRefNumber string `json:"linkRefNumber"`
		Token         string `json:"token"`
	} `json:"confirmation"`
}

type onLinkConfirmPayload struct {
	TransactionID string          `json:"transactionId"`
	Patient       *matchedPatient `json:"patient,omitempty"`
	Response      responseRef     `json:"response"`
}

// GenerateTokenResponse is the consent manager handing back the link token
// requested for HIP-initiated linking.
type GenerateTokenResponse struct {
	AbhaAddress string        `json:"abhaAddress"`
	LinkToken   string        `json:"linkToken"`
	Error       *gatewayError `json:"error,omitempty"`
	Response    responseRef   `json:"response"`
}

type generateTokenPayload struct {
	AbhaNumber  string `json:"abhaNumber"`
	AbhaAddress string `json:"abhaAddress"`
	Name        string `json:"name"`
	Gender      string `json:"gender"`
	YearOfBirth int    `json:"yearOfBirth"`
}

type linkCareContextPayload struct {
	AbhaNumber  string           `json:"abhaNumber"`
	AbhaAddress string           `json:"abhaAddress"`
	Patient     []matchedPatient `json:"patient"`
}

// ConsentNotifyRequest announces a consent decision to this facility.
type ConsentNotifyRequest struct {
	Notification struct {
		ConsentID     string         `json:"consentId"`
		Status        string         `json:"status"`
		ConsentDetail *ConsentDetail `json:"consentDetail,omitempty"`
		Signature     string         `json:"signature,omitempty"`
	} `json:"notification"`
}

// ConsentDetail is the artefact body shared inside notify and fetch
// responses. Both sides of the exchange parse the same shape.
type ConsentDetail struct {
	ConsentID string `json:"consentId,omitempty"`
	Patient   struct {
		ID string `json:"id"`
	} `json:"patient"`
	CareContexts []struct {
		PatientReference     string `json:"patientReference"`
		CareContextReference string `json:"careContextReference"`
	} `json:"careContexts,omitempty"`
	Purpose struct {
		Text string `json:"text,omitempty"`
		Code string `json:"code"`
	} `json:"purpose"`
	HIP struct {
		ID string `json:"id"`
	} `json:"hip,omitempty"`
	HIU struct {
		ID string `json:"id"`
	} `json:"hiu,omitempty"`
	ConsentManager struct {
		ID string `json:"id"`
	} `json:"consentManager,omitempty"`
	HITypes    []string   `json:"hiTypes"`
	Permission Permission `json:"permission"`
}

type Permission struct {
	AccessMode string `json:"accessMode"`
	DateRange  struct {
		From string `json:"fromTime"`
		To   string `json:"toTime"`
	} `json:"dateRange"`
	DataEraseAt string `json:"dataEraseAt"`
	Frequency   struct {
		Unit    string `json:"unit"`
		Value   int    `json:"value"`
		Repeats int    `json:"repeats"`
	} `json:"frequency"`
}

type consentAcknowledgement struct {
	Status    string `json:"status"`
	ConsentID string `json:"consentId"`
}

type onConsentNotifyPayload struct {
	Acknowledgement consentAcknowledgement `json:"acknowledgement"`
	Response        responseRef            `json:"response"`
}

// KeyMaterialWire is the key material block exchanged in health
// information requests and pushes.
type KeyMaterialWire struct {
	CryptoAlg   string `json:"cryptoAlg"`
	Curve       string `json:"curve"`
	DHPublicKey struct {
		Expiry     string `json:"expiry"`
		Parameters string `json:"parameters"`
		KeyValue   string `json:"keyValue"`
	} `json:"dhPublicKey"`
	Nonce string `json:"nonce"`
}

// HealthInfoRequest asks this facility to push records covered by a
// consent to the requester's data push URL.
type HealthInfoRequest struct {
	TransactionID string `json:"transactionId"`
	HIRequest     struct {
		Consent struct {
			ID string `json:"id"`
		} `json:"consent"`
		DateRange struct {
			From string `json:"fromTime"`
			To   string `json:"toTime"`
		} `json:"dateRange"`
		DataPushURL string          `json:"dataPushUrl"`
		KeyMaterial KeyMaterialWire `json:"keyMaterial"`
	} `json:"hiRequest"`
}

type onHealthInfoRequestPayload struct {
	HIRequest struct {
		TransactionID string `json:"transactionId"`
		SessionStatus string `json:"sessionStatus"`
	} `json:"hiRequest"`
	Response responseRef `json:"response"`
}

// transferEntry is one encrypted care context bundle inside a push.
type transferEntry struct {
	Content              string `json:"content"`
	Media                string `json:"media"`
	Checksum             string `json:"checksum"`
	CareContextReference string `json:"careContextReference"`
}

type transferPayload struct {
	PageNumber    int             `json:"pageNumber"`
	PageCount     int             `json:"pageCount"`
	TransactionID string          `json:"transactionId"`
	KeyMaterial   KeyMaterialWire `json:"keyMaterial"`
	Entries       []transferEntry `json:"entries"`
}

type statusResponse struct {
	CareContextReference string `json:"careContextReference"`
	HIStatus             string `json:"hiStatus"`
	Description          string `json:"description"`
}

type healthInfoNotifyPayload struct {
	RequestID    string `json:"requestId"`
	Timestamp    string `json:"timestamp"`
	Notification struct {
		ConsentID     string `json:"consentId"`
		TransactionID string `json:"transactionId"`
		DoneAt        string `json:"doneAt"`
		Notifier      struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		} `json:"notifier"`
		StatusNotification struct {
			SessionStatus   string           `json:"sessionStatus"`
			HIPID           string           `json:"hipId"`
			StatusResponses []statusResponse `json:"statusResponses"`
		} `json:"statusNotification"`
	} `json:"notification"`
}
