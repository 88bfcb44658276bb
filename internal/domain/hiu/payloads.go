// Package hiu implements the requester side of the exchange: consent
// requests toward the consent manager, artefact retrieval and reception of
// the health information pushed back by providers.
package hiu

// The consent manager still serves the requester flows on its v0.5
// surface, where the request id and timestamp travel in the body instead
// of headers and the permission date range uses from/to keys.

type responseRef struct {
	RequestID string `json:"requestId"`
}

type gatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type idRef struct {
	ID string `json:"id"`
}

type purposeRef struct {
	Text string `json:"text"`
	Code string `json:"code"`
}

type requesterIdentifier struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	System string `json:"system,omitempty"`
}

type consentRequester struct {
	Name       string              `json:"name"`
	Identifier requesterIdentifier `json:"identifier"`
}

type dateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type frequencyWire struct {
	Unit    string `json:"unit"`
	Value   int    `json:"value"`
	Repeats int    `json:"repeats"`
}

type permissionWire struct {
	AccessMode  string        `json:"accessMode"`
	DateRange   dateRange     `json:"dateRange"`
	DataEraseAt string        `json:"dataEraseAt"`
	Frequency   frequencyWire `json:"frequency"`
}

type consentRequestBody struct {
	Purpose    purposeRef       `json:"purpose"`
	Patient    idRef            `json:"patient"`
	HIU        idRef            `json:"hiu"`
	Requester  consentRequester `json:"requester"`
	HITypes    []string         `json:"hiTypes"`
	Permission permissionWire   `json:"permission"`
}

type consentRequestInitPayload struct {
	RequestID string             `json:"requestId"`
	Timestamp string             `json:"timestamp"`
	Consent   consentRequestBody `json:"consent"`
}

type consentStatusPayload struct {
	RequestID        string `json:"requestId"`
	Timestamp        string `json:"timestamp"`
	ConsentRequestID string `json:"consentRequestId"`
}

type consentAcknowledgement struct {
	ConsentID string `json:"consentId"`
	Status    string `json:"status"`
}

type hiuOnNotifyPayload struct {
	RequestID       string                   `json:"requestId"`
	Timestamp       string                   `json:"timestamp"`
	Resp            responseRef              `json:"resp"`
	Acknowledgement []consentAcknowledgement `json:"acknowledgement,omitempty"`
}

type consentFetchPayload struct {
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
	ConsentID string `json:"consentId"`
}

// keyMaterialWire is the key material block of the data flow request and
// the transfer envelope.
type keyMaterialWire struct {
	CryptoAlg   string `json:"cryptoAlg"`
	Curve       string `json:"curve"`
	DHPublicKey struct {
		Expiry     string `json:"expiry"`
		Parameters string `json:"parameters"`
		KeyValue   string `json:"keyValue"`
	} `json:"dhPublicKey"`
	Nonce string `json:"nonce"`
}

type healthInfoRequestPayload struct {
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
	HIRequest struct {
		Consent     idRef           `json:"consent"`
		DataPushURL string          `json:"dataPushUrl"`
		KeyMaterial keyMaterialWire `json:"keyMaterial"`
		DateRange   dateRange       `json:"dateRange"`
	} `json:"hiRequest"`
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
			SessionStatus string `json:"sessionStatus"`
			HIPID         string `json:"hipId"`
		} `json:"statusNotification"`
	} `json:"notification"`
}

type patientsFindPayload struct {
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
	Query     struct {
		Patient   idRef `json:"patient"`
		Requester struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		} `json:"requester"`
	} `json:"query"`
}

type identityAuthPayload struct {
	AbhaNumber  string `json:"abhaNumber,omitempty"`
	AbhaAddress string `json:"abhaAddress"`
}

// IdentityAuthResult is the consent manager's synchronous answer to an
// identity authentication request.
type IdentityAuthResult struct {
	Authenticated bool        `json:"authenticated"`
	AbhaAddress   string      `json:"abhaAddress"`
	TransactionID string      `json:"transactionId"`
	Response      responseRef `json:"response"`
}

// Callback shapes, bound by the handler.

type artefactRef struct {
	ID string `json:"id"`
}

// OnConsentInitCallback correlates on resp.requestId, which echoes the
// requestId (our external id) of the init call.
type OnConsentInitCallback struct {
	ConsentRequest idRef         `json:"consentRequest"`
	Error          *gatewayError `json:"error,omitempty"`
	Resp           responseRef   `json:"resp"`
}

type OnConsentStatusCallback struct {
	ConsentRequest struct {
		ID               string        `json:"id"`
		Status           string        `json:"status"`
		ConsentArtefacts []artefactRef `json:"consentArtefacts"`
	} `json:"consentRequest"`
	Resp responseRef `json:"resp"`
}

// ConsentNotifyCallback announces the patient's decision along with the
// artefacts minted for it.
type ConsentNotifyCallback struct {
	RequestID    string `json:"requestId"`
	Timestamp    string `json:"timestamp"`
	Notification struct {
		ConsentRequestID string        `json:"consentRequestId"`
		Status           string        `json:"status"`
		ConsentArtefacts []artefactRef `json:"consentArtefacts"`
	} `json:"notification"`
}

// consentDetail is the signed artefact body of the on-fetch callback.
type consentDetail struct {
	ConsentID string `json:"consentId"`
	Patient   idRef  `json:"patient"`
	Purpose   struct {
		Text string `json:"text,omitempty"`
		Code string `json:"code"`
	} `json:"purpose"`
	HIP            idRef `json:"hip"`
	HIU            idRef `json:"hiu"`
	ConsentManager idRef `json:"consentManager"`
	CareContexts   []struct {
		PatientReference     string `json:"patientReference"`
		CareContextReference string `json:"careContextReference"`
	} `json:"careContexts"`
	HITypes    []string `json:"hiTypes"`
	Permission struct {
		AccessMode  string    `json:"accessMode"`
		DateRange   dateRange `json:"dateRange"`
		DataEraseAt string    `json:"dataEraseAt"`
		Frequency   struct {
			Unit    string `json:"unit"`
			Value   int    `json:"value"`
			Repeats int    `json:"repeats"`
		} `json:"frequency"`
	} `json:"permission"`
}

type OnConsentFetchCallback struct {
	Consent struct {
		Status        string         `json:"status"`
		ConsentDetail *consentDetail `json:"consentDetail"`
		Signature     string         `json:"signature"`
	} `json:"consent"`
	Resp responseRef `json:"resp"`
}

type OnHealthInfoRequestCallback struct {
	HIRequest struct {
		TransactionID string `json:"transactionId"`
		SessionStatus string `json:"sessionStatus"`
	} `json:"hiRequest"`
	Error *gatewayError `json:"error,omitempty"`
	Resp  responseRef   `json:"resp"`
}

// TransferEntry is one encrypted care context inside a pushed page. Either
// Content carries the ciphertext inline or Link points at it.
type TransferEntry struct {
	Content              string `json:"content,omitempty"`
	Link                 string `json:"link,omitempty"`
	Media                string `json:"media"`
	Checksum             string `json:"checksum"`
	CareContextReference string `json:"careContextReference"`
}

// TransferRequest is the page of health information a provider pushes to
// the data push URL.
type TransferRequest struct {
	PageNumber    int             `json:"pageNumber"`
	PageCount     int             `json:"pageCount"`
	TransactionID string          `json:"transactionId"`
	KeyMaterial   keyMaterialWire `json:"keyMaterial"`
	Entries       []TransferEntry `json:"entries"`
}

// receivedEntry is the decrypted form persisted to the blob store.
type receivedEntry struct {
	CareContextReference string `json:"careContextReference"`
	Content              string `json:"content"`
}
