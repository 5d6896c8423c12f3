package event

import "time"

// Type classifies a supply chain audit event. The numeric code is the wire
// form used by external submitters; everything inside the engine works with
// the named constant.
type Type string

const (
	TypeProductCreated         Type = "product_created"
	TypeShipmentCreated        Type = "shipment_created"
	TypeStatusUpdate           Type = "status_update"
	TypeQualityCheck           Type = "quality_check"
	TypeComplianceVerification Type = "compliance_verification"
	TypePayment                Type = "payment"
)

var typeCodes = map[Type]uint8{
	TypeProductCreated:         0,
	TypeShipmentCreated:        1,
	TypeStatusUpdate:           2,
	TypeQualityCheck:           3,
	TypeComplianceVerification: 4,
	TypePayment:                5,
}

// Code returns the numeric wire form of the event type.
func (t Type) Code() uint8 {
	return typeCodes[t]
}

// Valid reports whether t is one of the known event types.
func (t Type) Valid() bool {
	_, ok := typeCodes[t]
	return ok
}

// TypeFromCode maps a wire code back to a named event type.
func TypeFromCode(code uint8) (Type, bool) {
	for t, c := range typeCodes {
		if c == code {
			return t, true
		}
	}
	return "", false
}

// Record mirrors the supply_chain_events table. Rows are append-only.
type Record struct {
	ID              string
	Type            Type
	RecorderID      string
	RelatedEntityID string
	Location        string
	OccurredAt      time.Time
	Metadata        string
	CreatedAt       time.Time
}
