package shipment

import (
	"time"

	"github.com/Twhite2/Retail-Chain/agreement"
)

// MaxTrackingIDLength caps the carrier tracking identifier.
const MaxTrackingIDLength = 32

// Shipment is a consignment of products moving from a supplier to a store,
// optionally fulfilling a supply agreement.
type Shipment struct {
	ID          string     `json:"id"`
	SupplierID  string     `json:"supplier_id"`
	StoreID     string     `json:"store_id"`
	AgreementID *string    `json:"agreement_id,omitempty"`
	TrackingID  string     `json:"tracking_id"`
	Origin      string     `json:"origin"`
	Destination string     `json:"destination"`
	Status      Status     `json:"status"`
	ETA         time.Time  `json:"eta"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	Products    []string   `json:"products"`
}

// Locked is a shipment read under FOR UPDATE together with the destination
// store's owner, which authorization checks need.
type Locked struct {
	Shipment
	StoreOwnerID string
}

// AgreementRef is the slice of an agreement a shipment needs to know about:
// who it binds and whether it is still open.
type AgreementRef struct {
	ID         string
	SupplierID string
	StoreID    string
	Status     agreement.Status
}

// LocationPing is a point-in-time position report recorded while the
// shipment moves. Pings are append-only.
type LocationPing struct {
	ShipmentID string    `json:"shipment_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Name       string    `json:"name"`
	RecordedBy string    `json:"recorded_by"`
	RecordedAt time.Time `json:"recorded_at"`
}
