package iot

import "time"

// DataType classifies a sensor reading attached to a shipment.
type DataType string

const (
	DataTemperature   DataType = "temperature"
	DataHumidity      DataType = "humidity"
	DataLocation      DataType = "location"
	DataShock         DataType = "shock"
	DataLightExposure DataType = "light_exposure"
)

var dataTypeCodes = map[DataType]uint8{
	DataTemperature:   0,
	DataHumidity:      1,
	DataLocation:      2,
	DataShock:         3,
	DataLightExposure: 4,
}

func (d DataType) Valid() bool {
	_, ok := dataTypeCodes[d]
	return ok
}

// Code returns the compact wire form of the data type.
func (d DataType) Code() uint8 {
	return dataTypeCodes[d]
}

func DataTypeFromCode(code uint8) (DataType, bool) {
	for d, c := range dataTypeCodes {
		if c == code {
			return d, true
		}
	}
	return "", false
}

// Reading is a single sensor sample reported against a shipment. Readings
// arrive unverified; a credentialed verifier attests them afterwards.
type Reading struct {
	ID         string     `json:"id"`
	ShipmentID string     `json:"shipment_id"`
	DataType   DataType   `json:"data_type"`
	Value      string     `json:"value"`
	RecordedBy string     `json:"recorded_by"`
	RecordedAt time.Time  `json:"recorded_at"`
	Verified   bool       `json:"verified"`
	VerifiedBy *string    `json:"verified_by,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}
