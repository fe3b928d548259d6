package oicp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Address locates a charging pool. Country is an ISO 3166-1 alpha-2 code.
type Address struct {
	Country    string `json:"Country"`
	City       string `json:"City"`
	Street     string `json:"Street"`
	PostalCode string `json:"PostalCode"`
	HouseNum   string `json:"HouseNum,omitempty"`
	Floor      string `json:"Floor,omitempty"`
	Region     string `json:"Region,omitempty"`
	TimeZone   string `json:"TimeZone,omitempty"`
}

// GeoCoordinate is a WGS84 position.
type GeoCoordinate struct {
	Latitude  Decimal `json:"Latitude"`
	Longitude Decimal `json:"Longitude"`
}

// EVSEDataRecord is the static description of one charging point as carried on
// the wire. Instances are transfer objects: constructed by parsing, never
// mutated afterwards. A fresh instance replaces an old one on update.
type EVSEDataRecord struct {
	EvseID                         EvseID
	OperatorID                     OperatorID
	OperatorName                   string
	ChargingStationID              StationID // optional, "" when absent
	ChargingPoolID                 PoolID    // optional, "" when absent
	ChargingStationName            string    // optional
	Address                        Address
	GeoCoordinates                 GeoCoordinate
	Plugs                          []Plug
	ChargingFacilities             []ChargingFacility
	AuthenticationModes            []AuthenticationMode
	PaymentOptions                 []PaymentOption
	ValueAddedServices             []ValueAddedService
	Accessibility                  Accessibility
	HotlinePhoneNumber             string
	IsOpen24Hours                  bool
	OpeningTimes                   string     // optional free-text, "" when absent
	HubOperatorID                  OperatorID // optional
	IsHubjectCompatible            bool
	DynamicInfoAvailable           bool
	RenewableEnergy                bool
	CalibrationLawDataAvailability CalibrationLawDataAvailability
	DeltaType                      DeltaType // optional, "" when absent
	LastUpdate                     time.Time // optional, zero when absent
}

// EVSEDataCodec parses and serializes EVSE data records. The zero value is
// ready to use; hooks are optional extension points.
type EVSEDataCodec struct {
	// PostParse may rewrite a freshly parsed, already valid record.
	PostParse func(EVSEDataRecord) EVSEDataRecord
	// PostSerialize may rewrite the final payload for partner-specific quirks.
	PostSerialize func([]byte) []byte
}

type fieldMap map[string]json.RawMessage

func (f fieldMap) raw(name string) (json.RawMessage, bool) {
	v, ok := f[name]
	if !ok || string(v) == "null" {
		return nil, false
	}
	return v, true
}

func (f fieldMap) stringField(name string, required bool) (string, error) {
	v, ok := f.raw(name)
	if !ok {
		if required {
			return "", fmt.Errorf("oicp: %s missing", name)
		}
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("oicp: %s is not a string", name)
	}
	return s, nil
}

func (f fieldMap) boolField(name string, required bool) (bool, error) {
	v, ok := f.raw(name)
	if !ok {
		if required {
			return false, fmt.Errorf("oicp: %s missing", name)
		}
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		return false, fmt.Errorf("oicp: %s is not a boolean", name)
	}
	return b, nil
}

func (f fieldMap) stringList(name string) ([]string, error) {
	v, ok := f.raw(name)
	if !ok {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(v, &list); err != nil {
		return nil, fmt.Errorf("oicp: %s is not a string array", name)
	}
	return list, nil
}

func dedup[T comparable](in []T) []T {
	seen := make(map[T]struct{}, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func parseEnumList[T comparable](raw []string, field string, parse func(string) (T, error)) ([]T, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("oicp: %s missing or empty", field)
	}
	out := make([]T, 0, len(raw))
	for _, s := range raw {
		v, err := parse(s)
		if err != nil {
			return nil, fmt.Errorf("oicp: %s: %w", field, err)
		}
		out = append(out, v)
	}
	return dedup(out), nil
}

// Parse decodes one EVSE data record. It never panics on malformed input;
// every failure names the offending field. Unknown top-level keys are ignored.
func (c EVSEDataCodec) Parse(data []byte) (EVSEDataRecord, error) {
	var fields fieldMap
	if err := json.Unmarshal(data, &fields); err != nil {
		return EVSEDataRecord{}, fmt.Errorf("oicp: EVSEDataRecord is not a JSON object: %w", err)
	}

	var rec EVSEDataRecord

	rawEvseID, err := fields.stringField("EvseID", true)
	if err != nil {
		return EVSEDataRecord{}, err
	}
	if rec.EvseID, err = ParseEvseID(rawEvseID); err != nil {
		return EVSEDataRecord{}, err
	}

	rawOperatorID, err := fields.stringField("OperatorID", true)
	if err != nil {
		return EVSEDataRecord{}, err
	}
	if rec.OperatorID, err = ParseOperatorID(rawOperatorID); err != nil {
		return EVSEDataRecord{}, err
	}

	if rec.OperatorName, err = fields.stringField("OperatorName", false); err != nil {
		return EVSEDataRecord{}, err
	}

	stationID, err := fields.stringField("ChargingStationID", false)
	if err != nil {
		return EVSEDataRecord{}, err
	}
	rec.ChargingStationID = StationID(stationID)

	poolID, err := fields.stringField("ChargingPoolID", false)
	if err != nil {
		return EVSEDataRecord{}, err
	}
	rec.ChargingPoolID = PoolID(poolID)

	if rec.ChargingStationName, err = fields.stringField("ChargingStationName", false); err != nil {
		return EVSEDataRecord{}, err
	}

	addrRaw, ok := fields.raw("Address")
	if !ok {
		return EVSEDataRecord{}, fmt.Errorf("oicp: Address missing")
	}
	if err := json.Unmarshal(addrRaw, &rec.Address); err != nil {
		return EVSEDataRecord{}, fmt.Errorf("oicp: Address malformed: %w", err)
	}
	if rec.Address.Country == "" || rec.Address.City == "" || rec.Address.Street == "" || rec.Address.PostalCode == "" {
		return EVSEDataRecord{}, fmt.Errorf("oicp: Address incomplete (Country, City, Street and PostalCode are required)")
	}

	geoRaw, ok := fields.raw("GeoCoordinates")
	if !ok {
		return EVSEDataRecord{}, fmt.Errorf("oicp: GeoCoordinates missing")
	}
	var geoFields fieldMap
	if err := json.Unmarshal(geoRaw, &geoFields); err != nil {
		return EVSEDataRecord{}, fmt.Errorf("oicp: GeoCoordinates malformed: %w", err)
	}
	// Both axes must be on the wire; a defaulted axis would shift the
	// synthesized pool identity.
	if _, ok := geoFields.raw("Latitude"); !ok {
		return EVSEDataRecord{}, fmt.Errorf("oicp: GeoCoordinates.Latitude missing")
	}
	if _, ok := geoFields.raw("Longitude"); !ok {
		return EVSEDataRecord{}, fmt.Errorf("oicp: GeoCoordinates.Longitude missing")
	}
	if err := json.Unmarshal(geoRaw, &rec.GeoCoordinates); err != nil {
		return EVSEDataRecord{}, fmt.Errorf("oicp: GeoCoordinates malformed: %w", err)
	}

	plugs, err := fields.stringList("Plugs")
	if err != nil {
		return EVSEDataRecord{}, err
	}
	if rec.Plugs, err = parseEnumList(plugs, "Plugs", ParsePlug); err != nil {
		return EVSEDataRecord{}, err
	}

	facRaw, ok := fields.raw("ChargingFacilities")
	if !ok {
		return EVSEDataRecord{}, fmt.Errorf("oicp: ChargingFacilities missing or empty")
	}
	if err := json.Unmarshal(facRaw, &rec.ChargingFacilities); err != nil {
		return EVSEDataRecord{}, fmt.Errorf("oicp: ChargingFacilities malformed: %w", err)
	}
	if len(rec.ChargingFacilities) == 0 {
		return EVSEDataRecord{}, fmt.Errorf("oicp: ChargingFacilities missing or empty")
	}
	rec.ChargingFacilities = dedup(rec.ChargingFacilities)

	authModes, err := fields.stringList("AuthenticationModes")
	if err != nil {
		return EVSEDataRecord{}, err
	}
	if rec.AuthenticationModes, err = parseEnumList(authModes, "AuthenticationModes", ParseAuthenticationMode); err != nil {
		return EVSEDataRecord{}, err
	}

	payments, err := fields.stringList("PaymentOptions")
	if err != nil {
		return EVSEDataRecord{}, err
	}
	if rec.PaymentOptions, err = parseEnumList(payments, "PaymentOptions", ParsePaymentOption); err != nil {
		return EVSEDataRecord{}, err
	}

	services, err := fields.stringList("ValueAddedServices")
	if err != nil {
		return EVSEDataRecord{}, err
	}
	if rec.ValueAddedServices, err = parseEnumList(services, "ValueAddedServices", ParseValueAddedService); err != nil {
		return EVSEDataRecord{}, err
	}

	access, err := fields.stringField("Accessibility", true)
	if err != nil {
		return EVSEDataRecord{}, err
	}
	if rec.Accessibility, err = ParseAccessibility(access); err != nil {
		return EVSEDataRecord{}, err
	}

	if rec.HotlinePhoneNumber, err = fields.stringField("HotlinePhoneNumber", true); err != nil {
		return EVSEDataRecord{}, err
	}

	if rec.IsOpen24Hours, err = fields.boolField("IsOpen24Hours", true); err != nil {
		return EVSEDataRecord{}, err
	}
	if rec.OpeningTimes, err = fields.stringField("OpeningTimes", false); err != nil {
		return EVSEDataRecord{}, err
	}

	hubOp, err := fields.stringField("HubOperatorID", false)
	if err != nil {
		return EVSEDataRecord{}, err
	}
	if hubOp != "" {
		if rec.HubOperatorID, err = ParseOperatorID(hubOp); err != nil {
			return EVSEDataRecord{}, fmt.Errorf("oicp: HubOperatorID: %w", err)
		}
	}

	if rec.IsHubjectCompatible, err = fields.boolField("IsHubjectCompatible", false); err != nil {
		return EVSEDataRecord{}, err
	}
	if rec.DynamicInfoAvailable, err = fields.boolField("DynamicInfoAvailable", false); err != nil {
		return EVSEDataRecord{}, err
	}
	if rec.RenewableEnergy, err = fields.boolField("RenewableEnergy", true); err != nil {
		return EVSEDataRecord{}, err
	}

	calib, err := fields.stringField("CalibrationLawDataAvailability", true)
	if err != nil {
		return EVSEDataRecord{}, err
	}
	if rec.CalibrationLawDataAvailability, err = ParseCalibrationLawDataAvailability(calib); err != nil {
		return EVSEDataRecord{}, err
	}

	delta, err := fields.stringField("DeltaType", false)
	if err != nil {
		return EVSEDataRecord{}, err
	}
	if delta != "" {
		if rec.DeltaType, err = ParseDeltaType(delta); err != nil {
			return EVSEDataRecord{}, err
		}
	}

	lastUpdate, err := fields.stringField("LastUpdate", false)
	if err != nil {
		return EVSEDataRecord{}, err
	}
	if lastUpdate != "" {
		t, err := time.Parse(time.RFC3339, lastUpdate)
		if err != nil {
			return EVSEDataRecord{}, fmt.Errorf("oicp: LastUpdate is not an RFC3339 timestamp")
		}
		rec.LastUpdate = t.UTC()
	}

	if c.PostParse != nil {
		rec = c.PostParse(rec)
	}
	return rec, nil
}

type evseDataWire struct {
	EvseID                         string                         `json:"EvseID"`
	OperatorID                     string                         `json:"OperatorID"`
	OperatorName                   string                         `json:"OperatorName,omitempty"`
	ChargingStationID              string                         `json:"ChargingStationID,omitempty"`
	ChargingPoolID                 string                         `json:"ChargingPoolID,omitempty"`
	ChargingStationName            string                         `json:"ChargingStationName,omitempty"`
	Address                        Address                        `json:"Address"`
	GeoCoordinates                 GeoCoordinate                  `json:"GeoCoordinates"`
	Plugs                          []Plug                         `json:"Plugs"`
	ChargingFacilities             []ChargingFacility             `json:"ChargingFacilities"`
	AuthenticationModes            []AuthenticationMode           `json:"AuthenticationModes"`
	PaymentOptions                 []PaymentOption                `json:"PaymentOptions"`
	ValueAddedServices             []ValueAddedService            `json:"ValueAddedServices"`
	Accessibility                  Accessibility                  `json:"Accessibility"`
	HotlinePhoneNumber             string                         `json:"HotlinePhoneNumber"`
	IsOpen24Hours                  bool                           `json:"IsOpen24Hours"`
	OpeningTimes                   string                         `json:"OpeningTimes,omitempty"`
	HubOperatorID                  string                         `json:"HubOperatorID,omitempty"`
	IsHubjectCompatible            bool                           `json:"IsHubjectCompatible"`
	DynamicInfoAvailable           bool                           `json:"DynamicInfoAvailable"`
	RenewableEnergy                bool                           `json:"RenewableEnergy"`
	CalibrationLawDataAvailability CalibrationLawDataAvailability `json:"CalibrationLawDataAvailability"`
	DeltaType                      string                         `json:"DeltaType,omitempty"`
	LastUpdate                     string                         `json:"LastUpdate,omitempty"`
}

// Serialize emits the wire form. Optional fields absent in the record are
// omitted from the payload entirely, never emitted as null.
func (c EVSEDataCodec) Serialize(rec EVSEDataRecord) ([]byte, error) {
	wire := evseDataWire{
		EvseID:                         rec.EvseID.String(),
		OperatorID:                     rec.OperatorID.String(),
		OperatorName:                   rec.OperatorName,
		ChargingStationID:              rec.ChargingStationID.String(),
		ChargingPoolID:                 rec.ChargingPoolID.String(),
		ChargingStationName:            rec.ChargingStationName,
		Address:                        rec.Address,
		GeoCoordinates:                 rec.GeoCoordinates,
		Plugs:                          rec.Plugs,
		ChargingFacilities:             rec.ChargingFacilities,
		AuthenticationModes:            rec.AuthenticationModes,
		PaymentOptions:                 rec.PaymentOptions,
		ValueAddedServices:             rec.ValueAddedServices,
		Accessibility:                  rec.Accessibility,
		HotlinePhoneNumber:             rec.HotlinePhoneNumber,
		IsOpen24Hours:                  rec.IsOpen24Hours,
		OpeningTimes:                   rec.OpeningTimes,
		HubOperatorID:                  rec.HubOperatorID.String(),
		IsHubjectCompatible:            rec.IsHubjectCompatible,
		DynamicInfoAvailable:           rec.DynamicInfoAvailable,
		RenewableEnergy:                rec.RenewableEnergy,
		CalibrationLawDataAvailability: rec.CalibrationLawDataAvailability,
		DeltaType:                      string(rec.DeltaType),
	}
	if !rec.LastUpdate.IsZero() {
		wire.LastUpdate = rec.LastUpdate.UTC().Format(time.RFC3339)
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("oicp: serialize EVSEDataRecord: %w", err)
	}
	if c.PostSerialize != nil {
		payload = c.PostSerialize(payload)
	}
	return payload, nil
}

// BatchError records one element of a batch that failed to parse.
type BatchError struct {
	Index int
	Err   error
}

func (e BatchError) Error() string {
	return fmt.Sprintf("element %d: %v", e.Index, e.Err)
}

// ParseBatch decodes an array of EVSE data records. Individually malformed
// elements are recorded and skipped; the rest of the batch survives.
func (c EVSEDataCodec) ParseBatch(data []byte) ([]EVSEDataRecord, []BatchError) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, []BatchError{{Index: -1, Err: fmt.Errorf("oicp: batch is not a JSON array: %w", err)}}
	}

	records := make([]EVSEDataRecord, 0, len(elems))
	var failures []BatchError
	for i, raw := range elems {
		rec, err := c.Parse(raw)
		if err != nil {
			failures = append(failures, BatchError{Index: i, Err: err})
			continue
		}
		records = append(records, rec)
	}
	return records, failures
}
