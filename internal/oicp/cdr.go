package oicp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SignedMeteringValue is one calibration-law signed meter reading.
type SignedMeteringValue struct {
	SignedMeteringValue string `json:"SignedMeteringValue"`
	MeteringStatus      string `json:"MeteringStatus,omitempty"` // Start, Progress, End
}

// CalibrationLawVerificationInfo carries the transparency-software material a
// customer needs to verify signed metering values.
type CalibrationLawVerificationInfo struct {
	CalibrationLawCertificateID                 string `json:"CalibrationLawCertificateID,omitempty"`
	PublicKey                                   string `json:"PublicKey,omitempty"`
	MeteringSignatureURL                        string `json:"MeteringSignatureUrl,omitempty"`
	MeteringSignatureEncodingFormat             string `json:"MeteringSignatureEncodingFormat,omitempty"`
	SignedMeteringValuesVerificationInstruction string `json:"SignedMeteringValuesVerificationInstruction,omitempty"`
}

// ChargeDetailRecord is the billing record of one completed charging session.
// Immutable; assemble incrementally with CDRBuilder and finalize once.
type ChargeDetailRecord struct {
	SessionID      SessionID
	EvseID         EvseID
	Identification string
	SessionStart   time.Time
	SessionEnd     time.Time
	ChargingStart  time.Time
	ChargingEnd    time.Time
	ConsumedEnergy Decimal

	PartnerProductID     *ProductID
	CPOPartnerSessionID  *CPOPartnerSessionID
	EMPPartnerSessionID  *EMPPartnerSessionID
	MeterValueStart      *Decimal
	MeterValueEnd        *Decimal
	MeterValuesInBetween []Decimal
	SignedMeteringValues []SignedMeteringValue
	CalibrationLawInfo   *CalibrationLawVerificationInfo
	HubOperatorID        *OperatorID
	HubProviderID        *ProviderID
}

// CDRBuilder assembles a charge detail record while the session is still open.
// Every field is optional until ToImmutable, which checks the mandatory set and
// the ordering invariants in one place.
type CDRBuilder struct {
	SessionID      *SessionID
	EvseID         *EvseID
	Identification *string
	SessionStart   *time.Time
	SessionEnd     *time.Time
	ChargingStart  *time.Time
	ChargingEnd    *time.Time
	ConsumedEnergy *Decimal

	PartnerProductID     *ProductID
	CPOPartnerSessionID  *CPOPartnerSessionID
	EMPPartnerSessionID  *EMPPartnerSessionID
	MeterValueStart      *Decimal
	MeterValueEnd        *Decimal
	MeterValuesInBetween []Decimal
	SignedMeteringValues []SignedMeteringValue
	CalibrationLawInfo   *CalibrationLawVerificationInfo
	HubOperatorID        *OperatorID
	HubProviderID        *ProviderID
}

// ToImmutable validates the builder and returns the finished record. The error
// names the first missing mandatory field, in the documented priority order.
func (b *CDRBuilder) ToImmutable() (ChargeDetailRecord, error) {
	switch {
	case b.SessionID == nil:
		return ChargeDetailRecord{}, ValidationError{Field: "SessionID", Message: "mandatory field missing"}
	case b.EvseID == nil:
		return ChargeDetailRecord{}, ValidationError{Field: "EvseID", Message: "mandatory field missing"}
	case b.Identification == nil || *b.Identification == "":
		return ChargeDetailRecord{}, ValidationError{Field: "Identification", Message: "mandatory field missing"}
	case b.SessionStart == nil:
		return ChargeDetailRecord{}, ValidationError{Field: "SessionStart", Message: "mandatory field missing"}
	case b.SessionEnd == nil:
		return ChargeDetailRecord{}, ValidationError{Field: "SessionEnd", Message: "mandatory field missing"}
	case b.ChargingStart == nil:
		return ChargeDetailRecord{}, ValidationError{Field: "ChargingStart", Message: "mandatory field missing"}
	case b.ChargingEnd == nil:
		return ChargeDetailRecord{}, ValidationError{Field: "ChargingEnd", Message: "mandatory field missing"}
	case b.ConsumedEnergy == nil:
		return ChargeDetailRecord{}, ValidationError{Field: "ConsumedEnergy", Message: "mandatory field missing"}
	}

	if b.SessionEnd.Before(*b.SessionStart) {
		return ChargeDetailRecord{}, ValidationError{Field: "SessionEnd", Message: "must not precede SessionStart"}
	}
	if b.ChargingEnd.Before(*b.ChargingStart) {
		return ChargeDetailRecord{}, ValidationError{Field: "ChargingEnd", Message: "must not precede ChargingStart"}
	}
	if *b.ConsumedEnergy < 0 {
		return ChargeDetailRecord{}, ValidationError{Field: "ConsumedEnergy", Message: "must not be negative"}
	}

	return ChargeDetailRecord{
		SessionID:      *b.SessionID,
		EvseID:         *b.EvseID,
		Identification: *b.Identification,
		SessionStart:   b.SessionStart.UTC(),
		SessionEnd:     b.SessionEnd.UTC(),
		ChargingStart:  b.ChargingStart.UTC(),
		ChargingEnd:    b.ChargingEnd.UTC(),
		ConsumedEnergy: *b.ConsumedEnergy,

		PartnerProductID:     b.PartnerProductID,
		CPOPartnerSessionID:  b.CPOPartnerSessionID,
		EMPPartnerSessionID:  b.EMPPartnerSessionID,
		MeterValueStart:      b.MeterValueStart,
		MeterValueEnd:        b.MeterValueEnd,
		MeterValuesInBetween: append([]Decimal(nil), b.MeterValuesInBetween...),
		SignedMeteringValues: append([]SignedMeteringValue(nil), b.SignedMeteringValues...),
		CalibrationLawInfo:   b.CalibrationLawInfo,
		HubOperatorID:        b.HubOperatorID,
		HubProviderID:        b.HubProviderID,
	}, nil
}

func optionalEqual[T comparable](a, b *T) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// Equal compares structurally. Optionals compare equal only when both absent
// or both present with the same value. Records differing in calibration-law
// verification info are not equal.
func (c ChargeDetailRecord) Equal(other ChargeDetailRecord) bool {
	if c.SessionID != other.SessionID ||
		c.EvseID != other.EvseID ||
		c.Identification != other.Identification ||
		!c.SessionStart.Equal(other.SessionStart) ||
		!c.SessionEnd.Equal(other.SessionEnd) ||
		!c.ChargingStart.Equal(other.ChargingStart) ||
		!c.ChargingEnd.Equal(other.ChargingEnd) ||
		c.ConsumedEnergy != other.ConsumedEnergy {
		return false
	}
	if !optionalEqual(c.PartnerProductID, other.PartnerProductID) ||
		!optionalEqual(c.CPOPartnerSessionID, other.CPOPartnerSessionID) ||
		!optionalEqual(c.EMPPartnerSessionID, other.EMPPartnerSessionID) ||
		!optionalEqual(c.MeterValueStart, other.MeterValueStart) ||
		!optionalEqual(c.MeterValueEnd, other.MeterValueEnd) ||
		!optionalEqual(c.CalibrationLawInfo, other.CalibrationLawInfo) ||
		!optionalEqual(c.HubOperatorID, other.HubOperatorID) ||
		!optionalEqual(c.HubProviderID, other.HubProviderID) {
		return false
	}
	if len(c.MeterValuesInBetween) != len(other.MeterValuesInBetween) {
		return false
	}
	for i := range c.MeterValuesInBetween {
		if c.MeterValuesInBetween[i] != other.MeterValuesInBetween[i] {
			return false
		}
	}
	if len(c.SignedMeteringValues) != len(other.SignedMeteringValues) {
		return false
	}
	for i := range c.SignedMeteringValues {
		if c.SignedMeteringValues[i] != other.SignedMeteringValues[i] {
			return false
		}
	}
	return true
}

// Compare orders lexicographically over mandatory fields, falling through to
// the partner product id only when both sides carry one.
func (c ChargeDetailRecord) Compare(other ChargeDetailRecord) int {
	if v := strings.Compare(c.SessionID.String(), other.SessionID.String()); v != 0 {
		return v
	}
	if v := strings.Compare(c.EvseID.String(), other.EvseID.String()); v != 0 {
		return v
	}
	if c.SessionStart.Before(other.SessionStart) {
		return -1
	}
	if c.SessionStart.After(other.SessionStart) {
		return 1
	}
	if c.SessionEnd.Before(other.SessionEnd) {
		return -1
	}
	if c.SessionEnd.After(other.SessionEnd) {
		return 1
	}
	if c.PartnerProductID != nil && other.PartnerProductID != nil {
		return strings.Compare(c.PartnerProductID.String(), other.PartnerProductID.String())
	}
	return 0
}

// CDRCodec parses and serializes charge detail records.
type CDRCodec struct {
	PostParse     func(ChargeDetailRecord) ChargeDetailRecord
	PostSerialize func([]byte) []byte
}

func (f fieldMap) timeField(name string, required bool) (time.Time, error) {
	s, err := f.stringField(name, required)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("oicp: %s is not an RFC3339 timestamp", name)
	}
	return t.UTC(), nil
}

func (f fieldMap) decimalField(name string) (*Decimal, error) {
	v, ok := f.raw(name)
	if !ok {
		return nil, nil
	}
	var d Decimal
	if err := json.Unmarshal(v, &d); err != nil {
		return nil, fmt.Errorf("oicp: %s is not a decimal", name)
	}
	return &d, nil
}

// Parse decodes one CDR via the builder, so parsing enforces the same
// mandatory-field and ordering checks as local construction.
func (c CDRCodec) Parse(data []byte) (ChargeDetailRecord, error) {
	var fields fieldMap
	if err := json.Unmarshal(data, &fields); err != nil {
		return ChargeDetailRecord{}, fmt.Errorf("oicp: ChargeDetailRecord is not a JSON object: %w", err)
	}

	var b CDRBuilder

	if s, err := fields.stringField("SessionID", true); err != nil {
		return ChargeDetailRecord{}, err
	} else if id, err := ParseSessionID(s); err != nil {
		return ChargeDetailRecord{}, err
	} else {
		b.SessionID = &id
	}

	if s, err := fields.stringField("EvseID", true); err != nil {
		return ChargeDetailRecord{}, err
	} else if id, err := ParseEvseID(s); err != nil {
		return ChargeDetailRecord{}, err
	} else {
		b.EvseID = &id
	}

	if s, err := fields.stringField("Identification", true); err != nil {
		return ChargeDetailRecord{}, err
	} else {
		b.Identification = &s
	}

	// Checked in declaration order so a record missing several timestamps
	// always reports the same one.
	for _, tf := range []struct {
		name string
		dst  **time.Time
	}{
		{"SessionStart", &b.SessionStart},
		{"SessionEnd", &b.SessionEnd},
		{"ChargingStart", &b.ChargingStart},
		{"ChargingEnd", &b.ChargingEnd},
	} {
		t, err := fields.timeField(tf.name, true)
		if err != nil {
			return ChargeDetailRecord{}, err
		}
		tt := t
		*tf.dst = &tt
	}

	energy, err := fields.decimalField("ConsumedEnergy")
	if err != nil {
		return ChargeDetailRecord{}, err
	}
	if energy == nil {
		return ChargeDetailRecord{}, fmt.Errorf("oicp: ConsumedEnergy missing")
	}
	b.ConsumedEnergy = energy

	if s, err := fields.stringField("PartnerProductID", false); err != nil {
		return ChargeDetailRecord{}, err
	} else if s != "" {
		pid, err := ParseProductID(s)
		if err != nil {
			return ChargeDetailRecord{}, fmt.Errorf("oicp: PartnerProductID: %w", err)
		}
		b.PartnerProductID = &pid
	}

	if s, err := fields.stringField("CPOPartnerSessionID", false); err != nil {
		return ChargeDetailRecord{}, err
	} else if s != "" {
		id, err := ParseCPOPartnerSessionID(s)
		if err != nil {
			return ChargeDetailRecord{}, err
		}
		b.CPOPartnerSessionID = &id
	}

	if s, err := fields.stringField("EMPPartnerSessionID", false); err != nil {
		return ChargeDetailRecord{}, err
	} else if s != "" {
		id, err := ParseEMPPartnerSessionID(s)
		if err != nil {
			return ChargeDetailRecord{}, err
		}
		b.EMPPartnerSessionID = &id
	}

	if b.MeterValueStart, err = fields.decimalField("MeterValueStart"); err != nil {
		return ChargeDetailRecord{}, err
	}
	if b.MeterValueEnd, err = fields.decimalField("MeterValueEnd"); err != nil {
		return ChargeDetailRecord{}, err
	}

	if raw, ok := fields.raw("MeterValuesInBetween"); ok {
		if err := json.Unmarshal(raw, &b.MeterValuesInBetween); err != nil {
			return ChargeDetailRecord{}, fmt.Errorf("oicp: MeterValuesInBetween malformed: %w", err)
		}
		b.MeterValuesInBetween = dedup(b.MeterValuesInBetween)
	}

	if raw, ok := fields.raw("SignedMeteringValues"); ok {
		if err := json.Unmarshal(raw, &b.SignedMeteringValues); err != nil {
			return ChargeDetailRecord{}, fmt.Errorf("oicp: SignedMeteringValues malformed: %w", err)
		}
		b.SignedMeteringValues = dedup(b.SignedMeteringValues)
	}

	if raw, ok := fields.raw("CalibrationLawVerificationInfo"); ok {
		var info CalibrationLawVerificationInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return ChargeDetailRecord{}, fmt.Errorf("oicp: CalibrationLawVerificationInfo malformed: %w", err)
		}
		b.CalibrationLawInfo = &info
	}

	if s, err := fields.stringField("HubOperatorID", false); err != nil {
		return ChargeDetailRecord{}, err
	} else if s != "" {
		id, err := ParseOperatorID(s)
		if err != nil {
			return ChargeDetailRecord{}, fmt.Errorf("oicp: HubOperatorID: %w", err)
		}
		b.HubOperatorID = &id
	}

	if s, err := fields.stringField("HubProviderID", false); err != nil {
		return ChargeDetailRecord{}, err
	} else if s != "" {
		id, err := ParseProviderID(s)
		if err != nil {
			return ChargeDetailRecord{}, fmt.Errorf("oicp: HubProviderID: %w", err)
		}
		b.HubProviderID = &id
	}

	rec, err := b.ToImmutable()
	if err != nil {
		return ChargeDetailRecord{}, err
	}
	if c.PostParse != nil {
		rec = c.PostParse(rec)
	}
	return rec, nil
}

type cdrWire struct {
	SessionID      string  `json:"SessionID"`
	EvseID         string  `json:"EvseID"`
	Identification string  `json:"Identification"`
	SessionStart   string  `json:"SessionStart"`
	SessionEnd     string  `json:"SessionEnd"`
	ChargingStart  string  `json:"ChargingStart"`
	ChargingEnd    string  `json:"ChargingEnd"`
	ConsumedEnergy Decimal `json:"ConsumedEnergy"`

	PartnerProductID     string                          `json:"PartnerProductID,omitempty"`
	CPOPartnerSessionID  string                          `json:"CPOPartnerSessionID,omitempty"`
	EMPPartnerSessionID  string                          `json:"EMPPartnerSessionID,omitempty"`
	MeterValueStart      *Decimal                        `json:"MeterValueStart,omitempty"`
	MeterValueEnd        *Decimal                        `json:"MeterValueEnd,omitempty"`
	MeterValuesInBetween []Decimal                       `json:"MeterValuesInBetween,omitempty"`
	SignedMeteringValues []SignedMeteringValue           `json:"SignedMeteringValues,omitempty"`
	CalibrationLawInfo   *CalibrationLawVerificationInfo `json:"CalibrationLawVerificationInfo,omitempty"`
	HubOperatorID        string                          `json:"HubOperatorID,omitempty"`
	HubProviderID        string                          `json:"HubProviderID,omitempty"`
}

// Serialize emits the wire form of a CDR. Absent optionals are omitted.
func (c CDRCodec) Serialize(rec ChargeDetailRecord) ([]byte, error) {
	wire := cdrWire{
		SessionID:      rec.SessionID.String(),
		EvseID:         rec.EvseID.String(),
		Identification: rec.Identification,
		SessionStart:   rec.SessionStart.UTC().Format(time.RFC3339),
		SessionEnd:     rec.SessionEnd.UTC().Format(time.RFC3339),
		ChargingStart:  rec.ChargingStart.UTC().Format(time.RFC3339),
		ChargingEnd:    rec.ChargingEnd.UTC().Format(time.RFC3339),
		ConsumedEnergy: rec.ConsumedEnergy,

		MeterValueStart:      rec.MeterValueStart,
		MeterValueEnd:        rec.MeterValueEnd,
		MeterValuesInBetween: rec.MeterValuesInBetween,
		SignedMeteringValues: rec.SignedMeteringValues,
		CalibrationLawInfo:   rec.CalibrationLawInfo,
	}
	if rec.PartnerProductID != nil {
		wire.PartnerProductID = rec.PartnerProductID.String()
	}
	if rec.CPOPartnerSessionID != nil {
		wire.CPOPartnerSessionID = string(*rec.CPOPartnerSessionID)
	}
	if rec.EMPPartnerSessionID != nil {
		wire.EMPPartnerSessionID = string(*rec.EMPPartnerSessionID)
	}
	if rec.HubOperatorID != nil {
		wire.HubOperatorID = rec.HubOperatorID.String()
	}
	if rec.HubProviderID != nil {
		wire.HubProviderID = rec.HubProviderID.String()
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("oicp: serialize ChargeDetailRecord: %w", err)
	}
	if c.PostSerialize != nil {
		payload = c.PostSerialize(payload)
	}
	return payload, nil
}

// ParseBatch decodes an array of CDRs with per-element isolation.
func (c CDRCodec) ParseBatch(data []byte) ([]ChargeDetailRecord, []BatchError) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, []BatchError{{Index: -1, Err: fmt.Errorf("oicp: batch is not a JSON array: %w", err)}}
	}

	records := make([]ChargeDetailRecord, 0, len(elems))
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
