package oicp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EVSEStatusRecord pairs one charging point with its current status.
type EVSEStatusRecord struct {
	EvseID     EvseID
	Status     EVSEStatus
	CustomData map[string]string // optional extension data
}

// Equal compares by (id, status); custom extension data does not participate.
func (r EVSEStatusRecord) Equal(other EVSEStatusRecord) bool {
	return r.EvseID == other.EvseID && r.Status == other.Status
}

// Compare orders records by id first, then status.
func (r EVSEStatusRecord) Compare(other EVSEStatusRecord) int {
	if c := strings.Compare(r.EvseID.String(), other.EvseID.String()); c != 0 {
		return c
	}
	return strings.Compare(string(r.Status), string(other.Status))
}

// EVSEStatusCodec parses and serializes EVSE status records.
type EVSEStatusCodec struct {
	PostParse     func(EVSEStatusRecord) EVSEStatusRecord
	PostSerialize func([]byte) []byte
}

// Parse decodes one status record, naming the offending field on failure.
func (c EVSEStatusCodec) Parse(data []byte) (EVSEStatusRecord, error) {
	var fields fieldMap
	if err := json.Unmarshal(data, &fields); err != nil {
		return EVSEStatusRecord{}, fmt.Errorf("oicp: EVSEStatusRecord is not a JSON object: %w", err)
	}

	var rec EVSEStatusRecord

	rawID, err := fields.stringField("EvseID", true)
	if err != nil {
		return EVSEStatusRecord{}, err
	}
	if rec.EvseID, err = ParseEvseID(rawID); err != nil {
		return EVSEStatusRecord{}, err
	}

	rawStatus, err := fields.stringField("EvseStatus", true)
	if err != nil {
		return EVSEStatusRecord{}, err
	}
	if rec.Status, err = ParseEVSEStatus(rawStatus); err != nil {
		return EVSEStatusRecord{}, err
	}

	if raw, ok := fields.raw("CustomData"); ok {
		if err := json.Unmarshal(raw, &rec.CustomData); err != nil {
			return EVSEStatusRecord{}, fmt.Errorf("oicp: CustomData malformed: %w", err)
		}
	}

	if c.PostParse != nil {
		rec = c.PostParse(rec)
	}
	return rec, nil
}

type evseStatusWire struct {
	EvseID     string            `json:"EvseID"`
	EvseStatus EVSEStatus        `json:"EvseStatus"`
	CustomData map[string]string `json:"CustomData,omitempty"`
}

// Serialize emits the wire form; CustomData is omitted when absent.
func (c EVSEStatusCodec) Serialize(rec EVSEStatusRecord) ([]byte, error) {
	payload, err := json.Marshal(evseStatusWire{
		EvseID:     rec.EvseID.String(),
		EvseStatus: rec.Status,
		CustomData: rec.CustomData,
	})
	if err != nil {
		return nil, fmt.Errorf("oicp: serialize EVSEStatusRecord: %w", err)
	}
	if c.PostSerialize != nil {
		payload = c.PostSerialize(payload)
	}
	return payload, nil
}

// ParseBatch decodes an array of status records with per-element isolation.
func (c EVSEStatusCodec) ParseBatch(data []byte) ([]EVSEStatusRecord, []BatchError) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, []BatchError{{Index: -1, Err: fmt.Errorf("oicp: batch is not a JSON array: %w", err)}}
	}

	records := make([]EVSEStatusRecord, 0, len(elems))
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
