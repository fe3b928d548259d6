package oicp

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validCDRBuilder() *CDRBuilder {
	sessionID := SessionID("4c634f12-66cf-4f67-98eb-6e73eb3d57d2")
	evseID := EvseID("DE*ABC*E1234*1")
	identification := "DE-8AA-C12345678-9"
	sessionStart := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	sessionEnd := sessionStart.Add(2 * time.Hour)
	chargingStart := sessionStart.Add(5 * time.Minute)
	chargingEnd := sessionEnd.Add(-5 * time.Minute)
	energy := Decimal(18.5)

	return &CDRBuilder{
		SessionID:      &sessionID,
		EvseID:         &evseID,
		Identification: &identification,
		SessionStart:   &sessionStart,
		SessionEnd:     &sessionEnd,
		ChargingStart:  &chargingStart,
		ChargingEnd:    &chargingEnd,
		ConsumedEnergy: &energy,
	}
}

func TestCDRBuilderToImmutable(t *testing.T) {
	rec, err := validCDRBuilder().ToImmutable()
	if err != nil {
		t.Fatalf("finalize valid builder: %v", err)
	}
	if rec.SessionID != "4c634f12-66cf-4f67-98eb-6e73eb3d57d2" {
		t.Fatalf("unexpected session id %q", rec.SessionID)
	}
	if rec.ConsumedEnergy != 18.5 {
		t.Fatalf("unexpected energy %v", rec.ConsumedEnergy)
	}
}

func TestCDRBuilderNamesFirstMissingField(t *testing.T) {
	cases := []struct {
		mutate func(*CDRBuilder)
		field  string
	}{
		{func(b *CDRBuilder) { b.SessionID = nil }, "SessionID"},
		{func(b *CDRBuilder) { b.EvseID = nil }, "EvseID"},
		{func(b *CDRBuilder) { b.Identification = nil }, "Identification"},
		{func(b *CDRBuilder) { b.SessionStart = nil }, "SessionStart"},
		{func(b *CDRBuilder) { b.SessionEnd = nil }, "SessionEnd"},
		{func(b *CDRBuilder) { b.ChargingStart = nil }, "ChargingStart"},
		{func(b *CDRBuilder) { b.ChargingEnd = nil }, "ChargingEnd"},
		{func(b *CDRBuilder) { b.ConsumedEnergy = nil }, "ConsumedEnergy"},
	}
	for _, tc := range cases {
		b := validCDRBuilder()
		tc.mutate(b)
		_, err := b.ToImmutable()
		var verr ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected validation error for missing %s, got %v", tc.field, err)
		}
		if verr.Field != tc.field {
			t.Fatalf("expected error to name %s, got %s", tc.field, verr.Field)
		}
	}

	// Priority: with both SessionID and EvseID missing, SessionID wins.
	b := validCDRBuilder()
	b.SessionID = nil
	b.EvseID = nil
	_, err := b.ToImmutable()
	var verr ValidationError
	if !errors.As(err, &verr) || verr.Field != "SessionID" {
		t.Fatalf("expected SessionID to be reported first, got %v", err)
	}
}

func TestCDRBuilderRejectsInvertedWindows(t *testing.T) {
	b := validCDRBuilder()
	end := b.SessionStart.Add(-time.Minute)
	b.SessionEnd = &end
	_, err := b.ToImmutable()
	var verr ValidationError
	if !errors.As(err, &verr) || verr.Field != "SessionEnd" {
		t.Fatalf("expected SessionEnd ordering error, got %v", err)
	}

	b = validCDRBuilder()
	chargingEnd := b.ChargingStart.Add(-time.Minute)
	b.ChargingEnd = &chargingEnd
	_, err = b.ToImmutable()
	if !errors.As(err, &verr) || verr.Field != "ChargingEnd" {
		t.Fatalf("expected ChargingEnd ordering error, got %v", err)
	}

	b = validCDRBuilder()
	negative := Decimal(-1)
	b.ConsumedEnergy = &negative
	_, err = b.ToImmutable()
	if !errors.As(err, &verr) || verr.Field != "ConsumedEnergy" {
		t.Fatalf("expected ConsumedEnergy error, got %v", err)
	}
}

func TestCDREqualOptionals(t *testing.T) {
	a, err := validCDRBuilder().ToImmutable()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	b := a
	if !a.Equal(b) {
		t.Fatal("identical records must compare equal")
	}

	// Present vs absent optional is a difference.
	pid := ProductID("D=15min|P=AC1")
	b.PartnerProductID = &pid
	if a.Equal(b) {
		t.Fatal("present optional vs absent must not compare equal")
	}

	// Both present with the same value is not.
	a.PartnerProductID = &pid
	if !a.Equal(b) {
		t.Fatal("same optional value must compare equal")
	}

	// Calibration-law info participates in equality.
	b.CalibrationLawInfo = &CalibrationLawVerificationInfo{PublicKey: "key"}
	if a.Equal(b) {
		t.Fatal("differing calibration info must not compare equal")
	}
}

func TestCDRCompareOrdering(t *testing.T) {
	a, _ := validCDRBuilder().ToImmutable()
	b := a
	if a.Compare(b) != 0 {
		t.Fatal("identical records must compare 0")
	}

	b.SessionID = SessionID("ffffffff-66cf-4f67-98eb-6e73eb3d57d2")
	if a.Compare(b) >= 0 {
		t.Fatal("expected a < b by session id")
	}

	// Product id breaks ties only when both sides carry one.
	b = a
	pid := ProductID("D=15min")
	b.PartnerProductID = &pid
	if a.Compare(b) != 0 {
		t.Fatal("one-sided product id must not affect ordering")
	}
}

func TestCDRCodecRoundTrip(t *testing.T) {
	var codec CDRCodec

	rec, _ := validCDRBuilder().ToImmutable()
	start := Decimal(100)
	end := Decimal(118.5)
	rec.MeterValueStart = &start
	rec.MeterValueEnd = &end
	cpo := CPOPartnerSessionID("cpo-session-1")
	rec.CPOPartnerSessionID = &cpo

	payload, err := codec.Serialize(rec)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if strings.Contains(string(payload), "null") {
		t.Fatalf("payload contains null literal: %s", payload)
	}
	if strings.Contains(string(payload), "EMPPartnerSessionID") {
		t.Fatalf("absent optional serialized: %s", payload)
	}

	again, err := codec.Parse(payload)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if !again.Equal(rec) {
		t.Fatalf("round trip changed record:\n%+v\nvs\n%+v", again, rec)
	}
}

func TestCDRCodecParseEnforcesBuilderChecks(t *testing.T) {
	var codec CDRCodec

	// SessionEnd before SessionStart fails with the same field name as local
	// construction.
	payload := `{
		"SessionID": "4c634f12-66cf-4f67-98eb-6e73eb3d57d2",
		"EvseID": "DE*ABC*E1234*1",
		"Identification": "DE-8AA-C12345678-9",
		"SessionStart": "2026-03-01T10:00:00Z",
		"SessionEnd": "2026-03-01T08:00:00Z",
		"ChargingStart": "2026-03-01T10:00:00Z",
		"ChargingEnd": "2026-03-01T10:30:00Z",
		"ConsumedEnergy": 5
	}`
	_, err := codec.Parse([]byte(payload))
	var verr ValidationError
	if !errors.As(err, &verr) || verr.Field != "SessionEnd" {
		t.Fatalf("expected SessionEnd ordering error, got %v", err)
	}
}

func TestCDRCodecParseNamesFirstMissingTimestamp(t *testing.T) {
	var codec CDRCodec

	// With every timestamp absent the error always points at SessionStart,
	// regardless of how many fields are missing.
	payload := `{
		"SessionID": "4c634f12-66cf-4f67-98eb-6e73eb3d57d2",
		"EvseID": "DE*ABC*E1234*1",
		"Identification": "DE-8AA-C12345678-9",
		"ConsumedEnergy": 5
	}`
	for i := 0; i < 20; i++ {
		_, err := codec.Parse([]byte(payload))
		if err == nil || !strings.Contains(err.Error(), "SessionStart") {
			t.Fatalf("expected SessionStart error, got %v", err)
		}
	}

	withStart := `{
		"SessionID": "4c634f12-66cf-4f67-98eb-6e73eb3d57d2",
		"EvseID": "DE*ABC*E1234*1",
		"Identification": "DE-8AA-C12345678-9",
		"SessionStart": "2026-03-01T10:00:00Z",
		"ConsumedEnergy": 5
	}`
	for i := 0; i < 20; i++ {
		_, err := codec.Parse([]byte(withStart))
		if err == nil || !strings.Contains(err.Error(), "SessionEnd") {
			t.Fatalf("expected SessionEnd error, got %v", err)
		}
	}
}

func TestCDRCodecParseBatchIsolation(t *testing.T) {
	var codec CDRCodec

	rec, _ := validCDRBuilder().ToImmutable()
	good, err := codec.Serialize(rec)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	batch := "[" + string(good) + `,{"SessionID":"nope"},` + string(good) + "]"

	records, failures := codec.ParseBatch([]byte(batch))
	if len(records) != 2 || len(failures) != 1 {
		t.Fatalf("expected 2 records and 1 failure, got %d / %d", len(records), len(failures))
	}
	if failures[0].Index != 1 {
		t.Fatalf("expected failure at index 1, got %d", failures[0].Index)
	}
}
