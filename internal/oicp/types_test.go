package oicp

import (
	"testing"
)

func TestParseEvseID(t *testing.T) {
	valid := []string{"DE*ABC*E1234*1", "DEABCE1234", "SE*XYZ*E00*5"}
	for _, s := range valid {
		if _, err := ParseEvseID(s); err != nil {
			t.Fatalf("expected %q to parse: %v", s, err)
		}
	}

	invalid := []string{"", "DE*ABC", "1234*E1", "DE*ABCD*E1", "DE*ABC*X1"}
	for _, s := range invalid {
		if _, err := ParseEvseID(s); err == nil {
			t.Fatalf("expected %q to be rejected", s)
		}
	}
}

func TestEvseIDOperatorPrefix(t *testing.T) {
	id, err := ParseEvseID("DE*ABC*E1234*1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	op, err := id.OperatorID()
	if err != nil {
		t.Fatalf("operator prefix: %v", err)
	}
	if op != "DE*ABC" {
		t.Fatalf("unexpected operator %q", op)
	}
	if op.CountryCode() != "DE" {
		t.Fatalf("unexpected country code %q", op.CountryCode())
	}
}

func TestParseOperatorID(t *testing.T) {
	if _, err := ParseOperatorID("DE*ABC"); err != nil {
		t.Fatalf("separator form: %v", err)
	}
	if _, err := ParseOperatorID("DEABC"); err != nil {
		t.Fatalf("compact form: %v", err)
	}
	for _, s := range []string{"", "D*ABC", "DE*AB", "DE*ABCD"} {
		if _, err := ParseOperatorID(s); err == nil {
			t.Fatalf("expected %q to be rejected", s)
		}
	}
}

func TestParseSessionIDLowercasesUUID(t *testing.T) {
	id, err := ParseSessionID("4C634F12-66CF-4F67-98EB-6E73EB3D57D2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != "4c634f12-66cf-4f67-98eb-6e73eb3d57d2" {
		t.Fatalf("expected lowercased session id, got %q", id)
	}
	if _, err := ParseSessionID("not-a-uuid"); err == nil {
		t.Fatal("expected rejection of non-uuid session id")
	}
}

func TestDecimalString(t *testing.T) {
	cases := map[Decimal]string{
		12.5:    "12.5",
		3:       "3",
		0:       "0",
		22.123:  "22.123",
		-0.5:    "-0.5",
		100.100: "100.1",
	}
	for d, want := range cases {
		if got := d.String(); got != want {
			t.Fatalf("Decimal(%v).String() = %q, want %q", float64(d), got, want)
		}
	}
}

func TestDecimalJSONRoundTrip(t *testing.T) {
	d := Decimal(12.5)
	data, err := d.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "12.5" {
		t.Fatalf("expected bare number 12.5, got %s", data)
	}

	var back Decimal
	if err := back.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != d {
		t.Fatalf("round trip changed value: %v vs %v", back, d)
	}

	if err := back.UnmarshalJSON([]byte(`"7.25"`)); err != nil {
		t.Fatalf("unmarshal quoted number: %v", err)
	}
	if back != 7.25 {
		t.Fatalf("unexpected value %v", back)
	}
	if err := back.UnmarshalJSON([]byte(`"abc"`)); err == nil {
		t.Fatal("expected rejection of non-numeric text")
	}
}

func TestParseProductIDCanonicalizes(t *testing.T) {
	cases := map[string]string{
		"D=15min|P=AC1":  "D=15min|P=AC1",
		"P=AC1|D=15min":  "D=15min|P=AC1",
		"Z=1|A=2|D=3":    "D=3|A=2|Z=1",
		"Standard Price": "Standard Price",
	}
	for in, want := range cases {
		id, err := ParseProductID(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if id.String() != want {
			t.Fatalf("ParseProductID(%q) = %q, want %q", in, id, want)
		}
	}
}

func TestParseProductIDRejectsMalformedPairs(t *testing.T) {
	for _, s := range []string{"", "D=1|D=2", "D=|P=AC1", "=15min", "a|b"} {
		if _, err := ParseProductID(s); err == nil {
			t.Fatalf("expected %q to be rejected", s)
		}
	}
}

func TestProductIDPairs(t *testing.T) {
	id, err := ParseProductID("P=AC1|D=15min")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	pairs := id.Pairs()
	if len(pairs) != 2 || pairs[0].Key != "D" || pairs[1].Key != "P" {
		t.Fatalf("unexpected pairs %v", pairs)
	}
	if ProductID("Standard Price").Pairs() != nil {
		t.Fatal("plain id should yield no pairs")
	}
}

func TestOperationResultOutcomesAreExclusive(t *testing.T) {
	ok := Success[int]("req", 42, "pid-1")
	if !ok.IsSuccess() || ok.IsBadRequest() {
		t.Fatal("success result misclassified")
	}
	if ok.Result != 42 || ok.ProcessID != "pid-1" {
		t.Fatalf("unexpected payload %v / %q", ok.Result, ok.ProcessID)
	}
	if len(ok.ValidationErrors) != 0 {
		t.Fatalf("success must carry no validation errors: %v", ok.ValidationErrors)
	}

	failed := Failed[int]("req", 0, "")
	if failed.IsSuccess() || failed.IsBadRequest() {
		t.Fatal("failed result misclassified")
	}

	bad := BadRequest[int]("req", []ValidationError{{Field: "F", Message: "missing"}}, "")
	if !bad.IsBadRequest() || bad.IsSuccess() {
		t.Fatal("bad request misclassified")
	}
	if len(bad.ValidationErrors) != 1 {
		t.Fatalf("expected validation errors to survive: %v", bad.ValidationErrors)
	}
}

func TestBadRequestAlwaysCarriesErrors(t *testing.T) {
	bad := BadRequest[int]("req", nil, "")
	if len(bad.ValidationErrors) == 0 {
		t.Fatal("bad request with empty error list must synthesize one")
	}
}

func TestAcknowledgementResultTracksCode(t *testing.T) {
	ok := NewAcknowledgement(StatusCodeSuccess, "")
	if !ok.Result || ok.StatusCode.Code != StatusCodeSuccess {
		t.Fatalf("unexpected ack %+v", ok)
	}
	rejected := NewAcknowledgement(StatusCodeDataError, "bad data")
	if rejected.Result {
		t.Fatal("non-success ack must carry Result=false")
	}
	if rejected.StatusCode.Description != "bad data" {
		t.Fatalf("description lost: %+v", rejected)
	}
}
