package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"roamgate/internal/auth"
	"roamgate/internal/oicp"
	"roamgate/internal/reconcile"
	"roamgate/internal/roaming"
)

type testEnv struct {
	srv   *httptest.Server
	token string
	model *roaming.Model
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zap.NewNop()
	tokens := auth.NewTokenService("test-secret", time.Hour)
	keys := auth.NewKeyStore(bcrypt.MinCost)
	if err := keys.Register("DE-GDF", "api-key-1"); err != nil {
		t.Fatalf("register partner: %v", err)
	}
	model := roaming.NewModel()
	reconciler := reconcile.NewEngine(model, nil, logger)

	server := NewServer(logger, tokens, keys, model, reconciler, nil, nil, nil)
	srv := httptest.NewServer(server.Routes())
	t.Cleanup(srv.Close)

	token, err := tokens.GenerateToken("DE-GDF", "partner")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return &testEnv{srv: srv, token: token, model: model}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte, authorized bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if authorized {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeAckBody(t *testing.T, resp *http.Response) oicp.Acknowledgement {
	t.Helper()
	var ack oicp.Acknowledgement
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	return ack
}

const inboundDataRecord = `{
	"EvseID": "DE*ABC*E1234*1",
	"OperatorID": "DE*ABC",
	"OperatorName": "ABC Charging",
	"Address": {"Country": "DE", "City": "Berlin", "Street": "Invalidenstrasse 12", "PostalCode": "10115"},
	"GeoCoordinates": {"Latitude": 52.531, "Longitude": 13.385},
	"Plugs": ["Type 2 Outlet"],
	"ChargingFacilities": [{"PowerType": "AC_3_PHASE", "Power": 22}],
	"AuthenticationModes": ["REMOTE"],
	"PaymentOptions": ["Contract"],
	"ValueAddedServices": ["None"],
	"Accessibility": "Free publicly accessible",
	"HotlinePhoneNumber": "+493012345678",
	"IsOpen24Hours": true,
	"RenewableEnergy": false,
	"CalibrationLawDataAvailability": "Not Available"
}`

func TestIssueToken(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(map[string]string{"partnerId": "DE-GDF", "apiKey": "api-key-1"})
	resp := env.do(t, http.MethodPost, "/api/v1/token", body, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Token == "" {
		t.Fatal("empty token issued")
	}
}

func TestIssueTokenRejectsWrongKey(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(map[string]string{"partnerId": "DE-GDF", "apiKey": "wrong"})
	resp := env.do(t, http.MethodPost, "/api/v1/token", body, false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestGuardedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/evsedata", []byte(`{}`), false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/api/v1/operators", nil, false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestReceiveEVSEDataReconciles(t *testing.T) {
	env := newTestEnv(t)

	body := []byte(`{"ActionType":"fullLoad","EvseDataRecords":[` + inboundDataRecord + `]}`)
	resp := env.do(t, http.MethodPost, "/api/v1/evsedata", body, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	ack := decodeAckBody(t, resp)
	if !ack.Result || ack.StatusCode.Code != oicp.StatusCodeSuccess {
		t.Fatalf("unexpected ack %+v", ack)
	}

	op, ok := env.model.FindOperator("DE*ABC")
	if !ok {
		t.Fatal("operator not reconciled into model")
	}
	if len(op.Pools()) != 1 {
		t.Fatalf("expected 1 pool, got %d", len(op.Pools()))
	}
}

func TestReceiveEVSEDataAllMalformed(t *testing.T) {
	env := newTestEnv(t)

	body := []byte(`{"ActionType":"update","EvseDataRecords":[{"EvseID":"broken"}]}`)
	resp := env.do(t, http.MethodPost, "/api/v1/evsedata", body, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	ack := decodeAckBody(t, resp)
	if ack.Result || ack.StatusCode.Code != oicp.StatusCodeDataError {
		t.Fatalf("unexpected ack %+v", ack)
	}
}

func TestReceiveEVSEStatus(t *testing.T) {
	env := newTestEnv(t)

	body := []byte(`{"EvseStatusRecords":[{"EvseID":"DE*ABC*E1234*1","EvseStatus":"Available"}]}`)
	resp := env.do(t, http.MethodPost, "/api/v1/evsestatus", body, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	ack := decodeAckBody(t, resp)
	if !ack.Result {
		t.Fatalf("unexpected ack %+v", ack)
	}
}

func TestAuthorizeStartUnknownEVSE(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(map[string]string{
		"ProviderID":     "DE-GDF",
		"EvseID":         "DE*ABC*E9999*9",
		"SessionID":      "4c634f12-66cf-4f67-98eb-6e73eb3d57d2",
		"Identification": "DE-8AA-C12345678-9",
	})
	resp := env.do(t, http.MethodPost, "/api/v1/authorize/start", body, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	ack := decodeAckBody(t, resp)
	if ack.StatusCode.Code != oicp.StatusCodeDataError {
		t.Fatalf("unexpected ack %+v", ack)
	}
}

func TestAuthorizeStartKnownEVSE(t *testing.T) {
	env := newTestEnv(t)

	// Seed the model through the data endpoint first.
	seed := []byte(`{"ActionType":"fullLoad","EvseDataRecords":[` + inboundDataRecord + `]}`)
	if resp := env.do(t, http.MethodPost, "/api/v1/evsedata", seed, true); resp.StatusCode != http.StatusOK {
		t.Fatalf("seed failed with status %d", resp.StatusCode)
	}

	body, _ := json.Marshal(map[string]string{
		"ProviderID":     "DE-GDF",
		"EvseID":         "DE*ABC*E1234*1",
		"SessionID":      "4c634f12-66cf-4f67-98eb-6e73eb3d57d2",
		"Identification": "DE-8AA-C12345678-9",
	})
	resp := env.do(t, http.MethodPost, "/api/v1/authorize/start", body, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	ack := decodeAckBody(t, resp)
	if !ack.Result || ack.SessionID != "4c634f12-66cf-4f67-98eb-6e73eb3d57d2" {
		t.Fatalf("unexpected ack %+v", ack)
	}
}

func TestAuthorizeStartValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/authorize/start", []byte(`{}`), true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var out struct {
		ValidationErrors []oicp.ValidationError `json:"ValidationErrors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.ValidationErrors) != 4 {
		t.Fatalf("expected four validation errors, got %v", out.ValidationErrors)
	}
}

func TestListOperators(t *testing.T) {
	env := newTestEnv(t)

	seed := []byte(`{"ActionType":"fullLoad","EvseDataRecords":[` + inboundDataRecord + `]}`)
	env.do(t, http.MethodPost, "/api/v1/evsedata", seed, true)

	resp := env.do(t, http.MethodGet, "/api/v1/operators", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var snaps []roaming.OperatorSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snaps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snaps) != 1 || snaps[0].ID != "DE*ABC" || snaps[0].EVSEs != 1 {
		t.Fatalf("unexpected snapshot %v", snaps)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/healthz", nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}
