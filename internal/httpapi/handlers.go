package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"roamgate/internal/oicp"
	"roamgate/internal/stream"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAck(w http.ResponseWriter, code oicp.StatusCode, description string) {
	status := http.StatusOK
	if code != oicp.StatusCodeSuccess {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, oicp.NewAcknowledgement(code, description))
}

type tokenRequest struct {
	PartnerID string `json:"partnerId"`
	APIKey    string `json:"apiKey"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// IssueToken exchanges a partner API key for a JWT.
func (s *Server) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	if err := s.keys.Verify(req.PartnerID, req.APIKey); err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	token, err := s.tokens.GenerateToken(req.PartnerID, "partner")
	if err != nil {
		s.logger.Error("failed to issue token", zap.Error(err))
		http.Error(w, "token error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

type pushDataBody struct {
	ActionType      string          `json:"ActionType"`
	EvseDataRecords json.RawMessage `json:"EvseDataRecords"`
}

// ReceiveEVSEData accepts a pushed EVSE data batch and reconciles it into the
// network model. Malformed elements are reported, not fatal.
func (s *Server) ReceiveEVSEData(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeAck(w, oicp.StatusCodeSystemError, "failed to read body")
		return
	}

	var push pushDataBody
	if err := json.Unmarshal(body, &push); err != nil {
		writeAck(w, oicp.StatusCodeDataError, "malformed push body")
		return
	}

	records, failures := s.dataCodec.ParseBatch(push.EvseDataRecords)
	for _, f := range failures {
		s.logger.Warn("rejected EVSE data record", zap.Int("index", f.Index), zap.Error(f.Err))
	}
	if len(records) == 0 && len(failures) > 0 {
		writeAck(w, oicp.StatusCodeDataError, "no parsable records in batch")
		return
	}

	summary := s.reconciler.Reconcile(r.Context(), records)
	s.logger.Info("reconciled inbound EVSE data",
		zap.Int("records", len(records)),
		zap.Int("rejected", len(failures)),
		zap.Int("pools_created", summary.PoolsCreated),
		zap.Int("stations_created", summary.StationsCreated),
		zap.Int("evses_created", summary.EVSEsCreated),
		zap.Int("errors", len(summary.Errors)))

	if s.hub != nil {
		s.hub.Broadcast(r.Context(), stream.Event{Kind: "reconciliation", Payload: summary})
	}
	writeAck(w, oicp.StatusCodeSuccess, "")
}

type pushStatusBody struct {
	ActionType        string          `json:"ActionType"`
	EvseStatusRecords json.RawMessage `json:"EvseStatusRecords"`
}

// ReceiveEVSEStatus accepts a pushed status batch, updates the cache and
// broadcasts the changes.
func (s *Server) ReceiveEVSEStatus(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeAck(w, oicp.StatusCodeSystemError, "failed to read body")
		return
	}

	var push pushStatusBody
	if err := json.Unmarshal(body, &push); err != nil {
		writeAck(w, oicp.StatusCodeDataError, "malformed push body")
		return
	}

	records, failures := s.statusCodec.ParseBatch(push.EvseStatusRecords)
	for _, f := range failures {
		s.logger.Warn("rejected EVSE status record", zap.Int("index", f.Index), zap.Error(f.Err))
	}
	if len(records) == 0 && len(failures) > 0 {
		writeAck(w, oicp.StatusCodeDataError, "no parsable records in batch")
		return
	}

	changed := records
	if s.statusCache != nil {
		changed, err = s.statusCache.Changed(r.Context(), records)
		if err != nil {
			s.logger.Warn("status cache unavailable, treating all records as changed", zap.Error(err))
			changed = records
		}
	}

	if s.hub != nil {
		for _, rec := range changed {
			s.hub.Broadcast(r.Context(), stream.Event{Kind: "evse-status", Payload: map[string]string{
				"evseId": rec.EvseID.String(),
				"status": string(rec.Status),
			}})
		}
	}
	writeAck(w, oicp.StatusCodeSuccess, "")
}

type authorizeBody struct {
	ProviderID     string `json:"ProviderID"`
	EvseID         string `json:"EvseID"`
	SessionID      string `json:"SessionID"`
	Identification string `json:"Identification"`
}

func (b authorizeBody) validate(requireIdentification bool) []oicp.ValidationError {
	var errs []oicp.ValidationError
	if _, err := oicp.ParseProviderID(b.ProviderID); err != nil {
		errs = append(errs, oicp.ValidationError{Field: "ProviderID", Message: "missing or malformed"})
	}
	if _, err := oicp.ParseEvseID(b.EvseID); err != nil {
		errs = append(errs, oicp.ValidationError{Field: "EvseID", Message: "missing or malformed"})
	}
	if _, err := oicp.ParseSessionID(b.SessionID); err != nil {
		errs = append(errs, oicp.ValidationError{Field: "SessionID", Message: "missing or malformed"})
	}
	if requireIdentification && b.Identification == "" {
		errs = append(errs, oicp.ValidationError{Field: "Identification", Message: "mandatory field missing"})
	}
	return errs
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, start bool) {
	var body authorizeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAck(w, oicp.StatusCodeDataError, "malformed body")
		return
	}
	if errs := body.validate(start); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"StatusCode":       oicp.StatusBlock{Code: oicp.StatusCodeInvalidRequest, Description: "validation failed"},
			"ValidationErrors": errs,
		})
		return
	}

	evseID := oicp.EvseID(body.EvseID)
	known := false
	for _, op := range s.model.Operators() {
		op.View(func() {
			for _, pool := range op.Pools() {
				for _, station := range pool.Stations() {
					if _, ok := station.FindEVSE(evseID); ok {
						known = true
					}
				}
			}
		})
	}
	if !known {
		writeAck(w, oicp.StatusCodeDataError, "unknown EVSE "+body.EvseID)
		return
	}

	action := "remote-stop"
	if start {
		action = "remote-start"
	}
	s.logger.Info("authorized remote session command",
		zap.String("action", action),
		zap.String("session_id", body.SessionID),
		zap.String("evse_id", body.EvseID))

	ack := oicp.NewAcknowledgement(oicp.StatusCodeSuccess, "")
	ack.SessionID = oicp.SessionID(body.SessionID)
	writeJSON(w, http.StatusOK, ack)
}

// AuthorizeStart handles an inbound remote session start.
func (s *Server) AuthorizeStart(w http.ResponseWriter, r *http.Request) {
	s.authorize(w, r, true)
}

// AuthorizeStop handles an inbound remote session stop.
func (s *Server) AuthorizeStop(w http.ResponseWriter, r *http.Request) {
	s.authorize(w, r, false)
}

// ReceiveCDR accepts a partner-submitted charge detail record and archives it.
func (s *Server) ReceiveCDR(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeAck(w, oicp.StatusCodeSystemError, "failed to read body")
		return
	}

	cdr, err := s.cdrCodec.Parse(body)
	if err != nil {
		writeAck(w, oicp.StatusCodeDataError, err.Error())
		return
	}

	claims, _ := ClaimsFromContext(r.Context())
	providerID := oicp.ProviderID("")
	if claims != nil {
		if id, err := oicp.ParseProviderID(claims.PartnerID); err == nil {
			providerID = id
		}
	}

	if s.cdrs != nil {
		if err := s.cdrs.Insert(r.Context(), providerID, cdr); err != nil {
			s.logger.Error("failed to archive cdr", zap.String("session_id", cdr.SessionID.String()), zap.Error(err))
			writeAck(w, oicp.StatusCodeSystemError, "archive failure")
			return
		}
	}

	ack := oicp.NewAcknowledgement(oicp.StatusCodeSuccess, "")
	ack.SessionID = cdr.SessionID
	writeJSON(w, http.StatusOK, ack)
}

// ListOperators reports the reconciled hierarchy summaries.
func (s *Server) ListOperators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.model.Snapshot())
}
