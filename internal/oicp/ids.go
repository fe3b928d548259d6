package oicp

import (
	"fmt"
	"regexp"
	"strings"
)

// Identifier formats follow the roaming protocol's published grammar. Every
// constructor validates; an invalid string never becomes a typed identifier.
var (
	operatorIDPattern = regexp.MustCompile(`^([A-Za-z]{2})\*?([A-Za-z0-9]{3})$`)
	providerIDPattern = regexp.MustCompile(`^([A-Za-z]{2})[*-]?([A-Za-z0-9]{3})$`)
	evseIDPattern     = regexp.MustCompile(`^([A-Za-z]{2}\*?[A-Za-z0-9]{3})\*?E([A-Za-z0-9*]{1,30})$`)
	sessionIDPattern  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// OperatorID identifies a charge point operator, e.g. "DE*ABC".
type OperatorID string

// ParseOperatorID validates and returns a typed operator id.
func ParseOperatorID(s string) (OperatorID, error) {
	if !operatorIDPattern.MatchString(s) {
		return "", fmt.Errorf("oicp: invalid OperatorID %q", s)
	}
	return OperatorID(s), nil
}

// CountryCode returns the two-letter country prefix, upper-cased.
func (id OperatorID) CountryCode() string {
	m := operatorIDPattern.FindStringSubmatch(string(id))
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

func (id OperatorID) String() string { return string(id) }

// ProviderID identifies an e-mobility provider, e.g. "DE-GDF".
type ProviderID string

// ParseProviderID validates and returns a typed provider id.
func ParseProviderID(s string) (ProviderID, error) {
	if !providerIDPattern.MatchString(s) {
		return "", fmt.Errorf("oicp: invalid ProviderID %q", s)
	}
	return ProviderID(s), nil
}

func (id ProviderID) String() string { return string(id) }

// EvseID identifies a single charging point, e.g. "DE*ABC*E1234*1".
type EvseID string

// ParseEvseID validates and returns a typed EVSE id.
func ParseEvseID(s string) (EvseID, error) {
	if !evseIDPattern.MatchString(s) {
		return "", fmt.Errorf("oicp: invalid EvseID %q", s)
	}
	return EvseID(s), nil
}

// OperatorID extracts the operator prefix of the EVSE id.
func (id EvseID) OperatorID() (OperatorID, error) {
	m := evseIDPattern.FindStringSubmatch(string(id))
	if m == nil {
		return "", fmt.Errorf("oicp: invalid EvseID %q", string(id))
	}
	return ParseOperatorID(m[1])
}

func (id EvseID) String() string { return string(id) }

// SessionID is the protocol-level charging session identifier (UUID form).
type SessionID string

// ParseSessionID validates and returns a typed session id.
func ParseSessionID(s string) (SessionID, error) {
	if !sessionIDPattern.MatchString(s) {
		return "", fmt.Errorf("oicp: invalid SessionID %q", s)
	}
	return SessionID(strings.ToLower(s)), nil
}

func (id SessionID) String() string { return string(id) }

// CPOPartnerSessionID is the CPO-assigned session correlation id.
type CPOPartnerSessionID string

// EMPPartnerSessionID is the EMP-assigned session correlation id.
type EMPPartnerSessionID string

// ParseCPOPartnerSessionID validates length constraints of the CPO session id.
func ParseCPOPartnerSessionID(s string) (CPOPartnerSessionID, error) {
	if err := validatePartnerSessionID(s); err != nil {
		return "", fmt.Errorf("oicp: invalid CPOPartnerSessionID: %w", err)
	}
	return CPOPartnerSessionID(s), nil
}

// ParseEMPPartnerSessionID validates length constraints of the EMP session id.
func ParseEMPPartnerSessionID(s string) (EMPPartnerSessionID, error) {
	if err := validatePartnerSessionID(s); err != nil {
		return "", fmt.Errorf("oicp: invalid EMPPartnerSessionID: %w", err)
	}
	return EMPPartnerSessionID(s), nil
}

func validatePartnerSessionID(s string) error {
	if s == "" {
		return fmt.Errorf("empty")
	}
	if len(s) > 250 {
		return fmt.Errorf("longer than 250 characters")
	}
	return nil
}

// PoolID identifies a charging pool in the network model. Pools received over
// the wire usually carry no id of their own; see reconcile.SynthesizePoolID.
type PoolID string

func (id PoolID) String() string { return string(id) }

// StationID identifies a charging station in the network model.
type StationID string

func (id StationID) String() string { return string(id) }
