package oicp

import "fmt"

// Enumerations are parsed case-sensitively against the protocol string tables.
// Unknown text is an error, never a silent default.

// EVSEStatus is the operational state of one charging point.
type EVSEStatus string

const (
	StatusAvailable    EVSEStatus = "Available"
	StatusReserved     EVSEStatus = "Reserved"
	StatusOccupied     EVSEStatus = "Occupied"
	StatusOutOfService EVSEStatus = "OutOfService"
	StatusEvseNotFound EVSEStatus = "EvseNotFound"
	StatusUnknown      EVSEStatus = "Unknown"
)

var evseStatusTable = map[string]EVSEStatus{
	"Available":    StatusAvailable,
	"Reserved":     StatusReserved,
	"Occupied":     StatusOccupied,
	"OutOfService": StatusOutOfService,
	"EvseNotFound": StatusEvseNotFound,
	"Unknown":      StatusUnknown,
}

// ParseEVSEStatus maps wire text onto the status enumeration.
func ParseEVSEStatus(s string) (EVSEStatus, error) {
	if v, ok := evseStatusTable[s]; ok {
		return v, nil
	}
	return "", fmt.Errorf("oicp: unknown EVSEStatus %q", s)
}

// Plug is one supported connector type.
type Plug string

const (
	PlugTypeFSchuko          Plug = "Type F Schuko"
	PlugType2Outlet          Plug = "Type 2 Outlet"
	PlugType2Connector       Plug = "Type 2 Connector (Cable Attached)"
	PlugCCSCombo2            Plug = "CCS Combo 2 Plug (Cable Attached)"
	PlugCCSCombo1            Plug = "CCS Combo 1 Plug (Cable Attached)"
	PlugCHAdeMO              Plug = "CHAdeMO"
	PlugTeslaConnector       Plug = "Tesla Connector"
	PlugType1Connector       Plug = "Type 1 Connector (Cable Attached)"
	PlugType3Outlet          Plug = "Type 3 Outlet"
	PlugSmallPaddleInductive Plug = "Small Paddle Inductive"
	PlugLargePaddleInductive Plug = "Large Paddle Inductive"
)

var plugTable = map[string]Plug{
	string(PlugTypeFSchuko):          PlugTypeFSchuko,
	string(PlugType2Outlet):          PlugType2Outlet,
	string(PlugType2Connector):       PlugType2Connector,
	string(PlugCCSCombo2):            PlugCCSCombo2,
	string(PlugCCSCombo1):            PlugCCSCombo1,
	string(PlugCHAdeMO):              PlugCHAdeMO,
	string(PlugTeslaConnector):       PlugTeslaConnector,
	string(PlugType1Connector):       PlugType1Connector,
	string(PlugType3Outlet):          PlugType3Outlet,
	string(PlugSmallPaddleInductive): PlugSmallPaddleInductive,
	string(PlugLargePaddleInductive): PlugLargePaddleInductive,
}

// ParsePlug maps wire text onto the plug enumeration.
func ParsePlug(s string) (Plug, error) {
	if v, ok := plugTable[s]; ok {
		return v, nil
	}
	return "", fmt.Errorf("oicp: unknown Plug %q", s)
}

// AuthenticationMode is one way a customer may authorize at an EVSE.
type AuthenticationMode string

const (
	AuthNFCRFIDClassic AuthenticationMode = "NFC RFID Classic"
	AuthNFCRFIDDESFire AuthenticationMode = "NFC RFID DESFire"
	AuthPnC            AuthenticationMode = "PnC"
	AuthRemote         AuthenticationMode = "REMOTE"
	AuthDirectPayment  AuthenticationMode = "Direct Payment"
	AuthNoneRequired   AuthenticationMode = "No Authentication Required"
)

var authModeTable = map[string]AuthenticationMode{
	string(AuthNFCRFIDClassic): AuthNFCRFIDClassic,
	string(AuthNFCRFIDDESFire): AuthNFCRFIDDESFire,
	string(AuthPnC):            AuthPnC,
	string(AuthRemote):         AuthRemote,
	string(AuthDirectPayment):  AuthDirectPayment,
	string(AuthNoneRequired):   AuthNoneRequired,
}

// ParseAuthenticationMode maps wire text onto the authentication mode enumeration.
func ParseAuthenticationMode(s string) (AuthenticationMode, error) {
	if v, ok := authModeTable[s]; ok {
		return v, nil
	}
	return "", fmt.Errorf("oicp: unknown AuthenticationMode %q", s)
}

// PaymentOption is one accepted payment modality at an EVSE.
type PaymentOption string

const (
	PaymentNoPayment PaymentOption = "No Payment"
	PaymentDirect    PaymentOption = "Direct"
	PaymentContract  PaymentOption = "Contract"
)

var paymentOptionTable = map[string]PaymentOption{
	string(PaymentNoPayment): PaymentNoPayment,
	string(PaymentDirect):    PaymentDirect,
	string(PaymentContract):  PaymentContract,
}

// ParsePaymentOption maps wire text onto the payment option enumeration.
func ParsePaymentOption(s string) (PaymentOption, error) {
	if v, ok := paymentOptionTable[s]; ok {
		return v, nil
	}
	return "", fmt.Errorf("oicp: unknown PaymentOption %q", s)
}

// Accessibility describes who may physically reach an EVSE.
type Accessibility string

const (
	AccessUnspecified  Accessibility = "Unspecified"
	AccessFreePublic   Accessibility = "Free publicly accessible"
	AccessRestricted   Accessibility = "Restricted access"
	AccessPayingPublic Accessibility = "Paying publicly accessible"
	AccessTestStation  Accessibility = "Test Station"
)

var accessibilityTable = map[string]Accessibility{
	string(AccessUnspecified):  AccessUnspecified,
	string(AccessFreePublic):   AccessFreePublic,
	string(AccessRestricted):   AccessRestricted,
	string(AccessPayingPublic): AccessPayingPublic,
	string(AccessTestStation):  AccessTestStation,
}

// ParseAccessibility maps wire text onto the accessibility enumeration.
func ParseAccessibility(s string) (Accessibility, error) {
	if v, ok := accessibilityTable[s]; ok {
		return v, nil
	}
	return "", fmt.Errorf("oicp: unknown Accessibility %q", s)
}

// ValueAddedService is an extra capability advertised for an EVSE.
type ValueAddedService string

const (
	VASReservation                ValueAddedService = "Reservation"
	VASDynamicPricing             ValueAddedService = "DynamicPricing"
	VASParkingSensors             ValueAddedService = "ParkingSensors"
	VASMaximumPowerCharging       ValueAddedService = "MaximumPowerCharging"
	VASPredictiveChargePointUsage ValueAddedService = "PredictiveChargePointUsage"
	VASChargingPlans              ValueAddedService = "ChargingPlans"
	VASRoofProvided               ValueAddedService = "RoofProvided"
	VASNone                       ValueAddedService = "None"
)

var valueAddedServiceTable = map[string]ValueAddedService{
	string(VASReservation):                VASReservation,
	string(VASDynamicPricing):             VASDynamicPricing,
	string(VASParkingSensors):             VASParkingSensors,
	string(VASMaximumPowerCharging):       VASMaximumPowerCharging,
	string(VASPredictiveChargePointUsage): VASPredictiveChargePointUsage,
	string(VASChargingPlans):              VASChargingPlans,
	string(VASRoofProvided):               VASRoofProvided,
	string(VASNone):                       VASNone,
}

// ParseValueAddedService maps wire text onto the value added service enumeration.
func ParseValueAddedService(s string) (ValueAddedService, error) {
	if v, ok := valueAddedServiceTable[s]; ok {
		return v, nil
	}
	return "", fmt.Errorf("oicp: unknown ValueAddedService %q", s)
}

// CalibrationLawDataAvailability states where signed metering data can be obtained.
type CalibrationLawDataAvailability string

const (
	CalibrationLawLocal        CalibrationLawDataAvailability = "Local"
	CalibrationLawExternal     CalibrationLawDataAvailability = "External"
	CalibrationLawNotAvailable CalibrationLawDataAvailability = "Not Available"
)

var calibrationLawTable = map[string]CalibrationLawDataAvailability{
	string(CalibrationLawLocal):        CalibrationLawLocal,
	string(CalibrationLawExternal):     CalibrationLawExternal,
	string(CalibrationLawNotAvailable): CalibrationLawNotAvailable,
}

// ParseCalibrationLawDataAvailability maps wire text onto the enumeration.
func ParseCalibrationLawDataAvailability(s string) (CalibrationLawDataAvailability, error) {
	if v, ok := calibrationLawTable[s]; ok {
		return v, nil
	}
	return "", fmt.Errorf("oicp: unknown CalibrationLawDataAvailability %q", s)
}

// DeltaType tags an inbound EVSE data record with insert/update/delete semantics.
type DeltaType string

const (
	DeltaInsert DeltaType = "insert"
	DeltaUpdate DeltaType = "update"
	DeltaDelete DeltaType = "delete"
)

var deltaTypeTable = map[string]DeltaType{
	string(DeltaInsert): DeltaInsert,
	string(DeltaUpdate): DeltaUpdate,
	string(DeltaDelete): DeltaDelete,
}

// ParseDeltaType maps wire text onto the delta type enumeration.
func ParseDeltaType(s string) (DeltaType, error) {
	if v, ok := deltaTypeTable[s]; ok {
		return v, nil
	}
	return "", fmt.Errorf("oicp: unknown DeltaType %q", s)
}

// ActionType selects full or incremental semantics for a push operation.
type ActionType string

const (
	ActionFullLoad ActionType = "fullLoad"
	ActionUpdate   ActionType = "update"
	ActionInsert   ActionType = "insert"
	ActionDelete   ActionType = "delete"
)

var actionTypeTable = map[string]ActionType{
	string(ActionFullLoad): ActionFullLoad,
	string(ActionUpdate):   ActionUpdate,
	string(ActionInsert):   ActionInsert,
	string(ActionDelete):   ActionDelete,
}

// ParseActionType maps wire text onto the action type enumeration.
func ParseActionType(s string) (ActionType, error) {
	if v, ok := actionTypeTable[s]; ok {
		return v, nil
	}
	return "", fmt.Errorf("oicp: unknown ActionType %q", s)
}

// ChargingFacility describes one power delivery capability of an EVSE.
type ChargingFacility struct {
	PowerType string  `json:"PowerType"`
	Power     Decimal `json:"Power"`
}
