package reconcile

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"go.uber.org/zap"

	"roamgate/internal/oicp"
	"roamgate/internal/roaming"
)

// StationGrouper resolves the station-grouping key for one record. The wire
// format does not always carry an explicit station id; the contract here is
// only that the returned key is stable for a given record.
type StationGrouper func(oicp.EVSEDataRecord) oicp.StationID

// DefaultStationGrouper uses the record's station id when present and
// otherwise derives a deterministic key from operator, street and the station
// name prefix.
func DefaultStationGrouper(rec oicp.EVSEDataRecord) oicp.StationID {
	if rec.ChargingStationID != "" {
		return rec.ChargingStationID
	}
	name := rec.ChargingStationName
	if len(name) > 12 {
		name = name[:12]
	}
	key := strings.Join([]string{
		rec.OperatorID.String(),
		normalize(rec.Address.Street),
		normalize(name),
	}, "|")
	h := fnv.New32a()
	h.Write([]byte(key))
	return oicp.StationID(fmt.Sprintf("ST*%s*%08X", rec.OperatorID, h.Sum32()))
}

// SynthesizePoolID computes the deterministic pool identity for a record as a
// pure function of operator, normalized address and geo coordinate. Records
// at the same site resolve to the same pool across passes.
func SynthesizePoolID(operatorID oicp.OperatorID, addr oicp.Address, geo oicp.GeoCoordinate) oicp.PoolID {
	key := strings.Join([]string{
		operatorID.String(),
		normalize(addr.Country),
		normalize(addr.City),
		normalize(addr.Street),
		normalize(addr.PostalCode),
		normalize(addr.HouseNum),
		fmt.Sprintf("%.4f:%.4f", float64(geo.Latitude), float64(geo.Longitude)),
	}, "|")
	h := fnv.New64a()
	h.Write([]byte(key))
	return oicp.PoolID(fmt.Sprintf("PL*%s*%012X", operatorID, h.Sum64()&0xFFFFFFFFFFFF))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// CPInfo groups one candidate pool's constituent records during a pass.
type CPInfo struct {
	PoolID   oicp.PoolID
	Address  oicp.Address
	Location oicp.GeoCoordinate
	// Members lists the EVSE ids observed per resolved station id.
	Members map[oicp.StationID][]oicp.EvseID
}

type lookupEntry struct {
	poolID       oicp.PoolID
	poolAddress  oicp.Address
	poolLocation oicp.GeoCoordinate
	stationID    oicp.StationID
}

// evseIDLookup is the flattened index from raw EVSE id to resolved hierarchy
// position. Rebuilt from scratch for every batch; never reused across passes.
type evseIDLookup map[oicp.EvseID]lookupEntry

// RecordError is one isolated per-record reconciliation failure.
type RecordError struct {
	EvseID oicp.EvseID
	Err    error
}

// Summary reports what one reconciliation pass did.
type Summary struct {
	OperatorsCreated int
	PoolsCreated     int
	PoolsUpdated     int
	StationsCreated  int
	StationsUpdated  int
	EVSEsCreated     int
	EVSEsUpdated     int
	Errors           []RecordError
}

// Engine folds flat EVSE data record batches into the network model. Entities
// absent from a batch are never deleted; pulls are not guaranteed to be
// complete snapshots.
type Engine struct {
	model   *roaming.Model
	grouper StationGrouper
	logger  *zap.Logger
}

// NewEngine builds a reconciliation engine over the network model.
func NewEngine(model *roaming.Model, grouper StationGrouper, logger *zap.Logger) *Engine {
	if grouper == nil {
		grouper = DefaultStationGrouper
	}
	return &Engine{
		model:   model,
		grouper: grouper,
		logger:  logger,
	}
}

// Reconcile processes one inbound batch. Failures are isolated per operator
// group, per lookup entry and per record; one bad record never aborts the
// batch. Within a batch, the last record processed wins conflicting
// station-level attributes.
func (e *Engine) Reconcile(ctx context.Context, records []oicp.EVSEDataRecord) Summary {
	var summary Summary

	groups := make(map[oicp.OperatorID][]oicp.EVSEDataRecord)
	var order []oicp.OperatorID
	for _, rec := range records {
		if _, ok := groups[rec.OperatorID]; !ok {
			order = append(order, rec.OperatorID)
		}
		groups[rec.OperatorID] = append(groups[rec.OperatorID], rec)
	}

	for _, opID := range order {
		if err := ctx.Err(); err != nil {
			summary.Errors = append(summary.Errors, RecordError{Err: fmt.Errorf("reconcile: pass cancelled: %w", err)})
			return summary
		}
		e.reconcileOperator(opID, groups[opID], &summary)
	}
	return summary
}

func (e *Engine) reconcileOperator(opID oicp.OperatorID, records []oicp.EVSEDataRecord, summary *Summary) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("operator group reconciliation panicked",
				zap.String("operator_id", opID.String()), zap.Any("panic", r))
			summary.Errors = append(summary.Errors, RecordError{Err: fmt.Errorf("reconcile: operator %s: %v", opID, r)})
		}
	}()

	operatorName := roaming.LocalizedName{Language: languageForCountry(opID.CountryCode())}
	for _, rec := range records {
		if rec.OperatorName != "" {
			operatorName.Text = rec.OperatorName
			break
		}
	}
	if operatorName.Text == "" {
		operatorName.Text = opID.String()
	}

	op, ok := e.model.FindOperator(opID)
	if !ok {
		op = e.model.CreateOperator(opID, operatorName, nil)
		summary.OperatorsCreated++
	}

	_, lookup := e.buildLookup(opID, records, summary)

	op.Update(func() {
		if ok {
			// Existing operators only get their name refreshed.
			op.Name = operatorName
		}
		for _, rec := range records {
			e.upsertRecord(op, lookup, rec, summary)
		}
	})
}

// buildLookup groups records into CPInfo entries and flattens them into the
// per-pass EVSE id index. Stale entries from earlier passes never survive
// because the index is rebuilt wholesale.
func (e *Engine) buildLookup(opID oicp.OperatorID, records []oicp.EVSEDataRecord, summary *Summary) (map[oicp.PoolID]*CPInfo, evseIDLookup) {
	infos := make(map[oicp.PoolID]*CPInfo)
	lookup := make(evseIDLookup, len(records))

	for _, rec := range records {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Warn("lookup construction failed for record",
						zap.String("evse_id", rec.EvseID.String()), zap.Any("panic", r))
					summary.Errors = append(summary.Errors, RecordError{
						EvseID: rec.EvseID,
						Err:    fmt.Errorf("reconcile: lookup for %s: %v", rec.EvseID, r),
					})
				}
			}()

			poolID := rec.ChargingPoolID
			if poolID == "" {
				poolID = SynthesizePoolID(opID, rec.Address, rec.GeoCoordinates)
			}
			info, ok := infos[poolID]
			if !ok {
				info = &CPInfo{
					PoolID:   poolID,
					Address:  rec.Address,
					Location: rec.GeoCoordinates,
					Members:  make(map[oicp.StationID][]oicp.EvseID),
				}
				infos[poolID] = info
			}

			stationID := e.grouper(rec)
			info.Members[stationID] = append(info.Members[stationID], rec.EvseID)
			lookup[rec.EvseID] = lookupEntry{
				poolID:       poolID,
				poolAddress:  info.Address,
				poolLocation: info.Location,
				stationID:    stationID,
			}
		}()
	}
	return infos, lookup
}

func (e *Engine) upsertRecord(op *roaming.Operator, lookup evseIDLookup, rec oicp.EVSEDataRecord, summary *Summary) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("record upsert panicked",
				zap.String("evse_id", rec.EvseID.String()), zap.Any("panic", r))
			summary.Errors = append(summary.Errors, RecordError{
				EvseID: rec.EvseID,
				Err:    fmt.Errorf("reconcile: upsert %s: %v", rec.EvseID, r),
			})
		}
	}()

	entry, ok := lookup[rec.EvseID]
	if !ok {
		summary.Errors = append(summary.Errors, RecordError{
			EvseID: rec.EvseID,
			Err:    fmt.Errorf("reconcile: %s missing from lookup index", rec.EvseID),
		})
		return
	}

	locationLanguage := languageForCountry(rec.Address.Country)
	stationNameLanguage := languageForCountry(rec.Address.Country)

	applyPool := func(p *roaming.Pool) {
		p.Description = rec.ChargingStationName
		p.OpeningTimes = rec.OpeningTimes
		p.Open24Hours = rec.IsOpen24Hours
		p.AuthenticationModes = append([]oicp.AuthenticationMode(nil), rec.AuthenticationModes...)
		p.PaymentOptions = append([]oicp.PaymentOption(nil), rec.PaymentOptions...)
		p.Accessibility = rec.Accessibility
		p.HotlinePhoneNumber = rec.HotlinePhoneNumber
		p.DisplayLanguage = locationLanguage
	}

	pool, found := op.FindPool(entry.poolID)
	if !found {
		pool = op.CreatePool(entry.poolID, func(p *roaming.Pool) {
			p.Address = entry.poolAddress
			p.GeoLocation = entry.poolLocation
			applyPool(p)
		})
		summary.PoolsCreated++
	} else {
		applyPool(pool)
		summary.PoolsUpdated++
	}

	applyStation := func(s *roaming.Station) {
		s.Name = roaming.LocalizedName{Language: stationNameLanguage, Text: rec.ChargingStationName}
		s.Description = rec.ChargingStationName
		s.AuthenticationModes = append([]oicp.AuthenticationMode(nil), rec.AuthenticationModes...)
		s.PaymentOptions = append([]oicp.PaymentOption(nil), rec.PaymentOptions...)
		s.Accessibility = rec.Accessibility
		s.HotlinePhoneNumber = rec.HotlinePhoneNumber
		s.HubjectCompatible = rec.IsHubjectCompatible
		s.DynamicInfoAvailable = rec.DynamicInfoAvailable
	}

	station, found := pool.FindStation(entry.stationID)
	if !found {
		station = pool.CreateStation(entry.stationID, applyStation)
		summary.StationsCreated++
	} else {
		applyStation(station)
		summary.StationsUpdated++
	}

	applyEVSE := func(ev *roaming.EVSE) {
		ev.Description = rec.ChargingStationName
		ev.SocketOutlets = append([]oicp.Plug(nil), rec.Plugs...)
		ev.ChargingFacilities = append([]oicp.ChargingFacility(nil), rec.ChargingFacilities...)
	}

	if ev, found := station.FindEVSE(rec.EvseID); found {
		applyEVSE(ev)
		summary.EVSEsUpdated++
	} else {
		station.CreateEVSE(rec.EvseID, applyEVSE)
		summary.EVSEsCreated++
	}
}
