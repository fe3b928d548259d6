package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"

	"roamgate/internal/oicp"
	"roamgate/internal/roaming"
)

func testRecord(evseID oicp.EvseID, mutate func(*oicp.EVSEDataRecord)) oicp.EVSEDataRecord {
	rec := oicp.EVSEDataRecord{
		EvseID:              evseID,
		OperatorID:          "DE*ABC",
		OperatorName:        "ABC Charging",
		ChargingStationName: "Hauptbahnhof Nord",
		Address: oicp.Address{
			Country:    "DE",
			City:       "Berlin",
			Street:     "Invalidenstrasse 12",
			PostalCode: "10115",
		},
		GeoCoordinates:                 oicp.GeoCoordinate{Latitude: 52.531, Longitude: 13.385},
		Plugs:                          []oicp.Plug{oicp.PlugType2Outlet},
		ChargingFacilities:             []oicp.ChargingFacility{{PowerType: "AC_3_PHASE", Power: 22}},
		AuthenticationModes:            []oicp.AuthenticationMode{oicp.AuthRemote},
		PaymentOptions:                 []oicp.PaymentOption{oicp.PaymentContract},
		ValueAddedServices:             []oicp.ValueAddedService{oicp.VASNone},
		Accessibility:                  oicp.AccessFreePublic,
		HotlinePhoneNumber:             "+493012345678",
		IsOpen24Hours:                  true,
		CalibrationLawDataAvailability: oicp.CalibrationLawNotAvailable,
	}
	if mutate != nil {
		mutate(&rec)
	}
	return rec
}

func newTestEngine() (*Engine, *roaming.Model) {
	model := roaming.NewModel()
	return NewEngine(model, nil, zap.NewNop()), model
}

func TestReconcileCreatesHierarchy(t *testing.T) {
	engine, model := newTestEngine()

	summary := engine.Reconcile(context.Background(), []oicp.EVSEDataRecord{
		testRecord("DE*ABC*E1234*1", nil),
	})
	if len(summary.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", summary.Errors)
	}
	if summary.OperatorsCreated != 1 || summary.PoolsCreated != 1 || summary.StationsCreated != 1 || summary.EVSEsCreated != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	op, ok := model.FindOperator("DE*ABC")
	if !ok {
		t.Fatal("operator not created")
	}
	if op.Name.Text != "ABC Charging" {
		t.Fatalf("unexpected operator name %q", op.Name.Text)
	}
	if op.Name.Language != "de" {
		t.Fatalf("expected German display language for DE operator, got %q", op.Name.Language)
	}

	pools := op.Pools()
	if len(pools) != 1 {
		t.Fatalf("expected 1 pool, got %d", len(pools))
	}
	if pools[0].Address.City != "Berlin" {
		t.Fatalf("pool address not applied: %+v", pools[0].Address)
	}
	stations := pools[0].Stations()
	if len(stations) != 1 {
		t.Fatalf("expected 1 station, got %d", len(stations))
	}
	evses := stations[0].EVSEs()
	if len(evses) != 1 || evses[0].ID != "DE*ABC*E1234*1" {
		t.Fatalf("unexpected EVSEs %v", evses)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	engine, model := newTestEngine()
	records := []oicp.EVSEDataRecord{
		testRecord("DE*ABC*E1234*1", nil),
		testRecord("DE*ABC*E1234*2", nil),
	}

	engine.Reconcile(context.Background(), records)
	second := engine.Reconcile(context.Background(), records)

	if second.OperatorsCreated != 0 || second.PoolsCreated != 0 || second.StationsCreated != 0 || second.EVSEsCreated != 0 {
		t.Fatalf("second pass created entities: %+v", second)
	}
	if second.EVSEsUpdated != 2 {
		t.Fatalf("expected 2 EVSE updates, got %d", second.EVSEsUpdated)
	}

	op, _ := model.FindOperator("DE*ABC")
	if len(op.Pools()) != 1 {
		t.Fatalf("duplicate pool after second pass: %d", len(op.Pools()))
	}
}

func TestReconcileNeverDeletes(t *testing.T) {
	engine, model := newTestEngine()

	engine.Reconcile(context.Background(), []oicp.EVSEDataRecord{
		testRecord("DE*ABC*E1234*1", nil),
		testRecord("DE*ABC*E1234*2", nil),
	})
	// A later, smaller batch must not remove the absent EVSE.
	engine.Reconcile(context.Background(), []oicp.EVSEDataRecord{
		testRecord("DE*ABC*E1234*1", nil),
	})

	op, _ := model.FindOperator("DE*ABC")
	total := 0
	for _, p := range op.Pools() {
		for _, s := range p.Stations() {
			total += len(s.EVSEs())
		}
	}
	if total != 2 {
		t.Fatalf("expected both EVSEs to survive, got %d", total)
	}
}

func TestReconcileLastWriterWins(t *testing.T) {
	engine, model := newTestEngine()

	engine.Reconcile(context.Background(), []oicp.EVSEDataRecord{
		testRecord("DE*ABC*E1234*1", func(r *oicp.EVSEDataRecord) { r.HotlinePhoneNumber = "+491111" }),
		testRecord("DE*ABC*E1234*2", func(r *oicp.EVSEDataRecord) { r.HotlinePhoneNumber = "+492222" }),
	})

	op, _ := model.FindOperator("DE*ABC")
	station := op.Pools()[0].Stations()[0]
	if station.HotlinePhoneNumber != "+492222" {
		t.Fatalf("expected last record to win, got %q", station.HotlinePhoneNumber)
	}
}

func TestReconcileGroupsByOperator(t *testing.T) {
	engine, model := newTestEngine()

	summary := engine.Reconcile(context.Background(), []oicp.EVSEDataRecord{
		testRecord("DE*ABC*E1", nil),
		testRecord("SE*XYZ*E1", func(r *oicp.EVSEDataRecord) {
			r.OperatorID = "SE*XYZ"
			r.OperatorName = "XYZ Laddning"
			r.Address.Country = "SE"
			r.Address.City = "Stockholm"
		}),
	})
	if summary.OperatorsCreated != 2 {
		t.Fatalf("expected 2 operators, got %d", summary.OperatorsCreated)
	}

	se, ok := model.FindOperator("SE*XYZ")
	if !ok {
		t.Fatal("swedish operator not created")
	}
	if se.Name.Language != "sv" {
		t.Fatalf("expected Swedish display language, got %q", se.Name.Language)
	}
}

func TestReconcileUnknownCountryLanguage(t *testing.T) {
	engine, model := newTestEngine()

	engine.Reconcile(context.Background(), []oicp.EVSEDataRecord{
		testRecord("US*KLM*E1", func(r *oicp.EVSEDataRecord) {
			r.OperatorID = "US*KLM"
			r.Address.Country = "US"
		}),
	})

	op, _ := model.FindOperator("US*KLM")
	if op.Name.Language != LanguageUnknown {
		t.Fatalf("expected %q for unmapped country, got %q", LanguageUnknown, op.Name.Language)
	}
}

func TestSynthesizePoolIDIsDeterministic(t *testing.T) {
	addr := oicp.Address{Country: "DE", City: "Berlin", Street: "Invalidenstrasse 12", PostalCode: "10115"}
	geo := oicp.GeoCoordinate{Latitude: 52.531, Longitude: 13.385}

	a := SynthesizePoolID("DE*ABC", addr, geo)
	b := SynthesizePoolID("DE*ABC", addr, geo)
	if a != b {
		t.Fatalf("pool id not deterministic: %s vs %s", a, b)
	}

	// Case and spacing of the address must not change the identity.
	messy := addr
	messy.Street = "  INVALIDENSTRASSE   12 "
	if SynthesizePoolID("DE*ABC", messy, geo) != a {
		t.Fatal("address normalization not applied")
	}

	// Noise beyond 4 decimals is still the same site.
	nearby := oicp.GeoCoordinate{Latitude: 52.531004, Longitude: 13.385004}
	if SynthesizePoolID("DE*ABC", addr, nearby) != a {
		t.Fatal("sub-precision coordinate noise must not split the pool")
	}

	other := oicp.GeoCoordinate{Latitude: 48.137, Longitude: 11.575}
	if SynthesizePoolID("DE*ABC", addr, other) == a {
		t.Fatal("distinct coordinates must yield distinct pools")
	}
}

func TestDefaultStationGrouper(t *testing.T) {
	withID := testRecord("DE*ABC*E1", func(r *oicp.EVSEDataRecord) { r.ChargingStationID = "ST-42" })
	if DefaultStationGrouper(withID) != "ST-42" {
		t.Fatal("explicit station id must be used verbatim")
	}

	a := DefaultStationGrouper(testRecord("DE*ABC*E1", nil))
	b := DefaultStationGrouper(testRecord("DE*ABC*E2", nil))
	if a != b {
		t.Fatalf("same site must group to the same station: %s vs %s", a, b)
	}

	other := DefaultStationGrouper(testRecord("DE*ABC*E3", func(r *oicp.EVSEDataRecord) {
		r.Address.Street = "Torstrasse 1"
	}))
	if other == a {
		t.Fatal("different street must group to a different station")
	}
}

func TestReconcileCustomGrouperSplitsStations(t *testing.T) {
	model := roaming.NewModel()
	// Group every EVSE into its own station.
	engine := NewEngine(model, func(rec oicp.EVSEDataRecord) oicp.StationID {
		return oicp.StationID("ST*" + rec.EvseID.String())
	}, zap.NewNop())

	summary := engine.Reconcile(context.Background(), []oicp.EVSEDataRecord{
		testRecord("DE*ABC*E1", nil),
		testRecord("DE*ABC*E2", nil),
	})
	if summary.StationsCreated != 2 {
		t.Fatalf("expected 2 stations from custom grouper, got %d", summary.StationsCreated)
	}
}

func TestReconcileExplicitPoolIDPreempts(t *testing.T) {
	engine, model := newTestEngine()

	engine.Reconcile(context.Background(), []oicp.EVSEDataRecord{
		testRecord("DE*ABC*E1", func(r *oicp.EVSEDataRecord) { r.ChargingPoolID = "PL-EXPLICIT" }),
	})

	op, _ := model.FindOperator("DE*ABC")
	pools := op.Pools()
	if len(pools) != 1 || pools[0].ID != "PL-EXPLICIT" {
		t.Fatalf("explicit pool id not honored: %v", pools)
	}
}

func TestReconcileIsolatesPanickingGrouper(t *testing.T) {
	model := roaming.NewModel()
	engine := NewEngine(model, func(rec oicp.EVSEDataRecord) oicp.StationID {
		if rec.EvseID == "DE*ABC*E2" {
			panic("grouper broke")
		}
		return DefaultStationGrouper(rec)
	}, zap.NewNop())

	summary := engine.Reconcile(context.Background(), []oicp.EVSEDataRecord{
		testRecord("DE*ABC*E1", nil),
		testRecord("DE*ABC*E2", nil),
		testRecord("DE*ABC*E3", nil),
	})

	if summary.EVSEsCreated != 2 {
		t.Fatalf("expected surviving records to land, got %d", summary.EVSEsCreated)
	}
	if len(summary.Errors) == 0 {
		t.Fatal("expected the failing record to be reported")
	}
	found := false
	for _, re := range summary.Errors {
		if re.EvseID == "DE*ABC*E2" {
			found = true
		}
	}
	if !found {
		t.Fatalf("error does not name the failing EVSE: %v", summary.Errors)
	}
}

func TestReconcileHonorsCancellation(t *testing.T) {
	engine, _ := newTestEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := engine.Reconcile(ctx, []oicp.EVSEDataRecord{testRecord("DE*ABC*E1", nil)})
	if summary.EVSEsCreated != 0 {
		t.Fatal("cancelled pass must not mutate the model")
	}
	if len(summary.Errors) != 1 {
		t.Fatalf("expected cancellation to be reported, got %v", summary.Errors)
	}
}

func TestReconcileConcurrentOperators(t *testing.T) {
	engine, model := newTestEngine()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			records := make([]oicp.EVSEDataRecord, 0, 10)
			for j := 0; j < 10; j++ {
				records = append(records, testRecord(oicp.EvseID(fmt.Sprintf("DE*ABC*E%d*%d", i, j)), nil))
			}
			engine.Reconcile(context.Background(), records)
		}(i)
	}
	wg.Wait()

	op, ok := model.FindOperator("DE*ABC")
	if !ok {
		t.Fatal("operator not created")
	}
	total := 0
	for _, p := range op.Pools() {
		for _, s := range p.Stations() {
			total += len(s.EVSEs())
		}
	}
	if total != 80 {
		t.Fatalf("expected 80 EVSEs after concurrent passes, got %d", total)
	}
}

func TestReconcileConcurrentWithReaders(t *testing.T) {
	engine, model := newTestEngine()

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				for _, snap := range model.Snapshot() {
					_ = snap.EVSEs
				}
				for _, op := range model.Operators() {
					op.View(func() {
						for _, p := range op.Pools() {
							for _, s := range p.Stations() {
								_ = len(s.EVSEs())
							}
						}
					})
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		records := make([]oicp.EVSEDataRecord, 0, 5)
		for j := 0; j < 5; j++ {
			records = append(records, testRecord(oicp.EvseID(fmt.Sprintf("DE*ABC*E%d*%d", i, j)), nil))
		}
		engine.Reconcile(context.Background(), records)
	}
	close(done)
	wg.Wait()

	snaps := model.Snapshot()
	if len(snaps) != 1 {
		t.Fatalf("expected one operator snapshot, got %d", len(snaps))
	}
	if snaps[0].EVSEs != 100 {
		t.Fatalf("expected 100 EVSEs, got %d", snaps[0].EVSEs)
	}
}
