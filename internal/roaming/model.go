package roaming

import (
	"sync"

	"roamgate/internal/oicp"
)

// LocalizedName is a display name tagged with its language.
type LocalizedName struct {
	Language string
	Text     string
}

// EVSE is one charging point in the network model.
type EVSE struct {
	ID                 oicp.EvseID
	Description        string
	SocketOutlets      []oicp.Plug
	ChargingFacilities []oicp.ChargingFacility
	Status             oicp.EVSEStatus
}

// Station is one charging cabinet grouping EVSEs.
type Station struct {
	ID                   oicp.StationID
	Name                 LocalizedName
	Description          string
	AuthenticationModes  []oicp.AuthenticationMode
	PaymentOptions       []oicp.PaymentOption
	Accessibility        oicp.Accessibility
	HotlinePhoneNumber   string
	HubjectCompatible    bool
	DynamicInfoAvailable bool

	evses map[oicp.EvseID]*EVSE
}

// Pool is one physical charging site grouping stations.
type Pool struct {
	ID                  oicp.PoolID
	Address             oicp.Address
	GeoLocation         oicp.GeoCoordinate
	Description         string
	OpeningTimes        string
	Open24Hours         bool
	AuthenticationModes []oicp.AuthenticationMode
	PaymentOptions      []oicp.PaymentOption
	Accessibility       oicp.Accessibility
	HotlinePhoneNumber  string
	EntranceLocation    *oicp.GeoCoordinate
	DisplayLanguage     string

	stations map[oicp.StationID]*Station
}

// Operator owns a subtree of pools. The subtree and Name are guarded by the
// operator's own lock: mutate inside Update, walk inside View. FindPool,
// Pools and the deeper accessors do not lock on their own.
type Operator struct {
	ID   oicp.OperatorID
	Name LocalizedName

	mu    sync.RWMutex
	pools map[oicp.PoolID]*Pool
}

// Model is the in-memory operator → pool → station → EVSE hierarchy. The
// operators map is guarded here; each operator subtree is guarded by the
// operator's own lock.
type Model struct {
	mu        sync.RWMutex
	operators map[oicp.OperatorID]*Operator
}

// NewModel returns an empty network model.
func NewModel() *Model {
	return &Model{operators: make(map[oicp.OperatorID]*Operator)}
}

// FindOperator looks up an operator by id.
func (m *Model) FindOperator(id oicp.OperatorID) (*Operator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	op, ok := m.operators[id]
	return op, ok
}

// CreateOperator adds an operator, running the configurator before the entity
// becomes visible. Returns the existing entity when the id is already taken.
func (m *Model) CreateOperator(id oicp.OperatorID, name LocalizedName, configure func(*Operator)) *Operator {
	m.mu.Lock()
	defer m.mu.Unlock()
	if op, ok := m.operators[id]; ok {
		return op
	}
	op := &Operator{ID: id, Name: name, pools: make(map[oicp.PoolID]*Pool)}
	if configure != nil {
		configure(op)
	}
	m.operators[id] = op
	return op
}

// Operators returns the operator ids currently in the model.
func (m *Model) Operators() []*Operator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Operator, 0, len(m.operators))
	for _, op := range m.operators {
		out = append(out, op)
	}
	return out
}

// View runs fn holding the operator's read lock. Wrap any walk of a shared
// operator subtree in View; readers and a concurrent Update would otherwise
// race on the pool, station and EVSE maps.
func (o *Operator) View(fn func()) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	fn()
}

// Update runs fn holding the operator's write lock, serializing subtree
// mutation against concurrent readers and other updates.
func (o *Operator) Update(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn()
}

// FindPool looks up a pool under this operator.
func (o *Operator) FindPool(id oicp.PoolID) (*Pool, bool) {
	p, ok := o.pools[id]
	return p, ok
}

// CreatePool adds a pool, running the configurator at creation.
func (o *Operator) CreatePool(id oicp.PoolID, configure func(*Pool)) *Pool {
	if p, ok := o.pools[id]; ok {
		return p
	}
	p := &Pool{ID: id, stations: make(map[oicp.StationID]*Station)}
	if configure != nil {
		configure(p)
	}
	o.pools[id] = p
	return p
}

// Pools returns the pools under this operator.
func (o *Operator) Pools() []*Pool {
	out := make([]*Pool, 0, len(o.pools))
	for _, p := range o.pools {
		out = append(out, p)
	}
	return out
}

// FindStation looks up a station in this pool.
func (p *Pool) FindStation(id oicp.StationID) (*Station, bool) {
	s, ok := p.stations[id]
	return s, ok
}

// CreateStation adds a station, running the configurator at creation.
func (p *Pool) CreateStation(id oicp.StationID, configure func(*Station)) *Station {
	if s, ok := p.stations[id]; ok {
		return s
	}
	s := &Station{ID: id, evses: make(map[oicp.EvseID]*EVSE)}
	if configure != nil {
		configure(s)
	}
	p.stations[id] = s
	return s
}

// Stations returns the stations in this pool.
func (p *Pool) Stations() []*Station {
	out := make([]*Station, 0, len(p.stations))
	for _, s := range p.stations {
		out = append(out, s)
	}
	return out
}

// FindEVSE looks up an EVSE in this station.
func (s *Station) FindEVSE(id oicp.EvseID) (*EVSE, bool) {
	e, ok := s.evses[id]
	return e, ok
}

// CreateEVSE adds an EVSE, running the configurator at creation.
func (s *Station) CreateEVSE(id oicp.EvseID, configure func(*EVSE)) *EVSE {
	if e, ok := s.evses[id]; ok {
		return e
	}
	e := &EVSE{ID: id}
	if configure != nil {
		configure(e)
	}
	s.evses[id] = e
	return e
}

// EVSEs returns the EVSEs in this station.
func (s *Station) EVSEs() []*EVSE {
	out := make([]*EVSE, 0, len(s.evses))
	for _, e := range s.evses {
		out = append(out, e)
	}
	return out
}

// OperatorSnapshot is a read-only summary of one operator subtree.
type OperatorSnapshot struct {
	ID       string `json:"operatorId"`
	Name     string `json:"name"`
	Language string `json:"language,omitempty"`
	Pools    int    `json:"pools"`
	Stations int    `json:"stations"`
	EVSEs    int    `json:"evses"`
}

// Snapshot copies the current hierarchy into summaries safe to hand out.
func (m *Model) Snapshot() []OperatorSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]OperatorSnapshot, 0, len(m.operators))
	for _, op := range m.operators {
		op.mu.RLock()
		snap := OperatorSnapshot{
			ID:       op.ID.String(),
			Name:     op.Name.Text,
			Language: op.Name.Language,
			Pools:    len(op.pools),
		}
		for _, p := range op.pools {
			snap.Stations += len(p.stations)
			for _, s := range p.stations {
				snap.EVSEs += len(s.evses)
			}
		}
		op.mu.RUnlock()
		out = append(out, snap)
	}
	return out
}
