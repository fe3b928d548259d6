package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"roamgate/internal/oicp"
)

// CDRRepository archives charge detail records so the adapter can answer
// partner queries for past sessions.
type CDRRepository struct {
	db *pgxpool.Pool
}

// NewCDRRepository returns the repository.
func NewCDRRepository(db *pgxpool.Pool) *CDRRepository {
	return &CDRRepository{db: db}
}

// Insert stores one CDR. The full wire form is kept as JSON next to the
// indexed columns so no optional field is lost.
func (r *CDRRepository) Insert(ctx context.Context, providerID oicp.ProviderID, cdr oicp.ChargeDetailRecord) error {
	payload, err := (oicp.CDRCodec{}).Serialize(cdr)
	if err != nil {
		return fmt.Errorf("store: serialize cdr: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		insert into charge_detail_records (session_id, evse_id, provider_id, session_start, session_end, consumed_energy, payload)
		values ($1,$2,$3,$4,$5,$6,$7)
		on conflict (session_id) do update set
		  evse_id=excluded.evse_id,
		  provider_id=excluded.provider_id,
		  session_start=excluded.session_start,
		  session_end=excluded.session_end,
		  consumed_energy=excluded.consumed_energy,
		  payload=excluded.payload,
		  updated_at=now()
	`, cdr.SessionID.String(), cdr.EvseID.String(), providerID.String(),
		cdr.SessionStart, cdr.SessionEnd, float64(cdr.ConsumedEnergy), payload)
	return err
}

// ListByProvider fetches the CDRs of one provider inside a time window,
// ordered by session start.
func (r *CDRRepository) ListByProvider(ctx context.Context, providerID oicp.ProviderID, from, to time.Time) ([]oicp.ChargeDetailRecord, error) {
	rows, err := r.db.Query(ctx, `
		select payload
		from charge_detail_records
		where provider_id=$1 and session_start >= $2 and session_start < $3
		order by session_start
	`, providerID.String(), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codec := oicp.CDRCodec{}
	var records []oicp.ChargeDetailRecord
	for rows.Next() {
		var payload json.RawMessage
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		rec, err := codec.Parse(payload)
		if err != nil {
			return nil, fmt.Errorf("store: parse archived cdr: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
