package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

const statsTopMarkets = 20

const eventCols = `id, venue, channel, event_type, market_id, asset_id, exchange_ts, ingest_ts, payload`

// EventLogStore implements domain.EventLog on the raw_events table.
type EventLogStore struct {
	pool *pgxpool.Pool
}

// NewEventLogStore creates a new EventLogStore backed by the given pool.
func NewEventLogStore(pool *pgxpool.Pool) *EventLogStore {
	return &EventLogStore{pool: pool}
}

// Append inserts the batch in order in one round trip. Ids come from the
// table sequence, so they follow batch order.
func (s *EventLogStore) Append(ctx context.Context, events []domain.RawEvent) error {
	if len(events) == 0 {
		return nil
	}

	const query = `
		INSERT INTO raw_events (
			venue, channel, event_type, market_id, asset_id,
			exchange_ts, ingest_ts, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(query,
			ev.Venue, ev.Channel, ev.EventType, ev.MarketID, nullString(ev.AssetID),
			ev.ExchangeTS, ev.IngestTS, string(ev.Payload),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: append raw event batch item %d: %w", i, err)
		}
	}
	return nil
}

// buildScanQuery renders the filter as SQL. Market ids are compared in
// canonical form; ingest bounds are inclusive.
func buildScanQuery(f domain.EventFilter) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT ` + eventCols + ` FROM raw_events WHERE TRUE`)

	var args []any
	where := func(cond string, v any) {
		args = append(args, v)
		fmt.Fprintf(&b, " AND "+cond, len(args))
	}
	if f.MarketID != "" {
		where(`lower(regexp_replace(market_id, '^0x', '')) = $%d`, domain.CanonicalMarketID(f.MarketID))
	}
	if f.AssetID != "" {
		where(`asset_id = $%d`, f.AssetID)
	}
	if f.Start != nil {
		where(`ingest_ts >= $%d`, *f.Start)
	}
	if f.End != nil {
		where(`ingest_ts <= $%d`, *f.End)
	}
	b.WriteString(` ORDER BY id ASC`)
	return b.String(), args
}

// Scan streams matching records to fn in ascending id order.
func (s *EventLogStore) Scan(ctx context.Context, filter domain.EventFilter, fn func(domain.RawEvent) error) error {
	query, args := buildScanQuery(filter)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: scan raw events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ev, err := scanRawEvent(rows)
		if err != nil {
			return fmt.Errorf("postgres: scan raw event row: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: scan raw events: %w", err)
	}
	return nil
}

// Stats returns totals, the ingest time range and the busiest markets.
func (s *EventLogStore) Stats(ctx context.Context) (domain.LogStats, error) {
	var st domain.LogStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), MIN(ingest_ts), MAX(ingest_ts) FROM raw_events`,
	).Scan(&st.TotalEvents, &st.MinIngestTS, &st.MaxIngestTS)
	if err != nil {
		return domain.LogStats{}, fmt.Errorf("postgres: raw event stats: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT market_id, COUNT(*) AS cnt
		FROM raw_events
		GROUP BY market_id
		ORDER BY cnt DESC, market_id
		LIMIT $1`, statsTopMarkets)
	if err != nil {
		return domain.LogStats{}, fmt.Errorf("postgres: raw event counts by market: %w", err)
	}
	defer rows.Close()

	st.ByMarket = []domain.MarketCount{}
	for rows.Next() {
		var mc domain.MarketCount
		if err := rows.Scan(&mc.MarketID, &mc.Count); err != nil {
			return domain.LogStats{}, fmt.Errorf("postgres: scan market count: %w", err)
		}
		st.ByMarket = append(st.ByMarket, mc)
	}
	if err := rows.Err(); err != nil {
		return domain.LogStats{}, fmt.Errorf("postgres: raw event counts by market: %w", err)
	}
	return st, nil
}

// FirstIngestTS returns the oldest ingest time in the log.
func (s *EventLogStore) FirstIngestTS(ctx context.Context) (int64, bool, error) {
	var ts *int64
	if err := s.pool.QueryRow(ctx, `SELECT MIN(ingest_ts) FROM raw_events`).Scan(&ts); err != nil {
		return 0, false, fmt.Errorf("postgres: first ingest ts: %w", err)
	}
	if ts == nil {
		return 0, false, nil
	}
	return *ts, true, nil
}

func scanRawEvent(row pgx.Row) (domain.RawEvent, error) {
	var (
		ev      domain.RawEvent
		assetID *string
		payload []byte
	)
	err := row.Scan(
		&ev.ID, &ev.Venue, &ev.Channel, &ev.EventType, &ev.MarketID,
		&assetID, &ev.ExchangeTS, &ev.IngestTS, &payload,
	)
	if err != nil {
		return domain.RawEvent{}, err
	}
	if assetID != nil {
		ev.AssetID = *assetID
	}
	ev.Payload = payload
	return ev, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
