package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
	"github.com/r3e-labs/engines-controlplane/internal/platform/logging"
	"github.com/r3e-labs/engines-controlplane/internal/platform/pgbus"
)

// Store is the append-only stream store contract (spec §4.5).
type Store interface {
	Append(ctx context.Context, streamID string, envelope EventEnvelope, payload []byte) (eventID string, err error)
	ListAfter(ctx context.Context, streamID, afterEventID string, limit int) ([]StreamRecord, error)
	Tail(ctx context.Context, streamID, lastEventID string) (<-chan StreamRecord, func(), error)
}

// PostgresStore implements Store, grounded on
// system/events/store_postgres.go's PostgresRequestStore shape (sql.DB,
// EnsureSchema, scan helpers), generalized from a single request table into
// a generic per-stream event log, plus an internal/platform/pgbus-backed
// live-tail bus that the teacher's blockchain-event Dispatcher does not need
// (it processes an in-process channel of already-decoded contract events;
// this store must notify across processes via Postgres LISTEN/NOTIFY since
// multiple control-plane instances share one durable log).
type PostgresStore struct {
	db  *sqlx.DB
	bus *pgbus.Bus

	mu          sync.Mutex
	subscribers map[string]map[chan StreamRecord]struct{}
}

// NewPostgresStore wraps db and dsn (used to construct the pgbus.Bus
// powering live tail; dsn is the same connection string as db's).
func NewPostgresStore(db *sqlx.DB, dsn string, logger *logging.Logger) *PostgresStore {
	s := &PostgresStore{
		db:          db,
		bus:         pgbus.New(dsn, logger),
		subscribers: make(map[string]map[chan StreamRecord]struct{}),
	}
	return s
}

// EnsureSchema creates the stream_events table and the NOTIFY trigger that
// backs live tail.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS stream_events (
			event_id TEXT PRIMARY KEY,
			stream_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			prev_event_id TEXT NOT NULL DEFAULT '',
			idempotency_key TEXT NOT NULL DEFAULT '',
			envelope JSONB NOT NULL,
			payload BYTEA,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (stream_id, seq),
			UNIQUE (stream_id, idempotency_key)
		);
		CREATE INDEX IF NOT EXISTS idx_stream_events_stream_seq ON stream_events (stream_id, seq);

		CREATE OR REPLACE FUNCTION notify_stream_event() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify('stream_events', NEW.stream_id || ':' || NEW.event_id);
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;

		DROP TRIGGER IF EXISTS trg_notify_stream_event ON stream_events;
		CREATE TRIGGER trg_notify_stream_event
			AFTER INSERT ON stream_events
			FOR EACH ROW EXECUTE FUNCTION notify_stream_event();
	`)
	return err
}

// ListenAndServe registers this store's NOTIFY handler on the pgbus.Bus
// that NewPostgresStore built for it. Run once per process, typically from
// main.
func (s *PostgresStore) ListenAndServe(ctx context.Context) error {
	return s.bus.Subscribe("stream_events", s.handleNotification)
}

func (s *PostgresStore) handleNotification(ctx context.Context, payload string) {
	var streamID, eventID string
	for i := len(payload) - 1; i >= 0; i-- {
		if payload[i] == ':' {
			streamID, eventID = payload[:i], payload[i+1:]
			break
		}
	}
	if streamID == "" {
		return
	}

	s.mu.Lock()
	subs := s.subscribers[streamID]
	chans := make([]chan StreamRecord, 0, len(subs))
	for ch := range subs {
		chans = append(chans, ch)
	}
	s.mu.Unlock()
	if len(chans) == 0 {
		return
	}

	record, err := s.getByEventID(ctx, streamID, eventID)
	if err != nil {
		return
	}
	for _, ch := range chans {
		select {
		case ch <- record:
		default:
		}
	}
}

// Append inserts a new event, generating a strictly monotonic per-stream
// event_id. Idempotency: a duplicate idempotency_key for the same stream
// returns the original event_id rather than erroring (spec §4.5).
func (s *PostgresStore) Append(ctx context.Context, streamID string, envelope EventEnvelope, payload []byte) (string, error) {
	if envelope.IdempotencyKey != "" {
		if existing, err := s.findByIdempotencyKey(ctx, streamID, envelope.IdempotencyKey); err == nil {
			return existing, nil
		} else if err != sql.ErrNoRows {
			return "", errs.StreamWriteFailed(err)
		}
	}

	envelopeJSON, err := json.Marshal(envelope)
	if err != nil {
		return "", errs.StreamWriteFailed(err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", errs.StreamWriteFailed(err)
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	var prevEventID sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT seq, event_id FROM stream_events WHERE stream_id = $1 ORDER BY seq DESC LIMIT 1 FOR UPDATE
	`, streamID).Scan(&maxSeq, &prevEventID)
	if err != nil && err != sql.ErrNoRows {
		return "", errs.StreamWriteFailed(err)
	}

	nextSeq := int64(1)
	if maxSeq.Valid {
		nextSeq = maxSeq.Int64 + 1
	}
	// Zero-padded seq prefix keeps event_ids ordered within the stream.
	eventID := fmt.Sprintf("%020d-%s", nextSeq, uuid.NewString())

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stream_events (event_id, stream_id, seq, prev_event_id, idempotency_key, envelope, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, eventID, streamID, nextSeq, prevEventID.String, envelope.IdempotencyKey, envelopeJSON, payload)
	if err != nil {
		return "", errs.StreamWriteFailed(err)
	}

	if err := tx.Commit(); err != nil {
		return "", errs.StreamWriteFailed(err)
	}

	return eventID, nil
}

func (s *PostgresStore) findByIdempotencyKey(ctx context.Context, streamID, key string) (string, error) {
	var eventID string
	err := s.db.QueryRowContext(ctx, `
		SELECT event_id FROM stream_events WHERE stream_id = $1 AND idempotency_key = $2
	`, streamID, key).Scan(&eventID)
	return eventID, err
}

// ListAfter returns envelopes strictly after afterEventID, in event_id
// (seq) order, up to limit (spec §4.5). An empty afterEventID starts from
// the beginning of the stream.
func (s *PostgresStore) ListAfter(ctx context.Context, streamID, afterEventID string, limit int) ([]StreamRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	afterSeq := int64(0)
	if afterEventID != "" {
		var seq int64
		err := s.db.QueryRowContext(ctx, `SELECT seq FROM stream_events WHERE stream_id = $1 AND event_id = $2`, streamID, afterEventID).Scan(&seq)
		if err == sql.ErrNoRows {
			return nil, errs.CursorInvalid(false)
		}
		if err != nil {
			return nil, errs.BackendUnavailable("event_stream", err)
		}
		afterSeq = seq
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, prev_event_id, envelope, payload
		FROM stream_events
		WHERE stream_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3
	`, streamID, afterSeq, limit)
	if err != nil {
		return nil, errs.BackendUnavailable("event_stream", err)
	}
	defer rows.Close()

	var records []StreamRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, errs.BackendUnavailable("event_stream", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *PostgresStore) getByEventID(ctx context.Context, streamID, eventID string) (StreamRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_id, prev_event_id, envelope, payload FROM stream_events WHERE stream_id = $1 AND event_id = $2
	`, streamID, eventID)
	return scanRecord(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (StreamRecord, error) {
	var eventID, prevEventID string
	var envelopeJSON, payload []byte
	if err := row.Scan(&eventID, &prevEventID, &envelopeJSON, &payload); err != nil {
		return StreamRecord{}, err
	}
	var envelope EventEnvelope
	if err := json.Unmarshal(envelopeJSON, &envelope); err != nil {
		return StreamRecord{}, err
	}
	envelope.EventID = eventID
	return StreamRecord{Envelope: envelope, Payload: payload, PrevEventID: prevEventID}, nil
}

// Tail replays from lastEventID (exclusive) and then transitions to a live
// subscription fed by Postgres NOTIFY (spec §4.5: "reconnect with
// Last-Event-ID; the store replays from the durable log, then transitions
// to live tail"). The returned function unsubscribes and must be called by
// the caller when done.
func (s *PostgresStore) Tail(ctx context.Context, streamID, lastEventID string) (<-chan StreamRecord, func(), error) {
	out := make(chan StreamRecord, 64)

	backlog, err := s.ListAfter(ctx, streamID, lastEventID, 1000)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan StreamRecord, 64)
	s.mu.Lock()
	if s.subscribers[streamID] == nil {
		s.subscribers[streamID] = make(map[chan StreamRecord]struct{})
	}
	s.subscribers[streamID][ch] = struct{}{}
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		delete(s.subscribers[streamID], ch)
		s.mu.Unlock()
		close(ch)
	}

	go func() {
		defer close(out)
		for _, record := range backlog {
			select {
			case out <- record:
			case <-ctx.Done():
				return
			}
		}
		for {
			select {
			case record, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- record:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, unsubscribe, nil
}

var _ Store = (*PostgresStore)(nil)
