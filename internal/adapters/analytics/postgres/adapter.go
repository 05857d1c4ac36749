// Package postgres implements the backend.AnalyticsStore capability
// contract: envelopes are ingested as JSONB rows, queried with a simple
// filter set evaluated via PaesslerAG/jsonpath over each row's JSON,
// grounded on pkg/storage/crud.go's FilterSet shape generalized from SQL
// predicates to JSON-path predicates since analytics queries filter on
// arbitrary envelope/payload fields rather than fixed columns.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
	"github.com/jmoiron/sqlx"
	"github.com/tidwall/gjson"

	"github.com/r3e-labs/engines-controlplane/internal/platform/errs"
)

// Adapter implements backend.AnalyticsStore over Postgres.
type Adapter struct {
	db *sqlx.DB
}

// New wraps an existing sqlx connection.
func New(db *sqlx.DB) *Adapter {
	return &Adapter{db: db}
}

// EnsureSchema creates the analytics_events table.
func (a *Adapter) EnsureSchema(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS analytics_events (
			id BIGSERIAL PRIMARY KEY,
			envelope JSONB NOT NULL,
			payload JSONB,
			ingested_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	return err
}

// Ingest satisfies backend.AnalyticsStore.Ingest.
func (a *Adapter) Ingest(ctx context.Context, envelope, payload []byte) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO analytics_events (envelope, payload) VALUES ($1, $2)
	`, envelope, payload)
	if err != nil {
		return errs.BackendUnavailable("analytics_store", err)
	}
	return nil
}

// Query satisfies backend.AnalyticsStore.Query. filters maps a JSONPath
// expression (evaluated against the merged envelope+payload document) to
// an expected value; a row matches only if every filter's path resolves to
// that value. cursor/nextCursor are the numeric row id boundary.
func (a *Adapter) Query(ctx context.Context, filters map[string]any, cursor string) ([][]byte, string, error) {
	const limit = 200
	var afterID int64
	if cursor != "" {
		fmt.Sscanf(cursor, "%d", &afterID)
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT id, envelope, payload FROM analytics_events WHERE id > $1 ORDER BY id ASC LIMIT $2
	`, afterID, limit*4)
	if err != nil {
		return nil, "", errs.BackendUnavailable("analytics_store", err)
	}
	defer rows.Close()

	var out [][]byte
	var lastID int64
	for rows.Next() {
		var id int64
		var envelope, payload []byte
		if err := rows.Scan(&id, &envelope, &payload); err != nil {
			return nil, "", errs.BackendUnavailable("analytics_store", err)
		}
		lastID = id

		merged := mergeDocuments(envelope, payload)
		if matchesFilters(merged, filters) {
			record, err := json.Marshal(struct {
				Envelope json.RawMessage `json:"envelope"`
				Payload  json.RawMessage `json:"payload"`
			}{Envelope: envelope, Payload: payload})
			if err != nil {
				continue
			}
			out = append(out, record)
			if len(out) >= limit {
				break
			}
		}
	}

	nextCursor := ""
	if len(out) >= limit {
		nextCursor = fmt.Sprintf("%d", lastID)
	}
	return out, nextCursor, rows.Err()
}

func mergeDocuments(envelope, payload []byte) map[string]any {
	merged := map[string]any{}
	if len(envelope) > 0 {
		merged["envelope"] = gjson.ParseBytes(envelope).Value()
	}
	if len(payload) > 0 {
		merged["payload"] = gjson.ParseBytes(payload).Value()
	}
	return merged
}

func matchesFilters(doc map[string]any, filters map[string]any) bool {
	for path, expected := range filters {
		got, err := jsonpath.Get(path, doc)
		if err != nil {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", expected) {
			return false
		}
	}
	return true
}
