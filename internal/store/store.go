package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sotto-ai/sotto/internal/costs"
)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Call is one phone call handled by the service.
type Call struct {
	ID             string     `json:"id,omitempty"`
	Provider       string     `json:"provider"`
	ProviderCallID string     `json:"provider_call_id"`
	FromNumber     string     `json:"from_number"`
	ToNumber       string     `json:"to_number"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// Correction is one verified-false claim and the correction whispered (or
// attempted) for it.
type Correction struct {
	ID         string    `json:"id,omitempty"`
	Claim      string    `json:"claim"`
	Correction string    `json:"correction"`
	Delivered  bool      `json:"delivered"`
	CreatedAt  time.Time `json:"created_at"`
}

// CallListItem is a call row with its correction count, for the operator API.
type CallListItem struct {
	ID              string     `json:"id"`
	ProviderCallID  string     `json:"provider_call_id"`
	FromNumber      string     `json:"from_number"`
	ToNumber        string     `json:"to_number"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	CorrectionCount int        `json:"correction_count"`
}

// CallEvent is one row from the call event log.
type CallEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	EventData json.RawMessage `json:"event_data"`
	CreatedAt time.Time       `json:"created_at"`
}

// CallDetail is a call with its corrections and event log.
type CallDetail struct {
	Call        Call         `json:"call"`
	Corrections []Correction `json:"corrections"`
	Events      []CallEvent  `json:"events"`
}

// UpsertCall inserts a call record keyed by provider call ID, updating the
// status on conflict (the status webhook and websocket session race).
func (s *Store) UpsertCall(ctx context.Context, c Call) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO calls (provider, provider_call_id, from_number, to_number, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider_call_id)
		DO UPDATE SET status = EXCLUDED.status
	`, c.Provider, c.ProviderCallID, c.FromNumber, c.ToNumber, c.Status, c.StartedAt)
	return err
}

// UpdateCallStatus sets the call status; terminal statuses also stamp ended_at.
func (s *Store) UpdateCallStatus(ctx context.Context, providerCallID string, status string, at time.Time) error {
	if status == "completed" || status == "failed" {
		_, err := s.db.Exec(ctx, `
			UPDATE calls SET status = $2, ended_at = $3
			WHERE provider_call_id = $1
		`, providerCallID, status, at)
		return err
	}
	_, err := s.db.Exec(ctx, `
		UPDATE calls SET status = $2 WHERE provider_call_id = $1
	`, providerCallID, status)
	return err
}

// GetCallID returns the internal ID for a provider call ID.
func (s *Store) GetCallID(ctx context.Context, providerCallID string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		SELECT id FROM calls WHERE provider_call_id = $1
	`, providerCallID).Scan(&id)
	return id, err
}

// InsertCorrection records a resolved claim and its correction.
func (s *Store) InsertCorrection(ctx context.Context, callID string, c Correction) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO corrections (call_id, claim, correction, delivered, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, callID, c.Claim, c.Correction, c.Delivered, c.CreatedAt)
	return err
}

// InsertUsage stores the per-call usage metrics and calculated costs.
func (s *Store) InsertUsage(ctx context.Context, callID string, m costs.CallMetrics, cc costs.CallCosts) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO call_usage (
			call_id, call_seconds, stt_seconds,
			llm_input_tokens, llm_output_tokens, tts_characters,
			twilio_cost_cents, stt_cost_cents, llm_cost_cents, tts_cost_cents, total_cost_cents
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (call_id) DO NOTHING
	`, callID, m.CallDurationSeconds, m.STTDurationSeconds,
		m.LLMInputTokens, m.LLMOutputTokens, m.TTSCharacters,
		cc.TwilioCostCents, cc.STTCostCents, cc.LLMCostCents, cc.TTSCostCents, cc.TotalCostCents)
	return err
}

// ListCalls returns the most recent calls with their correction counts.
func (s *Store) ListCalls(ctx context.Context, limit int) ([]CallListItem, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.provider_call_id, c.from_number, c.to_number,
		       c.status, c.started_at, c.ended_at,
		       COUNT(x.id) AS correction_count
		FROM calls c
		LEFT JOIN corrections x ON x.call_id = c.id
		GROUP BY c.id
		ORDER BY c.started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []CallListItem
	for rows.Next() {
		var it CallListItem
		if err := rows.Scan(&it.ID, &it.ProviderCallID, &it.FromNumber, &it.ToNumber,
			&it.Status, &it.StartedAt, &it.EndedAt, &it.CorrectionCount); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetCallDetail returns a call with its corrections and events by provider
// call ID.
func (s *Store) GetCallDetail(ctx context.Context, providerCallID string) (CallDetail, error) {
	var d CallDetail
	err := s.db.QueryRow(ctx, `
		SELECT id, provider, provider_call_id, from_number, to_number, status, started_at, ended_at
		FROM calls WHERE provider_call_id = $1
	`, providerCallID).Scan(&d.Call.ID, &d.Call.Provider, &d.Call.ProviderCallID,
		&d.Call.FromNumber, &d.Call.ToNumber, &d.Call.Status, &d.Call.StartedAt, &d.Call.EndedAt)
	if err != nil {
		return CallDetail{}, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, claim, correction, delivered, created_at
		FROM corrections WHERE call_id = $1
		ORDER BY created_at
	`, d.Call.ID)
	if err != nil {
		return CallDetail{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var c Correction
		if err := rows.Scan(&c.ID, &c.Claim, &c.Correction, &c.Delivered, &c.CreatedAt); err != nil {
			return CallDetail{}, err
		}
		d.Corrections = append(d.Corrections, c)
	}
	if err := rows.Err(); err != nil {
		return CallDetail{}, err
	}

	d.Events, err = s.listCallEvents(ctx, d.Call.ID)
	return d, err
}

func (s *Store) listCallEvents(ctx context.Context, callID string) ([]CallEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, event_type, event_data, created_at
		FROM call_events WHERE call_id = $1
		ORDER BY created_at
	`, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []CallEvent
	for rows.Next() {
		var e CallEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.EventData, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return err == pgx.ErrNoRows
}
