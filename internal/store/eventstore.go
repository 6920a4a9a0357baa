// internal/store/eventstore.go

// Package store is the persistence collaborator for events, participant
// preferences and votes. The core expresses no logic in terms of storage
// technology; this is the one postgres-shaped edge.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "venueflow/internal/common/errors"
	"venueflow/internal/common/logger"
	"venueflow/internal/common/metrics"
	"venueflow/internal/models"
)

const eventColumns = `id, organizer_id, title, state, participants, scheduled_at,
	preference_deadline, voting_deadline, preferences_submitted, shortlist,
	confirmed_venue_id, votes, last_error, state_timestamps, version`

type EventStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewEventStore(db *sql.DB, log logger.Logger) *EventStore {
	return &EventStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "eventstore"}),
	}
}

func scanEvent(row interface {
	Scan(dest ...interface{}) error
}) (*models.Event, error) {
	var (
		e               models.Event
		participants    []byte
		shortlist       []byte
		votes           []byte
		stateTimestamps []byte
		confirmedVenue  sql.NullString
		lastError       sql.NullString
	)

	err := row.Scan(
		&e.ID, &e.OrganizerID, &e.Title, &e.State, &participants, &e.ScheduledAt,
		&e.PreferenceDeadline, &e.VotingDeadline, &e.PreferencesSubmitted, &shortlist,
		&confirmedVenue, &votes, &lastError, &stateTimestamps, &e.Version,
	)
	if err != nil {
		return nil, err
	}

	if len(participants) > 0 {
		if err := json.Unmarshal(participants, &e.Participants); err != nil {
			return nil, fmt.Errorf("unmarshal participants: %w", err)
		}
	}
	if len(shortlist) > 0 {
		if err := json.Unmarshal(shortlist, &e.Shortlist); err != nil {
			return nil, fmt.Errorf("unmarshal shortlist: %w", err)
		}
	}
	if len(votes) > 0 {
		if err := json.Unmarshal(votes, &e.Votes); err != nil {
			return nil, fmt.Errorf("unmarshal votes: %w", err)
		}
	}
	if len(stateTimestamps) > 0 {
		if err := json.Unmarshal(stateTimestamps, &e.StateTimestamps); err != nil {
			return nil, fmt.Errorf("unmarshal state timestamps: %w", err)
		}
	}
	e.ConfirmedVenueID = confirmedVenue.String
	e.LastError = lastError.String

	return &e, nil
}

// GetEvent loads one event by ID.
func (s *EventStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id)

	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewEventNotFoundError(id)
		}
		return nil, apperrors.NewDatabaseError(err.Error())
	}
	return e, nil
}

// CreateEvent inserts a new event in Draft state.
func (s *EventStore) CreateEvent(ctx context.Context, e *models.Event) error {
	participants, _ := json.Marshal(e.Participants)
	stateTimestamps, _ := json.Marshal(e.StateTimestamps)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, organizer_id, title, state, participants, scheduled_at,
			preference_deadline, voting_deadline, preferences_submitted,
			state_timestamps, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)`,
		e.ID, e.OrganizerID, e.Title, e.State, participants, e.ScheduledAt,
		e.PreferenceDeadline, e.VotingDeadline, e.PreferencesSubmitted, stateTimestamps,
	)
	if err != nil {
		return apperrors.NewDatabaseError(err.Error())
	}
	return nil
}

// UpdateCAS applies mutate and the state change from -> to atomically. The
// row is locked for the duration and the current state must still equal from;
// a mismatch reports a state conflict, which is how concurrent duplicate
// pipeline admissions are rejected.
func (s *EventStore) UpdateCAS(ctx context.Context, eventID string, from, to models.EventState, mutate func(*models.Event)) (*models.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err.Error())
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID)

	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewEventNotFoundError(eventID)
		}
		return nil, apperrors.NewDatabaseError(err.Error())
	}

	if e.State != from {
		return nil, apperrors.NewStateConflictError(eventID, string(from))
	}

	if mutate != nil {
		mutate(e)
	}
	e.State = to
	e.Version++

	participants, _ := json.Marshal(e.Participants)
	shortlist, _ := json.Marshal(e.Shortlist)
	votes, _ := json.Marshal(e.Votes)
	stateTimestamps, _ := json.Marshal(e.StateTimestamps)

	res, err := tx.ExecContext(ctx, `
		UPDATE events
		SET state = $1, participants = $2, shortlist = $3, confirmed_venue_id = $4,
			votes = $5, last_error = $6, state_timestamps = $7,
			preferences_submitted = $8, version = $9
		WHERE id = $10 AND version = $11`,
		e.State, participants, shortlist, nullable(e.ConfirmedVenueID), votes,
		nullable(e.LastError), stateTimestamps, e.PreferencesSubmitted,
		e.Version, eventID, e.Version-1,
	)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err.Error())
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, apperrors.NewDatabaseError(err.Error())
	}
	if affected == 0 {
		return nil, apperrors.NewStateConflictError(eventID, string(from))
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewDatabaseError(err.Error())
	}

	return e, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ListPreferences returns the raw preference records submitted for an event.
func (s *EventStore) ListPreferences(ctx context.Context, eventID string) ([]models.PreferenceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM event_preferences WHERE event_id = $1 ORDER BY submitted_at`, eventID)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err.Error())
	}
	defer rows.Close()

	var records []models.PreferenceRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, apperrors.NewDatabaseError(err.Error())
		}
		var rec models.PreferenceRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, apperrors.NewInvalidPayloadError("", err.Error())
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError(err.Error())
	}

	return records, nil
}

// SavePreference upserts one participant's preference record and keeps the
// event's submission counter in step.
func (s *EventStore) SavePreference(ctx context.Context, eventID string, rec models.PreferenceRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return apperrors.NewInvalidPayloadError(rec.ParticipantID, err.Error())
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewDatabaseError(err.Error())
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO event_preferences (event_id, participant_id, payload, submitted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id, participant_id) DO UPDATE
		SET payload = EXCLUDED.payload, submitted_at = EXCLUDED.submitted_at`,
		eventID, rec.ParticipantID, payload, time.Now().UTC(),
	)
	if err != nil {
		return apperrors.NewDatabaseError(err.Error())
	}

	// The recount runs on every upsert; the subquery keeps the counter
	// right whether this was a first submission or a replacement.
	_, err = tx.ExecContext(ctx, `
		UPDATE events SET preferences_submitted = (
			SELECT COUNT(*) FROM event_preferences WHERE event_id = $1
		) WHERE id = $1`, eventID)
	if err != nil {
		return apperrors.NewDatabaseError(err.Error())
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewDatabaseError(err.Error())
	}
	return nil
}

// RecordVote appends or replaces one participant's vote on a shortlisted
// venue. Votes are only accepted while the event is in the Voting state.
func (s *EventStore) RecordVote(ctx context.Context, eventID string, vote models.Vote) (*models.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err.Error())
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID)

	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewEventNotFoundError(eventID)
		}
		return nil, apperrors.NewDatabaseError(err.Error())
	}

	if e.State != models.StateVoting {
		return nil, apperrors.NewStateConflictError(eventID, string(models.StateVoting))
	}

	replaced := false
	for i, existing := range e.Votes {
		if existing.ParticipantID == vote.ParticipantID && existing.VenueID == vote.VenueID {
			e.Votes[i] = vote
			replaced = true
			break
		}
	}
	if !replaced {
		e.Votes = append(e.Votes, vote)
	}
	e.Version++

	votes, _ := json.Marshal(e.Votes)
	_, err = tx.ExecContext(ctx,
		`UPDATE events SET votes = $1, version = $2 WHERE id = $3`,
		votes, e.Version, eventID)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err.Error())
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewDatabaseError(err.Error())
	}
	metrics.VotesRecorded.Inc()

	return e, nil
}

// CatalogSearch returns internal-catalog places within radiusMeters of the
// center, optionally filtered by category. It is the postgres fallback
// channel of venue sourcing; the primary catalog path is Elasticsearch.
func (s *EventStore) CatalogSearch(ctx context.Context, center models.Location, radiusMeters int, categories []string) ([]models.VenueCandidate, error) {
	// Bounding-box prefilter; the caller applies the exact radius cut on
	// the rows it gets back.
	latDelta := float64(radiusMeters) / 111320.0
	lngDelta := latDelta * 1.6

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, external_id, name, lat, lng, category, tags, rating, price_level, address
		FROM places
		WHERE lat BETWEEN $1 AND $2 AND lng BETWEEN $3 AND $4
		LIMIT 200`,
		center.Lat-latDelta, center.Lat+latDelta,
		center.Lng-lngDelta, center.Lng+lngDelta,
	)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err.Error())
	}
	defer rows.Close()

	var out []models.VenueCandidate
	for rows.Next() {
		var (
			c          models.VenueCandidate
			externalID sql.NullString
			tags       []byte
			rating     sql.NullFloat64
			price      sql.NullInt64
			address    sql.NullString
		)
		if err := rows.Scan(&c.ID, &externalID, &c.Name, &c.Lat, &c.Lng, &c.Category, &tags, &rating, &price, &address); err != nil {
			return nil, apperrors.NewDatabaseError(err.Error())
		}
		c.ExternalID = externalID.String
		c.Address = address.String
		if len(tags) > 0 {
			_ = json.Unmarshal(tags, &c.Tags)
		}
		if rating.Valid {
			r := rating.Float64
			c.Rating = &r
		}
		if price.Valid {
			p := int(price.Int64)
			c.PriceLevel = &p
		}
		c.Source = models.SourceDatabase

		if len(categories) > 0 && !matchesAnyCategory(c, categories) {
			continue
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError(err.Error())
	}

	return out, nil
}

func matchesAnyCategory(c models.VenueCandidate, categories []string) bool {
	for _, want := range categories {
		if c.Category == want {
			return true
		}
		for _, tag := range c.Tags {
			if tag == want {
				return true
			}
		}
	}
	return false
}
