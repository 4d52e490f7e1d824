package store

import (
	"context"
	"fmt"
	"time"

	"github.com/HendryAvila/lifecycle/internal/lifecycle"
)

// ─── Audit log writer ────────────────────────────────────────────────────────

// appendEvent writes one event inside the unit. It is only ever called
// after validation passed and the mutation itself was written.
func (u *unit) appendEvent(kind lifecycle.Kind, id string, ek EventKind, from, to, actor string) (*Event, error) {
	ev := Event{
		EntityType: kind,
		EntityID:   id,
		Kind:       ek,
		From:       from,
		To:         to,
		Actor:      actor,
		RequestID:  u.requestID,
		CreatedAt:  now(),
	}
	err := u.queryRow(
		`INSERT INTO lifecycle_events (entity_type, entity_id, event_type, from_value, to_value, actor, request_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		ev.EntityType, ev.EntityID, ev.Kind, ev.From, ev.To, ev.Actor, ev.RequestID, ev.CreatedAt,
	).Scan(&ev.ID)
	if err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}
	u.events = append(u.events, ev)
	return &ev, nil
}

func (u *unit) addReview(kind lifecycle.Kind, id, reviewer, comment string) error {
	_, err := u.exec(
		`INSERT INTO reviews (entity_type, entity_id, reviewer, comment, created_at) VALUES (?, ?, ?, ?, ?)`,
		kind, id, reviewer, comment, now(),
	)
	if err != nil {
		return fmt.Errorf("add review: %w", err)
	}
	return nil
}

// AddReview attaches a standalone comment to an entity. It is not a state
// change and emits no event.
func (s *Store) AddReview(ctx context.Context, id, reviewer, comment string) (err error) {
	defer s.observe("add_review", time.Now(), &err)

	kind, err := lifecycle.KindOf(id)
	if err != nil {
		return err
	}
	if reviewer == "" {
		return lifecycle.Validationf("reviewer is required")
	}
	if comment == "" {
		return lifecycle.Validationf("comment is required")
	}
	return s.withTx(ctx, "add_review", func(u *unit) error {
		if _, err := u.statusOf(kind, id, false); err != nil {
			return err
		}
		return u.addReview(kind, id, reviewer, comment)
	})
}

// History returns the audit trail of an entity, oldest first.
func (s *Store) History(ctx context.Context, id string) ([]Event, error) {
	kind, err := lifecycle.KindOf(id)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT id, entity_type, entity_id, event_type, from_value, to_value, actor, request_id, created_at
		 FROM lifecycle_events WHERE entity_type = ? AND entity_id = ? ORDER BY id ASC`),
		kind, id,
	)
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.EntityType, &ev.EntityID, &ev.Kind, &ev.From, &ev.To, &ev.Actor, &ev.RequestID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Reviews returns the comments on an entity, newest first.
func (s *Store) Reviews(ctx context.Context, id string) ([]Review, error) {
	kind, err := lifecycle.KindOf(id)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT id, entity_type, entity_id, reviewer, comment, created_at
		 FROM reviews WHERE entity_type = ? AND entity_id = ? ORDER BY id DESC`),
		kind, id,
	)
	if err != nil {
		return nil, fmt.Errorf("store: reviews: %w", err)
	}
	defer rows.Close()

	var out []Review
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.EntityType, &r.EntityID, &r.Reviewer, &r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan review: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
