// Package journal keeps a local SQLite log of submission attempts. It records
// outcomes and diagnostics only; answers are never stored.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const tsLayout = "2006-01-02T15:04:05.000000000Z"

var (
	ErrNotFound  = errors.New("attempt not found")
	ErrAmbiguous = errors.New("attempt id prefix is ambiguous")
)

// Attempt is one submission outcome.
type Attempt struct {
	ID           string         `json:"id"`
	At           time.Time      `json:"at"`
	State        string         `json:"state"`
	Kind         string         `json:"kind,omitempty"`
	Status       int            `json:"status,omitempty"`
	Message      string         `json:"message,omitempty"`
	Target       string         `json:"target,omitempty"`
	SubmissionID string         `json:"submission_id,omitempty"`
	Diagnostics  string         `json:"diagnostics,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
}

// Journal is safe for concurrent use.
type Journal struct {
	db  *sql.DB
	Now func() time.Time
}

// Open opens (creating if needed) the journal of workspace and migrates it.
func Open(ctx context.Context, workspace string) (*Journal, error) {
	db, err := openDB(workspace)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db, Now: time.Now}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Record stores a, filling in ID and At when unset, and returns the stored row.
func (j *Journal) Record(ctx context.Context, a Attempt) (Attempt, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.At.IsZero() {
		now := time.Now
		if j.Now != nil {
			now = j.Now
		}
		a.At = now()
	}
	a.At = a.At.UTC()
	if strings.TrimSpace(a.State) == "" {
		return Attempt{}, errors.New("attempt state is required")
	}
	meta := a.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return Attempt{}, fmt.Errorf("marshal attempt meta: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `INSERT INTO attempts(id,ts,state,kind,status,message,target,submission_id,diagnostics,meta_json) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.At.Format(tsLayout), a.State, a.Kind, a.Status, a.Message, a.Target, a.SubmissionID, a.Diagnostics, string(data))
	if err != nil {
		return Attempt{}, fmt.Errorf("insert attempt: %w", err)
	}
	return a, nil
}

const selectCols = `SELECT id,ts,state,kind,status,message,target,submission_id,diagnostics,meta_json FROM attempts`

// Latest returns up to limit attempts, newest first.
func (j *Journal) Latest(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, selectCols+` ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Get returns the attempt whose id equals or uniquely starts with id.
func (j *Journal) Get(ctx context.Context, id string) (Attempt, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Attempt{}, ErrNotFound
	}
	rows, err := j.db.QueryContext(ctx, selectCols+` WHERE id = ? OR substr(id,1,?) = ? ORDER BY (id = ?) DESC, seq DESC LIMIT 2`,
		id, len(id), id, id)
	if err != nil {
		return Attempt{}, err
	}
	defer rows.Close()
	var found []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return Attempt{}, err
		}
		found = append(found, a)
	}
	if err := rows.Err(); err != nil {
		return Attempt{}, err
	}
	switch {
	case len(found) == 0:
		return Attempt{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case found[0].ID == id || len(found) == 1:
		return found[0], nil
	default:
		return Attempt{}, fmt.Errorf("%w: %s", ErrAmbiguous, id)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(s scanner) (Attempt, error) {
	var a Attempt
	var ts, meta string
	if err := s.Scan(&a.ID, &ts, &a.State, &a.Kind, &a.Status, &a.Message, &a.Target, &a.SubmissionID, &a.Diagnostics, &meta); err != nil {
		return Attempt{}, err
	}
	at, err := time.Parse(tsLayout, ts)
	if err != nil {
		return Attempt{}, fmt.Errorf("parse attempt time %q: %w", ts, err)
	}
	a.At = at
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &a.Meta); err != nil {
			return Attempt{}, fmt.Errorf("parse attempt meta: %w", err)
		}
	}
	return a, nil
}
