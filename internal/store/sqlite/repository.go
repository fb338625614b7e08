// Package sqlite is a workspace backend on an in-memory SQLite database. It
// gives the session workspace relational constraints and transactions while
// still holding nothing once the process exits.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"travelai/internal/config"
	"travelai/internal/core"

	_ "modernc.org/sqlite"
)

type Repository struct {
	db *sql.DB
}

// New opens the in-memory database named by dsn and applies the schema.
// File-backed DSNs are rejected.
func New(dsn string) (*Repository, error) {
	if !config.IsMemoryDSN(dsn) {
		return nil, fmt.Errorf("sqlite workspace requires an in-memory DSN, got %q", dsn)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One long-lived connection keeps the in-memory database alive and
	// serialises writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Participants(ctx context.Context, sessionID string) ([]core.Participant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, display_name FROM participants WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var out []core.Participant
	for rows.Next() {
		var p core.Participant
		if err := rows.Scan(&p.UserID, &p.DisplayName); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) UpsertParticipant(ctx context.Context, sessionID string, p core.Participant) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO participants (session_id, user_id, display_name, position)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM participants WHERE session_id = ?))
		ON CONFLICT (session_id, user_id) DO UPDATE SET display_name = excluded.display_name`,
		sessionID, p.UserID, p.DisplayName, sessionID)
	if err != nil {
		return fmt.Errorf("upsert participant: %w", err)
	}
	slog.DebugContext(ctx, "Participant saved", "session_id", sessionID, "user_id", p.UserID)
	return nil
}

func (r *Repository) RemoveParticipant(ctx context.Context, sessionID, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM participants WHERE session_id = ? AND user_id = ?`, sessionID, userID)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("participant %q in session %q: %w", userID, sessionID, core.ErrNotFound)
	}
	return nil
}

func (r *Repository) Expenditures(ctx context.Context, sessionID string) ([]core.Expenditure, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, category, total, currency_code, payer_user_id, paid_at
		FROM expenditures WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query expenditures: %w", err)
	}
	var out []core.Expenditure
	for rows.Next() {
		e, err := scanExpenditure(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		e.SessionID = sessionID
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Children are loaded after the cursor is released: the pool has a
	// single connection.
	for i := range out {
		if err := r.loadChildren(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repository) Expenditure(ctx context.Context, sessionID, expenditureID string) (core.Expenditure, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, category, total, currency_code, payer_user_id, paid_at
		FROM expenditures WHERE session_id = ? AND id = ?`, sessionID, expenditureID)
	e, err := scanExpenditure(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expenditure{}, fmt.Errorf("expenditure %q in session %q: %w", expenditureID, sessionID, core.ErrNotFound)
	}
	if err != nil {
		return core.Expenditure{}, err
	}
	e.SessionID = sessionID
	if err := r.loadChildren(ctx, &e); err != nil {
		return core.Expenditure{}, err
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpenditure(s scanner) (core.Expenditure, error) {
	var (
		e                       core.Expenditure
		category, total, paidAt string
	)
	if err := s.Scan(&e.ID, &category, &total, &e.CurrencyCode, &e.PayerUserID, &paidAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scan expenditure: %w", err)
	}
	e.Category = core.Category(category)
	amount, err := core.ParseAmount(total)
	if err != nil {
		return e, fmt.Errorf("expenditure %q total: %w", e.ID, err)
	}
	e.Total = amount
	if e.PaidAt, err = time.Parse(time.RFC3339Nano, paidAt); err != nil {
		return e, fmt.Errorf("expenditure %q paid_at: %w", e.ID, err)
	}
	return e, nil
}

func (r *Repository) loadChildren(ctx context.Context, e *core.Expenditure) error {
	ids, err := r.strings(ctx, `
		SELECT user_id FROM expenditure_participants
		WHERE session_id = ? AND expenditure_id = ? ORDER BY position`, e.SessionID, e.ID)
	if err != nil {
		return fmt.Errorf("load participants of %q: %w", e.ID, err)
	}
	e.ParticipantIDs = ids

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, label, price FROM line_items
		WHERE session_id = ? AND expenditure_id = ? ORDER BY position`, e.SessionID, e.ID)
	if err != nil {
		return fmt.Errorf("query line items of %q: %w", e.ID, err)
	}
	var items []core.LineItem
	for rows.Next() {
		var (
			li    core.LineItem
			price string
		)
		if err := rows.Scan(&li.ID, &li.Label, &price); err != nil {
			rows.Close()
			return fmt.Errorf("scan line item: %w", err)
		}
		if li.Price, err = core.ParseAmount(price); err != nil {
			rows.Close()
			return fmt.Errorf("line item %q price: %w", li.ID, err)
		}
		items = append(items, li)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for pos := range items {
		alloc, err := r.strings(ctx, `
			SELECT user_id FROM allocations
			WHERE session_id = ? AND expenditure_id = ? AND line_position = ? ORDER BY position`,
			e.SessionID, e.ID, pos)
		if err != nil {
			return fmt.Errorf("load allocations of %q: %w", e.ID, err)
		}
		items[pos].Allocations = alloc
	}
	e.LineItems = items
	return nil
}

func (r *Repository) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveExpenditure replaces the expenditure and all of its children in one
// transaction. An existing expenditure keeps its position.
func (r *Repository) SaveExpenditure(ctx context.Context, e core.Expenditure) error {
	if err := e.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO expenditures (session_id, id, category, total, currency_code, payer_user_id, paid_at, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM expenditures WHERE session_id = ?))
		ON CONFLICT (session_id, id) DO UPDATE SET
			category = excluded.category,
			total = excluded.total,
			currency_code = excluded.currency_code,
			payer_user_id = excluded.payer_user_id,
			paid_at = excluded.paid_at`,
		e.SessionID, e.ID, string(e.Category), e.Total.String(), e.CurrencyCode, e.PayerUserID,
		e.PaidAt.UTC().Format(time.RFC3339Nano), e.SessionID)
	if err != nil {
		return fmt.Errorf("upsert expenditure: %w", err)
	}

	if err := deleteChildren(ctx, tx, e.SessionID, e.ID); err != nil {
		return err
	}

	for pos, id := range e.ParticipantIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO expenditure_participants (session_id, expenditure_id, position, user_id) VALUES (?, ?, ?, ?)`,
			e.SessionID, e.ID, pos, id); err != nil {
			return fmt.Errorf("insert expenditure participant: %w", err)
		}
	}
	for pos, li := range e.LineItems {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO line_items (session_id, expenditure_id, position, id, label, price) VALUES (?, ?, ?, ?, ?, ?)`,
			e.SessionID, e.ID, pos, li.ID, li.Label, li.Price.String()); err != nil {
			return fmt.Errorf("insert line item: %w", err)
		}
		for apos, userID := range li.Allocations {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO allocations (session_id, expenditure_id, line_position, position, user_id) VALUES (?, ?, ?, ?, ?)`,
				e.SessionID, e.ID, pos, apos, userID); err != nil {
				return fmt.Errorf("insert allocation: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit expenditure: %w", err)
	}

	slog.DebugContext(ctx, "Expenditure saved to SQLite",
		"session_id", e.SessionID,
		"expenditure_id", e.ID,
		"line_items", len(e.LineItems))
	return nil
}

func (r *Repository) DeleteExpenditure(ctx context.Context, sessionID, expenditureID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM expenditures WHERE session_id = ? AND id = ?`, sessionID, expenditureID)
	if err != nil {
		return fmt.Errorf("delete expenditure: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expenditure %q in session %q: %w", expenditureID, sessionID, core.ErrNotFound)
	}
	if err := deleteChildren(ctx, tx, sessionID, expenditureID); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteChildren(ctx context.Context, tx *sql.Tx, sessionID, expenditureID string) error {
	for _, table := range []string{"expenditure_participants", "line_items", "allocations"} {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE session_id = ? AND expenditure_id = ?", sessionID, expenditureID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}
