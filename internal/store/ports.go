// Package store defines the session workspace: the participants and
// expenditures of the sessions currently being edited. Backends keep state
// only for the life of the process.
package store

import (
	"context"

	"travelai/internal/core"
)

// Ports for workspace backends.
type (
	SessionReader interface {
		// Participants returns the session members in join order.
		Participants(ctx context.Context, sessionID string) ([]core.Participant, error)
		// Expenditures returns the session's expenditures in recording order.
		Expenditures(ctx context.Context, sessionID string) ([]core.Expenditure, error)
		// Expenditure returns one expenditure or core.ErrNotFound.
		Expenditure(ctx context.Context, sessionID, expenditureID string) (core.Expenditure, error)
	}

	SessionWriter interface {
		// UpsertParticipant adds a member or renames an existing one. A renamed
		// member keeps its position.
		UpsertParticipant(ctx context.Context, sessionID string, p core.Participant) error
		RemoveParticipant(ctx context.Context, sessionID, userID string) error
		// SaveExpenditure inserts or replaces e within e.SessionID.
		SaveExpenditure(ctx context.Context, e core.Expenditure) error
		DeleteExpenditure(ctx context.Context, sessionID, expenditureID string) error
	}

	Store interface {
		SessionReader
		SessionWriter
		Close() error
	}
)
