package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"travelai/internal/core"
)

type session struct {
	participants []core.Participant
	expenditures []core.Expenditure
}

// Store is a mutex-guarded map of sessions. Values are cloned on the way in
// and out so callers never share slices with the store.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func New() *Store {
	return &Store{sessions: make(map[string]*session)}
}

// Seed builds a store holding one session, for tests and demos.
func Seed(sessionID string, participants []core.Participant, exps ...core.Expenditure) *Store {
	s := New()
	sess := s.session(sessionID)
	sess.participants = slices.Clone(participants)
	for _, e := range exps {
		e = e.Clone()
		e.SessionID = sessionID
		sess.expenditures = append(sess.expenditures, e)
	}
	return s
}

func (s *Store) session(id string) *session {
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{}
		s.sessions[id] = sess
	}
	return sess
}

func (s *Store) Participants(_ context.Context, sessionID string) ([]core.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return slices.Clone(sess.participants), nil
}

func (s *Store) Expenditures(_ context.Context, sessionID string) ([]core.Expenditure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	out := make([]core.Expenditure, len(sess.expenditures))
	for i, e := range sess.expenditures {
		out[i] = e.Clone()
	}
	return out, nil
}

func (s *Store) Expenditure(_ context.Context, sessionID, expenditureID string) (core.Expenditure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		if i := indexOf(sess.expenditures, expenditureID); i >= 0 {
			return sess.expenditures[i].Clone(), nil
		}
	}
	return core.Expenditure{}, fmt.Errorf("expenditure %q in session %q: %w", expenditureID, sessionID, core.ErrNotFound)
}

func (s *Store) UpsertParticipant(_ context.Context, sessionID string, p core.Participant) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session(sessionID)
	for i := range sess.participants {
		if core.SameParticipant(sess.participants[i], p) {
			sess.participants[i].DisplayName = p.DisplayName
			return nil
		}
	}
	sess.participants = append(sess.participants, p)
	return nil
}

func (s *Store) RemoveParticipant(_ context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		for i, p := range sess.participants {
			if p.UserID == userID {
				sess.participants = slices.Delete(sess.participants, i, i+1)
				return nil
			}
		}
	}
	return fmt.Errorf("participant %q in session %q: %w", userID, sessionID, core.ErrNotFound)
}

func (s *Store) SaveExpenditure(_ context.Context, e core.Expenditure) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session(e.SessionID)
	if i := indexOf(sess.expenditures, e.ID); i >= 0 {
		sess.expenditures[i] = e.Clone()
		return nil
	}
	sess.expenditures = append(sess.expenditures, e.Clone())
	return nil
}

func (s *Store) DeleteExpenditure(_ context.Context, sessionID, expenditureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		if i := indexOf(sess.expenditures, expenditureID); i >= 0 {
			sess.expenditures = slices.Delete(sess.expenditures, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("expenditure %q in session %q: %w", expenditureID, sessionID, core.ErrNotFound)
}

func (s *Store) Close() error { return nil }

func indexOf(exps []core.Expenditure, id string) int {
	return slices.IndexFunc(exps, func(e core.Expenditure) bool { return e.ID == id })
}
