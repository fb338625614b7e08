package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"travelai/internal/amqp"
	"travelai/internal/cache"
	"travelai/internal/core"
	"travelai/internal/log"
	"travelai/internal/settlement"
	"travelai/internal/store"
)

// Workspace is the store surface the service needs.
type Workspace interface {
	store.SessionReader
	store.SessionWriter
}

// EventPublisher sends recompute notifications. Publishing is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, evt *amqp.SettlementEvent) error
}

// SettlementService owns every edit to a session workspace. Each edit is
// followed by a full recompute of the affected distribution; nothing
// derived is patched incrementally.
type SettlementService struct {
	workspace Workspace
	publisher EventPublisher
	summaries cache.Cache[core.SessionSummary]
	logger    *log.Logger
	loc       *time.Location
	now       func() time.Time

	// mu serialises edits so read-modify-write on an expenditure is atomic.
	mu    sync.Mutex
	group singleflight.Group

	genMu       sync.Mutex
	generations map[string]uint64
}

type Option func(*SettlementService)

func WithPublisher(p EventPublisher) Option {
	return func(s *SettlementService) { s.publisher = p }
}

func WithSummaryCache(c cache.Cache[core.SessionSummary]) Option {
	return func(s *SettlementService) { s.summaries = c }
}

func WithLogger(l *log.Logger) Option {
	return func(s *SettlementService) { s.logger = l }
}

// WithLocation sets the timezone used to bucket expenditures by day.
func WithLocation(loc *time.Location) Option {
	return func(s *SettlementService) { s.loc = loc }
}

func NewSettlementService(workspace Workspace, opts ...Option) *SettlementService {
	s := &SettlementService{
		workspace:   workspace,
		loc:         time.UTC,
		now:         time.Now,
		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Discard()
	}
	s.logger = s.logger.WithComponent(log.ComponentSettlement)
	return s
}

// RecordExpenditure validates and stores e, assigning ids and a paid-at
// time where missing, and returns the stored record with its distribution.
func (s *SettlementService) RecordExpenditure(ctx context.Context, sessionID string, e core.Expenditure) (core.Expenditure, settlement.Distribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e = e.Clone()
	e.SessionID = sessionID
	e.CurrencyCode = strings.ToUpper(strings.TrimSpace(e.CurrencyCode))
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.PaidAt.IsZero() {
		e.PaidAt = s.now().UTC()
	}
	for i := range e.LineItems {
		if e.LineItems[i].ID == "" {
			e.LineItems[i].ID = uuid.NewString()
		}
	}

	dist, err := s.saveLocked(ctx, e)
	if err != nil {
		return core.Expenditure{}, nil, err
	}
	return e, dist, nil
}

// SetAllocations replaces who shares one line item. An empty list marks the
// line unassigned.
func (s *SettlementService) SetAllocations(ctx context.Context, sessionID, expenditureID, lineItemID string, userIDs []string) (settlement.Distribution, error) {
	return s.editLine(ctx, sessionID, expenditureID, lineItemID, func(li *core.LineItem) error {
		li.Allocations = append([]string(nil), userIDs...)
		return nil
	})
}

// SetLinePrice changes the price of one line item.
func (s *SettlementService) SetLinePrice(ctx context.Context, sessionID, expenditureID, lineItemID string, price core.ExactAmount) (settlement.Distribution, error) {
	return s.editLine(ctx, sessionID, expenditureID, lineItemID, func(li *core.LineItem) error {
		if price.Sign() < 0 {
			return fmt.Errorf("%w: negative price", core.ErrInvalidAmount)
		}
		li.Price = price
		return nil
	})
}

func (s *SettlementService) editLine(ctx context.Context, sessionID, expenditureID, lineItemID string, edit func(*core.LineItem) error) (settlement.Distribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.workspace.Expenditure(ctx, sessionID, expenditureID)
	if err != nil {
		return nil, err
	}
	_, idx, ok := e.LineItem(lineItemID)
	if !ok {
		return nil, fmt.Errorf("line item %q in expenditure %q: %w", lineItemID, expenditureID, core.ErrNotFound)
	}
	e = e.Clone()
	if err := edit(&e.LineItems[idx]); err != nil {
		return nil, err
	}
	return s.saveLocked(ctx, e)
}

// saveLocked checks e against the session before writing it: every
// referenced user must be a participant and the session keeps one currency.
func (s *SettlementService) saveLocked(ctx context.Context, e core.Expenditure) (settlement.Distribution, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	participants, err := s.workspace.Participants(ctx, e.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	dist, err := settlement.ForExpenditure(e, participants)
	if err != nil {
		return nil, err
	}

	existing, err := s.workspace.Expenditures(ctx, e.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load expenditures: %w", err)
	}
	others := make([]core.Expenditure, 0, len(existing)+1)
	for _, x := range existing {
		if x.ID != e.ID {
			others = append(others, x)
		}
	}
	if _, err := settlement.CommonCurrency(append(others, e)); err != nil {
		return nil, err
	}

	if err := s.workspace.SaveExpenditure(ctx, e); err != nil {
		return nil, fmt.Errorf("save expenditure: %w", err)
	}

	log.NewStructuredLogger(s.logger).LogRecomputed(ctx, e.SessionID, e.ID, len(dist))
	s.afterEdit(ctx, e.SessionID, e.ID, dist)
	return dist, nil
}

func (s *SettlementService) DeleteExpenditure(ctx context.Context, sessionID, expenditureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.workspace.DeleteExpenditure(ctx, sessionID, expenditureID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Expenditure deleted",
		log.FieldSessionID, sessionID,
		log.FieldExpenditureID, expenditureID)
	s.afterEdit(ctx, sessionID, expenditureID, nil)
	return nil
}

// AddParticipant adds or renames a session member.
func (s *SettlementService) AddParticipant(ctx context.Context, sessionID string, p core.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.UserID = strings.TrimSpace(p.UserID)
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.workspace.UpsertParticipant(ctx, sessionID, p); err != nil {
		return err
	}
	s.afterEdit(ctx, sessionID, "", nil)
	return nil
}

// RemoveParticipant is rejected while any expenditure still references the
// user as payer, stated participant or allocation.
func (s *SettlementService) RemoveParticipant(ctx context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exps, err := s.workspace.Expenditures(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load expenditures: %w", err)
	}
	for _, e := range exps {
		for _, id := range e.ReferencedUserIDs() {
			if id == userID {
				return fmt.Errorf("%w: %q is used by expenditure %q", core.ErrParticipantInUse, userID, e.ID)
			}
		}
	}
	if err := s.workspace.RemoveParticipant(ctx, sessionID, userID); err != nil {
		return err
	}
	s.afterEdit(ctx, sessionID, "", nil)
	return nil
}

// Distribution recomputes who owes what for one expenditure.
func (s *SettlementService) Distribution(ctx context.Context, sessionID, expenditureID string) (core.Expenditure, settlement.Distribution, error) {
	e, err := s.workspace.Expenditure(ctx, sessionID, expenditureID)
	if err != nil {
		return core.Expenditure{}, nil, err
	}
	participants, err := s.workspace.Participants(ctx, sessionID)
	if err != nil {
		return core.Expenditure{}, nil, fmt.Errorf("load participants: %w", err)
	}
	dist, err := settlement.ForExpenditure(e, participants)
	if err != nil {
		return core.Expenditure{}, nil, err
	}
	return e, dist, nil
}

// Summary returns the session rollups restricted to the recognised
// categories (all categories when none are given). Results are cached per
// session until the next edit; concurrent misses share one computation.
func (s *SettlementService) Summary(ctx context.Context, sessionID string, categories []core.Category) (core.SessionSummary, error) {
	if len(categories) == 0 {
		categories = core.Categories()
	}
	key := summaryKey(sessionID, categories)
	if s.summaries != nil {
		if sum, ok := s.summaries.Get(key); ok {
			return sum, nil
		}
	}

	gen := s.generation(sessionID)
	v, err, _ := s.group.Do(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		sum, err := s.summarize(ctx, sessionID, categories)
		if err != nil {
			return nil, err
		}
		s.storeSummary(sessionID, gen, key, sum)
		return sum, nil
	})
	if err != nil {
		return core.SessionSummary{}, err
	}
	return v.(core.SessionSummary), nil
}

func (s *SettlementService) summarize(ctx context.Context, sessionID string, categories []core.Category) (core.SessionSummary, error) {
	participants, err := s.workspace.Participants(ctx, sessionID)
	if err != nil {
		return core.SessionSummary{}, fmt.Errorf("load participants: %w", err)
	}
	exps, err := s.workspace.Expenditures(ctx, sessionID)
	if err != nil {
		return core.SessionSummary{}, fmt.Errorf("load expenditures: %w", err)
	}
	return settlement.Summarize(sessionID, exps, participants, categories, s.loc)
}

// ApplyEvent applies an inbound session edit. Deletes of records that are
// already gone succeed so redelivered events are harmless.
func (s *SettlementService) ApplyEvent(ctx context.Context, evt *amqp.SettlementEvent) error {
	var err error
	switch evt.Type {
	case amqp.EventExpenditureSaved:
		if evt.Expenditure == nil {
			return fmt.Errorf("%w: event %q has no expenditure", core.ErrInvalidExpenditure, evt.ID)
		}
		_, _, err = s.RecordExpenditure(ctx, evt.SessionID, *evt.Expenditure)
	case amqp.EventExpenditureDeleted:
		err = s.DeleteExpenditure(ctx, evt.SessionID, evt.ExpenditureID)
	case amqp.EventMemberJoined:
		if evt.Participant == nil {
			return fmt.Errorf("%w: event %q has no participant", core.ErrUnknownParticipant, evt.ID)
		}
		err = s.AddParticipant(ctx, evt.SessionID, *evt.Participant)
	case amqp.EventMemberLeft:
		err = s.RemoveParticipant(ctx, evt.SessionID, evt.UserID)
	case amqp.EventSettlementRecomputed:
		return nil
	default:
		return fmt.Errorf("%w: %q", amqp.ErrUnknownEventType, evt.Type)
	}

	if errors.Is(err, core.ErrNotFound) && (evt.Type == amqp.EventExpenditureDeleted || evt.Type == amqp.EventMemberLeft) {
		s.logger.DebugContext(ctx, "Event already applied",
			log.FieldEventType, evt.Type,
			log.FieldSessionID, evt.SessionID)
		return nil
	}
	return err
}

// afterEdit invalidates cached summaries and publishes the new session
// state. Must be called with s.mu held.
func (s *SettlementService) afterEdit(ctx context.Context, sessionID, expenditureID string, dist settlement.Distribution) {
	s.genMu.Lock()
	s.generations[sessionID]++
	s.genMu.Unlock()
	if s.summaries != nil {
		s.summaries.DeletePrefix(sessionID + "|")
	}

	if s.publisher == nil {
		return
	}
	evt := amqp.NewEvent(amqp.EventSettlementRecomputed, sessionID)
	evt.ExpenditureID = expenditureID
	evt.Distribution = dist
	if sum, err := s.summarize(ctx, sessionID, core.Categories()); err == nil {
		evt.Summary = &sum
	} else {
		s.logger.WarnContext(ctx, "Summary unavailable for recompute event",
			log.FieldSessionID, sessionID,
			log.FieldError, err)
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		log.NewStructuredLogger(s.logger).LogError(ctx, "Failed to publish recompute event", err,
			log.ComponentAMQP, log.OpPublish, log.NewFields().WithSession(sessionID))
	}
}

// storeSummary caches sum unless the session was edited after the
// computation started.
func (s *SettlementService) storeSummary(sessionID string, gen uint64, key string, sum core.SessionSummary) {
	if s.summaries == nil {
		return
	}
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generations[sessionID] == gen {
		s.summaries.Set(key, sum)
	}
}

func (s *SettlementService) generation(sessionID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[sessionID]
}

func summaryKey(sessionID string, categories []core.Category) string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	return sessionID + "|" + strings.Join(names, ",")
}
