// Package points runs the flows that move points: the transaction issuer,
// survey completion awards, offer redemptions, contest prizes and the
// leaderboard recalculator.
package points

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/pauljmillar/survey-sub001/internal/apperr"
	"github.com/pauljmillar/survey-sub001/internal/metrics"
	"github.com/pauljmillar/survey-sub001/internal/model"
	"github.com/pauljmillar/survey-sub001/internal/store"
	"github.com/pauljmillar/survey-sub001/internal/websocket"
)

// Issuer appends a transaction to the ledger and moves the balance
// projection atomically.
type Issuer interface {
	Issue(ctx context.Context, t model.Transaction) (*model.IssueResult, error)
}

// Qualifier decides whether a panelist is eligible for a survey.
type Qualifier interface {
	Qualifies(ctx context.Context, p *model.Panelist, s *model.Survey) (bool, error)
}

// AllowAll qualifies every panelist for every survey.
type AllowAll struct{}

func (AllowAll) Qualifies(context.Context, *model.Panelist, *model.Survey) (bool, error) {
	return true, nil
}

// Notifier pushes events to connected clients.
type Notifier interface {
	Broadcast(msg websocket.Message)
	Notify(panelistID int64, msg websocket.Message)
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(websocket.Message)        {}
func (nopNotifier) Notify(int64, websocket.Message) {}

type Service struct {
	panelists   *store.PanelistStore
	ledger      *store.LedgerStore
	surveys     *store.SurveyStore
	offers      *store.OfferStore
	redemptions *store.RedemptionStore
	contests    *store.ContestStore

	issuer    Issuer
	qualifier Qualifier
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*Service)

// WithIssuer replaces the ledger issuer used by the award and redemption
// flows.
func WithIssuer(i Issuer) Option {
	return func(s *Service) { s.issuer = i }
}

func WithQualifier(q Qualifier) Option {
	return func(s *Service) { s.qualifier = q }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func New(db *sql.DB, opts ...Option) *Service {
	s := &Service{
		panelists:   store.NewPanelistStore(db),
		ledger:      store.NewLedgerStore(db),
		surveys:     store.NewSurveyStore(db),
		offers:      store.NewOfferStore(db),
		redemptions: store.NewRedemptionStore(db),
		contests:    store.NewContestStore(db),
		qualifier:   AllowAll{},
		notifier:    nopNotifier{},
		logger:      slog.Default(),
	}
	s.issuer = s.ledger
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "points")
	return s
}

// IssueTransaction appends one ledger entry on behalf of an operator or
// another subsystem.
func (s *Service) IssueTransaction(ctx context.Context, t model.Transaction) (*model.IssueResult, error) {
	res, err := s.issue(ctx, t)
	if err != nil {
		return nil, err
	}
	s.logger.Info("transaction issued",
		"panelist_id", t.PanelistID, "type", t.Type, "points", t.Points,
		"entry_id", res.EntryID, "balance", res.NewBalance)
	return res, nil
}

// issue runs the issuer and records the outcome.
func (s *Service) issue(ctx context.Context, t model.Transaction) (*model.IssueResult, error) {
	res, err := s.issuer.Issue(ctx, t)
	if err != nil {
		s.metrics.Transaction(string(t.Type), apperr.CodeOf(err), t.Points)
		return nil, err
	}
	s.metrics.Transaction(string(t.Type), "ok", t.Points)
	s.notifyEntry(t, res)
	return res, nil
}

func (s *Service) notifyEntry(t model.Transaction, res *model.IssueResult) {
	s.notifier.Notify(t.PanelistID, websocket.NewMessage("ledger_entry", "created", res.EntryID, map[string]any{
		"points":           t.Points,
		"transaction_type": t.Type,
		"balance":          res.NewBalance,
	}))
}

func (s *Service) requirePanelist(ctx context.Context, id int64) (*model.Panelist, error) {
	p, err := s.panelists.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("failed to load panelist", err)
	}
	if p == nil {
		return nil, apperr.NotFound("panelist_not_found", "panelist not found")
	}
	if !p.Active {
		return nil, apperr.State("panelist_inactive", "panelist is not active")
	}
	return p, nil
}
