// Package catalog implements the catalog-facing service: card ingestion,
// the read path for cards and guides (with mention resolution applied as
// a pure transformation at read time), and the handlers that connect
// ingestion to the analysis backlog.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/grimoire-api/internal/domain"
	"github.com/phrazzld/grimoire-api/internal/events"
	"github.com/phrazzld/grimoire-api/internal/mention"
	"github.com/phrazzld/grimoire-api/internal/store"
)

// CardInput is one card in an ingestion request.
type CardInput struct {
	ID            uuid.UUID
	Name          string
	SetCode       string
	SetName       string
	Rarity        string
	TypeLine      string
	ManaCost      string
	OracleText    string
	FlavorText    string
	Power         string
	Toughness     string
	Lang          string
	ImageSmallURL string
	ImageURL      string
	ArtCropURL    string
}

// IngestResult summarizes one ingestion call.
type IngestResult struct {
	Upserted  int `json:"upserted"`
	Requested int `json:"analysis_requested"`
}

// CardView is the read-path projection of a card.
type CardView struct {
	Card     *domain.Card    `json:"card"`
	HasGuide bool            `json:"has_guide"`
	JobState domain.JobState `json:"job_state,omitempty"`
}

// GuideView is the read-path projection of a guide. Content carries the
// resolved form when resolution was requested; Mentions lists the cards
// referenced by the guide either way.
type GuideView struct {
	Guide    *domain.Guide   `json:"guide"`
	Content  string          `json:"content"`
	Mentions []mention.Entry `json:"mentions"`
}

// Service is the catalog service.
type Service struct {
	cards   store.CardStore
	guides  store.GuideStore
	jobs    store.JobStore
	emitter events.EventEmitter
	index   *IndexProvider
	logger  *slog.Logger
}

// NewService creates a catalog service.
func NewService(
	cards store.CardStore,
	guides store.GuideStore,
	jobs store.JobStore,
	emitter events.EventEmitter,
	index *IndexProvider,
	logger *slog.Logger,
) *Service {
	return &Service{
		cards:   cards,
		guides:  guides,
		jobs:    jobs,
		emitter: emitter,
		index:   index,
		logger:  logger.With("component", "catalog_service"),
	}
}

// IngestCards upserts the given cards and emits an analysis request for
// every card that has no committed guide yet. The ingestion order is the
// backlog order: the claim protocol serves oldest-enqueued first, so
// importers submit their most important cards first.
func (s *Service) IngestCards(ctx context.Context, inputs []CardInput) (*IngestResult, error) {
	result := &IngestResult{}

	for _, in := range inputs {
		card, err := domain.NewCard(in.ID, in.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid card %s: %w", in.ID, err)
		}
		card.SetCode = in.SetCode
		card.SetName = in.SetName
		card.Rarity = in.Rarity
		card.TypeLine = in.TypeLine
		card.ManaCost = in.ManaCost
		card.OracleText = in.OracleText
		card.FlavorText = in.FlavorText
		card.Power = in.Power
		card.Toughness = in.Toughness
		if in.Lang != "" {
			card.Lang = in.Lang
		}
		card.ImageSmallURL = in.ImageSmallURL
		card.ImageURL = in.ImageURL
		card.ArtCropURL = in.ArtCropURL

		if err := s.cards.Upsert(ctx, card); err != nil {
			return nil, fmt.Errorf("failed to upsert card %s: %w", in.ID, err)
		}
		result.Upserted++

		if _, err := s.guides.GetByCardID(ctx, card.ID); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to check guide for card %s: %w", in.ID, err)
		}

		event := events.NewAnalysisRequestEvent(card.ID, card.Name)
		if err := s.emitter.EmitEvent(ctx, event); err != nil {
			// The card is ingested; a lost analysis request is recovered
			// by re-ingesting, so log and continue.
			s.logger.Error("failed to emit analysis request",
				"card_id", card.ID,
				"error", err)
			continue
		}
		result.Requested++
	}

	if result.Upserted > 0 && s.index != nil {
		s.index.Invalidate()
	}

	s.logger.Info("cards ingested",
		"upserted", result.Upserted,
		"analysis_requested", result.Requested)

	return result, nil
}

// GetCard returns the card plus guide presence and job state.
func (s *Service) GetCard(ctx context.Context, id uuid.UUID) (*CardView, error) {
	card, err := s.cards.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &CardView{Card: card}

	if _, err := s.guides.GetByCardID(ctx, id); err == nil {
		view.HasGuide = true
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if job, err := s.jobs.GetByCardID(ctx, id); err == nil {
		view.JobState = job.State
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	return view, nil
}

// GetGuide returns the guide for a card. When resolve is set the content
// has mention markers inserted against the current index snapshot, with
// the card itself excluded from linking. A card with no committed guide
// is simply absent (store.ErrGuideNotFound); pipeline failures never
// surface here.
func (s *Service) GetGuide(ctx context.Context, id uuid.UUID, resolve bool) (*GuideView, error) {
	guide, err := s.guides.GetByCardID(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &GuideView{
		Guide:   guide,
		Content: guide.Content,
	}

	ix, err := s.index.Index(ctx)
	if err != nil {
		return nil, fmt.Errorf("mention index unavailable: %w", err)
	}

	view.Mentions = ix.FindMentions(guide.Content, id)
	if resolve {
		view.Content = ix.Resolve(guide.Content, id)
	}

	return view, nil
}

// Mentions returns the cards mentioned by the given card's guide.
func (s *Service) Mentions(ctx context.Context, id uuid.UUID) ([]mention.Entry, error) {
	view, err := s.GetGuide(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return view.Mentions, nil
}

// NewEnqueueHandler returns the event handler that turns analysis
// requests into backlog jobs. A request for a card that already has a
// live or completed job is ignored: AlreadyExists is the expected result
// of re-ingesting an unchanged catalog.
func NewEnqueueHandler(jobs store.JobStore, logger *slog.Logger) events.EventHandler {
	log := logger.With("component", "enqueue_handler")
	return events.EventHandlerFunc(func(ctx context.Context, event *events.AnalysisRequestEvent) error {
		err := jobs.Enqueue(ctx, event.CardID, time.Now().UTC())
		if err != nil {
			if errors.Is(err, store.ErrJobAlreadyExists) {
				log.Debug("analysis already tracked",
					"card_id", event.CardID)
				return nil
			}
			return fmt.Errorf("failed to enqueue analysis job: %w", err)
		}

		log.Info("analysis job enqueued",
			"card_id", event.CardID,
			"card_name", event.CardName)
		return nil
	})
}
