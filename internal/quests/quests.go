// internal/quests/quests.go
package quests

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/apperr"
	"github.com/jason-s-yu/pikit/internal/hunt"
	"github.com/jason-s-yu/pikit/internal/models"
	"github.com/jason-s-yu/pikit/internal/rewards"
	"github.com/sirupsen/logrus"
)

const dailyQuestName = "Daily quest"

// Store persists quests. Quest dates are unique.
type Store interface {
	// CreateQuest fails with an error wrapping apperr.ErrConflict when a quest already
	// exists for q.QuestDate.
	CreateQuest(ctx context.Context, q *models.Quest) error
	QuestForDate(ctx context.Context, date time.Time) (*models.Quest, error)
	GetQuest(ctx context.Context, id uuid.UUID) (*models.Quest, error)
}

// Config selects where daily objects come from and what they are worth.
type Config struct {
	ObjectList   string
	RewardPoints int
}

// Service creates the daily quest and pays out completions through the reward calculator.
type Service struct {
	store   Store
	pools   hunt.PoolProvider
	rewards *rewards.Calculator
	cfg     Config
	log     *logrus.Logger
	now     func() time.Time
}

func NewService(store Store, pools hunt.PoolProvider, calc *rewards.Calculator, cfg Config, logger *logrus.Logger, now func() time.Time) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.ObjectList == "" {
		cfg.ObjectList = hunt.CocoListName
	}
	return &Service{store: store, pools: pools, rewards: calc, cfg: cfg, log: logger, now: now}
}

// EnsureDaily returns today's quest, creating it if nobody has yet.
func (s *Service) EnsureDaily(ctx context.Context) (*models.Quest, error) {
	today := models.Day(s.now())
	q, err := s.store.QuestForDate(ctx, today)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("load quest for %s: %w", today.Format(time.DateOnly), err)
	}

	objects, err := s.pools.ObjectsForList(ctx, s.cfg.ObjectList)
	if err != nil {
		return nil, fmt.Errorf("load object list %q: %w", s.cfg.ObjectList, err)
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("object list %q is empty: %w", s.cfg.ObjectList, apperr.ErrPoolExhausted)
	}
	object := objects[rand.IntN(len(objects))]

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate quest id: %w", err)
	}
	q = &models.Quest{
		ID:           id,
		Name:         dailyQuestName,
		Description:  fmt.Sprintf("Your mission for today: take a photo of a %s to earn points.", object),
		ObjectToFind: object,
		RewardPoints: s.cfg.RewardPoints,
		QuestDate:    today,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateQuest(ctx, q); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			// Another instance won the race.
			return s.store.QuestForDate(ctx, today)
		}
		return nil, fmt.Errorf("create daily quest: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"quest_id":   q.ID,
		"quest_date": today.Format(time.DateOnly),
		"object":     q.ObjectToFind,
	}).Info("daily quest created")
	return q, nil
}

// Today returns the current quest without creating one.
func (s *Service) Today(ctx context.Context) (*models.Quest, error) {
	return s.store.QuestForDate(ctx, models.Day(s.now()))
}

// Complete rewards userID for questID using the quest's own point value.
func (s *Service) Complete(ctx context.Context, userID, questID uuid.UUID) (*models.RewardRecord, error) {
	q, err := s.store.GetQuest(ctx, questID)
	if err != nil {
		return nil, err
	}
	return s.rewards.CompleteChallenge(ctx, userID, q.ID, q.RewardPoints)
}
