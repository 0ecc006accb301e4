// Package profile assembles the per-user summary shown on the profile screen.
package profile

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/focusnest/challenge-service/internal/challenge"
	sharedauth "github.com/focusnest/challenge-service/internal/shared/auth"
)

// ChallengeLister lists a user's challenges.
type ChallengeLister interface {
	List(ctx context.Context, userID string) ([]challenge.Challenge, error)
}

// WeightSource reports the latest recorded body weight, or 0.
type WeightSource interface {
	LatestWeight(ctx context.Context, userID string) (float64, error)
}

// Summary aggregates achievements across every challenge the user owns.
type Summary struct {
	UserID           string  `json:"user_id"`
	DisplayName      string  `json:"display_name,omitempty"`
	Email            string  `json:"email,omitempty"`
	PhotoURL         string  `json:"photo_url,omitempty"`
	ChallengeCount   int     `json:"challenge_count"`
	TotalCompletions int     `json:"total_completions"`
	BestEverStreak   int     `json:"best_ever_streak"`
	LatestWeight     float64 `json:"latest_weight,omitempty"`
}

// Service builds summaries.
type Service struct {
	challenges ChallengeLister
	weights    WeightSource
}

// NewService wires the summary sources. weights may be nil.
func NewService(challenges ChallengeLister, weights WeightSource) (*Service, error) {
	if challenges == nil {
		return nil, errors.New("challenge lister is required")
	}
	return &Service{challenges: challenges, weights: weights}, nil
}

// Summary loads the catalog and the latest weight concurrently.
func (s *Service) Summary(ctx context.Context, user sharedauth.AuthenticatedUser) (Summary, error) {
	var (
		list   []challenge.Challenge
		weight float64
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l, err := s.challenges.List(ctx, user.UserID)
		if err != nil {
			return err
		}
		list = l
		return nil
	})

	if s.weights != nil {
		g.Go(func() error {
			w, err := s.weights.LatestWeight(ctx, user.UserID)
			if err != nil {
				return err
			}
			weight = w
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	return summarize(user, list, weight), nil
}

func summarize(user sharedauth.AuthenticatedUser, list []challenge.Challenge, weight float64) Summary {
	out := Summary{
		UserID:         user.UserID,
		DisplayName:    user.DisplayName,
		Email:          user.Email,
		PhotoURL:       user.PhotoURL,
		ChallengeCount: len(list),
		LatestWeight:   weight,
	}
	for _, c := range list {
		out.TotalCompletions += c.TotalCompletions
		out.BestEverStreak = max(out.BestEverStreak, c.BestEverStreak())
	}
	return out
}
