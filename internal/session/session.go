// Package session holds per-user interactive state between sign-in and sign-out:
// the signed-in identity, the active challenge and the unsaved task values for today.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	sharedauth "github.com/focusnest/challenge-service/internal/shared/auth"
)

var (
	// ErrNoSession is returned when the user has not signed in.
	ErrNoSession = errors.New("no active session")
	// ErrNoActiveChallenge is returned by live-progress operations before a challenge is selected.
	ErrNoActiveChallenge = errors.New("no active challenge selected")
	// ErrInvalidInput indicates a rejected task index or value.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDayFinalizing is returned for live-progress edits while today's completion is being saved.
	ErrDayFinalizing = errors.New("day completion in progress")
)

// Session is a snapshot of a user's interactive state.
type Session struct {
	Identity          sharedauth.AuthenticatedUser `json:"identity"`
	ActiveChallengeID string                       `json:"active_challenge_id,omitempty"`
	TaskProgress      []float64                    `json:"task_progress"`
	DeviceToken       string                       `json:"-"`
	StartedAt         time.Time                    `json:"started_at"`
	LastSeen          time.Time                    `json:"last_seen"`

	// finalizing is the challenge whose live values are frozen by BeginFinalize.
	finalizing string
}

func (s *Session) clone() Session {
	out := *s
	out.TaskProgress = slices.Clone(s.TaskProgress)
	if out.TaskProgress == nil {
		out.TaskProgress = []float64{}
	}
	return out
}

// Store keeps sessions in memory keyed by user id.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore returns a store that evicts sessions idle longer than ttl (0 keeps them).
func NewStore(ttl time.Duration) *Store {
	return &Store{ttl: ttl, now: time.Now, sessions: make(map[string]*Session)}
}

// Start signs the user in. Signing in again refreshes the identity and keeps the
// current selection.
func (s *Store) Start(identity sharedauth.AuthenticatedUser) (Session, error) {
	if identity.UserID == "" {
		return Session{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess, ok := s.sessions[identity.UserID]
	if !ok {
		sess = &Session{StartedAt: now, TaskProgress: []float64{}}
		s.sessions[identity.UserID] = sess
	}
	sess.Identity = identity
	sess.LastSeen = now
	return sess.clone(), nil
}

// End signs the user out, discarding unsaved task values. It reports whether a
// session existed.
func (s *Store) End(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[userID]
	delete(s.sessions, userID)
	return ok
}

// Get returns the user's session.
func (s *Store) Get(userID string) (Session, error) {
	return s.update(userID, func(*Session) error { return nil })
}

// Select makes challengeID active and resets live values to zero, one per task.
func (s *Store) Select(userID, challengeID string, taskCount int) (Session, error) {
	if challengeID == "" || taskCount < 0 {
		return Session{}, fmt.Errorf("%w: challenge id is required", ErrInvalidInput)
	}
	return s.update(userID, func(sess *Session) error {
		sess.ActiveChallengeID = challengeID
		sess.TaskProgress = make([]float64, taskCount)
		return nil
	})
}

// ClearSelection drops the active challenge, e.g. after it was deleted.
func (s *Store) ClearSelection(userID, challengeID string) {
	_, _ = s.update(userID, func(sess *Session) error {
		if sess.ActiveChallengeID == challengeID {
			sess.ActiveChallengeID = ""
			sess.TaskProgress = []float64{}
		}
		return nil
	})
}

// SetTaskValue updates the live value of one task of the active challenge.
func (s *Store) SetTaskValue(userID string, index int, value float64) (Session, error) {
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return Session{}, fmt.Errorf("%w: value must be a non-negative number", ErrInvalidInput)
	}
	return s.update(userID, func(sess *Session) error {
		if sess.ActiveChallengeID == "" {
			return ErrNoActiveChallenge
		}
		if sess.finalizing != "" && sess.finalizing == sess.ActiveChallengeID {
			return ErrDayFinalizing
		}
		if index < 0 || index >= len(sess.TaskProgress) {
			return fmt.Errorf("%w: task index %d out of range", ErrInvalidInput, index)
		}
		sess.TaskProgress[index] = value
		return nil
	})
}

// ResetLive zeroes live values after a confirmed day completion. It does nothing if
// the user switched challenges in the meantime.
func (s *Store) ResetLive(userID, challengeID string) (Session, error) {
	return s.update(userID, func(sess *Session) error {
		if sess.ActiveChallengeID == challengeID {
			sess.TaskProgress = make([]float64, len(sess.TaskProgress))
		}
		return nil
	})
}

// BeginFinalize freezes the live values of the active challenge until EndFinalize.
// The returned snapshot carries the values to submit.
func (s *Store) BeginFinalize(userID string) (Session, error) {
	return s.update(userID, func(sess *Session) error {
		if sess.ActiveChallengeID == "" {
			return ErrNoActiveChallenge
		}
		if sess.finalizing != "" {
			return ErrDayFinalizing
		}
		sess.finalizing = sess.ActiveChallengeID
		return nil
	})
}

// EndFinalize releases the freeze taken for challengeID. Live values are zeroed
// only when the completion was confirmed and challengeID is still active.
func (s *Store) EndFinalize(userID, challengeID string, confirmed bool) (Session, error) {
	return s.update(userID, func(sess *Session) error {
		if sess.finalizing == challengeID {
			sess.finalizing = ""
		}
		if confirmed && sess.ActiveChallengeID == challengeID {
			sess.TaskProgress = make([]float64, len(sess.TaskProgress))
		}
		return nil
	})
}

// SetDeviceToken registers the push token for the signed-in device.
func (s *Store) SetDeviceToken(userID, token string) (Session, error) {
	return s.update(userID, func(sess *Session) error {
		sess.DeviceToken = token
		return nil
	})
}

func (s *Store) update(userID string, fn func(*Session) error) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, ErrNoSession
	}
	if err := fn(sess); err != nil {
		return Session{}, err
	}
	sess.LastSeen = s.now()
	return sess.clone(), nil
}

// Sweep evicts idle sessions and returns how many were removed.
func (s *Store) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, sess := range s.sessions {
		if sess.LastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps periodically until ctx is done.
func (s *Store) Run(ctx context.Context, every time.Duration) {
	if s.ttl <= 0 || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
