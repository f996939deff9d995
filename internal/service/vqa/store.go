package vqa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/smolvqa/backend/internal/imaging"
	model "github.com/zhouzirui/smolvqa/backend/internal/model/vqa"
)

var (
	ErrInvalidInput    = errors.New("question must not be empty")
	ErrSessionNotFound = errors.New("session not found")
	ErrInference       = errors.New("inference failed")
)

// Inference is the vision-language model boundary the store calls out to.
// Calls are synchronous and may take seconds.
type Inference interface {
	Caption(ctx context.Context, img imaging.Payload) (string, error)
	Answer(ctx context.Context, img imaging.Payload, turns []model.Turn, question string) (string, error)
	AnswerStream(ctx context.Context, img imaging.Payload, turns []model.Turn, question string, emit func(chunk string) error) (string, error)
}

// Config tunes store behaviour. Zero values select the defaults; Clock is
// injectable so tests can drive expiry deterministically.
type Config struct {
	TTL         time.Duration // idle time before a session expires (default 1h)
	MaxSessions int           // 0 means unbounded
	Clock       func() time.Time
}

const defaultTTL = time.Hour

// Store owns every live VQA session for the lifetime of the process.
//
// Locking: the table mutex guards the map itself; each session carries its
// own mutex serializing turns, so two questions against the same session
// run one after the other while unrelated sessions proceed in parallel.
// Inference calls are never made while holding the table mutex, and a
// session mutex is never held while waiting on the table mutex.
type Store struct {
	infer Inference
	clock func() time.Time
	ttl   time.Duration
	max   int

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	id        string
	image     imaging.Payload
	caption   string
	createdAt time.Time

	mu         sync.Mutex
	turns      []model.Turn
	lastAccess time.Time
	gone       bool
}

// NewStore builds a session store backed by the given inference service.
func NewStore(infer Inference, cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		infer:    infer,
		clock:    cfg.Clock,
		ttl:      cfg.TTL,
		max:      cfg.MaxSessions,
		sessions: make(map[string]*session),
	}
}

// Create captions the image and registers a fresh session for it. The
// caption call runs before any lock is taken, so a slow model never stalls
// unrelated sessions. One image in, one session out.
func (s *Store) Create(ctx context.Context, img imaging.Payload) (model.Session, error) {
	caption, err := s.infer.Caption(ctx, img)
	if err != nil {
		return model.Session{}, fmt.Errorf("%w: %v", ErrInference, err)
	}

	now := s.clock()
	sess := &session{
		id:         uuid.NewString(),
		image:      img,
		caption:    caption,
		createdAt:  now,
		lastAccess: now,
		turns:      make([]model.Turn, 0, 8),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	if s.max > 0 {
		s.enforceCap(sess.id)
	}

	return sess.view(), nil
}

// Ask runs one question/answer turn against a live session. The turn is
// appended only after the model answers, so a failed call leaves history
// untouched and the same question can be retried.
func (s *Store) Ask(ctx context.Context, id, question string) (string, error) {
	return s.ask(ctx, id, question, nil)
}

// AskStream behaves like Ask but forwards answer chunks through emit as
// they arrive. The assembled answer is what lands in the history.
func (s *Store) AskStream(ctx context.Context, id, question string, emit func(chunk string) error) (string, error) {
	if emit == nil {
		return "", fmt.Errorf("emit callback is required")
	}
	return s.ask(ctx, id, question, emit)
}

func (s *Store) ask(ctx context.Context, id, question string, emit func(chunk string) error) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrInvalidInput
	}

	sess, err := s.lookup(id)
	if err != nil {
		return "", err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.gone {
		return "", ErrSessionNotFound
	}
	sess.lastAccess = s.clock()

	// Snapshot so the model sees history exactly as appended, even if the
	// slice later grows.
	history := append([]model.Turn(nil), sess.turns...)

	var answer string
	if emit != nil {
		answer, err = s.infer.AnswerStream(ctx, sess.image, history, question, emit)
	} else {
		answer, err = s.infer.Answer(ctx, sess.image, history, question)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInference, err)
	}

	sess.turns = append(sess.turns, model.Turn{
		Question:  question,
		Answer:    answer,
		CreatedAt: s.clock(),
	})
	sess.lastAccess = s.clock()
	return answer, nil
}

// Transcript returns the caption and accumulated turns for a session.
func (s *Store) Transcript(_ context.Context, id string) (model.Session, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return model.Session{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.gone {
		return model.Session{}, ErrSessionNotFound
	}
	sess.lastAccess = s.clock()
	return sess.viewLocked(), nil
}

// Delete tears a session down explicitly.
func (s *Store) Delete(_ context.Context, id string) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if sess.gone {
		sess.mu.Unlock()
		return ErrSessionNotFound
	}
	sess.gone = true
	sess.mu.Unlock()

	s.remove(id)
	return nil
}

// EvictExpired removes every session idle longer than the TTL and reports
// how many were dropped. A session whose mutex is held is mid-turn and by
// definition not idle, so it is skipped rather than waited on. Eviction
// can never pull a session out from under an in-flight question.
func (s *Store) EvictExpired(now time.Time) int {
	cutoff := now.Add(-s.ttl)

	s.mu.RLock()
	candidates := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		candidates = append(candidates, sess)
	}
	s.mu.RUnlock()

	var dead []string
	for _, sess := range candidates {
		if !sess.mu.TryLock() {
			continue
		}
		if !sess.gone && sess.lastAccess.Before(cutoff) {
			sess.gone = true
			dead = append(dead, sess.id)
		}
		sess.mu.Unlock()
	}

	if len(dead) > 0 {
		s.mu.Lock()
		for _, id := range dead {
			delete(s.sessions, id)
		}
		s.mu.Unlock()
	}
	return len(dead)
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) lookup(id string) (*session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Store) remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// enforceCap drops the idlest sessions until the table fits the configured
// bound again. The session just created is exempt so Create never evicts
// its own result.
func (s *Store) enforceCap(keep string) {
	for {
		s.mu.RLock()
		over := len(s.sessions) - s.max
		candidates := make([]*session, 0, len(s.sessions))
		for _, sess := range s.sessions {
			if sess.id != keep {
				candidates = append(candidates, sess)
			}
		}
		s.mu.RUnlock()
		if over <= 0 {
			return
		}

		var oldest *session
		var oldestAccess time.Time
		for _, sess := range candidates {
			if !sess.mu.TryLock() {
				continue
			}
			access := sess.lastAccess
			dead := sess.gone
			sess.mu.Unlock()
			if dead {
				continue
			}
			if oldest == nil || access.Before(oldestAccess) {
				oldest = sess
				oldestAccess = access
			}
		}
		if oldest == nil {
			return
		}

		oldest.mu.Lock()
		if oldest.gone {
			oldest.mu.Unlock()
			continue
		}
		oldest.gone = true
		oldest.mu.Unlock()
		s.remove(oldest.id)
	}
}

func (sess *session) view() model.Session {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.viewLocked()
}

// viewLocked copies the session into its serializable form; callers hold
// sess.mu.
func (sess *session) viewLocked() model.Session {
	return model.Session{
		ID:         sess.id,
		Caption:    sess.caption,
		CreatedAt:  sess.createdAt,
		LastAccess: sess.lastAccess,
		Turns:      append([]model.Turn(nil), sess.turns...),
	}
}
