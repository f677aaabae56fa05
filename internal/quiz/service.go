package quiz

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"medoai/internal/logger"
	"medoai/internal/service/flows"
)

// Generator produces interactive questions.
type Generator interface {
	GenerateQuestions(ctx context.Context, in flows.QuestionsInput) (flows.QuestionsOutput, error)
}

// Service drives quiz sessions through their states and persists every step.
type Service struct {
	store Store
	gen   Generator
	log   *logger.Logger
	now   func() time.Time

	locks [lockStripes]sync.Mutex
}

const lockStripes = 64

func NewService(store Store, gen Generator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store: store,
		gen:   gen,
		log:   log.With("service", "quiz"),
		now:   time.Now,
	}
}

// lock serializes mutations of one session within this process.
func (s *Service) lock(id string) func() {
	h := fnv.New32a()
	h.Write([]byte(id))
	l := &s.locks[h.Sum32()%lockStripes]
	l.Lock()
	return l.Unlock
}

// Create opens a session in configuring and immediately generates its questions.
// When no questions come back the session is kept in configuring and
// ErrNoQuestions is returned with it.
func (s *Service) Create(ctx context.Context, userID string, settings Settings) (*Session, error) {
	sess := &Session{
		ID:      uuid.NewString(),
		UserID:  userID,
		State:   StateConfiguring,
		Answers: map[int]int{},
	}
	if err := sess.Configure(settings); err != nil {
		return nil, err
	}
	unlock := s.lock(sess.ID)
	err := s.begin(ctx, sess)
	unlock()
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, sess)
}

// Generate reruns generation for a session that was restarted.
func (s *Service) Generate(ctx context.Context, userID, id string, settings *Settings) (*Session, error) {
	unlock := s.lock(id)
	sess, err := s.load(ctx, userID, id)
	if err == nil && settings != nil {
		err = sess.Configure(*settings)
	}
	if err == nil {
		err = s.begin(ctx, sess)
	}
	unlock()
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, sess)
}

// begin moves sess to generating and persists it. The caller holds the lock.
func (s *Service) begin(ctx context.Context, sess *Session) error {
	if err := sess.beginGenerating(); err != nil {
		return err
	}
	return s.save(ctx, sess)
}

// generate calls the model without holding the session lock, then installs
// the result only if the session is still in the same generation run.
func (s *Service) generate(ctx context.Context, sess *Session) (*Session, error) {
	out, genErr := s.gen.GenerateQuestions(ctx, flows.QuestionsInput{
		Context:       sess.Settings.Context,
		FileDataURI:   sess.Settings.FileDataURI,
		QuestionCount: sess.Settings.QuestionCount,
		Difficulty:    sess.Settings.Difficulty,
		Language:      sess.Settings.Language,
		Mode:          flows.ModeInteractive,
	})
	ctx = context.WithoutCancel(ctx)

	unlock := s.lock(sess.ID)
	defer unlock()
	cur, err := s.load(ctx, sess.UserID, sess.ID)
	if err != nil {
		return nil, err
	}
	if cur.State != StateGenerating || cur.Generation != sess.Generation {
		s.log.Warn("discard stale quiz generation", "quiz", sess.ID, "state", cur.State)
		return cur, fmt.Errorf("%w: session changed during generation", ErrInvalidState)
	}

	if genErr != nil {
		cur.abortGenerating()
		if saveErr := s.save(ctx, cur); saveErr != nil {
			s.log.Error("save quiz after failed generation", "quiz", cur.ID, "error", saveErr)
		}
		return cur, fmt.Errorf("generate quiz: %w", genErr)
	}

	noneErr := cur.finishGenerating(out.Interactive)
	if err := s.save(ctx, cur); err != nil {
		return nil, err
	}
	if noneErr != nil {
		return cur, noneErr
	}
	s.log.Info("quiz ready", "quiz", cur.ID, "questions", len(cur.Questions), "requested", cur.Settings.QuestionCount)
	return cur, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (*Session, error) {
	return s.load(ctx, userID, id)
}

func (s *Service) Answer(ctx context.Context, userID, id string, questionIndex, optionIndex int) (*Session, error) {
	return s.mutate(ctx, userID, id, func(sess *Session) error {
		return sess.Answer(questionIndex, optionIndex)
	})
}

// Results scores the session. It can be called repeatedly.
func (s *Service) Results(ctx context.Context, userID, id string) (*Session, Result, error) {
	var res Result
	sess, err := s.mutate(ctx, userID, id, func(sess *Session) error {
		var err error
		res, err = sess.Score()
		return err
	})
	return sess, res, err
}

func (s *Service) Restart(ctx context.Context, userID, id string) (*Session, error) {
	return s.mutate(ctx, userID, id, func(sess *Session) error {
		sess.Restart()
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, userID, id string, fn func(*Session) error) (*Session, error) {
	unlock := s.lock(id)
	defer unlock()
	sess, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return sess, err
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) load(ctx context.Context, userID, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// another user's quiz looks the same as a missing one
	if sess.UserID != userID {
		return nil, ErrNotFound
	}
	sess.refreshNeedsFile()
	return sess, nil
}

func (s *Service) save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("persist quiz %s: %w", sess.ID, err)
	}
	return nil
}

// IsClientError reports whether err comes from a bad request rather than a backend failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidState) || errors.Is(err, ErrOutOfRange) ||
		errors.Is(err, ErrIncomplete) || errors.Is(err, ErrGenerationBusy) ||
		errors.Is(err, ErrFileRequired)
}
