package quiz

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medoai/internal/config"
	"medoai/internal/models"
	"medoai/internal/redis"
	"medoai/internal/service/flows"
)

type fakeGenerator struct {
	out   []models.InteractiveQuestion
	err   error
	calls int
	last  flows.QuestionsInput
}

func (f *fakeGenerator) GenerateQuestions(_ context.Context, in flows.QuestionsInput) (flows.QuestionsOutput, error) {
	f.calls++
	f.last = in
	return flows.QuestionsOutput{Mode: flows.ModeInteractive, Interactive: f.out}, f.err
}

func settings() Settings {
	return Settings{Context: "cells", QuestionCount: 5, Difficulty: flows.DifficultyEasy, Language: flows.LanguageEnglish}
}

func TestServiceLifecycle(t *testing.T) {
	gen := &fakeGenerator{out: questions(0, 1, 2, 3, 0)}
	svc := NewService(NewMemoryStore(time.Minute), gen, nil)
	ctx := context.Background()

	sess, err := svc.Create(ctx, "u1", settings())
	require.NoError(t, err)
	assert.Equal(t, StateAnswering, sess.State)
	assert.Equal(t, flows.ModeInteractive, gen.last.Mode)
	assert.Equal(t, 5, gen.last.QuestionCount)

	for i := 0; i < 5; i++ {
		sess, err = svc.Answer(ctx, "u1", sess.ID, i, i%4)
		require.NoError(t, err)
	}
	assert.True(t, sess.CanShowResults())

	_, first, err := svc.Results(ctx, "u1", sess.ID)
	require.NoError(t, err)
	_, second, err := svc.Results(ctx, "u1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 5, first.Score)

	sess, err = svc.Restart(ctx, "u1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateConfiguring, sess.State)

	gen.out = questions(1)
	next := settings()
	next.QuestionCount = 1
	sess, err = svc.Generate(ctx, "u1", sess.ID, &next)
	require.NoError(t, err)
	assert.Len(t, sess.Questions, 1)
	assert.Equal(t, 2, gen.calls)
}

func TestServiceHidesOtherUsersQuiz(t *testing.T) {
	svc := NewService(NewMemoryStore(time.Minute), &fakeGenerator{out: questions(0)}, nil)
	sess, err := svc.Create(context.Background(), "owner", settings())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "intruder", sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Answer(context.Background(), "intruder", sess.ID, 0, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceNoQuestions(t *testing.T) {
	svc := NewService(NewMemoryStore(time.Minute), &fakeGenerator{}, nil)
	sess, err := svc.Create(context.Background(), "u1", settings())
	require.ErrorIs(t, err, ErrNoQuestions)
	require.NotNil(t, sess)
	assert.Equal(t, StateConfiguring, sess.State)

	stored, err := svc.Get(context.Background(), "u1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateConfiguring, stored.State)
}

func TestServiceGeneratorFailureReturnsToConfiguring(t *testing.T) {
	svc := NewService(NewMemoryStore(time.Minute), &fakeGenerator{err: errors.New("model down")}, nil)
	sess, err := svc.Create(context.Background(), "u1", settings())
	require.Error(t, err)
	assert.False(t, IsClientError(err))

	stored, err := svc.Get(context.Background(), "u1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateConfiguring, stored.State)
}

type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
	out     []models.InteractiveQuestion
}

func (b *blockingGenerator) GenerateQuestions(ctx context.Context, _ flows.QuestionsInput) (flows.QuestionsOutput, error) {
	close(b.started)
	select {
	case <-b.release:
	case <-ctx.Done():
		return flows.QuestionsOutput{}, ctx.Err()
	}
	return flows.QuestionsOutput{Mode: flows.ModeInteractive, Interactive: b.out}, nil
}

func stripeOf(id string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return h.Sum32() % lockStripes
}

func TestGenerationDoesNotHoldSessionLock(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	gen := &blockingGenerator{started: make(chan struct{}), release: make(chan struct{}), out: questions(0, 1)}
	svc := NewService(store, gen, nil)

	generating := &Session{ID: "quiz-a", UserID: "u1", State: StateConfiguring, Settings: settings(), Answers: map[int]int{}}
	require.NoError(t, store.Save(ctx, generating))
	neighbour := ""
	for i := 0; neighbour == ""; i++ {
		if id := fmt.Sprintf("quiz-b-%d", i); stripeOf(id) == stripeOf(generating.ID) {
			neighbour = id
		}
	}
	require.NoError(t, store.Save(ctx, &Session{ID: neighbour, UserID: "u2", State: StateAnswering, Questions: questions(0), Answers: map[int]int{}}))

	type result struct {
		sess *Session
		err  error
	}
	done := make(chan result, 1)
	go func() {
		sess, err := svc.Generate(ctx, "u1", generating.ID, nil)
		done <- result{sess, err}
	}()
	<-gen.started

	answered := make(chan error, 1)
	go func() {
		_, err := svc.Answer(ctx, "u2", neighbour, 0, 1)
		answered <- err
	}()
	select {
	case err := <-answered:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(gen.release)
		t.Fatal("answer on another session waited for generation")
	}

	_, err := svc.Generate(ctx, "u1", generating.ID, nil)
	assert.ErrorIs(t, err, ErrGenerationBusy)

	close(gen.release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, StateAnswering, res.sess.State)
	assert.Len(t, res.sess.Questions, 2)
}

func TestRestartDuringGenerationDiscardsLateQuestions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	gen := &blockingGenerator{started: make(chan struct{}), release: make(chan struct{}), out: questions(0)}
	svc := NewService(store, gen, nil)
	require.NoError(t, store.Save(ctx, &Session{ID: "quiz-r", UserID: "u1", State: StateConfiguring, Settings: settings(), Answers: map[int]int{}}))

	errc := make(chan error, 1)
	go func() {
		_, err := svc.Generate(ctx, "u1", "quiz-r", nil)
		errc <- err
	}()
	<-gen.started

	sess, err := svc.Restart(ctx, "u1", "quiz-r")
	require.NoError(t, err)
	assert.Equal(t, StateConfiguring, sess.State)

	close(gen.release)
	assert.ErrorIs(t, <-errc, ErrInvalidState)

	stored, err := svc.Get(ctx, "u1", "quiz-r")
	require.NoError(t, err)
	assert.Equal(t, StateConfiguring, stored.State)
	assert.Empty(t, stored.Questions)
}

func TestFileOnlyQuizNeedsFileAfterRestart(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{out: questions(0)}
	svc := NewService(NewMemoryStore(time.Minute), gen, nil)
	fileOnly := Settings{FileDataURI: "data:application/pdf;base64,JVBERi0=", QuestionCount: 1, Difficulty: flows.DifficultyEasy, Language: flows.LanguageEnglish}

	sess, err := svc.Create(ctx, "u1", fileOnly)
	require.NoError(t, err)
	assert.True(t, sess.Settings.HasFile)
	assert.False(t, sess.NeedsFile)

	sess, err = svc.Restart(ctx, "u1", sess.ID)
	require.NoError(t, err)
	assert.True(t, sess.NeedsFile)

	stored, err := svc.Get(ctx, "u1", sess.ID)
	require.NoError(t, err)
	assert.True(t, stored.NeedsFile)

	_, err = svc.Generate(ctx, "u1", sess.ID, nil)
	assert.ErrorIs(t, err, ErrFileRequired)
	assert.True(t, IsClientError(err))
	assert.Equal(t, 1, gen.calls)

	sess, err = svc.Generate(ctx, "u1", sess.ID, &fileOnly)
	require.NoError(t, err)
	assert.Equal(t, StateAnswering, sess.State)
	assert.False(t, sess.NeedsFile)
	assert.Equal(t, 2, gen.calls)
}

func TestMemoryStoreCopiesSessions(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()
	sess := &Session{ID: "q1", UserID: "u", State: StateAnswering, Questions: questions(0), Answers: map[int]int{}}
	require.NoError(t, store.Save(ctx, sess))

	sess.Answers[0] = 3
	loaded, err := store.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Empty(t, loaded.Answers)

	require.NoError(t, store.Delete(ctx, "q1"))
	_, err = store.Get(ctx, "q1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	host, port := splitAddr(t, addr)
	client, err := redis.NewRedisClient(&config.Config{Redis: config.RedisConfig{Host: host, Port: port}})
	require.NoError(t, err)
	defer client.Close()

	store := NewRedisStore(client, time.Minute)
	ctx := context.Background()
	sess := &Session{ID: "redis-quiz-test", UserID: "u", State: StateAnswering, Questions: questions(2), Answers: map[int]int{0: 2}}
	require.NoError(t, store.Save(ctx, sess))
	defer store.Delete(ctx, sess.ID)

	loaded, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Answers[0])

	ttl, err := client.TTL(ctx, redisKeyPrefix+sess.ID)
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	_, err = store.Get(ctx, "missing-quiz")
	assert.ErrorIs(t, err, ErrNotFound)
}
