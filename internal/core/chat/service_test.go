package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typemate/typemate/internal/apperr"
	"github.com/typemate/typemate/internal/config"
	"github.com/typemate/typemate/internal/core/memory"
	"github.com/typemate/typemate/internal/core/model"
	"github.com/typemate/typemate/internal/core/persona"
	"github.com/typemate/typemate/internal/llm"
	"github.com/typemate/typemate/internal/store/memstore"
)

type fixture struct {
	svc   *Service
	llm   *MockLLM
	store *memstore.Store
}

func newFixture(t *testing.T, mock *MockLLM) *fixture {
	t.Helper()
	st := memstore.New()
	vector, err := memory.NewVector(&MockEmbedder{Vector: []float32{1, 0, 0}}, st, memory.Options{Threshold: 0.5}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(vector.Close)

	cfg := config.Default().Chat
	svc := NewService(mock, st, vector, memory.NewService(st, vector, nil),
		persona.NewCatalog(nil), cfg, llm.ChatOptions{MaxTokens: 100}, nil)
	return &fixture{svc: svc, llm: mock, store: st}
}

func TestSend_NewSession(t *testing.T) {
	f := newFixture(t, &MockLLM{Reply: "  Hi! Tell me more.  ", Title: `{"title": "Greetings"}`})
	ctx := context.Background()

	reply, err := f.svc.Send(ctx, "u1", Request{Message: "hello", Archetype: "intj"})
	require.NoError(t, err)
	assert.Equal(t, "Hi! Tell me more.", reply.Reply)
	assert.Equal(t, "INTJ", reply.Archetype)
	assert.Equal(t, "Greetings", reply.Title)
	assert.Equal(t, 12, reply.PromptTokens)

	sess, err := f.store.GetSession(ctx, "u1", reply.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "INTJ", sess.Archetype)

	msgs, err := f.svc.Messages(ctx, "u1", reply.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.True(t, msgs[1].HasEmbedding())

	require.Len(t, f.llm.Calls, 1)
	call := f.llm.Calls[0]
	assert.Equal(t, llm.RoleSystem, call[0].Role)
	assert.Contains(t, call[0].Content, "Architect (INTJ)")
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "hello"}, call[len(call)-1])
}

func TestSend_ContinuesSessionWithHistoryAndMemories(t *testing.T) {
	f := newFixture(t, &MockLLM{Reply: "ok", Title: `{"title": "t"}`})
	ctx := context.Background()

	require.NoError(t, f.store.UpsertProfile(ctx, &model.Profile{
		UserID: "u1", DisplayName: "Mina", MBTIType: "INFJ", ZodiacSign: "leo",
	}))

	first, err := f.svc.Send(ctx, "u1", Request{Message: "I adopted a cat named Miso"})
	require.NoError(t, err)
	assert.Equal(t, "ENFP", first.Archetype, "default archetype")

	second, err := f.svc.Send(ctx, "u1", Request{Message: "what should I feed her?", SessionID: first.SessionID})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, "ENFP", second.Archetype, "session archetype is kept")
	assert.Greater(t, second.MemoriesUsed, 0)

	call := f.llm.Calls[1]
	require.Len(t, call, 4, "system + two history messages + new message")
	assert.Equal(t, "I adopted a cat named Miso", call[1].Content)
	assert.Equal(t, llm.RoleAssistant, call[2].Role)
	assert.Contains(t, call[0].Content, "Name: Mina")
	assert.Contains(t, call[0].Content, "leo (fire)")
	assert.Contains(t, call[0].Content, "I adopted a cat named Miso")
}

func TestSend_TitleFallback(t *testing.T) {
	f := newFixture(t, &MockLLM{Reply: "sure", GenerateErr: errors.New("title model down")})
	msg := strings.Repeat("word ", 20)

	reply, err := f.svc.Send(context.Background(), "u1", Request{Message: msg})
	require.NoError(t, err)
	assert.Equal(t, FallbackTitle(msg), reply.Title)
	assert.Len(t, []rune(reply.Title), 40)
}

func TestSend_Validation(t *testing.T) {
	f := newFixture(t, &MockLLM{Reply: "x"})
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "u1", Request{Message: "   "})
	assert.True(t, apperr.IsValidation(err))

	_, err = f.svc.Send(ctx, "u1", Request{Message: strings.Repeat("a", MaxMessageRunes+1)})
	assert.True(t, apperr.IsValidation(err))

	_, err = f.svc.Send(ctx, "u1", Request{Message: "hi", Archetype: "XYZW"})
	assert.True(t, apperr.IsValidation(err))

	_, err = f.svc.Send(ctx, "u1", Request{Message: "hi", SessionID: "missing"})
	assert.True(t, apperr.IsNotFound(err))
	assert.Empty(t, f.llm.Calls)
}

func TestSend_UpstreamStatusSurfaces(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusTooManyRequests} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			upstream := &llm.APIError{Provider: "openai", StatusCode: status, Err: errors.New("boom")}
			f := newFixture(t, &MockLLM{ChatErr: upstream, Title: `{"title": "t"}`})

			_, err := f.svc.Send(context.Background(), "u1", Request{Message: "hello"})
			require.Error(t, err)
			assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
			assert.Equal(t, status, apperr.HTTPStatus(err))

			counts, err := f.store.CountMemories(context.Background(), "u1")
			require.NoError(t, err)
			assert.Zero(t, counts.Total, "nothing recorded on failure")

			sessions, err := f.svc.ListSessions(context.Background(), "u1", 0)
			require.NoError(t, err)
			assert.Empty(t, sessions, "no session left behind")
			assert.Empty(t, f.llm.Prompts, "no title generated")
		})
	}
}

func TestSend_EmptyCompletionCreatesNoSession(t *testing.T) {
	f := newFixture(t, &MockLLM{Reply: "   ", Title: `{"title": "t"}`})
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "u1", Request{Message: "hello"})
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))

	sessions, err := f.svc.ListSessions(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSessions(t *testing.T) {
	f := newFixture(t, &MockLLM{})
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	f.svc.now = func() time.Time { return base }
	older, err := f.svc.CreateSession(ctx, "u1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "ENFP", older.Archetype)
	assert.Equal(t, "New chat", older.Title)

	f.svc.now = func() time.Time { return base.Add(time.Hour) }
	newer, err := f.svc.CreateSession(ctx, "u1", "istp", "Fixing bikes")
	require.NoError(t, err)

	_, err = f.svc.CreateSession(ctx, "u1", "nope", "")
	assert.True(t, apperr.IsValidation(err))

	list, err := f.svc.ListSessions(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)

	list, err = f.svc.ListSessions(ctx, "u2", 0)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, err = f.svc.Messages(ctx, "u2", older.ID, 10)
	assert.True(t, apperr.IsNotFound(err))
}
