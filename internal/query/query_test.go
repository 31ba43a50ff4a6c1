package query

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ledgerline/workassist/internal/llm"
	"github.com/ledgerline/workassist/internal/semindex"
	"github.com/ledgerline/workassist/internal/store"
)

// scriptedClient answers the intent call and the narration call in order.
type scriptedClient struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (s *scriptedClient) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, prompt)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	var response string
	if i < len(s.responses) {
		response = s.responses[i]
	}
	return response, err
}

// fakeSearcher returns canned hits per kind and records queries.
type fakeSearcher struct {
	hits    map[semindex.Kind][]semindex.Result
	queried []semindex.Kind
}

func (f *fakeSearcher) Search(ctx context.Context, kind semindex.Kind, query string, maxResults int, filter *semindex.Filter) ([]semindex.Result, error) {
	f.queried = append(f.queried, kind)
	return f.hits[kind], nil
}

func (f *fakeSearcher) SearchAll(ctx context.Context, query string, maxResults int, filter *semindex.Filter) (map[semindex.Kind][]semindex.Result, error) {
	for _, kind := range semindex.Kinds {
		f.queried = append(f.queried, kind)
	}
	return f.hits, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func intentJSON(queryType string) string {
	return `{"query_type": "` + queryType + `"}`
}

func TestNewEngine(t *testing.T) {
	s := newTestStore(t)

	_, err := NewEngine(nil, s, &fakeSearcher{}, Config{}, nil)
	assert.Error(t, err)
	_, err = NewEngine(&scriptedClient{}, nil, &fakeSearcher{}, Config{}, nil)
	assert.Error(t, err)
	_, err = NewEngine(&scriptedClient{}, s, nil, Config{}, nil)
	assert.Error(t, err)

	engine, err := NewEngine(&scriptedClient{}, s, &fakeSearcher{}, Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, engine.cfg.MaxResults)
	assert.Equal(t, 7, engine.cfg.WarningDays)
}

func TestAnswerQuestion(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects an empty question", func(t *testing.T) {
		engine, err := NewEngine(&scriptedClient{}, newTestStore(t), &fakeSearcher{}, Config{}, nil)
		require.NoError(t, err)

		_, err = engine.AnswerQuestion(ctx, "  ")
		assert.ErrorIs(t, err, ErrEmptyQuestion)
	})

	t.Run("email questions search the email collection", func(t *testing.T) {
		searcher := &fakeSearcher{hits: map[semindex.Kind][]semindex.Result{
			semindex.KindEmail: {{VectorID: "v1", Text: "sso broken"}},
		}}
		client := &scriptedClient{responses: []string{intentJSON("emails"), "The SSO email says it is broken."}}
		engine, err := NewEngine(client, newTestStore(t), searcher, Config{}, nil)
		require.NoError(t, err)

		answer, err := engine.AnswerQuestion(ctx, "what did the email about SSO say?")
		require.NoError(t, err)
		assert.Equal(t, "emails", answer.Intent.QueryType)
		assert.Contains(t, answer.Results, "emails")
		assert.NotContains(t, answer.Results, "status_updates")
		assert.Equal(t, "The SSO email says it is broken.", answer.Answer)
	})

	t.Run("text keywords and intent union their routes", func(t *testing.T) {
		searcher := &fakeSearcher{hits: map[semindex.Kind][]semindex.Result{
			semindex.KindEmail:        {{VectorID: "v1"}},
			semindex.KindStatusUpdate: {{VectorID: "v2"}},
		}}
		// Intent says status, but the text also mentions email: both run.
		client := &scriptedClient{responses: []string{intentJSON("status"), "done"}}
		engine, err := NewEngine(client, newTestStore(t), searcher, Config{}, nil)
		require.NoError(t, err)

		answer, err := engine.AnswerQuestion(ctx, "any email about this?")
		require.NoError(t, err)
		assert.Contains(t, answer.Results, "emails")
		assert.Contains(t, answer.Results, "status_updates")
	})

	t.Run("upcoming deliverables combine relational and semantic results", func(t *testing.T) {
		s := newTestStore(t)
		project, err := s.CreateProject(ctx, &store.Project{Name: "Launch"})
		require.NoError(t, err)

		soon := time.Now().UTC().AddDate(0, 0, 3)
		far := time.Now().UTC().AddDate(0, 0, 30)
		_, err = s.CreateDeliverable(ctx, &store.Deliverable{ProjectID: project.ID, Title: "SSO fix", DueDate: &soon})
		require.NoError(t, err)
		_, err = s.CreateDeliverable(ctx, &store.Deliverable{ProjectID: project.ID, Title: "Q4 report", DueDate: &far})
		require.NoError(t, err)

		searcher := &fakeSearcher{hits: map[semindex.Kind][]semindex.Result{
			semindex.KindDeliverable: {{VectorID: "v3", Text: "SSO fix"}},
		}}
		client := &scriptedClient{responses: []string{intentJSON("deliverables"), "The SSO fix is due soon."}}
		engine, err := NewEngine(client, s, searcher, Config{WarningDays: 7}, nil)
		require.NoError(t, err)

		answer, err := engine.AnswerQuestion(ctx, "which deliverables are due soon?")
		require.NoError(t, err)

		deliverables, ok := answer.Results["deliverables"].([]*store.Deliverable)
		require.True(t, ok)
		require.Len(t, deliverables, 1)
		assert.Equal(t, "SSO fix", deliverables[0].Title)

		related, ok := answer.Results["related_deliverables"].([]semindex.Result)
		require.True(t, ok)
		assert.Len(t, related, 1)
	})

	t.Run("deliverable questions without urgency skip the relational lookup", func(t *testing.T) {
		searcher := &fakeSearcher{hits: map[semindex.Kind][]semindex.Result{
			semindex.KindDeliverable: {{VectorID: "v3"}},
		}}
		client := &scriptedClient{responses: []string{intentJSON("deliverables"), "done"}}
		engine, err := NewEngine(client, newTestStore(t), searcher, Config{}, nil)
		require.NoError(t, err)

		answer, err := engine.AnswerQuestion(ctx, "tell me about the report deliverable")
		require.NoError(t, err)
		assert.NotContains(t, answer.Results, "deliverables")
		assert.Contains(t, answer.Results, "related_deliverables")
	})

	t.Run("intent project name scopes the upcoming window", func(t *testing.T) {
		s := newTestStore(t)
		launch, err := s.CreateProject(ctx, &store.Project{Name: "Launch"})
		require.NoError(t, err)
		finance, err := s.CreateProject(ctx, &store.Project{Name: "Finance"})
		require.NoError(t, err)

		soon := time.Now().UTC().AddDate(0, 0, 2)
		_, err = s.CreateDeliverable(ctx, &store.Deliverable{ProjectID: launch.ID, Title: "SSO fix", DueDate: &soon})
		require.NoError(t, err)
		_, err = s.CreateDeliverable(ctx, &store.Deliverable{ProjectID: finance.ID, Title: "Audit", DueDate: &soon})
		require.NoError(t, err)

		searcher := &fakeSearcher{hits: map[semindex.Kind][]semindex.Result{}}
		client := &scriptedClient{responses: []string{`{"query_type": "deliverables", "project_name": "Launch"}`, "done"}}
		engine, err := NewEngine(client, s, searcher, Config{}, nil)
		require.NoError(t, err)

		answer, err := engine.AnswerQuestion(ctx, "upcoming deliverables for Launch?")
		require.NoError(t, err)

		deliverables, ok := answer.Results["deliverables"].([]*store.Deliverable)
		require.True(t, ok)
		require.Len(t, deliverables, 1)
		assert.Equal(t, "SSO fix", deliverables[0].Title)
	})

	t.Run("no matching route falls through to the catch-all", func(t *testing.T) {
		searcher := &fakeSearcher{hits: map[semindex.Kind][]semindex.Result{
			semindex.KindEmail: {{VectorID: "v1"}},
		}}
		client := &scriptedClient{responses: []string{intentJSON("general"), "done"}}
		engine, err := NewEngine(client, newTestStore(t), searcher, Config{}, nil)
		require.NoError(t, err)

		answer, err := engine.AnswerQuestion(ctx, "what is happening with the launch?")
		require.NoError(t, err)
		assert.Contains(t, answer.Results, "emails")
		assert.Contains(t, searcher.queried, semindex.KindStatusUpdate)
		assert.Contains(t, searcher.queried, semindex.KindDeliverable)
	})

	t.Run("malformed intent degrades to general", func(t *testing.T) {
		searcher := &fakeSearcher{hits: map[semindex.Kind][]semindex.Result{}}
		client := &scriptedClient{responses: []string{"not json at all", "done"}}
		engine, err := NewEngine(client, newTestStore(t), searcher, Config{}, nil)
		require.NoError(t, err)

		answer, err := engine.AnswerQuestion(ctx, "what is happening?")
		require.NoError(t, err)
		assert.Equal(t, "general", answer.Intent.QueryType)
	})

	t.Run("intent call failure degrades to general", func(t *testing.T) {
		searcher := &fakeSearcher{hits: map[semindex.Kind][]semindex.Result{}}
		client := &scriptedClient{
			responses: []string{"", "done"},
			errs:      []error{errors.New("timeout"), nil},
		}
		engine, err := NewEngine(client, newTestStore(t), searcher, Config{}, nil)
		require.NoError(t, err)

		answer, err := engine.AnswerQuestion(ctx, "what is happening?")
		require.NoError(t, err)
		assert.Equal(t, "general", answer.Intent.QueryType)
	})

	t.Run("narration failure degrades to the placeholder", func(t *testing.T) {
		searcher := &fakeSearcher{hits: map[semindex.Kind][]semindex.Result{
			semindex.KindEmail: {{VectorID: "v1"}},
		}}
		client := &scriptedClient{
			responses: []string{intentJSON("emails"), ""},
			errs:      []error{nil, errors.New("model overloaded")},
		}
		engine, err := NewEngine(client, newTestStore(t), searcher, Config{}, nil)
		require.NoError(t, err)

		answer, err := engine.AnswerQuestion(ctx, "any email news?")
		require.NoError(t, err)
		assert.Equal(t, placeholderAnswer, answer.Answer)
		assert.Contains(t, answer.Results, "emails")
	})

	t.Run("narration context is bounded", func(t *testing.T) {
		big := make([]semindex.Result, 0, 50)
		for i := 0; i < 50; i++ {
			big = append(big, semindex.Result{VectorID: "v", Text: strings.Repeat("padding ", 40)})
		}
		searcher := &fakeSearcher{hits: map[semindex.Kind][]semindex.Result{semindex.KindEmail: big}}
		client := &scriptedClient{responses: []string{intentJSON("emails"), "done"}}
		engine, err := NewEngine(client, newTestStore(t), searcher, Config{}, nil)
		require.NoError(t, err)

		_, err = engine.AnswerQuestion(ctx, "email dump?")
		require.NoError(t, err)

		require.Len(t, client.prompts, 2)
		assert.Less(t, len(client.prompts[1]), contextBudget+500)
	})
}
