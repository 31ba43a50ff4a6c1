package semindex

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeEmbedder produces deterministic bag-of-words vectors so nearest
// neighbor search behaves sensibly without a real model.
type fakeEmbedder struct{}

const fakeDim = 32

func (fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, fakeDim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%fakeDim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func (f fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New(Config{Path: t.TempDir()}, fakeEmbedder{}, zap.NewNop())
	require.NoError(t, err)
	return idx
}

func TestNew(t *testing.T) {
	t.Run("requires an embedder", func(t *testing.T) {
		_, err := New(Config{Path: t.TempDir()}, nil, nil)
		assert.Error(t, err)
	})

	t.Run("requires a path", func(t *testing.T) {
		_, err := New(Config{}, fakeEmbedder{}, nil)
		assert.Error(t, err)
	})
}

func TestVectorID(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		assert.Equal(t, VectorID(KindEmail, "42"), VectorID(KindEmail, "42"))
	})

	t.Run("differs across kinds", func(t *testing.T) {
		assert.NotEqual(t, VectorID(KindEmail, "42"), VectorID(KindDeliverable, "42"))
	})

	t.Run("is a hex md5", func(t *testing.T) {
		assert.Len(t, VectorID(KindEmail, "42"), 32)
	})
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the derived vector id", func(t *testing.T) {
		idx := newTestIndex(t)
		vectorID, err := idx.Upsert(ctx, KindEmail, "42", "sso login broken", nil)
		require.NoError(t, err)
		assert.Equal(t, VectorID(KindEmail, "42"), vectorID)
	})

	t.Run("re-upsert replaces instead of duplicating", func(t *testing.T) {
		idx := newTestIndex(t)
		_, err := idx.Upsert(ctx, KindEmail, "42", "first version", nil)
		require.NoError(t, err)
		_, err = idx.Upsert(ctx, KindEmail, "42", "second version", nil)
		require.NoError(t, err)

		results, err := idx.Search(ctx, KindEmail, "version", 10, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "second version", results[0].Text)
	})

	t.Run("rejects empty text", func(t *testing.T) {
		idx := newTestIndex(t)
		_, err := idx.Upsert(ctx, KindEmail, "42", "  ", nil)
		assert.ErrorIs(t, err, ErrEmptyText)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		idx := newTestIndex(t)
		_, err := idx.Upsert(ctx, Kind("projects"), "42", "text", nil)
		assert.ErrorIs(t, err, ErrInvalidKind)
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, idx *Index) {
		t.Helper()
		docs := []struct {
			id   string
			text string
			meta map[string]any
		}{
			{"1", "the sso login fix is overdue", map[string]any{"project_name": "Launch", "importance": "high", "keywords": []string{"sso", "login"}}},
			{"2", "quarterly budget review meeting", map[string]any{"project_name": "Finance", "importance": "low"}},
			{"3", "sso certificate rotation schedule", map[string]any{"project_name": "Launch", "importance": "medium"}},
		}
		for _, doc := range docs {
			_, err := idx.Upsert(ctx, KindEmail, doc.id, doc.text, doc.meta)
			require.NoError(t, err)
		}
	}

	t.Run("returns nearest documents first", func(t *testing.T) {
		idx := newTestIndex(t)
		seed(t, idx)

		results, err := idx.Search(ctx, KindEmail, "sso login fix", 2, nil)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, VectorID(KindEmail, "1"), results[0].VectorID)
		if len(results) > 1 {
			assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
		}
	})

	t.Run("expands list metadata", func(t *testing.T) {
		idx := newTestIndex(t)
		seed(t, idx)

		results, err := idx.Search(ctx, KindEmail, "sso login fix", 1, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, []string{"sso", "login"}, results[0].Metadata["keywords"])
		assert.Equal(t, "Launch", results[0].Metadata["project_name"])
	})

	t.Run("equality filter narrows results", func(t *testing.T) {
		idx := newTestIndex(t)
		seed(t, idx)

		results, err := idx.Search(ctx, KindEmail, "sso", 10, &Filter{
			Eq: map[string]string{"project_name": "Finance"},
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, VectorID(KindEmail, "2"), results[0].VectorID)
	})

	t.Run("in filter narrows results", func(t *testing.T) {
		idx := newTestIndex(t)
		seed(t, idx)

		results, err := idx.Search(ctx, KindEmail, "sso", 10, &Filter{
			In: map[string][]string{"importance": {"high", "medium"}},
		})
		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, r := range results {
			assert.NotEqual(t, "low", r.Metadata["importance"])
		}
	})

	t.Run("empty collection yields empty results", func(t *testing.T) {
		idx := newTestIndex(t)
		results, err := idx.Search(ctx, KindStatusUpdate, "anything", 5, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("rejects empty query", func(t *testing.T) {
		idx := newTestIndex(t)
		_, err := idx.Search(ctx, KindEmail, " ", 5, nil)
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})

	t.Run("caps k at the document count", func(t *testing.T) {
		idx := newTestIndex(t)
		_, err := idx.Upsert(ctx, KindEmail, "only", "one document", nil)
		require.NoError(t, err)

		results, err := idx.Search(ctx, KindEmail, "document", 50, nil)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})
}

func TestSearchAll(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	_, err := idx.Upsert(ctx, KindEmail, "1", "sso login broken", nil)
	require.NoError(t, err)
	_, err = idx.Upsert(ctx, KindDeliverable, "1", "sso fix", nil)
	require.NoError(t, err)

	all, err := idx.SearchAll(ctx, "sso", 5, nil)
	require.NoError(t, err)
	assert.Len(t, all[KindEmail], 1)
	assert.Len(t, all[KindDeliverable], 1)
	assert.Empty(t, all[KindStatusUpdate])
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the document", func(t *testing.T) {
		idx := newTestIndex(t)
		_, err := idx.Upsert(ctx, KindEmail, "42", "sso login broken", nil)
		require.NoError(t, err)

		require.NoError(t, idx.Delete(ctx, KindEmail, "42"))
		results, err := idx.Search(ctx, KindEmail, "sso", 5, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		idx := newTestIndex(t)
		assert.ErrorIs(t, idx.Delete(ctx, Kind("projects"), "42"), ErrInvalidKind)
	})
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := New(Config{Path: dir}, fakeEmbedder{}, zap.NewNop())
	require.NoError(t, err)
	_, err = first.Upsert(ctx, KindEmail, "42", "sso login broken", map[string]any{"project_name": "Launch"})
	require.NoError(t, err)

	reopened, err := New(Config{Path: dir}, fakeEmbedder{}, zap.NewNop())
	require.NoError(t, err)
	results, err := reopened.Search(ctx, KindEmail, "sso login", 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Launch", results[0].Metadata["project_name"])
}
