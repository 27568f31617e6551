package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"docqa-go/internal/config"
	"docqa-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct{}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{0.1, 0.2, 0.3}
	}
	return vectors, nil
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (e *fakeEmbedder) ModelVersion() string { return "test-embed-v1" }

type fakeQueryIndex struct {
	matches    []model.SearchMatch
	lastTopK   int
	lastQuery  []float32
	lastFilter *model.SearchFilter
}

func (x *fakeQueryIndex) Query(ctx context.Context, vector []float32, topK int, filter *model.SearchFilter) ([]model.SearchMatch, error) {
	x.lastQuery = vector
	x.lastTopK = topK
	x.lastFilter = filter
	if len(x.matches) > topK {
		return x.matches[:topK], nil
	}
	return x.matches, nil
}

func match(docID string, chunkIndex int, content string, score float64) model.SearchMatch {
	return model.SearchMatch{
		EsDocument: model.EsDocument{
			VectorID:   model.BuildVectorID(docID, chunkIndex),
			DocumentID: docID,
			Filename:   docID + ".txt",
			FileType:   "txt",
			ChunkIndex: chunkIndex,
			Content:    content,
		},
		Score: score,
	}
}

func TestRetrieveGateBlocksLowConfidence(t *testing.T) {
	idx := &fakeQueryIndex{matches: []model.SearchMatch{
		match("doc1", 0, "weakly related content", 0.10),
	}}
	svc := NewSearchService(&fakeEmbedder{}, idx, config.RAGConfig{})

	result, err := svc.Retrieve(context.Background(), "unrelated question", 5, nil)
	require.NoError(t, err)
	assert.False(t, result.GatePassed)
	assert.Empty(t, result.ContextBlock)
	assert.Empty(t, result.Sources)
}

func TestRetrieveGateBlocksEmptyResults(t *testing.T) {
	svc := NewSearchService(&fakeEmbedder{}, &fakeQueryIndex{}, config.RAGConfig{})

	result, err := svc.Retrieve(context.Background(), "anything", 5, nil)
	require.NoError(t, err)
	assert.False(t, result.GatePassed)
}

func TestRetrievePacksContextWithCitations(t *testing.T) {
	idx := &fakeQueryIndex{matches: []model.SearchMatch{
		match("doc1", 0, "redis is an in-memory data store", 0.92),
		match("doc2", 3, "kafka is a distributed message broker", 0.80),
		match("doc1", 5, "elasticsearch supports vector search", 0.71),
	}}
	svc := NewSearchService(&fakeEmbedder{}, idx, config.RAGConfig{})

	result, err := svc.Retrieve(context.Background(), "what is redis", 3, nil)
	require.NoError(t, err)
	require.True(t, result.GatePassed)

	lines := strings.Split(result.ContextBlock, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "[1] doc1.txt (chunk 0): redis is an in-memory data store", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "[2] doc2.txt (chunk 3): "))

	require.Len(t, result.Sources, 3)
	for i, src := range result.Sources {
		assert.Equal(t, i+1, src.CitationIndex)
	}
	assert.Equal(t, "doc1", result.Sources[0].DocumentID)
	assert.Equal(t, 0.92, result.Sources[0].Score)
}

func TestRetrieveRespectsContextBudget(t *testing.T) {
	long := strings.Repeat("x", 150)
	var matches []model.SearchMatch
	for i := 0; i < 10; i++ {
		matches = append(matches, match(fmt.Sprintf("doc%d", i), 0, long, 0.9-float64(i)*0.01))
	}
	idx := &fakeQueryIndex{matches: matches}
	// 预算只够装两条引用
	svc := NewSearchService(&fakeEmbedder{}, idx, config.RAGConfig{ContextBudget: 400})

	result, err := svc.Retrieve(context.Background(), "query", 10, nil)
	require.NoError(t, err)
	require.True(t, result.GatePassed)
	assert.Len(t, result.Sources, 2)
	assert.Equal(t, "doc0", result.Sources[0].DocumentID)
	assert.Equal(t, "doc1", result.Sources[1].DocumentID)
}

func TestRetrieveAlwaysKeepsTopMatch(t *testing.T) {
	idx := &fakeQueryIndex{matches: []model.SearchMatch{
		match("doc1", 0, strings.Repeat("y", 300), 0.95),
	}}
	svc := NewSearchService(&fakeEmbedder{}, idx, config.RAGConfig{ContextBudget: 50})

	result, err := svc.Retrieve(context.Background(), "query", 5, nil)
	require.NoError(t, err)
	require.True(t, result.GatePassed)
	assert.Len(t, result.Sources, 1, "首条命中即使超预算也要保留")
}

func TestSearchRequestsMinimumCandidates(t *testing.T) {
	idx := &fakeQueryIndex{matches: []model.SearchMatch{
		match("doc1", 0, "content", 0.9),
	}}
	svc := NewSearchService(&fakeEmbedder{}, idx, config.RAGConfig{})

	results, err := svc.Search(context.Background(), "query", 2, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, idx.lastTopK, minCandidates)
	assert.Len(t, results, 1)
}

// 调用方的过滤条件必须原样传到向量索引,由索引侧按 $in 语义生效
func TestSearchPassesFilterToIndex(t *testing.T) {
	idx := &fakeQueryIndex{matches: []model.SearchMatch{
		match("doc1", 0, "content", 0.9),
	}}
	svc := NewSearchService(&fakeEmbedder{}, idx, config.RAGConfig{})

	filter := &model.SearchFilter{
		DocumentIDs: []string{"doc1", "doc2"},
		FileTypes:   []string{"pdf"},
	}
	_, err := svc.Search(context.Background(), "query", 5, filter)
	require.NoError(t, err)
	assert.Equal(t, filter, idx.lastFilter)

	idx.lastFilter = nil
	result, err := svc.Retrieve(context.Background(), "query", 5, filter)
	require.NoError(t, err)
	require.True(t, result.GatePassed)
	assert.Equal(t, filter, idx.lastFilter)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	svc := NewSearchService(&fakeEmbedder{}, &fakeQueryIndex{}, config.RAGConfig{})
	_, err := svc.Search(context.Background(), "   ", 5, nil)
	assert.Error(t, err)
}

func TestExtractSnippetAroundTerm(t *testing.T) {
	content := strings.Repeat("a", 500) + " needle " + strings.Repeat("b", 500)
	snippet := extractSnippet(content, []string{"needle"}, 50)

	assert.Contains(t, snippet, "needle")
	assert.True(t, strings.HasPrefix(snippet, "..."))
	assert.True(t, strings.HasSuffix(snippet, "..."))
	assert.LessOrEqual(t, len([]rune(snippet)), 2*50+6)
}

func TestExtractSnippetLeadingFallback(t *testing.T) {
	content := strings.Repeat("z", 1000)
	snippet := extractSnippet(content, []string{"missing"}, 50)

	assert.True(t, strings.HasSuffix(snippet, "..."))
	assert.Equal(t, strings.Repeat("z", 100)+"...", snippet)
}

func TestExtractSnippetShortContentUnchanged(t *testing.T) {
	content := "short content"
	assert.Equal(t, content, extractSnippet(content, []string{"short"}, 200))
}
