package knowledge

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding service unavailable")
}

func TestKnowledgeIndexSearchIncludesGlobalDocs(t *testing.T) {
	ctx := context.Background()
	idx := NewKnowledgeIndex(NewVectorIndex(HashEmbedder{}), nil, nil)

	require.NoError(t, idx.AddDocuments(ctx, "org-1", []string{"We deliver on weekdays from 9 to 18", "Returns accepted within 7 days"}))
	require.NoError(t, idx.AddDocuments(ctx, "", []string{"Payments via PIX or bank transfer"}))
	require.NoError(t, idx.AddDocuments(ctx, "org-2", []string{"We deliver on weekends too"}))

	snippets, err := idx.Search(ctx, "how do payments work with pix", "org-1", 3)
	require.NoError(t, err)
	require.NotEmpty(t, snippets)
	assert.Equal(t, "Payments via PIX or bank transfer", snippets[0].Content)
	for _, s := range snippets {
		assert.NotEqual(t, "We deliver on weekends too", s.Content, "other tenants' documents must not leak")
	}
}

func TestKnowledgeIndexEmptyWhenNothingIndexed(t *testing.T) {
	idx := NewKnowledgeIndex(NewVectorIndex(failingEmbedder{}), nil, nil)
	snippets, err := idx.Search(context.Background(), "anything", "org-1", 3)
	require.NoError(t, err, "no candidates means no embedding call")
	assert.Empty(t, snippets)
}

func TestKnowledgeIndexHydrateFromRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := NewRedisDocumentRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.AppendDocuments(ctx, "org-1", []string{"Open Monday to Friday"}))
	require.NoError(t, repo.AppendDocuments(ctx, "", []string{"Shipping is free above R$ 200"}))

	all, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Open Monday to Friday"}, all["org-1"])
	assert.Equal(t, []string{"Shipping is free above R$ 200"}, all[""])

	idx := NewKnowledgeIndex(NewVectorIndex(HashEmbedder{}), repo, nil)
	n, err := idx.Hydrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snippets, err := idx.Search(ctx, "is shipping free", "org-1", 1)
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Contains(t, snippets[0].Content, "Shipping")
}

func TestKnowledgeIndexAddPersists(t *testing.T) {
	mr := miniredis.RunT(t)
	repo := NewRedisDocumentRepository(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	idx := NewKnowledgeIndex(NewVectorIndex(HashEmbedder{}), repo, nil)

	require.NoError(t, idx.AddDocuments(context.Background(), "org-1", []string{"  ", "Gift wrapping available"}))
	docs, err := repo.GetDocuments(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Gift wrapping available"}, docs)
}

func TestHistoryIndexScopedToContact(t *testing.T) {
	ctx := context.Background()
	h := NewHistoryIndex(HashEmbedder{})

	require.NoError(t, h.Record(ctx, "org-1", "contact-a", "I want my usual blue mug order", "Sure, 2 blue mugs"))
	require.NoError(t, h.Record(ctx, "org-1", "contact-b", "blue mug please", "Done"))

	snippets, err := h.Search(ctx, "contact-a", "the usual blue mug", 5)
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Contains(t, snippets[0].Content, "user: I want my usual blue mug order")
	assert.Contains(t, snippets[0].Content, "assistant: Sure, 2 blue mugs")

	assert.Error(t, h.Record(ctx, "org-1", "", "x", "y"))
}

func TestVectorIndexNamespaceCap(t *testing.T) {
	v := NewVectorIndex(HashEmbedder{}).WithNamespaceCap(2)
	ctx := context.Background()
	require.NoError(t, v.Add(ctx, "ns", []string{"one", "two", "three"}))
	assert.Equal(t, 2, v.Len("ns"))
	snippets, err := v.Search(ctx, "one", 5, "ns")
	require.NoError(t, err)
	for _, s := range snippets {
		assert.NotEqual(t, "one", s.Content)
	}
}

func TestVectorIndexPropagatesEmbeddingError(t *testing.T) {
	v := NewVectorIndex(failingEmbedder{})
	assert.Error(t, v.Add(context.Background(), "ns", []string{"doc"}))
}

type stubOpenAIEmbeddings struct {
	req openai.EmbeddingRequestConverter
}

func (s *stubOpenAIEmbeddings) CreateEmbeddings(_ context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	s.req = req
	return openai.EmbeddingResponse{Data: []openai.Embedding{
		{Index: 1, Embedding: []float32{0, 1}},
		{Index: 0, Embedding: []float32{1, 0}},
	}}, nil
}

func TestOpenAIEmbedderOrdersByIndex(t *testing.T) {
	stub := &stubOpenAIEmbeddings{}
	e := NewOpenAIEmbedder(stub, "")
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	req := stub.req.Convert()
	assert.Equal(t, openai.EmbeddingModel("text-embedding-3-small"), req.Model)
}

type stubBedrockInvoke struct {
	calls int
	body  []byte
}

func (s *stubBedrockInvoke) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	s.calls++
	s.body = in.Body
	return &bedrockruntime.InvokeModelOutput{Body: []byte(`{"embedding":[0.5,0.25]}`)}, nil
}

func TestBedrockEmbedder(t *testing.T) {
	stub := &stubBedrockInvoke{}
	e := NewBedrockEmbedder(stub, "amazon.titan-embed-text-v2:0")
	vecs, err := e.Embed(context.Background(), []string{"hello", "world"})
	require.NoError(t, err)
	assert.Equal(t, 2, stub.calls)
	assert.JSONEq(t, `{"inputText":"world"}`, string(stub.body))
	assert.Equal(t, []float32{0.5, 0.25}, vecs[0])

	_, err = NewBedrockEmbedder(stub, "").Embed(context.Background(), []string{"x"})
	assert.Error(t, err)
}
