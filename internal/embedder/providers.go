package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/dshills/docsearch/internal/ratelimit"
	"github.com/dshills/docsearch/pkg/types"
)

// Provider configuration
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"

	DefaultGeminiModel = "text-embedding-004"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-hash-v1"

	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"

	// MaxBatchSize is the most texts accepted by one GenerateBatch call
	MaxBatchSize = 100

	defaultTimeout = 30 * time.Second
)

// ProviderOptions configures an HTTP provider
type ProviderOptions struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

func (o ProviderOptions) withDefaults(model, baseURL string) ProviderOptions {
	if o.Model == "" {
		o.Model = model
	}
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return o
}

// postJSON sends body to url and decodes a 200 response into out. Throttling
// responses are wrapped with ratelimit.ErrThrottled.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(bodyBytes))
		if resp.StatusCode == http.StatusTooManyRequests || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
			return fmt.Errorf("%w: api error %d: %s", ratelimit.ErrThrottled, resp.StatusCode, msg)
		}
		return fmt.Errorf("%w: api error %d: %s", ErrProviderFailed, resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkDimension(vec []float32, want int) error {
	if len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", types.ErrDimensionMismatch, len(vec), want)
	}
	return nil
}

// GeminiProvider implements Embedder using the Gemini embedding API
type GeminiProvider struct {
	opts       ProviderOptions
	httpClient *http.Client
}

// NewGeminiProvider creates a Gemini embedder. The API key falls back to GEMINI_API_KEY.
func NewGeminiProvider(opts ProviderOptions) (*GeminiProvider, error) {
	opts = opts.withDefaults(DefaultGeminiModel, DefaultGeminiBaseURL)
	if opts.APIKey == "" {
		opts.APIKey = os.Getenv(EnvGeminiAPIKey)
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvGeminiAPIKey)
	}

	return &GeminiProvider{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}, nil
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiEmbedRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiValues struct {
	Values []float32 `json:"values"`
}

func (g *GeminiProvider) modelPath(model string) string {
	return "models/" + model
}

func (g *GeminiProvider) headers() map[string]string {
	return map[string]string{"x-goog-api-key": g.opts.APIKey}
}

func (g *GeminiProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := checkTexts([]string{req.Text}); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = g.opts.Model
	}

	var resp struct {
		Embedding geminiValues `json:"embedding"`
	}
	url := fmt.Sprintf("%s/%s:embedContent", g.opts.BaseURL, g.modelPath(model))
	body := geminiEmbedRequest{
		Model:   g.modelPath(model),
		Content: geminiContent{Parts: []geminiPart{{Text: req.Text}}},
	}
	if err := postJSON(ctx, g.httpClient, url, g.headers(), body, &resp); err != nil {
		return nil, err
	}
	if err := checkDimension(resp.Embedding.Values, g.Dimension()); err != nil {
		return nil, err
	}

	return &Embedding{
		Vector:    resp.Embedding.Values,
		Provider:  ProviderGemini,
		Model:     model,
	}, nil
}

func (g *GeminiProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := checkTexts(req.Texts); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = g.opts.Model
	}

	requests := make([]geminiEmbedRequest, len(req.Texts))
	for i, text := range req.Texts {
		requests[i] = geminiEmbedRequest{
			Model:   g.modelPath(model),
			Content: geminiContent{Parts: []geminiPart{{Text: text}}},
		}
	}

	var resp struct {
		Embeddings []geminiValues `json:"embeddings"`
	}
	url := fmt.Sprintf("%s/%s:batchEmbedContents", g.opts.BaseURL, g.modelPath(model))
	body := map[string]interface{}{"requests": requests}
	if err := postJSON(ctx, g.httpClient, url, g.headers(), body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Embeddings) != len(req.Texts) {
		return nil, fmt.Errorf("%w: %d embeddings for %d texts", ErrProviderFailed, len(resp.Embeddings), len(req.Texts))
	}

	embeddings := make([]*Embedding, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if err := checkDimension(e.Values, g.Dimension()); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		embeddings[i] = &Embedding{
			Vector:    e.Values,
			Provider:  ProviderGemini,
			Model:     model,
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderGemini,
		Model:      model,
	}, nil
}

func (g *GeminiProvider) Dimension() int {
	return types.EmbeddingDimension
}

func (g *GeminiProvider) Provider() string {
	return ProviderGemini
}

func (g *GeminiProvider) Model() string {
	return g.opts.Model
}

func (g *GeminiProvider) Close() error {
	g.httpClient.CloseIdleConnections()
	return nil
}

// OpenAIProvider implements Embedder using the OpenAI embeddings API. Vectors
// are requested at the shared 768 dimensions so they are interchangeable with
// stored passages.
type OpenAIProvider struct {
	opts       ProviderOptions
	httpClient *http.Client
}

// NewOpenAIProvider creates an OpenAI embedder. The API key falls back to OPENAI_API_KEY.
func NewOpenAIProvider(opts ProviderOptions) (*OpenAIProvider, error) {
	opts = opts.withDefaults(DefaultOpenAIModel, DefaultOpenAIBaseURL)
	if opts.APIKey == "" {
		opts.APIKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}

	return &OpenAIProvider{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}, nil
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := checkTexts([]string{req.Text}); err != nil {
		return nil, err
	}

	resp, err := o.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	return resp.Embeddings[0], nil
}

func (o *OpenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := checkTexts(req.Texts); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = o.opts.Model
	}

	reqBody := map[string]interface{}{
		"input":      req.Texts,
		"model":      model,
		"dimensions": o.Dimension(),
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	headers := map[string]string{"Authorization": "Bearer " + o.opts.APIKey}
	if err := postJSON(ctx, o.httpClient, o.opts.BaseURL+"/embeddings", headers, reqBody, &apiResp); err != nil {
		return nil, err
	}

	if len(apiResp.Data) != len(req.Texts) {
		return nil, fmt.Errorf("%w: %d embeddings for %d texts", ErrProviderFailed, len(apiResp.Data), len(req.Texts))
	}

	// Data is documented to be in input order, but index is authoritative
	sort.Slice(apiResp.Data, func(i, j int) bool {
		return apiResp.Data[i].Index < apiResp.Data[j].Index
	})

	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		if err := checkDimension(data.Embedding, o.Dimension()); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		embeddings[i] = &Embedding{
			Vector:    data.Embedding,
			Provider:  ProviderOpenAI,
			Model:     model,
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderOpenAI,
		Model:      model,
	}, nil
}

func (o *OpenAIProvider) Dimension() int {
	return types.EmbeddingDimension
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.opts.Model
}

func (o *OpenAIProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider embeds text offline by hashing word features into a fixed
// number of buckets. Texts sharing vocabulary land close together, which is
// enough for tests and air-gapped demos but not for real semantic search.
type LocalProvider struct {
	model string
}

// NewLocalProvider creates a local embedder
func NewLocalProvider() (*LocalProvider, error) {
	return &LocalProvider{model: DefaultLocalModel}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := checkTexts([]string{req.Text}); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vector := hashEmbedding(req.Text, LocalDimension)
	return &Embedding{
		Vector:    vector,
		Provider:  ProviderLocal,
		Model:     l.model,
	}, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := checkTexts(req.Texts); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

// LocalDimension matches the remote providers so local vectors fit the same schema
const LocalDimension = types.EmbeddingDimension

func (l *LocalProvider) Dimension() int {
	return LocalDimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// hashEmbedding builds a signed feature-hashing vector over lowercase words
// and their bigrams, normalized to unit length
func hashEmbedding(text string, dim int) []float32 {
	vector := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	add := func(feature string, weight float32) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(feature))
		sum := h.Sum64()
		idx := int(sum % uint64(dim))
		if sum&(1<<63) != 0 {
			weight = -weight
		}
		vector[idx] += weight
	}

	for i, w := range words {
		add(w, 1)
		if i > 0 {
			add(words[i-1]+" "+w, 0.5)
		}
	}

	return NormalizeVector(vector)
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
