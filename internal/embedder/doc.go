// Package embedder turns passage and query text into 768-dimensional vectors.
//
// The package has two layers. Providers (Gemini, OpenAI, local) implement the
// Embedder interface and make exactly one upstream call per method. Pipeline
// sits on top and adds everything a rate-limited provider needs in practice:
// request coalescing, retry with backoff, a shared call budget, an LRU cache
// and a sequential fallback.
//
// # Basic Usage
//
//	provider, err := embedder.New(embedder.Config{Provider: "gemini", APIKey: key})
//	if err != nil {
//	    return err
//	}
//
//	limiter := ratelimit.NewLimiter(store, ratelimit.DefaultConfig())
//	retrier := ratelimit.NewRetrier(ratelimit.DefaultRetryConfig(), limiter)
//
//	p, err := embedder.NewPipeline(provider, retrier, embedder.NewCache(10000),
//	    embedder.DefaultPipelineConfig())
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	vec, err := p.EmbedOne(ctx, "how do tagged caches work?")
//
// # Batching and Fallback
//
// EmbedOne submits the text to a batch scheduler, so concurrent callers share
// provider calls. Inside a batch, texts are sent ProviderBatchSize at a time
// with InterCallDelay between calls.
//
// EmbedAll is the entry point for multi-text work such as ingestion. It first
// tries the batched path; if any text failed it runs the whole set through
// EmbedSequential, one text at a time with FallbackDelay between calls. Texts
// that already succeeded come back from the cache. Each Result carries its
// own error, and EmbedMany folds those into a single joined error.
//
// # Provider Selection
//
// DetectProvider picks a provider from the environment:
//
//  1. If DOCSEARCH_EMBEDDING_PROVIDER is set → use specified provider
//  2. Else if GEMINI_API_KEY is set → use Gemini
//  3. Else if OPENAI_API_KEY is set → use OpenAI
//  4. Else → fallback to local provider (offline mode)
//
// Gemini (text-embedding-004) is the default. OpenAI's text-embedding-3-small
// is asked for 768 dimensions so vectors stay compatible with stored
// passages. The local provider hashes word features and needs no network.
//
// # Error Handling
//
// Providers wrap HTTP 429 and RESOURCE_EXHAUSTED responses with
// ratelimit.ErrThrottled. Once retries are exhausted the pipeline reports
// ratelimit.ErrProviderThrottled or ratelimit.ErrProviderError:
//
//	_, err := p.EmbedMany(ctx, texts)
//	if errors.Is(err, ratelimit.ErrProviderThrottled) {
//	    // quota exhausted, try again later
//	}
package embedder
