package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"askdocs/internal/agents"
	"askdocs/internal/chunker"
	"askdocs/internal/config"
	"askdocs/internal/domain"
	"askdocs/internal/embedding/ollama"
	"askdocs/internal/embedding/openai"
	"askdocs/internal/embedding/tfidf"
	"askdocs/internal/extract"
	"askdocs/internal/generator/cache"
	genollama "askdocs/internal/generator/ollama"
	genopenai "askdocs/internal/generator/openai"
	"askdocs/internal/logging"
	"askdocs/internal/pipeline"
	"askdocs/internal/resilience"
	"askdocs/internal/service"
	"askdocs/internal/summarizer"
	"askdocs/internal/tokenizer"
	"askdocs/internal/tracing"
	"askdocs/internal/vectorstore/memory"
)

// app is the assembled object graph behind every command.
type app struct {
	cfg       *config.AppConfig
	session   *pipeline.Session
	orch      *pipeline.Orchestrator
	extractor domain.Extractor
	shutdown  func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	shutdown, err := tracing.Init(ctx, tracing.Config{
		Enabled:    cfg.Tracing.Enabled,
		Endpoint:   cfg.Tracing.Endpoint,
		SampleRate: cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	policy := resilience.Policy{
		Timeout:     cfg.StageTimeout(),
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		BaseBackoff: cfg.BaseBackoff(),
		MaxBackoff:  resilience.DefaultPolicy().MaxBackoff,
	}

	emb, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	gen, err := newGenerator(cfg.Generator)
	if err != nil {
		return nil, err
	}
	gen, err = withCache(ctx, gen, cfg.Cache)
	if err != nil {
		return nil, err
	}
	wrappedEmb := resilience.WrapEmbedder(emb, policy)
	wrappedGen := resilience.WrapGenerator(gen, policy)

	rules := make([]service.Rule, 0, len(cfg.Retriever.Shortcuts))
	for _, sc := range cfg.Retriever.Shortcuts {
		rules = append(rules, service.PhraseRule(sc.Phrase, sc.Markers, sc.Prefix))
	}
	chunk := chunker.NewSectionChunker(cfg.Chunker.MaxSize, cfg.Chunker.Overlap, chunker.MergeRule{
		Guard:    cfg.Chunker.MergeWhenContains,
		Triggers: cfg.Chunker.MergeTriggers,
	})
	retriever := service.NewRetriever(chunk, wrappedEmb, memory.NewStorage(), wrappedGen, tokenizer.New(), service.Options{
		TopK:             cfg.Retriever.TopK,
		MaxContextTokens: cfg.Retriever.MaxContextTokens,
		Rules:            rules,
	})

	orch := pipeline.NewOrchestrator(pipeline.Agents{
		Miner:          agents.NewContextMiner(summarizer.NewFrequencySummarizer(), cfg.Summarizer.MaxSentences),
		Contradictions: agents.NewContradictionHunter(wrappedGen),
		Actions:        agents.NewActionPlanner(wrappedGen),
		Persona:        agents.NewPersonaShifter(wrappedGen),
	}, pipeline.Options{Parallel: cfg.Pipeline.Parallel, DefaultPersona: cfg.Pipeline.DefaultPersona})

	logging.Default().Debug("components assembled",
		"embedder", emb.Name(),
		"generator", gen.Name(),
		"cache", cfg.Cache.Type,
		"parallel", cfg.Pipeline.Parallel,
	)
	return &app{
		cfg:       cfg,
		session:   pipeline.NewSession(retriever),
		orch:      orch,
		extractor: extract.NewRouter(),
		shutdown:  shutdown,
	}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		logging.Default().Warn("tracing shutdown", "error", err)
	}
}

func newEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		return openai.NewClient(openai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			BatchSize: cfg.OpenAI.BatchSize,
		})
	case "ollama":
		if cfg.Ollama == nil {
			return nil, fmt.Errorf("ollama embedder config missing")
		}
		return ollama.NewClient(ollama.Config{
			URL:     cfg.Ollama.URL,
			Model:   cfg.Ollama.Model,
			Timeout: time.Duration(cfg.Ollama.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func newGenerator(cfg config.GeneratorConfig) (domain.Generator, error) {
	switch cfg.Type {
	case "ollama", "":
		if cfg.Ollama == nil {
			return nil, fmt.Errorf("ollama generator config missing")
		}
		return genollama.NewClient(genollama.Config{
			URL:         cfg.Ollama.URL,
			Model:       cfg.Ollama.Model,
			Temperature: cfg.Ollama.Temperature,
			Timeout:     time.Duration(cfg.Ollama.TimeoutSecs) * time.Second,
		}), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai generator config missing")
		}
		return genopenai.NewClient(genopenai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
	}
}

func withCache(ctx context.Context, gen domain.Generator, cfg config.CacheConfig) (domain.Generator, error) {
	switch cfg.Type {
	case "none", "":
		return gen, nil
	case "memory":
		return cache.New(gen, cache.NewMemoryStore()), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis cache config missing")
		}
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      time.Duration(cfg.Redis.TTLSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		return cache.New(gen, store), nil
	default:
		return nil, fmt.Errorf("unknown cache: %s", cfg.Type)
	}
}

// readFiles loads paths for ingestion; the declared type is the file name.
func readFiles(paths []string) ([]pipeline.File, error) {
	files := make([]pipeline.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, pipeline.File{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

// ingest loads paths into the session and fails when nothing could be extracted.
func (a *app) ingest(ctx context.Context, paths []string) (pipeline.IngestReport, error) {
	files, err := readFiles(paths)
	if err != nil {
		return pipeline.IngestReport{}, err
	}
	rep, err := a.session.Ingest(ctx, a.extractor, files)
	if err != nil {
		return rep, err
	}
	if rep.AllFailed() {
		return rep, fmt.Errorf("no document could be extracted: %s", rep.Failures[0].Error)
	}
	return rep, nil
}
