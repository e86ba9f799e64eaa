// Command personaforge-web runs the PersonaForge HTTP backend: document
// ingest, retrieval-augmented persona generation, and persona management.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/personaforge/personaforge/internal/agent"
	"github.com/personaforge/personaforge/internal/config"
	"github.com/personaforge/personaforge/internal/llm"
	"github.com/personaforge/personaforge/internal/server"
	"github.com/personaforge/personaforge/internal/storage"
	"github.com/personaforge/personaforge/internal/storage/postgres"
	"github.com/personaforge/personaforge/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (default: $PERSONAFORGE_CONFIG)")
	flag.Parse()

	// Load .env before reading config; missing file is fine.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	providerCfg := llm.ProviderConfig{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.OpenAIAPIKey,
		Model:    cfg.LLM.Model,
		Timeout:  time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	}
	if cfg.LLM.Provider == "openai" {
		providerCfg.BaseURL = cfg.LLM.OpenAIBaseURL
	} else {
		providerCfg.BaseURL = cfg.LLM.OllamaURL
	}

	text, err := llm.NewTextGenerator(providerCfg)
	if err != nil {
		log.Fatalf("Failed to build completion backend: %v", err)
	}
	stream, err := llm.NewStreamGenerator(providerCfg)
	if err != nil {
		log.Fatalf("Failed to build streaming backend: %v", err)
	}
	embedder, err := llm.NewEmbeddingGenerator(providerCfg, cfg.LLM.EmbeddingModel)
	if err != nil {
		log.Fatalf("Failed to build embedding backend: %v", err)
	}

	ag := agent.New(agent.Config{
		Name:            "web",
		TopK:            cfg.Generation.TopK,
		ChunkSize:       cfg.Generation.ChunkSize,
		ChunkOverlap:    cfg.Generation.ChunkOverlap,
		MemoryMaxTurns:  cfg.Generation.MemoryMaxTurns,
		MemoryMaxChars:  cfg.Generation.MemoryMaxChars,
		DedupeRetrieved: &cfg.Generation.DedupeRetrieved,
		Options: llm.Options{
			Temperature: cfg.Generation.Temperature,
			TopP:        cfg.Generation.TopP,
			MaxTokens:   cfg.Generation.MaxTokens,
		},
	}, text, stream, embedder, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, _, err := server.Start(ctx, cfg, ag, store)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("PersonaForge backend running at http://%s (engine=%s, provider=%s, model=%s)",
		addr, cfg.Storage.Engine, cfg.LLM.Provider, cfg.LLM.Model)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second) // Give in-flight connections time to close
}

// openStore builds the configured storage backend.
func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.Engine == "postgres" {
		return postgres.NewStore(cfg.Storage.PostgresDSN)
	}
	if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
		return nil, err
	}
	return sqlite.NewStore(cfg.Storage.DataPath + "/personaforge.db")
}
