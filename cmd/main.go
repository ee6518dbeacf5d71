package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/askdoc/askdoc/pkg/config"
	"github.com/askdoc/askdoc/pkg/extract"
	"github.com/askdoc/askdoc/pkg/llm"
	"github.com/askdoc/askdoc/pkg/rag"
	"github.com/askdoc/askdoc/pkg/retriever"
	"github.com/askdoc/askdoc/pkg/store"
	"github.com/askdoc/askdoc/server"
)

type flags struct {
	configPath string
	dataDir    string
	document   string
	serve      bool
	addr       string
}

func main() {
	// A missing .env is fine; explicit env still applies.
	_ = godotenv.Load()

	f := parseFlags()
	if err := run(f); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.StringVar(&f.dataDir, "data-dir", "", "Directory for persisted indexes (overrides config)")
	flag.StringVar(&f.document, "doc", "", "Document ID to chat about (defaults to the last ingested file)")
	flag.BoolVar(&f.serve, "serve", false, "Run the HTTP server instead of the interactive chat")
	flag.StringVar(&f.addr, "addr", "", "HTTP listen address (overrides config)")
	flag.Parse()
	return f
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowCount(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func run(f flags) error {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return err
	}
	if f.dataDir != "" {
		cfg.Store.Path = f.dataDir
	}
	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config error: %v", e)
		}
		return fmt.Errorf("invalid configuration")
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		BaseURL:   cfg.Embedding.BaseURL,
		BatchSize: cfg.Embedding.BatchSize,
		RateLimit: cfg.Embedding.RateLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:  cfg.LLM.Provider,
		Model:     cfg.LLM.Model,
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	backend, err := newBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store backend: %w", err)
	}

	vectorStore := store.New(backend, embedder, store.StoreConfig{
		ChunkSize:    cfg.Chunker.ChunkSize,
		ChunkOverlap: cfg.Chunker.ChunkOverlap,
	})
	defer vectorStore.Close()

	ret := retriever.New(vectorStore, embedder, retriever.DefaultCorpus(),
		retriever.RetrieverConfig{TopK: cfg.Retrieval.TopK})
	synth := rag.NewSynthesizer(ret, chatEngine, rag.SynthesizerConfig{TopK: cfg.Retrieval.TopK})

	// Ingest any file paths given as positional arguments.
	docID := f.document
	if paths := flag.Args(); len(paths) > 0 {
		lastID, err := ingest(vectorStore, paths)
		if err != nil {
			return err
		}
		if docID == "" {
			docID = lastID
		}
	}

	if f.serve {
		return server.New(server.Config{Addr: cfg.Server.Addr}, vectorStore, ret, synth).Start()
	}

	return chatLoop(synth, docID)
}

func newBackend(cfg *config.Config) (store.Backend, error) {
	switch cfg.Store.Backend {
	case "pgvector":
		return store.NewPGBackend(store.PGBackendConfig{
			ConnString: cfg.Store.Database.URL,
			TableName:  cfg.Store.Database.TableName,
			VectorDim:  cfg.Store.Database.VectorDim,
		})
	default:
		return store.NewFileBackend(cfg.Store.Path)
	}
}

func ingest(vectorStore *store.Store, paths []string) (string, error) {
	bar := getProgressBar(len(paths), "Indexing documents...")
	var lastID string

	for _, path := range paths {
		doc, err := extract.FromFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to extract %s: %w", path, err)
		}

		info, err := vectorStore.CreateIndex(context.Background(), doc.ID, *doc)
		if err != nil {
			return "", fmt.Errorf("failed to index %s: %w", path, err)
		}
		bar.Add(1)
		color.Green("\n✓ %s indexed as %s (%d chunks, %d pages)\n",
			info.FileName, doc.ID, info.ChunkCount, info.PageCount)
		lastID = doc.ID
	}
	return lastID, nil
}

func chatLoop(synth *rag.Synthesizer, docID string) error {
	if docID == "" {
		color.Yellow("No document selected; answering from general knowledge only.")
	}
	color.Cyan("\nAsk questions about your document (type 'topics' for suggestions, 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		switch {
		case query == "":
			continue
		case strings.EqualFold(query, "exit"):
			return nil
		case strings.EqualFold(query, "topics"):
			spinner := getSpinner("Sampling document...")
			topics := synth.SuggestTopics(context.Background(), docID)
			spinner.Finish()
			fmt.Println()
			for i, topic := range topics {
				assistantPrompt("%d. %s\n", i+1, topic)
			}
			continue
		}

		spinner := getSpinner("Thinking...")
		answer, err := synth.Answer(context.Background(), docID, query)
		spinner.Finish()
		fmt.Println()

		if err != nil {
			color.Red("Error: %v\n", err)
			continue
		}

		assistantPrompt("Assistant: %s\n", answer.Answer)
		if len(answer.Citations) > 0 {
			fmt.Println()
			for _, c := range answer.Citations {
				color.White("  [%s #%d] %s", c.Source, c.ChunkIndex, truncate(c.Text, 80))
			}
		}
		color.Yellow("  confidence: %s\n", answer.Confidence)
	}

	return scanner.Err()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
