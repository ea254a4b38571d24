package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/adaptexam/internal/embed"
	"github.com/pavelanni/adaptexam/internal/exam"
	"github.com/pavelanni/adaptexam/internal/handler"
	appI18n "github.com/pavelanni/adaptexam/internal/i18n"
	"github.com/pavelanni/adaptexam/internal/index"
	"github.com/pavelanni/adaptexam/internal/ingest"
	"github.com/pavelanni/adaptexam/internal/llm"
	"github.com/pavelanni/adaptexam/internal/model"
	"github.com/pavelanni/adaptexam/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "adaptexam",
		Short: "Adaptive oral exam server over lecture materials",
	}

	serve := serveCmd()
	root.AddCommand(serve, ingestCmd(), reindexCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `adaptexam --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "adaptexam.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addEmbedFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("embed-provider", "hash", "Embedding provider (hash, openai)")
	f.String("embed-url", "http://localhost:11434/v1", "OpenAI-compatible embeddings API base URL")
	f.String("embed-key", "ollama", "API key for the embeddings endpoint")
	f.String("embed-model", "nomic-embed-text", "Embedding model name")
	f.Int("embed-dim", 384, "Embedding vector dimensionality")
	f.Int("embed-timeout", 60, "Embeddings request timeout in seconds")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	addCommonFlags(cmd)
	addEmbedFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("llm-provider", "openai", "Question generator backend (openai, mock)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Float32("llm-temperature", 0.3, "LLM sampling temperature")
	f.Int("llm-max-tokens", 800, "Maximum tokens per LLM response")
	f.Int("llm-timeout", 60, "LLM request timeout in seconds")
	f.Bool("llm-fallback", true, "Fall back to the offline generator when the LLM fails")
	f.Int64("mock-seed", 1, "Seed for the offline generator")
	f.Int("chunk-size", 1200, "Chunk size in characters for uploaded materials")
	f.Int("chunk-overlap", 200, "Chunk overlap in characters for uploaded materials")
	f.Int("context-chunks", 5, "Chunks retrieved per generated question")
	f.Int("max-context-chars", 6000, "Character budget for generation context")
	f.Float64("weight-correctness", 0.6, "Score weight for correctness")
	f.Float64("weight-speed", 0.2, "Score weight for answer speed")
	f.Float64("weight-consistency", 0.2, "Score weight for consistency")
	f.Int("policy-default-duration", 30, "Default max exam duration in minutes for new policies")
	f.Int("policy-default-attempts", 3, "Default max attempts for new policies")
	f.Int("policy-default-questions", 10, "Default max questions for new policies")
	f.Int("policy-default-stop-incorrect", 3, "Default consecutive-incorrect stop threshold for new policies")
	f.Int("policy-default-stop-slow", 300, "Default slow-answer stop threshold in seconds for new policies")
	f.Int("policy-default-difficulty-min", 2, "Default minimum difficulty for new policies")
	f.Int("policy-default-difficulty-max", 4, "Default maximum difficulty for new policies")
	f.StringP("lang", "l", "en", "Default language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set ADAPTEXAM_ADMIN_PASSWORD)")
	return cmd
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Import lecture material files into the database",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIngest,
	}
	addCommonFlags(cmd)
	addEmbedFlags(cmd)
	f := cmd.Flags()
	f.Int64("department", 0, "Department ID the material belongs to (required)")
	f.Int("grade", 0, "Grade level the material belongs to (required)")
	f.Int("chunk-size", 1200, "Chunk size in characters")
	f.Int("chunk-overlap", 200, "Chunk overlap in characters")
	_ = cmd.MarkFlagRequired("department")
	_ = cmd.MarkFlagRequired("grade")
	return cmd
}

func reindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Re-embed all stored chunks with the configured provider",
		RunE:  runReindex,
	}
	addCommonFlags(cmd)
	addEmbedFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export exam results for a policy as JSON",
		RunE:  runExport,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.Int64("policy", 0, "Exam policy ID to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	_ = cmd.MarkFlagRequired("policy")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("ADAPTEXAM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("adaptexam")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/adaptexam")
	v.AddConfigPath("/etc/adaptexam")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func embedConfig(v *viper.Viper) embed.Config {
	return embed.Config{
		Provider:       v.GetString("embed-provider"),
		BaseURL:        v.GetString("embed-url"),
		APIKey:         v.GetString("embed-key"),
		Model:          v.GetString("embed-model"),
		Dim:            v.GetInt("embed-dim"),
		TimeoutSeconds: v.GetInt("embed-timeout"),
	}
}

func buildIndex(db *store.Store, v *viper.Viper) (*index.Index, embed.Config, error) {
	cfg := embedConfig(v)
	provider, err := embed.NewLoader().Get(cfg)
	if err != nil {
		return nil, cfg, fmt.Errorf("create embedding provider: %w", err)
	}
	return index.New(db, provider, cfg.Dim), cfg, nil
}

func buildLLMClient(v *viper.Viper) (llm.Client, error) {
	mock := llm.NewMockClient(v.GetInt64("mock-seed"))
	switch v.GetString("llm-provider") {
	case "mock":
		return mock, nil
	case "openai":
		remote := llm.NewOpenAIClient(llm.Config{
			BaseURL:        v.GetString("llm-url"),
			APIKey:         v.GetString("llm-key"),
			Model:          v.GetString("llm-model"),
			Temperature:    float32(v.GetFloat64("llm-temperature")),
			MaxTokens:      v.GetInt("llm-max-tokens"),
			TimeoutSeconds: v.GetInt("llm-timeout"),
		})
		if v.GetBool("llm-fallback") {
			return llm.NewFallbackClient(remote, mock), nil
		}
		return remote, nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", v.GetString("llm-provider"))
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("cleanup expired sessions", "error", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	ix, embedCfg, err := buildIndex(db, v)
	if err != nil {
		return err
	}
	if err := ix.CheckFingerprint(embedCfg.Provider, embedCfg.Model); err != nil {
		return fmt.Errorf("check index fingerprint: %w", err)
	}

	llmClient, err := buildLLMClient(v)
	if err != nil {
		return err
	}

	engine := exam.New(db, ix, llmClient, exam.Config{
		ContextChunks:   v.GetInt("context-chunks"),
		MaxContextChars: v.GetInt("max-context-chars"),
		Weights: exam.Weights{
			Correctness: v.GetFloat64("weight-correctness"),
			Speed:       v.GetFloat64("weight-speed"),
			Consistency: v.GetFloat64("weight-consistency"),
		},
	})

	ingester := ingest.New(db, ix, ingest.Options{
		ChunkSize:    v.GetInt("chunk-size"),
		ChunkOverlap: v.GetInt("chunk-overlap"),
	})

	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	h := handler.New(db, engine, ingester, ix, handler.Config{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		EmbedProvider: embedCfg.Provider,
		EmbedModel:    embedCfg.Model,
		PolicyDefaults: model.PolicyDefaults{
			MaxDurationMinutes:       v.GetInt("policy-default-duration"),
			MaxAttempts:              v.GetInt("policy-default-attempts"),
			MaxQuestions:             v.GetInt("policy-default-questions"),
			StopConsecutiveIncorrect: v.GetInt("policy-default-stop-incorrect"),
			StopSlowSeconds:          v.GetInt("policy-default-stop-slow"),
			DifficultyMin:            v.GetInt("policy-default-difficulty-min"),
			DifficultyMax:            v.GetInt("policy-default-difficulty-max"),
		},
	})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			h.Routes(sub)
		})
	} else {
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"llm_provider", v.GetString("llm-provider"),
		"llm_model", v.GetString("llm-model"),
		"embed_provider", embedCfg.Provider,
		"embed_dim", embedCfg.Dim,
		"lang", lang,
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}

func runIngest(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ix, embedCfg, err := buildIndex(db, v)
	if err != nil {
		return err
	}

	ingester := ingest.New(db, ix, ingest.Options{
		ChunkSize:    v.GetInt("chunk-size"),
		ChunkOverlap: v.GetInt("chunk-overlap"),
	})

	ctx := context.Background()
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		id, chunks, err := ingester.IngestMaterial(ctx, model.Material{
			DepartmentID: v.GetInt64("department"),
			GradeLevel:   v.GetInt("grade"),
			Title:        title,
			CreatedAt:    time.Now(),
		}, string(data))
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		slog.Info("ingested material", "path", path, "material", id, "chunks", chunks)
	}

	return ix.RecordFingerprint(embedCfg.Provider, embedCfg.Model)
}

func runReindex(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ix, embedCfg, err := buildIndex(db, v)
	if err != nil {
		return err
	}

	if err := ix.ReindexAll(context.Background(), embedCfg.Provider, embedCfg.Model); err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	slog.Info("reindex complete", "provider", embedCfg.Provider, "model", embedCfg.Model, "dim", embedCfg.Dim)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	policyID := v.GetInt64("policy")
	policy, err := db.GetPolicy(policyID)
	if err != nil {
		return fmt.Errorf("get policy: %w", err)
	}
	if policy == nil {
		return fmt.Errorf("policy %d not found", policyID)
	}
	department, err := db.GetDepartment(policy.DepartmentID)
	if err != nil {
		return fmt.Errorf("get department: %w", err)
	}
	results, err := db.ExportPolicyResults(policyID)
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	export := model.ResultsExport{
		Department: department.Name,
		GradeLevel: policy.GradeLevel,
		Date:       time.Now().Format("2006-01-02"),
		Results:    results,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	return nil
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or ADAPTEXAM_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
