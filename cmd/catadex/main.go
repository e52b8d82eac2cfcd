// Copyright 2025 Catadex Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/catadex/catadex"
	"github.com/catadex/catadex/ai"
	"github.com/catadex/catadex/ai/mock"
	"github.com/catadex/catadex/core"
	"github.com/catadex/catadex/jobs"
	"github.com/catadex/catadex/search"
)

func main() {
	app := &cli.App{
		Name:  "catadex",
		Usage: "Product catalog with synchronized semantic embeddings",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "Run an embedding sync job over the catalog",
				Action: syncCommand,
				Flags: append(dbFlags(), append(providerFlags(),
					&cli.BoolFlag{
						Name:  "execute",
						Usage: "Apply writes; default is a dry-run preview",
					},
					&cli.BoolFlag{
						Name:  "only-stale",
						Usage: "Only process rows with missing or outdated embeddings",
						Value: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of rows to fetch in each batch",
						Value: core.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of rows to process (0 = unlimited)",
					},
					&cli.TimestampFlag{
						Name:   "updated-since",
						Usage:  "Only process items updated at or after this time (RFC3339)",
						Layout: time.RFC3339,
					},
					&cli.DurationFlag{
						Name:  "rate-limit",
						Usage: "Minimum interval between embedding calls (0 = unpaced)",
					},
					&cli.StringFlag{
						Name:  "brand",
						Usage: "Only process items with this exact brand",
					},
					&cli.StringFlag{
						Name:  "category",
						Usage: "Only process items with this exact category",
					},
					&cli.StringFlag{
						Name:  "name-contains",
						Usage: "Only process items whose name contains this text",
					},
					&cli.StringFlag{
						Name:  "requested-by",
						Usage: "Requester recorded on the job",
						Value: "cli",
					},
				)...),
			},
			{
				Name:   "jobs",
				Usage:  "List recent sync jobs",
				Action: jobsCommand,
				Flags: append(dbFlags(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to list",
						Value: 20,
					},
				),
			},
			{
				Name:      "job",
				Usage:     "Show one sync job with its audit items",
				ArgsUsage: "<job-id>",
				Action:    jobCommand,
				Flags: append(dbFlags(),
					&cli.IntFlag{
						Name:  "items",
						Usage: "Maximum number of audit items to show",
						Value: 50,
					},
				),
			},
			{
				Name:      "cancel",
				Usage:     "Request cooperative cancellation of an active job",
				ArgsUsage: "<job-id>",
				Action:    cancelCommand,
				Flags:     dbFlags(),
			},
			{
				Name:      "search",
				Usage:     "Semantic search over the catalog",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: append(dbFlags(), append(providerFlags(),
					&cli.IntFlag{
						Name:  "max-hits",
						Usage: "Maximum number of results",
						Value: 10,
					},
					&cli.Float64Flag{
						Name:  "min-similarity",
						Usage: "Similarity threshold for matches",
						Value: 0.60,
					},
				)...),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func dbFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "db",
			Aliases:  []string{"d"},
			Usage:    "Path to BadgerDB database directory",
			Required: true,
		},
	}
}

func providerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "embeddinggemma",
		},
		&cli.IntFlag{
			Name:  "embedding-dim",
			Usage: "Embedding vector dimension",
			Value: 768,
		},
		&cli.StringFlag{
			Name:    "api-token",
			Usage:   "API token for the embedding service",
			EnvVars: []string{"CATADEX_API_TOKEN"},
		},
		&cli.BoolFlag{
			Name:  "mock",
			Usage: "Use the deterministic in-process embedding provider",
		},
	}
}

func openPlatform(c *cli.Context) (*catadex.Platform, error) {
	opts := []catadex.PlatformOption{
		catadex.WithAIConfig(ai.NewConfig(
			ai.WithHost(c.String("embedding-host")),
			ai.WithModel(c.String("embedding-model")),
			ai.WithDimension(c.Int("embedding-dim")),
			ai.WithToken(c.String("api-token")),
		)),
	}
	if c.Bool("mock") {
		opts = append(opts, catadex.WithProviderFactory(func(params core.JobParams) (ai.EmbeddingProvider, error) {
			return mock.NewProvider(params.Model, params.Dim), nil
		}))
	}
	return catadex.Open(c.String("db"), opts...)
}

func buildFilter(c *cli.Context) core.CatalogFilter {
	var filter core.CatalogFilter
	if brand := c.String("brand"); brand != "" {
		if filter.Equals == nil {
			filter.Equals = make(map[string]string)
		}
		filter.Equals["brand"] = brand
	}
	if category := c.String("category"); category != "" {
		if filter.Equals == nil {
			filter.Equals = make(map[string]string)
		}
		filter.Equals["category"] = category
	}
	if contains := c.String("name-contains"); contains != "" {
		filter.Contains = map[string]string{"name": contains}
	}
	return filter
}

func syncCommand(c *cli.Context) error {
	ctx := context.Background()

	platform, err := openPlatform(c)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer platform.Close()

	mode := core.JobModeDryRun
	if c.Bool("execute") {
		mode = core.JobModeExecute
	}

	params := core.JobParams{
		Mode:      mode,
		OnlyStale: c.Bool("only-stale"),
		Limit:     c.Int("limit"),
		BatchSize: c.Int("batch-size"),
		RateLimit: c.Duration("rate-limit"),
		Provider:  providerName(c),
		Model:     c.String("embedding-model"),
		Dim:       c.Int("embedding-dim"),
		Filter:    buildFilter(c),
	}
	if ts := c.Timestamp("updated-since"); ts != nil {
		params.UpdatedSince = *ts
	}

	result, err := platform.Jobs().CreateJob(ctx, params, c.String("requested-by"), "")
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	if result.Conflict {
		return fmt.Errorf("another sync job is already active (job %d)", result.ActiveJobID)
	}

	fmt.Fprintf(os.Stderr, "Job %d created (%s)\n", result.Job.ID, result.Job.Mode)
	platform.Jobs().Enqueue(result.Job.ID)

	job, err := waitForJob(ctx, platform.Jobs(), result.Job.ID)
	if err != nil {
		return err
	}

	printJob(job)
	if job.Status == core.JobStatusFailed {
		return fmt.Errorf("sync job failed: %s", job.ErrorSummary)
	}
	return nil
}

func providerName(c *cli.Context) string {
	if c.Bool("mock") {
		return "mock"
	}
	return "openai"
}

// waitForJob polls until the job reaches a terminal state.
func waitForJob(ctx context.Context, manager *jobs.Manager, jobID core.JobID) (*core.SyncJob, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		detail, err := manager.GetJobDetail(ctx, jobID, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to read job %d: %w", jobID, err)
		}
		if detail.Job.Status.Terminal() {
			return detail.Job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printJob(job *core.SyncJob) {
	fmt.Printf("job %d: %s (%s)\n", job.ID, job.Status, job.Mode)
	fmt.Printf("  processed: %d  inserted: %d  updated: %d  skipped: %d  errors: %d\n",
		job.Processed, job.Inserted, job.Updated, job.Skipped, job.Errors)
	if !job.StartedAt.IsZero() && !job.FinishedAt.IsZero() {
		fmt.Printf("  duration: %v\n", job.FinishedAt.Sub(job.StartedAt).Round(time.Millisecond))
	}
	if job.ErrorSummary != "" {
		fmt.Printf("  error: %s\n", job.ErrorSummary)
	}
}

func jobsCommand(c *cli.Context) error {
	ctx := context.Background()

	platform, err := openPlatform(c)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer platform.Close()

	list, err := platform.Jobs().ListJobs(ctx, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("no jobs")
		return nil
	}
	for _, job := range list {
		printJob(job)
	}
	return nil
}

func parseJobID(c *cli.Context) (core.JobID, error) {
	arg := c.Args().First()
	if arg == "" {
		return 0, fmt.Errorf("job id argument is required")
	}
	var id uint64
	if _, err := fmt.Sscanf(arg, "%d", &id); err != nil || id == 0 {
		return 0, fmt.Errorf("invalid job id %q", arg)
	}
	return core.JobID(id), nil
}

func jobCommand(c *cli.Context) error {
	ctx := context.Background()

	jobID, err := parseJobID(c)
	if err != nil {
		return err
	}

	platform, err := openPlatform(c)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer platform.Close()

	detail, err := platform.Jobs().GetJobDetail(ctx, jobID, c.Int("items"))
	if err != nil {
		return fmt.Errorf("failed to load job %d: %w", jobID, err)
	}

	printJob(detail.Job)
	for _, item := range detail.Items {
		line := fmt.Sprintf("  sku %d: %s", item.SKU, item.Action)
		if item.ErrorMessage != "" {
			line += " (" + item.ErrorMessage + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func cancelCommand(c *cli.Context) error {
	ctx := context.Background()

	jobID, err := parseJobID(c)
	if err != nil {
		return err
	}

	platform, err := openPlatform(c)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer platform.Close()

	if err := platform.Jobs().CancelJob(ctx, jobID); err != nil {
		return err
	}
	fmt.Printf("cancel requested for job %d\n", jobID)
	return nil
}

func searchCommand(c *cli.Context) error {
	ctx := context.Background()

	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("query argument is required")
	}

	platform, err := openPlatform(c)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer platform.Close()

	searcher, err := platform.NewSearcher(core.JobParams{
		Provider: providerName(c),
		Model:    c.String("embedding-model"),
		Dim:      c.Int("embedding-dim"),
	}, search.WithMinSimilarity(float32(c.Float64("min-similarity"))))
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}

	results, err := searcher.Find(ctx, query, c.Int("max-hits"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}
	for i, result := range results {
		fmt.Printf("%2d. [%.3f] %d %s", i+1, result.Score, result.Item.SKU, result.Item.Name)
		if result.Item.Brand != "" {
			fmt.Printf(" (%s)", result.Item.Brand)
		}
		fmt.Println()
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
