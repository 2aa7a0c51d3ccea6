package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/biolinkhq/vcmatch/internal/ai"
	"github.com/biolinkhq/vcmatch/internal/ai/gemini"
	"github.com/biolinkhq/vcmatch/internal/airtable"
	"github.com/biolinkhq/vcmatch/internal/backoff"
	"github.com/biolinkhq/vcmatch/internal/engine"
	"github.com/biolinkhq/vcmatch/internal/logger"
	"github.com/biolinkhq/vcmatch/internal/matching"
	"github.com/biolinkhq/vcmatch/internal/secrets"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the matching pass for pending startups, or one startup by id",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("startup-id", "", "process one startup record id, skipping subject discovery")
	runCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation before dispatching a batch")
	runCmd.Flags().Int("workers", 0, "worker pool size override")
	runCmd.Flags().Bool("batch-writes", false, "buffer match records and write them in batches when the pool drains")

	viper.BindPFlag("matching.workers", runCmd.Flags().Lookup("workers"))
	viper.BindPFlag("matching.buffered-writes", runCmd.Flags().Lookup("batch-writes"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		config = &Config{}
	}

	logger.Info("starting vcmatch", zap.String("version", version))

	store, err := buildStore(config, logger)
	if err != nil {
		logger.Fatal("building the record store client", zap.Error(err))
	}

	eng, err := buildEngine(ctx, config, store, logger)
	if err != nil {
		logger.Fatal("building the matching engine", zap.Error(err))
	}

	pinnedID := strings.TrimSpace(cmd.Flag("startup-id").Value.String())

	subjects, err := selectSubjects(ctx, store, pinnedID, logger)
	if err != nil {
		logger.Fatal("selecting startups", zap.Error(err))
	}

	if len(subjects) == 0 {
		// Nothing pending (or the pinned startup already finished a
		// pass); this is a normal no-op exit.
		return
	}

	if pinnedID == "" {
		if !confirmBatch(cmd, len(subjects), logger) {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}

		// Reset every trigger before any work is dispatched so a trigger
		// cycle firing mid-pass cannot re-pick these startups.
		for _, subject := range subjects {
			if err := store.ClearRunMatch(ctx, subject.ID); err != nil {
				logger.Fatal("clearing run-match trigger",
					zap.String("subject", subject.Name),
					zap.Error(err),
				)
			}
		}
	}

	summary := make([]summaryRow, 0, len(subjects))
	for _, subject := range subjects {
		logger.Info("processing startup",
			zap.String("subject", subject.Name),
			zap.String("subject_id", subject.ID),
		)

		candidates, err := store.Candidates(ctx)
		if err != nil {
			// The pass for this startup is aborted with its state flags
			// untouched, so the next trigger cycle retries it.
			logger.Error("loading candidate population, skipping startup",
				zap.String("subject", subject.Name),
				zap.Error(err),
			)
			continue
		}

		result, err := eng.RunForSubject(ctx, subject, candidates, pinnedID != "")
		if err != nil {
			logger.Warn("finalizing startup state failed",
				zap.String("subject", subject.Name),
				zap.Error(err),
			)
		}

		summary = append(summary, summaryRow{subject: subject.Name, result: result})
	}

	printSummary(summary)
}

func buildStore(config *Config, logger *zap.Logger) (*matching.Store, error) {
	airtableCfg := config.Airtable
	if airtableCfg == nil {
		airtableCfg = &AirtableConfig{}
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "airtable api key",
		Env:  envAirtableAPIKey,
		File: airtableCfg.APIKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set %s or airtable.api-key-file)", err, envAirtableAPIKey)
	}

	baseID := strings.TrimSpace(airtableCfg.BaseID)
	if baseID == "" {
		baseID = strings.TrimSpace(os.Getenv(envAirtableBaseID))
	}
	if baseID == "" {
		return nil, fmt.Errorf("airtable base id is not configured (set %s or airtable.base-id)", envAirtableBaseID)
	}

	tables := matching.TableNames{}
	if airtableCfg.Tables != nil {
		tables = matching.TableNames{
			Subjects:   airtableCfg.Tables.Subjects,
			Candidates: airtableCfg.Tables.Candidates,
			Matches:    airtableCfg.Tables.Matches,
		}
	}

	client := airtable.New(logger, apiKey, baseID)
	return matching.NewStore(client, tables), nil
}

func buildEngine(ctx context.Context, config *Config, store *matching.Store, logger *zap.Logger) (*engine.Engine, error) {
	prescanner, scorer, err := buildOracles(ctx, config.Oracle, logger)
	if err != nil {
		return nil, err
	}

	matchingCfg := config.Matching
	if matchingCfg == nil {
		matchingCfg = &MatchingConfig{}
	}

	return engine.New(store, prescanner, scorer, engine.Config{
		PoolSize:       matchingCfg.Workers,
		BufferedWrites: matchingCfg.BufferedWrites,
	}, logger), nil
}

func buildOracles(ctx context.Context, config *OracleConfig, logger *zap.Logger) (ai.Prescanner, ai.PortfolioScorer, error) {
	if config == nil {
		config = &OracleConfig{}
	}

	provider := strings.TrimSpace(strings.ToLower(config.Provider))
	if provider != "" && provider != gemini.Provider {
		return nil, nil, fmt.Errorf("unsupported oracle provider: %s", config.Provider)
	}

	geminiCfg := config.Gemini
	if geminiCfg == nil {
		geminiCfg = &GeminiConfig{}
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		Env:  envGeminiAPIKey,
		File: geminiCfg.APIKeyFile,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w (set %s or oracle.gemini.api-key-file)", err, envGeminiAPIKey)
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, geminiCfg.Model)
	if err != nil {
		return nil, nil, err
	}

	policy := backoff.Default()
	if geminiCfg.MaxRetries > 0 {
		policy.Attempts = uint(geminiCfg.MaxRetries)
	}

	timeout := time.Duration(geminiCfg.TimeoutSeconds) * time.Second

	prescanner := gemini.NewPrescanner(generator, policy, timeout, geminiCfg.MaxLogLength, logger)
	scorer := gemini.NewScorer(generator, policy, timeout, geminiCfg.MaxLogLength, logger)

	return prescanner, scorer, nil
}

// selectSubjects resolves the work list: the pinned startup when an id was
// given, otherwise every startup with the trigger set and no finished pass.
func selectSubjects(ctx context.Context, store *matching.Store, pinnedID string, logger *zap.Logger) ([]*matching.Subject, error) {
	if pinnedID != "" {
		subject, err := store.SubjectByID(ctx, pinnedID)
		if err != nil {
			return nil, err
		}

		if subject.MatchingDone {
			logger.Info("startup already finished a matching pass, nothing to do",
				zap.String("subject", subject.Name),
				zap.String("hint", "clear the 'Matching Done?' flag to allow another pass"),
			)
			return nil, nil
		}

		return []*matching.Subject{subject}, nil
	}

	subjects, err := store.PendingSubjects(ctx)
	if err != nil {
		return nil, err
	}

	if len(subjects) == 0 {
		logger.Info("exiting", zap.String("reason", "no startups with a pending matching trigger"))
		return nil, nil
	}

	logger.Info("found pending startups", zap.Int("count", len(subjects)))
	return subjects, nil
}

func confirmBatch(cmd *cobra.Command, count int, logger *zap.Logger) bool {
	if cmd.Flag("yes").Value.String() == "true" {
		return true
	}

	prompt := promptui.Select{
		Label: fmt.Sprintf("Run matching for %d startup(s)?", count),
		Items: []string{PromptYes, PromptNo},
	}

	_, action, err := prompt.Run()
	if err != nil {
		logger.Fatal("exiting", zap.Error(err))
	}

	return action == PromptYes
}

type summaryRow struct {
	subject string
	result  *engine.BatchResult
}

func printSummary(rows []summaryRow) {
	if len(rows) == 0 {
		return
	}

	color.Cyan("\nMatching summary")

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Startup", "Candidates", "Filtered", "Prescan Fail", "Created", "Verified", "Failed", "Elapsed"})

	for _, row := range rows {
		r := row.result
		if r == nil {
			continue
		}
		table.Append([]string{
			row.subject,
			strconv.Itoa(r.Total),
			strconv.Itoa(r.FilteredOut),
			strconv.Itoa(r.PrescanFailed),
			strconv.Itoa(r.Created),
			strconv.Itoa(r.Verified),
			strconv.Itoa(r.Failed),
			r.Elapsed.Round(time.Second).String(),
		})
	}

	table.Render()
	color.Green("All startups processed")
}
