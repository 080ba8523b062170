package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/talentsift/talentsift/internal/ai"
	"github.com/talentsift/talentsift/internal/ai/gemini"
	"github.com/talentsift/talentsift/internal/criteria"
	"github.com/talentsift/talentsift/internal/enrich"
	"github.com/talentsift/talentsift/internal/evaluate"
	"github.com/talentsift/talentsift/internal/ingest"
	"github.com/talentsift/talentsift/internal/logger"
	"github.com/talentsift/talentsift/internal/output"
	"github.com/talentsift/talentsift/internal/pipeline"
	"github.com/talentsift/talentsift/internal/secrets"
	"github.com/talentsift/talentsift/internal/store"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var proceedPrompt = promptui.Select{
	Label: "Proceed with evaluation?",
	Items: []string{PromptYes, PromptNo},
}

var runCmd = &cobra.Command{
	Use:   "run [files...]",
	Short: "Run the full pipeline: ingest, dedup, evaluate and write artifacts",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		run(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation after the ingest preview")
	runCmd.Flags().StringP("output-dir", "o", "", "directory for CSV artifacts. Default is ./out.")

	viper.BindPFlag("output-dir", runCmd.Flags().Lookup("output-dir"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command, args []string) {
	// Interrupt stops dispatching new candidates; evaluations already in
	// flight finish and are persisted before the run is marked failed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting talentsift", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if config == nil {
		logger.Fatal("config is required")
	}
	if config.Role == "" {
		logger.Fatal("role is required to pick the criteria version to evaluate against")
	}

	st, err := store.Open(config.databaseFile(), logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer st.Close()

	critVersion, err := resolveCriteriaVersion(st, config, logger)
	if err != nil {
		logger.Fatal("resolving criteria version", zap.Error(err))
	}
	logger.Info("criteria version selected",
		zap.String("role", critVersion.Role),
		zap.Int("number", critVersion.Number),
		zap.String("id", critVersion.ID),
	)

	judge, assist, err := newGeminiStack(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal(
			"building the evaluator",
			zap.Error(err),
			zap.String("hint", "set ai.gemini.api-key-file or GEMINI_API_KEY_FILE"),
		)
	}

	enricher, err := newEnricher(config.Enrichment, st, logger)
	if err != nil {
		logger.Fatal("building the enrichment cache", zap.Error(err))
	}

	p := pipeline.New(pipeline.Deps{
		Mapper:   newMapper(config.Ingest, assist, logger),
		Judge:    judge,
		Store:    st,
		Enricher: enricher,
		Writer:   output.NewWriter(config.outputDir(), logger),
		Logger:   logger,
		Confirm:  confirmFunc(cmd, logger),
	}, pipelineConfig(config))

	summary, err := p.Run(ctx, args, critVersion)
	if errors.Is(err, pipeline.ErrAborted) {
		logger.Info("exiting", zap.String("reason", "got no from prompt"))
		return
	}
	if err != nil {
		logger.Fatal("pipeline failed", zap.Error(err))
	}

	logger.Info("pipeline finished",
		zap.String("run_id", summary.RunID),
		zap.Int("candidates", summary.Ingest.Records),
		zap.Int("proceed", summary.Buckets[evaluate.BucketProceed]),
		zap.Int("human_review", summary.Buckets[evaluate.BucketHumanReview]),
		zap.Int("dismiss", summary.Buckets[evaluate.BucketDismiss]),
		zap.Int("unable_to_enrich", summary.Buckets[evaluate.BucketUnableToEnrich]),
		zap.Int("judgment_failures", summary.Failures),
	)
}

func confirmFunc(cmd *cobra.Command, logger *zap.Logger) func(*pipeline.IngestReport) (bool, error) {
	if cmd.Flag("auto-approve").Value.String() == "true" {
		return nil
	}
	return func(report *pipeline.IngestReport) (bool, error) {
		logger.Info("ingest preview",
			zap.Int("files_read", report.FilesRead),
			zap.Int("files_failed", report.FilesFailed),
			zap.Int("candidates", report.Records),
			zap.Int("duplicates", report.Duplicates),
			zap.Int("incomplete", report.Incomplete),
		)
		_, action, err := proceedPrompt.Run()
		if err != nil {
			return false, err
		}
		return action == PromptYes, nil
	}
}

// resolveCriteriaVersion prefers the latest pushed version for the role and
// falls back to pushing the configured criteria file when the store has
// none yet.
func resolveCriteriaVersion(st *store.Store, config *Config, logger *zap.Logger) (*criteria.Version, error) {
	version, err := st.LatestCriteriaVersion(config.Role)
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if config.CriteriaFile == "" {
		return nil, fmt.Errorf("no criteria version for role %q: push one with 'talentsift criteria push' or set criteria-file", config.Role)
	}

	def, err := criteria.LoadDefinition(config.CriteriaFile)
	if err != nil {
		return nil, err
	}
	logger.Info("no stored criteria version, pushing the configured file",
		zap.String("path", config.CriteriaFile),
	)
	return st.PushCriteriaVersion(config.Role, def)
}

func newMapper(cfg *IngestConfig, assist ingest.MapAssist, log *zap.Logger) *ingest.Mapper {
	opts := ingest.MapperOptions{}
	if cfg != nil {
		opts.FuzzyThreshold = cfg.FuzzyThreshold
		if cfg.AssistedMapping {
			opts.Assist = assist
		}
	}
	return ingest.NewMapper(opts, log)
}

func newGeminiStack(ctx context.Context, cfg *AIConfig, log *zap.Logger) (ai.Judge, ingest.MapAssist, error) {
	if cfg == nil || cfg.Gemini == nil {
		return nil, nil, errors.New("ai.gemini configuration is required")
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
	})
	if err != nil {
		return nil, nil, err
	}

	model := cfg.Gemini.Model
	if model == "" {
		model = defaultGeminiModel
	}

	genLogger := logger.WithCommonFields(log, "gemini", model)
	generator, err := gemini.NewGenerator(ctx, apiKey, model, cfg.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, nil, err
	}

	judge := gemini.NewJudge(generator, cfg.Gemini.MaxLogLength, genLogger)
	assist := gemini.NewMapAssist(generator, cfg.Gemini.MaxLogLength, genLogger)
	return judge, assist, nil
}

func newEnricher(cfg *EnrichmentConfig, st *store.Store, log *zap.Logger) (evaluate.Enricher, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("enrichment.base-url is required when enrichment is enabled")
	}

	token, err := secrets.Load(secrets.Source{
		Name: "enrichment token",
		File: cfg.TokenFile,
	})
	if err != nil {
		return nil, err
	}

	client := enrich.NewClient(cfg.BaseURL, token, log)
	return enrich.NewCache(st, client, cfg.Freshness, log), nil
}

func pipelineConfig(config *Config) pipeline.Config {
	cfg := pipeline.Config{Role: config.Role}
	if config.Evaluation != nil {
		cfg.Workers = config.Evaluation.Workers
		cfg.CallTimeout = config.Evaluation.CallTimeout
		cfg.RequestsPerSecond = config.Evaluation.RequestsPerSecond
	}
	return cfg
}
