package cmd

import (
	"log"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "talentsift"
)

type Config struct {
	Role         string            `mapstructure:"role"`
	OutputDir    string            `mapstructure:"output-dir"`
	DatabaseFile string            `mapstructure:"database-file"`
	CriteriaFile string            `mapstructure:"criteria-file"`
	Ingest       *IngestConfig     `mapstructure:"ingest"`
	Evaluation   *EvaluationConfig `mapstructure:"evaluation"`
	Enrichment   *EnrichmentConfig `mapstructure:"enrichment"`
	AI           *AIConfig         `mapstructure:"ai"`
}

type IngestConfig struct {
	FuzzyThreshold  float64 `mapstructure:"fuzzy-threshold"`
	AssistedMapping bool    `mapstructure:"assisted-mapping"`
}

type EvaluationConfig struct {
	Workers           int           `mapstructure:"workers"`
	CallTimeout       time.Duration `mapstructure:"call-timeout"`
	RequestsPerSecond float64       `mapstructure:"requests-per-second"`
}

type EnrichmentConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base-url"`
	TokenFile string        `mapstructure:"token-file"`
	Freshness time.Duration `mapstructure:"freshness"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "talentsift ingests recruiting exports, dedupes candidates and evaluates them against role criteria",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}
	if err := viper.BindEnv("enrichment.token-file", "TALENTSIFT_ENRICH_TOKEN_FILE"); err != nil {
		log.Fatalf("binding TALENTSIFT_ENRICH_TOKEN_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is talentsift.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config is needed only for commands that touch the pipeline or the
	// store; version and help work without one.
	if !configNeeded() {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func configNeeded() bool {
	for _, c := range []*cobra.Command{runCmd, ingestCmd, criteriaShowCmd, criteriaPushCmd} {
		if c.CalledAs() != "" {
			return true
		}
	}
	return false
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return config, err
	}

	return config, nil
}

// defaults applied where the config file is silent.
const (
	defaultOutputDir    = "out"
	defaultDatabaseFile = "talentsift.db"
	defaultGeminiModel  = "gemini-2.5-pro"
)

func (c *Config) outputDir() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return defaultOutputDir
}

func (c *Config) databaseFile() string {
	if c.DatabaseFile != "" {
		return c.DatabaseFile
	}
	return defaultDatabaseFile
}
