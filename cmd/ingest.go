package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/talentsift/talentsift/internal/logger"
	"github.com/talentsift/talentsift/internal/output"
	"github.com/talentsift/talentsift/internal/pipeline"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest, standardize and dedup the input files without evaluating anyone",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ingestRun(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringP("output-dir", "o", "", "directory for CSV artifacts. Default is ./out.")
}

func ingestRun(cmd *cobra.Command, args []string) {
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

	outDir := config.outputDir()
	if flag := cmd.Flag("output-dir"); flag != nil && flag.Value.String() != "" {
		outDir = flag.Value.String()
	}

	// Ingestion never needs the model or the store: assisted mapping is
	// unavailable here and unmappable files are simply skipped.
	p := pipeline.New(pipeline.Deps{
		Mapper: newMapper(config.Ingest, nil, logger),
		Logger: logger,
	}, pipeline.Config{Role: config.Role})

	records, groups, report, err := p.Ingest(ctx, args)
	if err != nil {
		logger.Fatal("ingestion failed", zap.Error(err))
	}

	writer := output.NewWriter(outDir, logger)
	if err := writer.WriteStandardized(records); err != nil {
		logger.Fatal("writing standardized artifact", zap.Error(err))
	}
	if err := writer.WriteDuplicates(groups); err != nil {
		logger.Fatal("writing duplicates artifact", zap.Error(err))
	}

	logger.Info("ingestion finished",
		zap.Int("files_read", report.FilesRead),
		zap.Int("files_failed", report.FilesFailed),
		zap.Int("rows_read", report.RowsRead),
		zap.Int("bad_rows", report.BadRows),
		zap.Int("candidates", report.Records),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("incomplete", report.Incomplete),
	)
}
