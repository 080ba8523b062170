package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/talentsift/talentsift/internal/criteria"
	"github.com/talentsift/talentsift/internal/logger"
	"github.com/talentsift/talentsift/internal/store"
)

var criteriaCmd = &cobra.Command{
	Use:   "criteria",
	Short: "Inspect and append role criteria versions",
}

var criteriaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the latest criteria version for the configured role",
	Run: func(cmd *cobra.Command, _ []string) {
		criteriaShow(cmd)
	},
}

var criteriaPushCmd = &cobra.Command{
	Use:   "push [file]",
	Short: "Append a new criteria version for the configured role",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		criteriaPush(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(criteriaCmd)
	criteriaCmd.AddCommand(criteriaShowCmd)
	criteriaCmd.AddCommand(criteriaPushCmd)

	criteriaShowCmd.Flags().Bool("all", false, "list every version instead of only the latest")
}

func criteriaSetup() (*Config, *store.Store, *zap.Logger) {
	zlog, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		zlog.Fatal("getting a config", zap.Error(err))
	}
	if config == nil || config.Role == "" {
		zlog.Fatal("role is required in the config to address criteria versions")
	}

	st, err := store.Open(config.databaseFile(), zlog)
	if err != nil {
		zlog.Fatal("opening the store", zap.Error(err))
	}
	return config, st, zlog
}

func criteriaShow(cmd *cobra.Command) {
	config, st, zlog := criteriaSetup()
	defer st.Close()

	if cmd.Flag("all").Value.String() == "true" {
		versions, err := st.ListCriteriaVersions(config.Role)
		if err != nil {
			zlog.Fatal("listing criteria versions", zap.Error(err))
		}
		if len(versions) == 0 {
			zlog.Info("no criteria versions for role", zap.String("role", config.Role))
			return
		}
		for _, v := range versions {
			printVersion(v)
		}
		return
	}

	version, err := st.LatestCriteriaVersion(config.Role)
	if err != nil {
		zlog.Fatal("loading the latest criteria version",
			zap.String("role", config.Role),
			zap.Error(err),
		)
	}
	printVersion(version)
}

func printVersion(v *criteria.Version) {
	fmt.Printf("# version %d (%s), pushed %s\n", v.Number, v.ID, v.CreatedAt.Format("2006-01-02 15:04:05"))
	out, err := yaml.Marshal(v.Definition)
	if err != nil {
		log.Fatalf("rendering criteria: %v", err)
	}
	fmt.Println(string(out))
}

func criteriaPush(_ *cobra.Command, args []string) {
	config, st, zlog := criteriaSetup()
	defer st.Close()

	path := config.CriteriaFile
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		zlog.Fatal("a criteria file is required: pass it as an argument or set criteria-file in the config")
	}

	def, err := criteria.LoadDefinition(path)
	if err != nil {
		zlog.Fatal("loading criteria file", zap.String("path", path), zap.Error(err))
	}

	version, err := st.PushCriteriaVersion(config.Role, def)
	if err != nil {
		zlog.Fatal("pushing criteria version", zap.Error(err))
	}

	zlog.Info("criteria version pushed",
		zap.String("role", version.Role),
		zap.Int("number", version.Number),
		zap.String("id", version.ID),
		zap.Int("must_haves", len(version.MustHaves)),
		zap.Int("gating_params", len(version.GatingParams)),
		zap.Int("nice_to_haves", len(version.NiceToHaves)),
	)
}
