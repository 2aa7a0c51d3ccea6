package cmd

import (
	"errors"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "vcmatch"

	envAirtableAPIKey = "AIRTABLE_API_KEY"
	envAirtableBaseID = "AIRTABLE_BASE_ID"
	envGeminiAPIKey   = "GEMINI_API_KEY"
)

type Config struct {
	Airtable *AirtableConfig `mapstructure:"airtable"`
	Oracle   *OracleConfig   `mapstructure:"oracle"`
	Matching *MatchingConfig `mapstructure:"matching"`
}

type AirtableConfig struct {
	APIKeyFile string        `mapstructure:"api-key-file"`
	BaseID     string        `mapstructure:"base-id"`
	Tables     *TablesConfig `mapstructure:"tables"`
}

type TablesConfig struct {
	Subjects   string `mapstructure:"startups"`
	Candidates string `mapstructure:"investors"`
	Matches    string `mapstructure:"matches"`
}

type OracleConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile     string `mapstructure:"api-key-file"`
	Model          string `mapstructure:"model"`
	MaxRetries     int    `mapstructure:"max-retries"`
	MaxLogLength   int    `mapstructure:"max-log-length"`
	TimeoutSeconds int    `mapstructure:"timeout-seconds"`
}

type MatchingConfig struct {
	Workers        int  `mapstructure:"workers"`
	BufferedWrites bool `mapstructure:"buffered-writes"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "vcmatch matches startups against an investor database through a staged oracle pipeline",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is vcmatch.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config needed only for run command now. If there is no config, we can skip initialization
	if runCmd.CalledAs() == "" {
		return
	}

	// Local .env files hold credentials in development; absence is fine.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		// We can't proceed if an explicitly requested config file is broken.
		if err := viper.ReadInConfig(); err != nil {
			log.Fatal(err)
		}
		return
	}

	viper.AddConfigPath(".")
	viper.SetConfigName(app + ".yaml")

	if err := viper.ReadInConfig(); err != nil {
		// Everything has environment or built-in defaults, so a missing
		// default config is not an error.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
