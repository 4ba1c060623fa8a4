package commands

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fivetwenty-io/cbc-client/internal/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand builds the cbc command tree with its global flags bound to viper.
func NewRootCommand(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cbc",
		Short: "Carbon Black Cloud platform CLI",
		Long: `A command-line interface for the Carbon Black Cloud platform API.

Credentials come from the CBC_URL, CBC_TOKEN and CBC_ORG_KEY environment
variables or from a profile in ~/.carbonblack/credentials.cbc.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initConfig()
			ConfigureLogging(viper.GetBool("verbose"))

			_, err := outputFormat()

			return err
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "CLI defaults file (default is $HOME/.carbonblack/cbc.yml)")
	flags.StringP("profile", "p", "", "credentials profile (default \"default\")")
	flags.String("credentials-file", "", "credentials file (default is $HOME/"+constants.DefaultCredentialFile+")")
	flags.StringP("output", "o", constants.OutputFormatTable, "output format (table, json, yaml)")
	flags.Duration("http-timeout", constants.DefaultHTTPTimeout, "timeout for each HTTP request")
	flags.BoolP("verbose", "v", false, "verbose output")

	for _, name := range []string{"config", "profile", "credentials-file", "output", "http-timeout", "verbose"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(NewVersionCommand(version, commit, date))
	rootCmd.AddCommand(NewConfigCommand())
	rootCmd.AddCommand(NewDevicesCommand())
	rootCmd.AddCommand(NewAlertsCommand())
	rootCmd.AddCommand(NewProcessesCommand())
	rootCmd.AddCommand(NewJobsCommand())
	rootCmd.AddCommand(NewPoliciesCommand())
	rootCmd.AddCommand(NewUsersCommand())
	rootCmd.AddCommand(NewWatchlistsCommand())

	return rootCmd
}

func initConfig() {
	// CBC_PROFILE, CBC_OUTPUT, CBC_CREDENTIALS_FILE and so on.
	viper.SetEnvPrefix("CBC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	cfgFile := viper.GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".carbonblack"))
		viper.SetConfigType("yml")
		viper.SetConfigName("cbc")
	}

	err := viper.ReadInConfig()
	if err == nil {
		Logger().WithField("file", viper.ConfigFileUsed()).Debug("Using config file")
	}
}
