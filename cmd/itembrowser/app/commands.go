// Package app provides the commands of the item browser CLI.
package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/itembrowser/internal/config"
	"github.com/stacklok/itembrowser/pkg/versions"
)

// EnvPrefix is the prefix of environment variables that override flags,
// e.g. ITEMBROWSER_ENDPOINT
const EnvPrefix = "ITEMBROWSER"

// Persistent flag names
const (
	flagConfig   = "config"
	flagEndpoint = "endpoint"
	flagLogLevel = "log-level"
	flagNoState  = "no-state"
	flagFormat   = "format"
	flagLocation = "location"
)

// Output formats
const (
	formatTable = "table"
	formatJSON  = "json"
)

// cli holds the state shared by the commands of one root command
type cli struct {
	v   *viper.Viper
	cfg *config.Config

	openURL func(url string) error
}

// NewRootCmd creates the root command of the item browser
func NewRootCmd() *cobra.Command {
	return newRootCmd(browser.OpenURL)
}

func newRootCmd(openURL func(url string) error) *cobra.Command {
	c := &cli{
		v:       viper.New(),
		openURL: openURL,
	}
	c.v.SetEnvPrefix(EnvPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	c.v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:               "itembrowser",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Browse and edit items served by the items API",
		Long: `itembrowser pages through the records of an items API with search and group
filters. The current page and filters are kept as a location string such as
"?cursor=cD0y&search=rock&group=Primary", the same string the web UI uses, so
a view can be shared, stored and resumed.`,
		PersistentPreRunE: c.setup,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String(flagConfig, "", "Path to configuration file (YAML format)")
	flags.String(flagEndpoint, "", "Items API endpoint, overrides api.endpoint")
	flags.String(flagLogLevel, "", "Log level (debug, info, warn, error)")
	flags.Bool(flagNoState, false, "Do not read or write the stored location")
	for _, name := range []string{flagConfig, flagEndpoint, flagLogLevel, flagNoState} {
		if err := c.v.BindPFlag(name, flags.Lookup(name)); err != nil {
			slog.Error("Error binding flag", "flag", name, "error", err)
		}
	}

	rootCmd.AddCommand(
		c.newBrowseCmd(),
		c.newListCmd(),
		c.newShowCmd(),
		c.newCreateCmd(),
		c.newUpdateCmd(),
		c.newDeleteCmd(),
		c.newSeedCmd(),
		c.newLocationCmd(),
		c.newOpenCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// setup loads the configuration, applies flag overrides and configures logging
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	var opts []config.Option
	if path := c.v.GetString(flagConfig); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}

	cfg, err := config.LoadConfig(opts...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if endpoint := c.v.GetString(flagEndpoint); endpoint != "" {
		cfg.API.Endpoint = endpoint
	}
	if level := c.v.GetString(flagLogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if c.v.GetBool(flagNoState) {
		cfg.State.Disabled = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	c.cfg = cfg
	slog.SetDefault(slog.New(NewLogHandler(cmd.ErrOrStderr(), cfg.Logging.Format, ParseLogLevel(cfg.Logging.Level))))
	slog.Debug("Loaded configuration", "endpoint", cfg.API.Endpoint, "groups", cfg.Groups)
	return nil
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Version output must not depend on a valid configuration
		PersistentPreRun: func(*cobra.Command, []string) {},
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString(flagFormat)
			if err != nil {
				return fmt.Errorf("failed to read format flag: %w", err)
			}

			out := cmd.OutOrStdout()
			if format == formatJSON {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format version info as JSON: %w", err)
				}
				_, err = fmt.Fprintln(out, string(output))
				return err
			}

			_, err = fmt.Fprint(out, info.String())
			return err
		},
	}
	cmd.Flags().String(flagFormat, "", "Output format (json)")
	return cmd
}
