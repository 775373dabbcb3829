package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newRootCmd builds the sqlited command tree. Settings are resolvable
// from a flag, a SQLITED_-prefixed environment variable, or the default,
// in that order of precedence.
func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("sqlited")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "sqlited",
		Short:         "sqlited serves the SQLite wire protocol over TCP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", "127.0.0.1:9600", "address to listen on")
	flags.String("db", "sqlited.db", "path to the SQLite database file")
	flags.Int("buffer-cap", 0, "per-connection row-streaming buffer cap override in bytes (0 uses the wire package default)")
	flags.String("log-level", "info", "minimum log level: debug, info, warn, error")

	_ = v.BindPFlag("listen", flags.Lookup("listen"))
	_ = v.BindPFlag("db", flags.Lookup("db"))
	_ = v.BindPFlag("buffer-cap", flags.Lookup("buffer-cap"))
	_ = v.BindPFlag("log-level", flags.Lookup("log-level"))

	return cmd
}
