// Command nowhub runs the hub and offers tools to inspect the node store and
// the radio frames.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ystepanoff/nowhub"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// fromFlags copies a flag-bound field over the environment value.
var fromFlags = map[string]func(dst *nowhub.Config, src nowhub.Config){
	"store":         func(d *nowhub.Config, s nowhub.Config) { d.StorePath = s.StorePath },
	"log-level":     func(d *nowhub.Config, s nowhub.Config) { d.LogLevel = s.LogLevel },
	"log-format":    func(d *nowhub.Config, s nowhub.Config) { d.LogFormat = s.LogFormat },
	"metrics-addr":  func(d *nowhub.Config, s nowhub.Config) { d.MetricsAddr = s.MetricsAddr },
	"mqtt-url":      func(d *nowhub.Config, s nowhub.Config) { d.MQTTURL = s.MQTTURL },
	"mqtt-prefix":   func(d *nowhub.Config, s nowhub.Config) { d.MQTTTopicPrefix = s.MQTTTopicPrefix },
	"sync-timeout":  func(d *nowhub.Config, s nowhub.Config) { d.SyncTimeout = s.SyncTimeout },
	"ping-interval": func(d *nowhub.Config, s nowhub.Config) { d.PingInterval = s.PingInterval },
}

func newRootCmd() *cobra.Command {
	cfg := nowhub.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:          "nowhub",
		Short:        "Home-automation hub for radio sensor and relay nodes",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			env, err := nowhub.LoadConfig()
			if err != nil {
				return err
			}
			cmd.Flags().Visit(func(f *pflag.Flag) {
				if apply, ok := fromFlags[f.Name]; ok {
					apply(&env, cfg)
				}
			})
			cfg = env
			return cfg.Validate()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfg.StorePath, "store", "s", cfg.StorePath, "path of the JSON node store")
	rootCmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (json, console)")

	rootCmd.AddCommand(
		newRunCmd(&cfg),
		newNodesCmd(&cfg),
		newDecodeCmd(),
		newEncodeCmd(),
	)
	return rootCmd
}

func printf(cmd *cobra.Command, format string, args ...any) {
	printfTo(cmd.OutOrStdout(), format, args...)
}

func printfTo(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
