package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdeggleston/confdb/internal/confdblog"
)

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "confdb",
		Short:         "Replicated, Paxos-backed key-value configuration store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := confdblog.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			confdblog.SetLevel(level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, notice, warning, error, critical")

	root.AddCommand(newServerCmd())
	root.AddCommand(newGetCmd())
	root.AddCommand(newPutCmd())
	root.AddCommand(newRotateSecretCmd())
	return root
}

func splitServers(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
