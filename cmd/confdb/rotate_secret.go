package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// newRotateSecretCmd names the credential-rotation path explicitly: a put
// to key == db carrying the new secret, as described in SPEC_FULL.md §6.
func newRotateSecretCmd() *cobra.Command {
	var (
		certPath, cacertPath string
		serversCSV           string
		quorum               int
		db, oldSecret        string
	)

	cmd := &cobra.Command{
		Use:   "rotate-secret",
		Short: "Replace a db's credential secret, reading the new secret from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, writer, err := newClusterClient(certPath, cacertPath, serversCSV, quorum)
			if err != nil {
				return err
			}

			raw, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading new secret from stdin: %w", err)
			}
			newSecret := strings.TrimSpace(string(raw))

			ctx := context.Background()
			version, _, err := reader.GetKey(ctx, db, db)
			if err != nil {
				return err
			}
			if version == nil {
				return fmt.Errorf("db %q has no credential yet; write a key first to bootstrap it", db)
			}

			resultVersion, _, err := writer.Put(ctx, db, oldSecret, db, *version+1, newSecret)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{"db": db, "version": resultVersion})
		},
	}

	cmd.Flags().StringVar(&certPath, "cert", "", "client certificate and private key PEM")
	cmd.Flags().StringVar(&cacertPath, "cacert", "", "cluster CA certificate")
	cmd.Flags().StringVar(&serversCSV, "servers", "", "comma separated list of server host:port")
	cmd.Flags().IntVar(&quorum, "quorum", 0, "quorum override")
	cmd.Flags().StringVar(&db, "db", "", "db name")
	cmd.Flags().StringVar(&oldSecret, "secret", "", "current db credential secret")
	_ = cmd.MarkFlagRequired("cert")
	_ = cmd.MarkFlagRequired("cacert")
	_ = cmd.MarkFlagRequired("servers")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("secret")

	return cmd
}
