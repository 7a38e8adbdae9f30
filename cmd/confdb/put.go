package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newPutCmd() *cobra.Command {
	var (
		certPath, cacertPath string
		serversCSV           string
		quorum               int
		db, key, secret      string
		version              int64
	)

	cmd := &cobra.Command{
		Use:   "put",
		Short: "Write a value for (db, key, version), reading the JSON value from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, writer, err := newClusterClient(certPath, cacertPath, serversCSV, quorum)
			if err != nil {
				return err
			}

			raw, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading value from stdin: %w", err)
			}
			var obj interface{}
			if err := json.Unmarshal(raw, &obj); err != nil {
				return fmt.Errorf("stdin must be valid JSON: %w", err)
			}

			resultVersion, resultValue, err := writer.Put(context.Background(), db, secret, key, version, json.RawMessage(raw))
			if err != nil {
				return err
			}

			result := map[string]interface{}{"db": db, "key": key, "version": resultVersion}
			if resultValue != nil {
				var decoded interface{}
				if err := json.Unmarshal(resultValue, &decoded); err != nil {
					return err
				}
				result["value"] = decoded
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&certPath, "cert", "", "client certificate and private key PEM")
	cmd.Flags().StringVar(&cacertPath, "cacert", "", "cluster CA certificate")
	cmd.Flags().StringVar(&serversCSV, "servers", "", "comma separated list of server host:port")
	cmd.Flags().IntVar(&quorum, "quorum", 0, "quorum override")
	cmd.Flags().StringVar(&db, "db", "", "db name")
	cmd.Flags().StringVar(&key, "key", "", "key to write")
	cmd.Flags().StringVar(&secret, "secret", "", "db credential secret")
	cmd.Flags().Int64Var(&version, "version", 0, "version to propose")
	_ = cmd.MarkFlagRequired("cert")
	_ = cmd.MarkFlagRequired("cacert")
	_ = cmd.MarkFlagRequired("servers")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("secret")

	return cmd
}
