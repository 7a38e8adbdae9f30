package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	var (
		certPath, cacertPath string
		serversCSV           string
		quorum               int
		db, key              string
	)

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Read a key (or list all keys) from a db",
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, _, err := newClusterClient(certPath, cacertPath, serversCSV, quorum)
			if err != nil {
				return err
			}

			ctx := context.Background()
			if key == "" {
				keys, err := reader.ListKeys(ctx, db)
				if err != nil {
					return err
				}
				return printJSON(map[string]interface{}{"db": db, "keys": keys})
			}

			version, value, err := reader.GetKey(ctx, db, key)
			if err != nil {
				return err
			}
			result := map[string]interface{}{"db": db, "key": key, "version": version}
			if value != nil {
				var decoded interface{}
				if err := json.Unmarshal(value, &decoded); err != nil {
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
	cmd.Flags().StringVar(&key, "key", "", "key to read, omit to list every key")
	_ = cmd.MarkFlagRequired("cert")
	_ = cmd.MarkFlagRequired("cacert")
	_ = cmd.MarkFlagRequired("servers")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
