package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/spf13/cobra"

	"github.com/leonardcser/readthrough/internal/cache"
	"github.com/leonardcser/readthrough/internal/remote"
)

// clientTimeout leaves room for web values, which fetch on a miss.
const clientTimeout = 30 * time.Second

// withClient runs fn against the daemon and prints its result as JSON.
func withClient(a *app, cmd *cobra.Command, fn func(context.Context, cache.API) (any, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
	defer cancel()
	out, err := fn(ctx, remote.NewClient(a.cfg.Server.Socket))
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the entry for key, generating it on a miss",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(a, cmd, func(ctx context.Context, api cache.API) (any, error) {
				return api.GetKey(ctx, args[0])
			})
		},
	}
}

func newSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store value under key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(a, cmd, func(ctx context.Context, api cache.API) (any, error) {
				return api.SetKey(ctx, args[0], args[1])
			})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove key and print the removed entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(a, cmd, func(ctx context.Context, api cache.API) (any, error) {
				entry, found, err := api.DeleteKey(ctx, args[0])
				if err != nil {
					return nil, err
				}
				if !found {
					return nil, errors.WithContext(errors.New(errors.CodeNotFound, "key not found"), "key", args[0])
				}
				return entry, nil
			})
		},
	}
}

func newKeysCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List every stored key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(a, cmd, func(ctx context.Context, api cache.API) (any, error) {
				return api.GetKeys(ctx)
			})
		},
	}
}

func newPurgeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove every entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(a, cmd, func(ctx context.Context, api cache.API) (any, error) {
				n, err := api.PurgeCache(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]int{"deleted": n}, nil
			})
		},
	}
}
