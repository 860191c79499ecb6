package main

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/leonardcser/readthrough/internal/remote"
	"github.com/leonardcser/readthrough/internal/tools"
)

const (
	daemonStartTimeout = 5 * time.Second
	daemonPollInterval = 200 * time.Millisecond
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the cache tools over MCP on stdio, starting the daemon if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := connectOrStart(cmd.Context(), a.log, a.cfg.Server.Socket, a.configFile)
			if err != nil {
				return err
			}

			s := server.NewMCPServer(
				"readthrough",
				version,
				server.WithRecovery(),
				server.WithToolCapabilities(false),
			)
			tools.Register(s, client)

			a.log.Info().Msg("serving MCP on stdio")
			return server.ServeStdio(s)
		},
	}
}

// connectOrStart returns a client for a live daemon at socket, spawning
// "readthrough serve" in the background when none answers.
func connectOrStart(ctx context.Context, log zerolog.Logger, socket, configFile string) (*remote.Client, error) {
	client := remote.NewClient(socket)
	if err := client.Ping(ctx); err == nil {
		return client, nil
	}

	log.Warn().Str("socket", socket).Msg("cache daemon not running, starting it")
	if err := startDaemon(socket, configFile); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, daemonStartTimeout)
	defer cancel()
	ticker := time.NewTicker(daemonPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, errors.WithContext(
				errors.New(errors.CodeUnavailable, "cache daemon did not come up"), "socket", socket)
		case <-ticker.C:
			if err := client.Ping(ctx); err == nil {
				log.Info().Msg("cache daemon started")
				return client, nil
			}
		}
	}
}

func startDaemon(socket, configFile string) error {
	exe, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "cannot locate executable")
	}
	args := []string{"serve", "--socket", socket}
	if configFile != "" {
		args = append(args, "--config", configFile)
	}
	cmd := exec.Command(exe, args...)
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, errors.CodeExecutionFailed, "failed to start cache daemon")
	}
	return cmd.Process.Release()
}
