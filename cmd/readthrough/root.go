package main

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/leonardcser/readthrough/internal/config"
	"github.com/leonardcser/readthrough/internal/logger"
)

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	log        zerolog.Logger
	logCloser  io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New(), log: zerolog.Nop()}

	root := &cobra.Command{
		Use:           "readthrough",
		Short:         "A read-through key/value cache with bounded size and TTL",
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if a.configFile != "" {
				a.v.SetConfigFile(a.configFile)
			}
			cfg, err := config.Load(a.v)
			if err != nil {
				return err
			}
			a.cfg = cfg
			log, closer, err := logger.New(logger.Config{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				Path:   cfg.Log.Path,
			})
			if err != nil {
				return err
			}
			a.log, a.logCloser = log, closer
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default readthrough.toml in the user config dir or cwd)")
	pf.String("socket", "", "daemon Unix socket path")
	pf.String("log-level", "", "log level: trace, debug, info, warn, error")
	pf.String("log-format", "", "log format: console or json")
	pf.String("log-file", "", "append logs to this file instead of stderr")
	bindFlag(a.v, "server.socket", pf.Lookup("socket"))
	bindFlag(a.v, "log.level", pf.Lookup("log-level"))
	bindFlag(a.v, "log.format", pf.Lookup("log-format"))
	bindFlag(a.v, "log.path", pf.Lookup("log-file"))

	root.AddCommand(
		newServeCmd(a),
		newMCPCmd(a),
		newGetCmd(a),
		newSetCmd(a),
		newDeleteCmd(a),
		newKeysCmd(a),
		newPurgeCmd(a),
	)
	return root
}

// bindFlag lets a flag override key. Unset flags leave the viper default in
// place.
func bindFlag(v *viper.Viper, key string, f *pflag.Flag) {
	if err := v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}
