package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/paneflow"
	"pkt.systems/paneflow/internal/appconfig"
	"pkt.systems/paneflow/ptyhost"
	"pkt.systems/paneflow/schema"
	"pkt.systems/paneflow/sshserver"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the paneflow host daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}

			server, err := paneflow.New(paneflow.ServerConfig{
				Engine: cfg.Engine.Schema(),
				Pane:   toPaneOptions(cfg.PTY),
				SSH: sshserver.Config{
					Addr:        cfg.SSH.Addr,
					HostKeyPath: cfg.SSH.HostKeyPath,
				},
				Auth: toAuthConfig(cfg.Auth),
			}, paneflow.ServerDeps{
				Logger: logger,
				Sink: logSink{
					log:         logger,
					skipQueries: cfg.Logging.DisableQueryEvents,
				},
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()

			logger.Info("ssh server listening", "addr", cfg.SSH.Addr)
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

func toPaneOptions(cfg appconfig.PTYConfig) ptyhost.Options {
	return ptyhost.Options{
		Command: cfg.Shell,
		Term:    cfg.Term,
		Cols:    cfg.Cols,
		Rows:    cfg.Rows,
		Env:     cfg.Env,
	}
}

func toAuthConfig(cfg appconfig.AuthConfig) paneflow.AuthConfig {
	seeds := make([]paneflow.SeedUser, 0, len(cfg.SeedUsers))
	for _, seed := range cfg.SeedUsers {
		seeds = append(seeds, paneflow.SeedUser{
			Username:     seed.Username,
			PasswordHash: seed.PasswordHash,
			TOTPSecret:   seed.TOTPSecret,
		})
	}
	return paneflow.AuthConfig{
		UserFile:  cfg.UserFile,
		SeedUsers: seeds,
	}
}

// logSink surfaces engine activity in the daemon log.
type logSink struct {
	log         pslog.Logger
	skipQueries bool
}

func (s logSink) OnDelivery(event schema.DeliveryEvent) {
	s.log.Debug("engine delivery",
		"session", event.SessionID,
		"bytes", event.Bytes,
		"segments", event.Segments,
		"forced", event.Forced)
}

func (s logSink) OnQuery(event schema.QueryEvent) {
	if s.skipQueries {
		return
	}
	s.log.Debug("engine query answered",
		"session", event.SessionID,
		"kind", event.Kind.String())
}

func (s logSink) OnSessionEvent(event schema.SessionEvent) {
	s.log.Info("engine session event",
		"session", event.SessionID,
		"type", string(event.Type))
}
