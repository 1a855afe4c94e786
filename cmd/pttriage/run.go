package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/processtriage/pttriage/internal/config"
	"github.com/processtriage/pttriage/internal/gossip"
	"github.com/processtriage/pttriage/internal/observability"
	"github.com/processtriage/pttriage/internal/session"
)

// newRunCmd builds the long-running daemon mode: a ticker-driven
// snapshot/plan/apply/verify loop, a Prometheus metrics + health server,
// and SIGHUP config hot-reload, following the same startup/shutdown
// sequencing octoreflex's agent used (open storage, start the metrics
// server, register the reload handler, then block on SIGINT/SIGTERM).
func newRunCmd(flags *globalFlags) *cobra.Command {
	var host, label string
	var interval time.Duration
	var dryRun, shadow bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the triage agent as a long-lived daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			metrics := observability.NewMetrics()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			watcher := config.NewWatcher(flags.configPath, a.cfg, a.log)
			go watcher.Watch()
			defer watcher.Stop()

			go func() {
				if err := metrics.ServeMetrics(ctx, a.cfg.Observability.MetricsAddr); err != nil {
					a.log.Error("metrics server error", zap.Error(err))
				}
			}()
			a.log.Info("metrics server started", zap.String("addr", a.cfg.Observability.MetricsAddr))

			if a.cfg.Gossip.Enabled {
				if err := startGossip(ctx, a); err != nil {
					a.log.Error("gossip transport failed to start", zap.Error(err))
				}
			} else {
				a.log.Info("gossip disabled (fleet coordination via SSH only)")
			}

			sessionID, err := a.sess.Create(session.CreateOptions{
				Host:  runHost(host),
				Label: label,
				AgentMetadata: &session.AgentMetadata{
					AgentName:    "pttriage",
					AgentVersion: config.Version,
				},
			})
			if err != nil {
				return err
			}
			a.log.Info("daemon session started", zap.String("session_id", sessionID))

			runInterval := interval
			if runInterval == 0 {
				runInterval = a.cfg.Agent.ScanInterval
			}
			if runInterval == 0 {
				runInterval = 5 * time.Second
			}

			go a.orch.Run(ctx, sessionID, runInterval, dryRun, shadow)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			a.log.Info("shutdown signal received", zap.String("signal", sig.String()))
			cancel()

			if _, err := a.sess.End(sessionID, "daemon shutdown: "+sig.String()); err != nil {
				a.log.Warn("failed to mark session ended", zap.Error(err))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "hostname recorded on the daemon's session (default: os.Hostname())")
	cmd.Flags().StringVar(&label, "label", "daemon", "label recorded on the daemon's session")
	cmd.Flags().DurationVar(&interval, "interval", 0, "scan interval (default: agent.scan_interval from config, or 5s)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute candidates but never apply them")
	cmd.Flags().BoolVar(&shadow, "shadow", false, "compute and record candidates as shadow observations only")
	return cmd
}

// startGossip brings up the gossip gRPC server and the peer-reachability
// poll loop that feeds Quorum's partition recalibration, wiring accepted
// observations directly into the orchestrator's own fleet correlator rather
// than a separate, disconnected accumulator.
func startGossip(ctx context.Context, a *app) error {
	trustedPeers, err := gossip.ParseTrustedPeers(a.cfg.Gossip.TrustedPeers)
	if err != nil {
		return err
	}

	srv := gossip.NewServer(
		a.cfg.NodeID,
		trustedPeers,
		a.cfg.Gossip.EnvelopeTTL,
		a.orch.Correlator(),
		a.log,
	)

	go func() {
		if err := gossip.ListenAndServe(
			ctx,
			a.cfg.Gossip.ListenAddr,
			a.cfg.Gossip.TLSCertFile,
			a.cfg.Gossip.TLSKeyFile,
			a.cfg.Gossip.TLSCAFile,
			srv,
			a.log,
		); err != nil {
			a.log.Error("gossip server error", zap.Error(err))
		}
	}()
	a.log.Info("gossip server started", zap.String("addr", a.cfg.Gossip.ListenAddr))

	quorum := gossip.NewQuorumWithConfig(gossip.QuorumConfig{
		MinHosts:   a.cfg.Fleet.CorrelationMinHosts,
		TotalPeers: len(a.cfg.Gossip.Peers),
	})
	go func() {
		ticker := time.NewTicker(a.cfg.Gossip.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reachable := gossip.PollPeers(ctx, a.cfg.Gossip.Peers,
					a.cfg.Gossip.TLSCertFile, a.cfg.Gossip.TLSKeyFile, a.cfg.Gossip.TLSCAFile,
					5*time.Second, a.log)
				quorum.UpdatePeerReachability(reachable)
				a.orch.SetCorrelationMinHosts(quorum.EffectiveMinHosts())
				if mode, _ := quorum.State(); mode == gossip.PartitionModeIsolated {
					a.log.Warn("gossip partition detected; correlation threshold recalibrated",
						zap.Int("reachable_peers", reachable),
						zap.Int("effective_min_hosts", quorum.EffectiveMinHosts()))
				}
			}
		}
	}()

	return nil
}

func runHost(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}
