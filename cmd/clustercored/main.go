package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sbdlabs/clustercore/pkg/cluster"
	"github.com/sbdlabs/clustercore/pkg/log"
	"github.com/sbdlabs/clustercore/pkg/metrics"
	"github.com/sbdlabs/clustercore/pkg/storage"
	"github.com/sbdlabs/clustercore/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "clustercored",
	Short: "clustercored - cluster coordination and data-replication node",
	Long: `clustercored runs one node of a clustercore cluster: node
registry, quorum and health monitoring, priority-based leader election,
change-stream replication, request routing with load balancing and
circuit breaking, and the export/import migration pipeline.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"clustercored version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(startCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start this node and join (or form) the cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID, _ := cmd.Flags().GetString("node-id")
		role, _ := cmd.Flags().GetString("role")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		advertiseAddr, _ := cmd.Flags().GetString("advertise-addr")
		advertisePort, _ := cmd.Flags().GetInt("advertise-port")
		clusterAddr, _ := cmd.Flags().GetString("cluster-addr")
		migrationAddr, _ := cmd.Flags().GetString("migration-addr")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		clusterToken, _ := cmd.Flags().GetString("cluster-token")
		algorithm, _ := cmd.Flags().GetString("lb-algorithm")
		mtls, _ := cmd.Flags().GetBool("mtls")

		if clusterToken == "" {
			return fmt.Errorf("--cluster-token is required")
		}

		store, err := storage.NewBoltStore(dataDir)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}

		cfg := cluster.DefaultConfig()
		cfg.NodeID = nodeID
		cfg.NodeRole = types.NodeRole(role)
		cfg.DataDir = dataDir
		cfg.AdvertiseAddress = advertiseAddr
		cfg.AdvertisePort = advertisePort
		cfg.ClusterAuthToken = clusterToken
		cfg.LoadBalancingAlgorithm = algorithm
		cfg.MTLSEnabled = mtls

		rt, err := cluster.NewRuntime(cfg, store)
		if err != nil {
			return fmt.Errorf("building runtime: %w", err)
		}
		if err := rt.Start(); err != nil {
			return fmt.Errorf("starting runtime: %w", err)
		}

		clusterSrv := &http.Server{Addr: clusterAddr, Handler: cluster.NewClusterHandler(rt)}
		if tlsCfg, err := rt.ClusterTLSConfig(); err != nil {
			return fmt.Errorf("building cluster mTLS config: %w", err)
		} else if tlsCfg != nil {
			clusterSrv.TLSConfig = tlsCfg
		}
		migrationSrv := &http.Server{Addr: migrationAddr, Handler: cluster.NewMigrationHandler(rt)}
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsSrv := &http.Server{Addr: metricsAddr, Handler: metricsMux}

		errCh := make(chan error, 3)
		go func() {
			log.WithComponent("clustercored").Info().Str("addr", clusterAddr).Bool("mtls", clusterSrv.TLSConfig != nil).Msg("cluster-internal HTTP surface listening")
			if clusterSrv.TLSConfig != nil {
				errCh <- clusterSrv.ListenAndServeTLS("", "")
			} else {
				errCh <- clusterSrv.ListenAndServe()
			}
		}()
		go func() {
			log.WithComponent("clustercored").Info().Str("addr", migrationAddr).Msg("migration HTTP surface listening")
			errCh <- migrationSrv.ListenAndServe()
		}()
		go func() {
			log.WithComponent("clustercored").Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")
			errCh <- metricsSrv.ListenAndServe()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				log.WithComponent("clustercored").Error().Err(err).Msg("server failed")
			}
		case sig := <-sigCh:
			log.WithComponent("clustercored").Info().Str("signal", sig.String()).Msg("shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = clusterSrv.Shutdown(shutdownCtx)
		_ = migrationSrv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)

		return rt.Stop()
	},
}

func init() {
	startCmd.Flags().String("node-id", "", "Node id (auto-generated if empty)")
	startCmd.Flags().String("role", "standalone", "Node role: standalone, master, replica")
	startCmd.Flags().String("data-dir", "./clustercore-data", "Data directory for the embedded store")
	startCmd.Flags().String("advertise-addr", "127.0.0.1", "Hostname this node advertises to peers")
	startCmd.Flags().Int("advertise-port", 7700, "Port this node advertises to peers")
	startCmd.Flags().String("cluster-addr", "127.0.0.1:7701", "Bind address for the cluster-internal HTTP surface")
	startCmd.Flags().String("migration-addr", "127.0.0.1:7702", "Bind address for the migration HTTP surface")
	startCmd.Flags().String("metrics-addr", "127.0.0.1:7703", "Bind address for the Prometheus metrics endpoint")
	startCmd.Flags().String("cluster-token", "", "Shared cluster auth token (required)")
	startCmd.Flags().String("lb-algorithm", "round-robin", "Load balancing algorithm: round-robin, least-connections, weighted-round-robin, ip-hash, least-response-time")
	startCmd.Flags().Bool("mtls", false, "Require mutual TLS (cluster CA-issued certs) on the cluster-internal HTTP surface, in addition to X-Cluster-Token")
}
