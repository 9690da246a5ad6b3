package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vistaml/vista/internal/config"
	"github.com/vistaml/vista/internal/datasets"
	"github.com/vistaml/vista/internal/logging"
	"github.com/vistaml/vista/internal/process"
	"github.com/vistaml/vista/internal/registry"
	"github.com/vistaml/vista/internal/session"
)

func main() {
	root := &cobra.Command{
		Use:           "vista",
		Short:         "Launch and manage Vista App sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newLaunchCmd())
	root.AddCommand(newConnectCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLaunchCmd() *cobra.Command {
	var (
		dataset string
		port    int
		remote  bool
		desktop bool
		auto    bool
		height  int
	)

	cmd := &cobra.Command{
		Use:   "launch [dataset]",
		Short: "Launch the App and keep the session alive until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				dataset = args[0]
			}

			cfg := config.LoadOrDefault()
			logger, err := logging.New(logging.Config{
				Level:       cfg.Logging.Level,
				Development: cfg.Logging.Development,
				OutputPaths: []string{"stderr"},
			})
			if err != nil {
				return err
			}
			defer logger.Sync()

			catalog := datasets.NewMemoryCatalog()
			if dataset != "" {
				catalog.Add(dataset)
			}

			procs := registry.New(&process.ExecServerLauncher{
				Command:        cfg.Server.Command,
				StartupTimeout: cfg.Server.StartupTimeout,
				Logger:         logger,
			}, logger)

			manager := session.NewManager(cfg, logger, procs, session.Deps{
				Catalog: catalog,
			})
			defer manager.Teardown()

			opts := session.Options{
				Port:   port,
				Remote: remote,
				Height: height,
			}
			if dataset != "" {
				opts.Dataset = datasets.Named{DatasetName: dataset}
			}
			if cmd.Flags().Changed("desktop") {
				opts.Desktop = &desktop
			}
			if cmd.Flags().Changed("auto") {
				opts.Auto = &auto
			}

			sess, err := manager.Launch(opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := sess.Wait(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("Wait ended with error", zap.Error(err))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "App server port")
	cmd.Flags().BoolVarP(&remote, "remote", "r", false, "launch a remote session")
	cmd.Flags().BoolVar(&desktop, "desktop", false, "launch the desktop App")
	cmd.Flags().BoolVar(&auto, "auto", true, "auto-show the App after state updates")
	cmd.Flags().IntVar(&height, "height", 0, "notebook cell height, in pixels")

	return cmd
}

func newConnectCmd() *cobra.Command {
	var (
		destination string
		port        int
		localPort   int
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Print instructions for connecting to a remote session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if destination == "" {
				return fmt.Errorf("--destination is required")
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"To connect to the remote session, run:\n\n"+
					"    ssh -N -L %d:127.0.0.1:%d %s\n\n"+
					"and point your browser to http://localhost:%d\n",
				localPort, port, destination, localPort)
			return nil
		},
	}

	cmd.Flags().StringVarP(&destination, "destination", "d", "", "[<username>@]<hostname> of the remote machine")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "remote App server port")
	cmd.Flags().IntVarP(&localPort, "local-port", "l", config.DefaultPort, "local port to forward")

	return cmd
}
