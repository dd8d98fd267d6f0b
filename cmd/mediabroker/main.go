package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-broker/internal/app"
	"media-broker/internal/config"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the config path and loads it with the environment
// overlay applied.
func loadConfig() (*config.Config, string, error) {
	path, allowMissing, err := app.ResolveConfigPath(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("getting config path: %w", err)
	}
	cfg, err := config.Load(path, allowMissing)
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, path, nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
func newApp(migrate bool) (*app.App, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg, app.Options{Migrate: migrate})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "mediabroker",
	Short:        "Upload broker for drone media",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP front door",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Server.Listen = listen
		}
		if token, _ := cmd.Flags().GetString("token"); token != "" {
			cfg.Server.AuthToken = token
		}

		a, err := app.New(cfg, app.Options{Migrate: cfg.Database.AutoMigrate})
		if err != nil {
			return fmt.Errorf("initializing app: %w", err)
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Serve(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Println("Database schema is up to date.")
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _, err := app.ResolveConfigPath(configPath)
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
		if err := config.Init(path, config.Default()); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		fmt.Printf("Configuration initialized at %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Printf("# Configuration from %s (environment applied)\n\n", path)
		m := &config.Manager{}
		return m.Write(os.Stdout, cfg.Masked())
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect WORKSPACE FINGERPRINT",
	Short: "Show the upload state of a fingerprint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Inspect(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		fmt.Printf("State:   %s\n", report.State)
		if rec := report.Record; rec != nil {
			fmt.Printf("Key:     %s\n", rec.ObjectKey)
			fmt.Printf("Tiny:    %s\n", rec.TinyFingerprint)
			fmt.Printf("Name:    %s\n", rec.FileName)
			fmt.Printf("Path:    %s\n", rec.FilePath)
			fmt.Printf("Created: %s\n", rec.CreatedAt.Format(time.RFC3339))
			fmt.Printf("Updated: %s\n", rec.UpdatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var recordsCmd = &cobra.Command{
	Use:   "records WORKSPACE",
	Short: "List the most recently updated records of a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.Records(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("No records found.")
			return nil
		}

		for _, r := range recs {
			key := r.ObjectKey
			if key == "" {
				key = "(pending)"
			}
			fmt.Printf("%s  %s  %s  %s\n", r.UpdatedAt.Format("2006-01-02 15:04:05"), r.Fingerprint, r.TinyFingerprint, key)
		}
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Simulate a device upload against a running broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		workspace, _ := cmd.Flags().GetString("workspace")
		token, _ := cmd.Flags().GetString("token")
		client, _ := cmd.Flags().GetString("client")
		payload, _ := cmd.Flags().GetString("payload")

		report, err := app.Probe(cmd.Context(), app.ProbeOptions{
			Server:    server,
			Token:     token,
			Workspace: workspace,
			Payload:   []byte(payload),
			Client:    client,
		})
		if report != nil {
			fmt.Printf("Object key: %s\n", report.ObjectKey)
			for _, step := range report.Steps {
				fmt.Printf("%-26s %-8s %s\n", step.Name, step.Status, step.Detail)
			}
		}
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $"+app.ConfigEnvVar+" or ~/.config/media-broker.toml)")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	// root commands
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "Override server.listen")
	serveCmd.Flags().String("token", "", "Override server.auth_token")
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.Flags().IntP("limit", "n", 50, "Maximum number of records to show")
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().String("server", "http://127.0.0.1:8090", "Broker base URL")
	probeCmd.Flags().String("workspace", "", "Workspace ID")
	probeCmd.Flags().String("token", "demo-token", "x-auth-token for the broker")
	probeCmd.Flags().String("client", app.ProbeClientSDK, "Upload client: sdk or builtin")
	probeCmd.Flags().String("payload", "hello-from-media-broker-probe", "Payload to upload")
	probeCmd.MarkFlagRequired("workspace")
}
