package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GBSLIT/FairForm/internal/app"
	"github.com/GBSLIT/FairForm/internal/config"
	"github.com/GBSLIT/FairForm/internal/contacts"
	"github.com/GBSLIT/FairForm/internal/naming"
	"github.com/GBSLIT/FairForm/internal/record"
)

var configFile string

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fairform: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fairform",
		Short: "FairForm exhibitor registration service",
		Long: `FairForm accepts exhibitor registrations, stores the attachments in a OneDrive or
SharePoint folder and appends a row to an Excel table. This CLI runs the service and
checks the Graph setup it depends on.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (overrides FAIRFORM_CONFIG)")
	cmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newColumnsCmd(),
		newTokenCmd(),
		newNameCmd(),
		newContactCmd(),
	)
	return cmd
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		if err := os.Setenv("FAIRFORM_CONFIG", configFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withApp(ctx context.Context, fn func(*app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the registration API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				fmt.Fprintf(cmd.ErrOrStderr(), "config: %s\n", a.Config.Summary())
				return a.Serve(cmd.Context())
			})
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume queued formula patches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				return a.RunWorker(cmd.Context())
			})
		},
	}
}

func newColumnsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "columns",
		Short: "List the live table header and the field each column receives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				token, err := a.Tokens.Token(cmd.Context())
				if err != nil {
					return err
				}
				cols, err := a.Graph.ListColumns(cmd.Context(), token)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for i, c := range cols {
					field := "(left blank)"
					if f, ok := record.FieldForHeader(c); ok {
						field = f.String()
					}
					fmt.Fprintf(out, "%2d  %-30s %s\n", i+1, c, field)
				}
				return nil
			})
		},
	}
}

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Run the client-credentials exchange and print the masked token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				start := time.Now()
				token, err := a.Tokens.Token(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "token %s (%d bytes) in %s\n",
					config.Mask(token), len(token), time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
}

func newNameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "name [label...]",
		Short: "Preview a submission identifier and folder name",
		RunE: func(cmd *cobra.Command, args []string) error {
			id := naming.NewIdentifier(time.Now())
			fmt.Fprintln(cmd.OutOrStdout(), id)
			fmt.Fprintln(cmd.OutOrStdout(), naming.FolderName(id, strings.Join(args, " ")))
			return nil
		},
	}
}

func newContactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contact <name>",
		Short: "Resolve a Global Base contact name to an email address",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := contacts.Lookup(strings.Join(args, " "))
			if email == "" {
				return fmt.Errorf("no contact matches %q", strings.Join(args, " "))
			}
			fmt.Fprintln(cmd.OutOrStdout(), email)
			return nil
		},
	}
}
