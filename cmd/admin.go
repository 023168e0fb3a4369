package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"tasmota_mqtt/internal/config"
	"tasmota_mqtt/internal/logger"
	"tasmota_mqtt/internal/models"
	"tasmota_mqtt/internal/registry"
	"tasmota_mqtt/internal/repository"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// relayFile is the YAML layout of relays export/import.
type relayFile struct {
	Relays []models.Relay `yaml:"relays"`
}

var relaysCmd = &cobra.Command{
	Use:   "relays",
	Short: "Export or import the relay configuration",
}

var relaysExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the configured relays as YAML to file or stdout",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepos(func(ctx context.Context, repos *repository.Repository) error {
			s, err := repos.SettingsRepo.Load(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return writeRelays(out, s.Relays)
		})
	},
}

var relaysImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Add or replace relays from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		relays, err := readRelays(f)
		if err != nil {
			return err
		}
		return withRepos(func(ctx context.Context, repos *repository.Repository) error {
			n, err := importRelays(ctx, repos.SettingsRepo, relays)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d relays\n", n)
			return nil
		})
	},
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Maintain the stored settings document",
}

var settingsMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade the stored settings to the current version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRepos(func(ctx context.Context, repos *repository.Repository) error {
			s, err := repos.SettingsRepo.Load(ctx)
			if err != nil {
				return err
			}
			if err := repos.SettingsRepo.Save(ctx, s); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "settings at version %d\n", s.Version)
			return nil
		})
	},
}

var revoke bool

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage API users",
}

var usersGrantCmd = &cobra.Command{
	Use:   "grant <username>",
	Short: "Allow a user to switch relays (use --revoke to take it back)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepos(func(_ context.Context, repos *repository.Repository) error {
			if err := repos.Auth.SetCanControl(args[0], !revoke); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s can_control=%t\n", args[0], !revoke)
			return nil
		})
	},
}

func init() {
	relaysCmd.AddCommand(relaysExportCmd, relaysImportCmd)
	settingsCmd.AddCommand(settingsMigrateCmd)
	usersGrantCmd.Flags().BoolVar(&revoke, "revoke", false, "remove the control permission")
	usersCmd.AddCommand(usersGrantCmd)
}

// withRepos opens the configured database for a one-shot admin command.
func withRepos(fn func(ctx context.Context, repos *repository.Repository) error) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	log := logger.Get(cfg.Log.Level)
	conn, err := openDB(cfg, log)
	if err != nil {
		return fmt.Errorf("init sqlite: %w", err)
	}
	defer conn.Close()
	return fn(context.Background(), repository.NewRepository(conn))
}

func writeRelays(w io.Writer, relays []models.Relay) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(relayFile{Relays: relays}); err != nil {
		return fmt.Errorf("encode relays: %w", err)
	}
	return enc.Close()
}

func readRelays(r io.Reader) ([]models.Relay, error) {
	var f relayFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode relays: %w", err)
	}
	for i, relay := range f.Relays {
		if relay.Topic == "" {
			return nil, fmt.Errorf("relay %d: topic is empty", i+1)
		}
	}
	return f.Relays, nil
}

// importRelays upserts relays through a registry so the stored state of known relays
// is kept.
func importRelays(ctx context.Context, store registry.Store, relays []models.Relay) (int, error) {
	reg, err := registry.Load(ctx, store)
	if err != nil {
		return 0, err
	}
	for _, r := range relays {
		if _, _, err := reg.Upsert(ctx, r, nil); err != nil {
			return 0, err
		}
	}
	return len(relays), nil
}
