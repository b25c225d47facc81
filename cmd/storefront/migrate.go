package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"storefront/internal/db"
	"storefront/internal/objectstore"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := objectstore.EnsureDir(filepath.Dir(cfg.Database.Path)); err != nil {
				return err
			}
			database, err := db.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer database.Close()

			n, err := db.Migrate(database, db.MigrationsFS)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s) to %s\n", n, cfg.Database.Path)
			return nil
		},
	}
}
