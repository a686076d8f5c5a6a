// Package catalog implements the catalog command: validation and inspection
// of published catalog snapshot files.
package catalog

import (
	"fmt"

	"github.com/spf13/cobra"

	catalogindex "github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/catalog"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/conf"
)

// Command creates the catalog command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Catalog snapshot operations",
	}
	cmd.AddCommand(validateCommand(settings))
	return cmd
}

func validateCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [snapshot.json]",
		Short: "Validate a catalog snapshot file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := settings.Catalog.Path
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no snapshot path given and none configured")
			}

			entries, err := catalogindex.LoadSnapshotFile(path)
			if err != nil {
				return err
			}
			snapshot, err := catalogindex.BuildSnapshot(entries, settings.Catalog.Dimension)
			if err != nil {
				return err
			}

			fmt.Printf("snapshot %s is valid: %d products, dimension %d\n",
				path, snapshot.Len(), snapshot.Dimension())
			return nil
		},
	}
}
