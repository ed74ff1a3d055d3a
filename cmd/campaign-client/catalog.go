// cmd/campaign-client/catalog.go
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"campaign-client/internal/models"
	"campaign-client/pkg/registry"
)

var catalogPath string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Maintain a resolution catalog file",
	Long: `Maintain a resolution catalog file.

Examples:
  campaign-client catalog add --file configs/resolutions.json --width 1080 --height 1920 --id 3
  campaign-client catalog remove --file configs/resolutions.json --id 0
  campaign-client catalog validate --file configs/resolutions.json`,
}

var (
	addWidth  int
	addHeight int
	addID     int
)

var catalogAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a resolution, creating the catalog from the defaults if missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadOrDefault(catalogPath)
		if err != nil {
			return err
		}
		if err := cat.Add(models.ImageResolution{Width: addWidth, Height: addHeight, ID: addID}); err != nil {
			return err
		}
		if err := registry.SaveCatalog(cat, catalogPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added resolution %d: %dx%d\n", addID, addWidth, addHeight)
		return nil
	},
}

var removeID int

var catalogRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a resolution by id",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := registry.LoadCatalog(catalogPath)
		if err != nil {
			return fmt.Errorf("failed to load catalog: %w", err)
		}
		if err := cat.Remove(removeID); err != nil {
			return err
		}
		if err := registry.SaveCatalog(cat, catalogPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed resolution %d\n", removeID)
		return nil
	},
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a catalog file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := registry.LoadCatalog(catalogPath)
		if err != nil {
			return fmt.Errorf("catalog validation failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Catalog validation passed. Found %d resolutions.\n", len(cat.Resolutions))
		return nil
	},
}

func loadOrDefault(path string) (*registry.ResolutionCatalog, error) {
	cat, err := registry.LoadCatalog(path)
	if errors.Is(err, os.ErrNotExist) {
		return registry.DefaultCatalog(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return cat, nil
}

func init() {
	catalogCmd.PersistentFlags().StringVarP(&catalogPath, "file", "f", "configs/resolutions.json", "catalog file")

	catalogAddCmd.Flags().IntVar(&addWidth, "width", 0, "width in pixels")
	catalogAddCmd.Flags().IntVar(&addHeight, "height", 0, "height in pixels")
	catalogAddCmd.Flags().IntVar(&addID, "id", 0, "resolution id")
	catalogAddCmd.MarkFlagRequired("width")
	catalogAddCmd.MarkFlagRequired("height")
	catalogAddCmd.MarkFlagRequired("id")

	catalogRemoveCmd.Flags().IntVar(&removeID, "id", 0, "resolution id")
	catalogRemoveCmd.MarkFlagRequired("id")

	catalogCmd.AddCommand(catalogAddCmd, catalogRemoveCmd, catalogValidateCmd)
	rootCmd.AddCommand(catalogCmd)
}
