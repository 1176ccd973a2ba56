package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/leaf-api/internal/catalog"
	"github.com/Brownie44l1/leaf-api/internal/model"
)

func newCatalogCmd() *cobra.Command {
	var metadataPath string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Validate model metadata and print its class catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if metadataPath == "" {
				cfg, _, err := loadConfig()
				if err != nil {
					return err
				}
				metadataPath = cfg.Model.MetadataFile()
			}

			meta, err := model.LoadMetadata(metadataPath)
			if err != nil {
				return err
			}
			cat, err := meta.Catalog()
			if err != nil {
				return err
			}
			return printCatalog(cmd, cat)
		},
	}
	cmd.Flags().StringVar(&metadataPath, "metadata", "", "metadata file (default from config)")
	return cmd
}

func printCatalog(cmd *cobra.Command, cat *catalog.Catalog) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tLABEL\tNAME")
	for i := 0; i < cat.Len(); i++ {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i, cat.Label(i), cat.Name(i))
	}
	return w.Flush()
}
