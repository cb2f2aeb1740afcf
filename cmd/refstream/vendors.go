package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/refstream/refstream/internal/config"
	"github.com/refstream/refstream/internal/vendors"
)

func newVendorsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vendors",
		Short: "Inspect configured vendor profiles",
	}
	cmd.AddCommand(newVendorsListCommand())
	return cmd
}

func newVendorsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured vendor profiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			profiles, err := vendors.Load(cfg.VendorsFile)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Name", "Enabled", "Method", "Style", "Max Pages", "Website"})
			for _, p := range profiles {
				style, maxPages := "-", "-"
				if p.Pagination != nil {
					style = p.Pagination.Style
					if p.Pagination.MaxPages > 0 {
						maxPages = strconv.Itoa(p.Pagination.MaxPages)
					}
				}
				t.AppendRow(table.Row{p.Name, p.Enabled, p.DiscoveryMethod, style, maxPages, p.Website})
			}
			t.Render()
			return nil
		},
	}
}
