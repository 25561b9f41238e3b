package main

import (
	"encoding/json"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ystepanoff/nowhub"
	"github.com/ystepanoff/nowhub/store"
)

func newStore(cfg nowhub.Config) *store.FileStore {
	return store.NewFileStore(cfg.StorePath)
}

type nodeView struct {
	MAC      string `json:"mac"`
	Type     string `json:"node_type"`
	Name     string `json:"device_name"`
	Firmware string `json:"firmware_version"`
}

func newNodesCmd(cfg *nowhub.Config) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List the known nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, err := newStore(*cfg).LoadKnownNodes()
			if err != nil && len(nodes) == 0 {
				return err
			}
			if err != nil {
				cmd.PrintErrln("warning:", err)
			}

			views := make([]nodeView, 0, len(nodes))
			for _, n := range nodes {
				views = append(views, nodeView{
					MAC:      n.Address.String(),
					Type:     n.Type.String(),
					Name:     n.Name,
					Firmware: n.Firmware.String(),
				})
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			printfTo(tw, "MAC\tTYPE\tNAME\tFIRMWARE\n")
			for _, v := range views {
				printfTo(tw, "%s\t%s\t%s\t%s\n", v.MAC, v.Type, v.Name, v.Firmware)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
