package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xraph/sigil/tier"
)

func newTiersCmd() *cobra.Command {
	var (
		file   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "tiers",
		Short: "Print the effective tier table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadPolicy(file)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(p.Configs())
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(p)
			case "table":
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TIER\tMINIMUM\tDEPTH\tPRIORITY\tDESCRIPTION")
				for _, c := range p.Configs() {
					fmt.Fprintf(tw, "%s\t%g\t%d\t%t\t%s\n",
						c.Tier, c.MinimumAmount, c.DepthMultiplier, p.IsPriority(c.Tier), c.Description)
				}
				return tw.Flush()
			default:
				return fmt.Errorf("unknown format %q (table, json, yaml)", format)
			}
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "YAML tier table (defaults to the built-in table)")
	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format: table, json or yaml")
	return cmd
}

func loadPolicy(file string) (*tier.Policy, error) {
	if file == "" {
		return tier.DefaultPolicy(), nil
	}
	return tier.LoadPolicyFile(file)
}
