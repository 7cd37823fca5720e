package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/sigil/internal/config"
	"github.com/xraph/sigil/tier"
	"github.com/xraph/sigil/token"
)

type deriveResult struct {
	TokenID string    `json:"token_id"`
	Content string    `json:"content"`
	Tier    tier.Tier `json:"tier"`
	Depth   int       `json:"depth"`
}

// newDeriveCmd recomputes a token offline from its seed. Operators use it
// to verify a disputed issuance. Lengths and the tier table default to the
// same SIGIL_* environment the server reads; flags override them.
func newDeriveCmd() *cobra.Command {
	var (
		seed         string
		payer        string
		tierName     string
		file         string
		idLength     int
		digestLength int
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive a token id and content from a seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("tiers-file") {
				env.TiersFile = file
			}
			if flags.Changed("id-length") {
				env.IDLength = idLength
			}
			if flags.Changed("digest-length") {
				env.DigestLength = digestLength
			}

			p, err := env.Policy()
			if err != nil {
				return err
			}
			cfg, err := p.ConfigFor(tier.ParseTier(tierName))
			if err != nil {
				return err
			}

			d := env.Deriver()
			if err := d.Validate(); err != nil {
				return err
			}

			res := deriveResult{
				TokenID: d.DeriveID(seed, payer),
				Content: d.DeriveContent(seed, cfg.DepthMultiplier, payer),
				Tier:    cfg.Tier,
				Depth:   cfg.DepthMultiplier,
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(res)
			}
			fmt.Fprintf(out, "token_id: %s\ncontent:  %s\ntier:     %s (depth %d)\n",
				res.TokenID, res.Content, res.Tier, res.Depth)
			return nil
		},
	}

	cmd.Flags().StringVar(&seed, "seed", "", "Issuance seed")
	cmd.Flags().StringVar(&payer, "payer", "", "Payer identifier")
	cmd.Flags().StringVar(&tierName, "tier", string(tier.Base), "Tier name")
	cmd.Flags().StringVar(&file, "tiers-file", "", "YAML tier table (env SIGIL_TIERS_FILE)")
	cmd.Flags().IntVar(&idLength, "id-length", token.DefaultDeriver().IDLength, "Token id length in hex characters (env SIGIL_ID_LENGTH)")
	cmd.Flags().IntVar(&digestLength, "digest-length", token.DefaultDeriver().DigestLength, "Content digest length in hex characters (env SIGIL_DIGEST_LENGTH)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	_ = cmd.MarkFlagRequired("seed")
	_ = cmd.MarkFlagRequired("payer")
	return cmd
}
