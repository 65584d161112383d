package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/Iwinswap/defi-logic-composer-go/adapter"
	"github.com/spf13/cobra"
)

func newTokensCmd(opts *options) *cobra.Command {
	var (
		chainID  uint64
		protocol string
	)
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "List the tokens a protocol accepts on a chain",
		Long: `tokens prints the token list of one registered protocol. Use the
"utility" protocol for the flash-loanable tokens.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.registry.Protocol(adapter.ProtocolID(protocol))
			if err != nil {
				return err
			}
			tokens, err := p.TokenList(cmd.Context(), chainID)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SYMBOL\tADDRESS\tDECIMALS")
			for _, t := range tokens {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", t.Symbol, t.Address.Hex(), t.Decimals)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Uint64Var(&chainID, "chain", 0, "chain id")
	cmd.Flags().StringVar(&protocol, "protocol", "", "protocol id")
	_ = cmd.MarkFlagRequired("chain")
	_ = cmd.MarkFlagRequired("protocol")
	return cmd
}
