package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/Iwinswap/defi-logic-composer-go/adapter"
	"github.com/Iwinswap/defi-logic-composer-go/composer"
	"github.com/Iwinswap/defi-logic-composer-go/logic"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/numeric"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
)

type composeFlags struct {
	chainID     uint64
	protocol    string
	action      string
	account     string
	token       string
	amount      string
	collateral  string
	debt        string
	leverageBps uint64
	slippageBps uint64
	units       bool
	output      string
}

func newComposeCmd(opts *options) *cobra.Command {
	f := &composeFlags{}
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Compose the logic sequence for one lending intent",
		Example: `  composer compose --chain 42161 --protocol compoundv3 --action borrow --account 0xabc... --token USDC --amount 1000000000
  composer compose --chain 42161 --protocol compoundv3 --action open-leveraged-position \
    --account 0xabc... --collateral WETH --debt USDC --leverage-bps 30000 --slippage-bps 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			a, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			defer func() { err = errors.Join(err, opts.writeMetrics(cmd.ErrOrStderr())) }()

			req, err := f.request(a, cmd.Flags().Changed("slippage-bps"))
			if err != nil {
				return err
			}
			res, err := a.composer.Compose(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), f.output, res)
		},
	}
	flags := cmd.Flags()
	flags.Uint64Var(&f.chainID, "chain", 0, "chain id")
	flags.StringVar(&f.protocol, "protocol", "", "lending protocol id (compoundv3, aave-v2, aave-v3, radiant-v2, sonne)")
	flags.StringVar(&f.action, "action", "", "supply, withdraw, borrow, repay, open-leveraged-position or close-leveraged-position")
	flags.StringVar(&f.account, "account", "", "account address")
	flags.StringVar(&f.token, "token", "", "token symbol or address for simple actions")
	flags.StringVar(&f.amount, "amount", "", "amount in base units; deposit when opening, debt to repay when closing")
	flags.StringVar(&f.collateral, "collateral", "", "collateral token for leveraged actions")
	flags.StringVar(&f.debt, "debt", "", "debt token for leveraged actions")
	flags.Uint64Var(&f.leverageBps, "leverage-bps", 0, "target leverage in bps (20000 = 2x)")
	flags.BoolVar(&f.units, "units", false, "read --amount in whole tokens (1.5) instead of base units")
	flags.Uint64Var(&f.slippageBps, "slippage-bps", 0, "swap slippage tolerance in bps; defaults to the configured value")
	flags.StringVarP(&f.output, "output", "o", "json", "output format: json or table")
	_ = cmd.MarkFlagRequired("chain")
	_ = cmd.MarkFlagRequired("protocol")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func (f *composeFlags) request(a *app, slippageSet bool) (composer.Request, error) {
	req := composer.Request{
		ChainID:           f.chainID,
		ProtocolID:        adapter.ProtocolID(f.protocol),
		Action:            composer.Action(f.action),
		TargetLeverageBps: f.leverageBps,
	}
	if f.account != "" {
		if !common.IsHexAddress(f.account) {
			return composer.Request{}, fmt.Errorf("invalid account %q", f.account)
		}
		req.Account = common.HexToAddress(f.account)
	}
	var err error
	if f.token != "" {
		if req.Token, err = a.lookup(f.chainID, f.token); err != nil {
			return composer.Request{}, err
		}
	}
	if f.collateral != "" {
		if req.CollateralToken, err = a.lookup(f.chainID, f.collateral); err != nil {
			return composer.Request{}, err
		}
	}
	if f.debt != "" {
		if req.DebtToken, err = a.lookup(f.chainID, f.debt); err != nil {
			return composer.Request{}, err
		}
	}
	if f.amount != "" {
		if req.Amount, err = f.parseAmount(req); err != nil {
			return composer.Request{}, fmt.Errorf("amount: %w", err)
		}
	}
	if slippageSet {
		req.SlippageBps = composer.Bps(f.slippageBps)
	}
	return req, nil
}

// parseAmount reads --amount in base units, or in whole tokens of the token
// the amount is denominated in when --units is set.
func (f *composeFlags) parseAmount(req composer.Request) (*uint256.Int, error) {
	if !f.units {
		return numeric.ParseAmount(f.amount)
	}
	denom := req.Token
	switch req.Action {
	case composer.ActionOpenLeveragedPosition:
		denom = req.CollateralToken
	case composer.ActionCloseLeveragedPosition:
		denom = req.DebtToken
	}
	if denom.Symbol == "" && denom.Decimals == 0 {
		return nil, errors.New("--units needs the token the amount is denominated in")
	}
	return numeric.ParseUnits(f.amount, denom.Decimals)
}

func printResult(w io.Writer, format string, res *composer.Result) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STEP\tRID\tCONSUMES\tPRODUCES\tLINKED")
		for i, d := range res.Logics {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\n", i, d.RID, side(d.Fields.Consumes()), side(d.Fields.Produces()), d.DependsOnPrevious)
		}
		if res.Swapper != "" {
			fmt.Fprintf(tw, "\nswapper\t%s\n", res.Swapper)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func side(ta logic.TokenAmount, ok bool) string {
	if !ok {
		return "-"
	}
	return ta.String()
}
