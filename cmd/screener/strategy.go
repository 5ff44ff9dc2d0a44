package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/opensource-finance/screener/internal/api"
	"github.com/opensource-finance/screener/internal/domain"
	"github.com/opensource-finance/screener/internal/rules"
	"github.com/spf13/cobra"
)

var market string

var describeCmd = &cobra.Command{
	Use:   "describe <strategy.json>",
	Short: "Print a strategy as text and check it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := readStrategyFile(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, rules.Describe(s))
		if v := s.Validate(); !v.Valid {
			return fmt.Errorf("invalid strategy: %s", v.Error)
		}
		return nil
	},
}

var projectCmd = &cobra.Command{
	Use:   "project <strategy.json>",
	Short: "Print the remote query a strategy projects onto",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if market != domain.MarketAShare && market != domain.MarketHK {
			return fmt.Errorf("market must be %s or %s", domain.MarketAShare, domain.MarketHK)
		}
		s, err := readStrategyFile(args[0])
		if err != nil {
			return err
		}

		params := rules.Project(s, market)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(api.ProjectResponse{
			Params:      params,
			Query:       params.Query().Encode(),
			Projectable: rules.Projectable(s),
		})
	},
}

func init() {
	projectCmd.Flags().StringVar(&market, "market", domain.MarketAShare, "market to query")
}

func readStrategyFile(path string) (*domain.Strategy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return api.DecodeStrategy(raw)
}
