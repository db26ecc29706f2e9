package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cl "tradewinds/internal/cli"
	"tradewinds/internal/config"
	"tradewinds/internal/engine"
	"tradewinds/internal/game"
	"tradewinds/internal/store"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "twadmin",
		Short:        "Tradewinds operator and player CLI",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newUseCmd(),
		newWhoamiCmd(),
		newForgetCmd(),
		newInitCmd(),
		newTickCmd(&apiBase),
		newMarketCmd(&apiBase),
		newQuoteCmd(&apiBase),
		newHistoryCmd(&apiBase),
		newEventsCmd(&apiBase),
		newLeaderboardCmd(&apiBase),
		newDashCmd(&apiBase),
		newClaimCmd(&apiBase),
		newTradeCmd(&apiBase),
		newTradesCmd(&apiBase),
		newBankCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

// resolvePlayer prefers TW_PLAYER_ID, then the saved identity file.
func resolvePlayer() (string, error) {
	if id := strings.TrimSpace(os.Getenv("TW_PLAYER_ID")); id != "" {
		return id, nil
	}
	ident, err := cl.LoadIdentity()
	if err != nil {
		return "", fmt.Errorf("no player selected: run `twadmin use <player-id>` first (%w)", err)
	}
	return ident.PlayerID, nil
}

func cmdContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func newUseCmd() *cobra.Command {
	var name string
	c := &cobra.Command{
		Use:   "use [player-id]",
		Short: "Select the player identity for later commands",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = strings.TrimSpace(args[0])
			}
			if id == "" {
				id = uuid.NewString()
				printInfo("Generated new player id: " + id)
			}
			if err := cl.SaveIdentity(cl.Identity{PlayerID: id, Name: name}); err != nil {
				return err
			}
			printSuccess("Identity saved.")
			return nil
		},
	}
	c.Flags().StringVar(&name, "name", "", "display name for the player")
	return c
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the selected player identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := cl.LoadIdentity()
			if err != nil {
				return err
			}
			fmt.Printf("player: %s\n", ident.PlayerID)
			if ident.Name != "" {
				fmt.Printf("name:   %s\n", ident.Name)
			}
			return nil
		},
	}
}

func newForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget",
		Short: "Clear the saved player identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearIdentity(); err != nil {
				return err
			}
			printSuccess("Identity cleared.")
			return nil
		},
	}
}

// newInitCmd seeds the genesis market directly in the configured store,
// for bootstrapping an environment before any server runs.
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the genesis market snapshot in the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWorkerFromEnv()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL != "" {
				return fmt.Errorf("init only supports the SQLite store; point DATABASE_URL at nothing or run the server")
			}
			st, err := store.NewSQLiteStore(cfg.SQLitePath)
			if err != nil {
				return err
			}
			defer st.Close()

			svc := game.NewService(st, nil, engine.DefaultConfig(), cfg.LaunchDate)
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			if err := svc.EnsureMarket(ctx, cfg.GenesisSeed); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Market ready in %s (seed %d).", cfg.SQLitePath, cfg.GenesisSeed))
			return nil
		},
	}
}

func newTickCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Drive one market tick through the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := strings.TrimSpace(os.Getenv("TW_TICK_SECRET"))
			if secret == "" {
				return fmt.Errorf("TW_TICK_SECRET is required")
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Tick(ctx, secret)
			if err != nil {
				return err
			}
			return renderTick(out)
		},
	}
}

func newMarketCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "market",
		Short: "Show the commodity board",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Market(ctx)
			if err != nil {
				return err
			}
			return renderMarket(out)
		},
	}
}

func newQuoteCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "quote <commodity>",
		Short: "Show the two-sided quote for one commodity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Quote(ctx, args[0])
			if err != nil {
				return err
			}
			return renderQuote(out, args[0])
		},
	}
}

func newHistoryCmd(apiBase *string) *cobra.Command {
	var points int
	c := &cobra.Command{
		Use:   "history <commodity>",
		Short: "Show recent price history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).History(ctx, args[0], points)
			if err != nil {
				return err
			}
			return renderHistory(out, args[0])
		},
	}
	c.Flags().IntVar(&points, "points", 20, "maximum points to fetch")
	return c
}

func newEventsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Show recent market events",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Events(ctx)
			if err != nil {
				return err
			}
			return renderEvents(out)
		},
	}
}

func newLeaderboardCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the net worth leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Leaderboard(ctx)
			if err != nil {
				return err
			}
			return renderLeaderboard(out)
		},
	}
}

func newDashCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dash",
		Short: "Show the selected player's dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := resolvePlayer()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Dashboard(ctx, playerID)
			if err != nil {
				return err
			}
			return renderDashboard(out)
		},
	}
}

func newClaimCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "claim",
		Short: "Claim the daily settlement",
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := resolvePlayer()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Claim(ctx, playerID)
			if err != nil {
				return err
			}
			return renderClaim(out)
		},
	}
}

func newTradeCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "trade <buy|sell|short|cover> <commodity> <quantity>",
		Short: "Execute a trade as the selected player",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := resolvePlayer()
			if err != nil {
				return err
			}
			qty, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil || qty <= 0 {
				return fmt.Errorf("quantity must be a positive whole number")
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Trade(ctx, playerID, args[1], strings.ToLower(args[0]), qty)
			if err != nil {
				return err
			}
			return renderTrade(out)
		},
	}
}

func newTradesCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "trades",
		Short: "Show the selected player's recent trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := resolvePlayer()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Trades(ctx, playerID)
			if err != nil {
				return err
			}
			return renderTrades(out)
		},
	}
}

func newBankCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "bank <deposit|withdraw|borrow|repay> <amount>",
		Short: "Move money between wallet, savings, and loans",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			op := strings.ToLower(strings.TrimSpace(args[0]))
			switch op {
			case "deposit", "withdraw", "borrow", "repay":
			default:
				return fmt.Errorf("unknown bank operation %q", op)
			}
			amount, err := strconv.ParseFloat(args[1], 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("amount must be a positive number")
			}
			playerID, err := resolvePlayer()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			if _, err := newClient(apiBase).BankMove(ctx, playerID, op, amount); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("%s of %s complete.", op, formatMoney(amount)))
			return nil
		},
	}
}
