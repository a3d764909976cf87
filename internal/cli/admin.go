package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/civicpoints/internal/database"
	"github.com/dukerupert/civicpoints/internal/model"
	"github.com/dukerupert/civicpoints/internal/points"
	"github.com/dukerupert/civicpoints/internal/store"
)

// NewMemberCommand creates the member command group. Admin commands work on
// the local ledger database directly.
func NewMemberCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage members in the local ledger database",
	}
	cmd.AddCommand(newMemberAddCommand(rootOpts))
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List members and their balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, rootOpts, func(ctx context.Context, db *sql.DB) error {
				members, err := store.NewMemberStore(db).List(ctx)
				if err != nil {
					return err
				}
				return newPrinter(rootOpts.Format, cmd.OutOrStdout()).print(members, func(w io.Writer) {
					for _, m := range members {
						fmt.Fprintf(w, "%4d  %-24s %-7s %6d pts\n", m.ID, m.Name, m.Role, m.Points)
					}
				})
			})
		},
	})
	return cmd
}

func newMemberAddCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		name    string
		role    string
		balance int
		pin     string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return NewExitError(ExitCommandError, "--name is required")
			}
			if role != model.RoleMember && role != model.RoleAdmin {
				return NewExitError(ExitCommandError, fmt.Sprintf("--role must be %q or %q", model.RoleMember, model.RoleAdmin))
			}
			if balance < 0 {
				return NewExitError(ExitCommandError, "--points must not be negative")
			}
			if pin != "" && !validPIN(pin) {
				return NewExitError(ExitCommandError, "--pin must be exactly 4 digits")
			}

			return withDB(cmd, rootOpts, func(ctx context.Context, db *sql.DB) error {
				members := store.NewMemberStore(db)
				m, err := members.Create(ctx, name, role, balance)
				if err != nil {
					return err
				}
				if pin != "" {
					hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
					if err != nil {
						return fmt.Errorf("hash PIN: %w", err)
					}
					if err := members.SetPIN(ctx, m.ID, string(hash)); err != nil {
						return err
					}
					m.HasPIN = true
				}
				return newPrinter(rootOpts.Format, cmd.OutOrStdout()).print(m, func(w io.Writer) {
					fmt.Fprintf(w, "Created %s %d (%s) with %d points\n", m.Role, m.ID, m.Name, m.Points)
				})
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", model.RoleMember, "member or admin")
	cmd.Flags().IntVar(&balance, "points", 0, "starting balance")
	cmd.Flags().StringVar(&pin, "pin", "", "4-digit login PIN")
	return cmd
}

func validPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// NewRewardCommand creates the reward command group.
func NewRewardCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reward",
		Short: "Manage the reward catalog in the local ledger database",
	}
	cmd.AddCommand(newRewardAddCommand(rootOpts))
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every reward, inactive ones included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, rootOpts, func(ctx context.Context, db *sql.DB) error {
				rewards, err := store.NewRewardStore(db).List(ctx)
				if err != nil {
					return err
				}
				return newPrinter(rootOpts.Format, cmd.OutOrStdout()).print(rewards, func(w io.Writer) {
					writeRewards(w, rewards)
				})
			})
		},
	})
	return cmd
}

func newRewardAddCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		title       string
		description string
		cost        int
		maxRedeem   int
		inactive    bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a reward",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return NewExitError(ExitCommandError, "--title is required")
			}
			if cost <= 0 {
				return NewExitError(ExitCommandError, "--cost must be positive")
			}
			var maxRedemptions *int
			if cmd.Flags().Changed("max") {
				if maxRedeem <= 0 {
					return NewExitError(ExitCommandError, "--max must be positive")
				}
				maxRedemptions = &maxRedeem
			}

			return withDB(cmd, rootOpts, func(ctx context.Context, db *sql.DB) error {
				r, err := store.NewRewardStore(db).Create(ctx, title, description, cost, maxRedemptions, !inactive)
				if err != nil {
					return err
				}
				return newPrinter(rootOpts.Format, cmd.OutOrStdout()).print(r, func(w io.Writer) {
					fmt.Fprintf(w, "Created reward %d (%s) costing %d points\n", r.ID, r.Title, r.PointsCost)
				})
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "reward title")
	cmd.Flags().StringVar(&description, "description", "", "reward description")
	cmd.Flags().IntVar(&cost, "cost", 0, "points cost")
	cmd.Flags().IntVar(&maxRedeem, "max", 0, "redemption cap (omit for unlimited)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "create the reward hidden from the catalog")
	return cmd
}

// NewConversionsCommand creates the conversions command group.
func NewConversionsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversions",
		Short: "Review redemptions in the local ledger database",
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List conversions by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := model.ConversionStatus(status)
			if !st.Valid() {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid status %q", status))
			}
			return withDB(cmd, rootOpts, func(ctx context.Context, db *sql.DB) error {
				convs, err := store.NewLedgerStore(db).ListConversionsByStatus(ctx, st)
				if err != nil {
					return err
				}
				return newPrinter(rootOpts.Format, cmd.OutOrStdout()).print(convs, func(w io.Writer) {
					writeConversions(w, convs)
				})
			})
		},
	}
	list.Flags().StringVar(&status, "status", string(model.ConversionPending), "pending, approved or rejected")

	cmd.AddCommand(list)
	cmd.AddCommand(newSettleCommand(rootOpts, "approve"))
	cmd.AddCommand(newSettleCommand(rootOpts, "reject"))
	return cmd
}

// newSettleCommand builds the approve and reject commands, which differ only
// in the workflow call and the notes flag.
func newSettleCommand(rootOpts *RootOptions, action string) *cobra.Command {
	var (
		adminID int64
		notes   string
	)

	cmd := &cobra.Command{
		Use:   action + " <conversion-id>",
		Short: "Mark a pending conversion " + action + "d",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if adminID <= 0 {
				return NewExitError(ExitCommandError, "--admin is required")
			}

			return withDB(cmd, rootOpts, func(ctx context.Context, db *sql.DB) error {
				wf := points.NewWorkflow(store.NewLedgerStore(db),
					points.WithLogger(rootOpts.logger.With("component", "ledger")))

				var conv *model.Conversion
				if action == "approve" {
					conv, err = wf.Approve(ctx, id, adminID)
				} else {
					conv, err = wf.Reject(ctx, id, adminID, notes)
				}
				if err != nil {
					return err
				}
				return newPrinter(rootOpts.Format, cmd.OutOrStdout()).print(conv, func(w io.Writer) {
					fmt.Fprintf(w, "Conversion %d %s\n", conv.ID, conv.Status)
				})
			})
		},
	}

	cmd.Flags().Int64Var(&adminID, "admin", 0, "ID of the admin member acting")
	if action == "reject" {
		cmd.Flags().StringVar(&notes, "notes", "", "reason shown to the member")
	}
	return cmd
}

func writeConversions(w io.Writer, convs []model.Conversion) {
	if len(convs) == 0 {
		fmt.Fprintln(w, "No conversions.")
		return
	}
	for _, c := range convs {
		fmt.Fprintf(w, "%4d  member %-4d reward %-4d %6d pts  %-8s %s\n",
			c.ID, c.MemberID, c.RewardID, c.PointsSpent, c.Status, c.CreatedAt.Format("2006-01-02 15:04"))
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid ID %q", s))
	}
	return id, nil
}

// withDB opens the ledger database for the duration of fn.
func withDB(cmd *cobra.Command, opts *RootOptions, fn func(context.Context, *sql.DB) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := database.Open(opts.cfg.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer db.Close()
	return fn(ctx, db)
}
