package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/civicpoints/internal/cache"
	"github.com/dukerupert/civicpoints/internal/model"
	"github.com/dukerupert/civicpoints/internal/websocket"
)

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	var pin string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign this device in as a member",
		Long: `Exchange the member's PIN for a session token and keep the token in the
device cache. Clearing the cache signs the device out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.requireMember(); err != nil {
				return err
			}
			if pin == "" {
				return NewExitError(ExitCommandError, "--pin is required")
			}
			return withDevice(cmd, rootOpts, func(ctx context.Context, d *device) error {
				sess, err := d.client.Login(ctx, rootOpts.cfg.MemberID, pin)
				if err != nil {
					return err
				}
				if err := d.cache.Set(ctx, cache.KeyToken, []byte(sess.Token)); err != nil {
					return fmt.Errorf("store token: %w", err)
				}
				return newPrinter(rootOpts.Format, cmd.OutOrStdout()).print(sess, func(w io.Writer) {
					fmt.Fprintf(w, "Signed in as member %d (%s) until %s\n", sess.MemberID, sess.Role, sess.ExpiresAt)
				})
			})
		},
	}

	cmd.Flags().StringVar(&pin, "pin", "", "member PIN")
	return cmd
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Refresh the device cache from the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.requireMember(); err != nil {
				return err
			}
			return withDevice(cmd, rootOpts, func(ctx context.Context, d *device) error {
				res, err := d.sync.SyncNow(ctx)
				if err != nil {
					return err
				}
				return newPrinter(rootOpts.Format, cmd.OutOrStdout()).print(res, func(w io.Writer) {
					fmt.Fprintf(w, "Synced %d rewards, balance %d, at %s\n", res.Rewards, res.Balance, res.SyncedAt.Format(time.RFC3339))
				})
			})
		},
	}
}

// deviceStatus is the output of the status command.
type deviceStatus struct {
	Online   bool       `json:"online"`
	Stale    bool       `json:"stale"`
	LastSync *time.Time `json:"last_sync,omitempty"`
	Balance  *int       `json:"balance,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity, cache freshness and the cached balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(cmd, rootOpts, func(ctx context.Context, d *device) error {
				st := deviceStatus{
					Online: d.state.IsConnected(),
					Stale:  d.sync.IsStale(ctx, rootOpts.cfg.StaleAfter),
				}
				if last, ok := d.sync.LastSync(ctx); ok {
					st.LastSync = &last
				}
				if rootOpts.cfg.MemberID > 0 {
					if bal, ok := d.sync.CachedBalance(ctx); ok {
						st.Balance = &bal
					}
				}
				return newPrinter(rootOpts.Format, cmd.OutOrStdout()).print(st, func(w io.Writer) {
					fmt.Fprintf(w, "online:    %t\n", st.Online)
					if st.LastSync != nil {
						fmt.Fprintf(w, "last sync: %s\n", st.LastSync.Format(time.RFC3339))
					} else {
						fmt.Fprintln(w, "last sync: never")
					}
					fmt.Fprintf(w, "stale:     %t\n", st.Stale)
					if st.Balance != nil {
						fmt.Fprintf(w, "balance:   %d\n", *st.Balance)
					}
				})
			})
		},
	}
}

// NewRewardsCommand creates the rewards command.
func NewRewardsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rewards",
		Short: "List active rewards, from the cache when offline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(cmd, rootOpts, func(ctx context.Context, d *device) error {
				rewards, fromCache, err := d.catalog.ListActiveCached(ctx)
				if err != nil {
					return err
				}
				return newPrinter(rootOpts.Format, cmd.OutOrStdout()).print(rewards, func(w io.Writer) {
					if fromCache {
						fmt.Fprintln(w, "(offline: showing cached catalog)")
					}
					writeRewards(w, rewards)
				})
			})
		},
	}
}

func writeRewards(w io.Writer, rewards []model.Reward) {
	if len(rewards) == 0 {
		fmt.Fprintln(w, "No rewards.")
		return
	}
	for _, r := range rewards {
		limit := "unlimited"
		if r.MaxRedemptions != nil {
			limit = fmt.Sprintf("%d/%d redeemed", r.TotalRedeemed, *r.MaxRedemptions)
		}
		fmt.Fprintf(w, "%4d  %-30s %6d pts  %s\n", r.ID, r.Title, r.PointsCost, limit)
	}
}

// NewRedeemCommand creates the redeem command.
func NewRedeemCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "redeem <reward-id>",
		Short: "Redeem a reward for the signed-in member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rewardID, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := rootOpts.requireMember(); err != nil {
				return err
			}
			return withDevice(cmd, rootOpts, func(ctx context.Context, d *device) error {
				conv, err := d.client.Redeem(ctx, rewardID)
				if err != nil {
					return err
				}
				// The snapshot is refreshed so the cached balance reflects the debit.
				if _, err := d.sync.SyncNow(ctx); err != nil {
					d.logger.Warn("post-redeem sync failed", "error", err)
				}
				return newPrinter(rootOpts.Format, cmd.OutOrStdout()).print(conv, func(w io.Writer) {
					fmt.Fprintf(w, "Conversion %d: %d points, %s\n", conv.ID, conv.PointsSpent, conv.Status)
				})
			})
		},
	}
}

// NewSettingsCommand creates the settings command.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	var theme, language string

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change member settings",
		Long: `Without flags, print the settings from the device cache (falling back to
the backend, then to defaults). With --theme or --language, save the change
to the backend and refresh the cache.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(cmd, rootOpts, func(ctx context.Context, d *device) error {
				s := d.sync.Settings(ctx)
				if theme != "" || language != "" {
					if theme != "" {
						s.Theme = theme
					}
					if language != "" {
						s.Language = language
					}
					saved, err := d.sync.SaveSettings(ctx, s)
					if err != nil {
						return err
					}
					s = saved
				}
				return newPrinter(rootOpts.Format, cmd.OutOrStdout()).print(s, func(w io.Writer) {
					fmt.Fprintf(w, "theme:    %s\nlanguage: %s\n", s.Theme, s.Language)
					fmt.Fprintf(w, "notify:   push=%t email=%t petitions=%t messages=%t\n",
						s.Notifications.Push, s.Notifications.Email, s.Notifications.Petitions, s.Notifications.Messages)
					fmt.Fprintf(w, "privacy:  profile=%t activity=%t messages=%t\n",
						s.Privacy.ProfileVisible, s.Privacy.ShowActivity, s.Privacy.AllowMessages)
				})
			})
		},
	}

	cmd.Flags().StringVar(&theme, "theme", "", "light, dark or system")
	cmd.Flags().StringVar(&language, "language", "", "language code")
	return cmd
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the device cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Wipe every cached entry, the session token included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(cmd, rootOpts, func(ctx context.Context, d *device) error {
				if err := d.sync.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
				return nil
			})
		},
	})
	return cmd
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the device cache fresh until interrupted",
		Long: `Poll backend health, sync whenever connectivity returns, and resync on
realtime ledger and catalog events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.requireMember(); err != nil {
				return err
			}
			return withDevice(cmd, rootOpts, func(ctx context.Context, d *device) error {
				return watch(ctx, d, interval)
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "health probe and reconnect interval")
	return cmd
}

func watch(ctx context.Context, d *device, interval time.Duration) error {
	stop := d.sync.SyncOnReconnect(ctx)
	defer stop()

	d.prober.Start(ctx)
	defer d.prober.Stop()

	if d.state.IsConnected() {
		d.sync.SyncNow(ctx)
	}

	onEvent := func(msg websocket.Message) {
		if strings.HasPrefix(msg.Type, "conversion_") || strings.HasPrefix(msg.Type, "reward_") {
			d.logger.Debug("event received", "type", msg.Type, "id", msg.ID)
			d.sync.SyncNow(ctx)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if d.state.IsConnected() {
			err := d.client.Subscribe(ctx, onEvent)
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Warn("event stream closed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// withDevice opens the device for the duration of fn.
func withDevice(cmd *cobra.Command, opts *RootOptions, fn func(context.Context, *device) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := openDevice(ctx, opts)
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(ctx, d)
}
