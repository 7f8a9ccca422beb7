package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/evesync/internal/access"
	"github.com/JonMunkholm/evesync/internal/database"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseKeyID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("key id must be a positive integer: %q", s)
	}
	return id, nil
}

// ============================================================================
// poll / migrate
// ============================================================================

func newPollCommand() *cobra.Command {
	var keyID int64
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run one poll of every registered key, or of one key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if keyID > 0 {
					summary, err := a.service.PollKey(ctx, keyID)
					if err != nil {
						return err
					}
					return printJSON(summary)
				}
				summary, err := a.service.Poll(ctx)
				if err != nil {
					return err
				}
				return printJSON(summary)
			})
		},
	}
	cmd.Flags().Int64Var(&keyID, "key", 0, "Poll only this key")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			_, db, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			v, err := database.Version(ctx, db)
			if err != nil {
				return err
			}
			fmt.Printf("database at migration version %d\n", v)
			return nil
		},
	}
}

// ============================================================================
// mask
// ============================================================================

func newMaskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mask",
		Short: "Convert between capability names and access masks",
	}

	var section string
	toMask := &cobra.Command{
		Use:   "to-mask API[,API...]",
		Short: "Resolve capability names to a mask",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd, func(r *access.Registry) error {
				mask, err := r.APIsToMask(args[0], section)
				if err != nil {
					return err
				}
				fmt.Println(mask)
				return nil
			})
		},
	}
	toMask.Flags().StringVar(&section, "section", "", "Capability section (account, char, corp)")

	toAPIs := &cobra.Command{
		Use:   "to-apis SECTION MASK",
		Short: "Expand a mask to capability names",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mask, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("mask must be an integer: %q", args[1])
			}
			return withRegistry(cmd, func(r *access.Registry) error {
				apis, err := r.MaskToAPIs(mask, args[0])
				if err != nil {
					return err
				}
				fmt.Println(strings.Join(apis, ","))
				return nil
			})
		},
	}

	cmd.AddCommand(toMask, toAPIs)
	return cmd
}

func withRegistry(cmd *cobra.Command, fn func(*access.Registry) error) error {
	ctx := cmd.Context()
	_, db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	r, err := access.Load(ctx, db)
	if err != nil {
		return err
	}
	return fn(r)
}

// ============================================================================
// key
// ============================================================================

func newKeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage registered keys and their capabilities",
	}

	show := &cobra.Command{
		Use:   "show KEY_ID",
		Short: "Show a key and its enabled capabilities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseKeyID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				k, err := a.service.Key(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(struct {
					*access.Key
					Capabilities []string `json:"capabilities"`
				}{k, k.ActiveAPIs(a.service.Registry())})
			})
		},
	}

	register := &cobra.Command{
		Use:   "register KEY_ID VCODE",
		Short: "Register a key or replace its verification code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseKeyID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				k, err := a.service.RegisterKey(ctx, id, args[1])
				if err != nil {
					return err
				}
				fmt.Printf("key %d registered\n", k.ID)
				return nil
			})
		},
	}

	var section string
	add := &cobra.Command{
		Use:   "add KEY_ID API",
		Short: "Enable a capability for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseKeyID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				_, already, err := a.service.AddCapability(ctx, id, args[1], section)
				if err != nil {
					return err
				}
				if already {
					fmt.Printf("%s already enabled for key %d\n", args[1], id)
					return nil
				}
				fmt.Printf("%s enabled for key %d\n", args[1], id)
				return nil
			})
		},
	}
	add.Flags().StringVar(&section, "section", "", "Capability section; defaults to the key type's section")

	remove := &cobra.Command{
		Use:   "remove KEY_ID API",
		Short: "Disable a capability for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseKeyID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				_, was, err := a.service.RemoveCapability(ctx, id, args[1], section)
				if err != nil {
					return err
				}
				if !was {
					fmt.Printf("%s was not enabled for key %d\n", args[1], id)
					return nil
				}
				fmt.Printf("%s disabled for key %d\n", args[1], id)
				return nil
			})
		},
	}
	remove.Flags().StringVar(&section, "section", "", "Capability section; defaults to the key type's section")

	activate := func(use, short string, active bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " KEY_ID",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseKeyID(args[0])
				if err != nil {
					return err
				}
				return withApp(cmd, func(ctx context.Context, a *app) error {
					_, err := a.service.SetKeyActive(ctx, id, active)
					return err
				})
			},
		}
	}

	cmd.AddCommand(show, register, add, remove,
		activate("enable", "Resume polling a key", true),
		activate("disable", "Stop polling a key", false))
	return cmd
}

// ============================================================================
// locks
// ============================================================================

func newLocksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "Inspect and reclaim single-flight locks",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List held locks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				locks, err := a.service.Locks(ctx)
				if err != nil {
					return err
				}
				return printJSON(locks)
			})
		},
	}

	var staleAfter time.Duration
	reap := &cobra.Command{
		Use:   "reap",
		Short: "Remove locks older than --stale-after",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				d := staleAfter
				if d <= 0 {
					d = a.cfg.Lock.StaleAfter
				}
				n := a.service.ReapLocks(ctx, d)
				fmt.Printf("reaped %d lock(s) older than %s\n", n, d)
				return nil
			})
		},
	}
	reap.Flags().DurationVar(&staleAfter, "stale-after", 0, "Age after which a lock is stale (default from LOCK_STALE_AFTER)")

	cmd.AddCommand(list, reap)
	return cmd
}
