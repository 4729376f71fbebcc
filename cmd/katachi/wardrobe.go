package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/katachi/internal/cli"
	"github.com/hyperjump/katachi/internal/models"
	"github.com/hyperjump/katachi/internal/storage"
)

func newWardrobeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wardrobe",
		Short: "Manage saved products per user",
	}
	cmd.AddCommand(newWardrobeAddCmd(), newWardrobeListCmd(), newWardrobeRemoveCmd())
	return cmd
}

// withWardrobe opens the wardrobe database for the duration of fn.
func withWardrobe(cmd *cobra.Command, fn func(ctx context.Context, env *commandEnv, store storage.Storage) error) error {
	env, err := newCommandEnv(cmd)
	if err != nil {
		return err
	}
	defer env.close()
	store, err := storage.NewSQLiteStorage(env.cfg.Storage.WardrobeDBPath)
	if err != nil {
		return fmt.Errorf("failed to open wardrobe: %w", err)
	}
	defer store.Close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, env, store)
}

func newWardrobeAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <user-id> <product-path>",
		Short: "Save a product to a user's wardrobe",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWardrobe(cmd, func(ctx context.Context, env *commandEnv, store storage.Storage) error {
				item, err := store.AddItem(ctx, &models.WardrobeInput{UserID: args[0], ProductPath: args[1]})
				if err != nil {
					return err
				}
				if env.format == cli.OutputJSON {
					return cli.WriteWardrobe(cmd.OutOrStdout(), item.UserID, []*models.WardrobeItem{item}, env.format)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s's wardrobe (%s)\n", item.ProductPath, item.UserID, item.ID)
				return nil
			})
		},
	}
}

func newWardrobeListCmd() *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "list <user-id>",
		Short: "List a user's saved products, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWardrobe(cmd, func(ctx context.Context, env *commandEnv, store storage.Storage) error {
				items, err := store.ListItems(ctx, args[0], offset, limit)
				if err != nil {
					return err
				}
				return cli.WriteWardrobe(cmd.OutOrStdout(), args[0], items, env.format)
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many items")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum items to list (0 = all)")
	return cmd
}

func newWardrobeRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <user-id> <product-path>",
		Short: "Remove a product from a user's wardrobe",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWardrobe(cmd, func(ctx context.Context, _ *commandEnv, store storage.Storage) error {
				n, err := store.RemoveItem(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if n == 0 {
					return fmt.Errorf("%s is not in %s's wardrobe: %w", args[1], args[0], storage.ErrNotFound)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s's wardrobe\n", args[1], args[0])
				return nil
			})
		},
	}
}
