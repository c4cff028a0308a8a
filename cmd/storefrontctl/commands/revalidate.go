package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banoo-shop/storefront/internal/storefront_service/adapters/revalidation"
)

func (rt *cliEnv) dispatcher() *revalidation.Dispatcher {
	return revalidation.NewDispatcher(rt.logger, rt.cfg.RevalidateURL, rt.cfg.RevalidateSecret, nil)
}

func newRevalidateCommand(rt *cliEnv) *cobra.Command {
	var tags, paths []string
	cmd := &cobra.Command{
		Use:   "revalidate",
		Args:  cobra.NoArgs,
		Short: "Invalidate cached pages by tag or path",
		Example: `  storefrontctl revalidate --tag products
  storefrontctl revalidate --path /products/linen-shirt --path /categories`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := revalidation.Request{Tags: tags, Paths: paths}.Normalized()
			if req.IsEmpty() {
				return errors.New("at least one --tag or --path is required")
			}
			if err := rt.dispatcher().Send(cmd.Context(), req); err != nil {
				return fmt.Errorf("revalidating: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revalidated tags=%v paths=%v\n", req.Tags, req.Paths)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "cache tag to invalidate (repeatable)")
	cmd.Flags().StringSliceVarP(&paths, "path", "p", nil, "page path to invalidate (repeatable)")
	return cmd
}

func newRevalidateProductCommand(rt *cliEnv) *cobra.Command {
	var tags, paths []string
	cmd := &cobra.Command{
		Use:   "revalidate-product <slug>",
		Args:  cobra.ExactArgs(1),
		Short: "Invalidate the product listing and one product page",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := revalidation.ProductRequest(args[0], revalidation.Request{Tags: tags, Paths: paths})
			if err := rt.dispatcher().Send(cmd.Context(), req); err != nil {
				return fmt.Errorf("revalidating product %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revalidated tags=%v paths=%v\n", req.Tags, req.Paths)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "extra tag to invalidate")
	cmd.Flags().StringSliceVarP(&paths, "path", "p", nil, "extra path to invalidate")
	return cmd
}
