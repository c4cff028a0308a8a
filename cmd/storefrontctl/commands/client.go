package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/banoo-shop/storefront/internal/platform/localstore"
)

func newClientCommand(rt *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Args:  cobra.NoArgs,
		Short: "Inspect or purge stored client state",
	}
	cmd.AddCommand(newClientShowCommand(rt), newClientPurgeCommand(rt))
	return cmd
}

func (rt *cliEnv) openClientStore(cmd *cobra.Command, clientID string) (localstore.Store, func(), error) {
	if _, err := uuid.Parse(clientID); err != nil {
		return nil, nil, fmt.Errorf("invalid client id %q", clientID)
	}
	store, release, err := localstore.Open(cmd.Context(), localstore.OpenOptions{
		Driver:      rt.cfg.StoreDriver,
		FileDir:     rt.cfg.StoreFileDir,
		RedisAddr:   rt.cfg.RedisAddr,
		RedisDB:     rt.cfg.RedisDB,
		RedisPrefix: rt.cfg.RedisPrefix,
		PostgresDSN: rt.cfg.PostgresDSN,
	}, rt.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s store: %w", rt.cfg.StoreDriver, err)
	}
	return localstore.Scoped(store, clientID), release, nil
}

func newClientShowCommand(rt *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "show <client-id>",
		Args:  cobra.ExactArgs(1),
		Short: "Print the stored cart and wishlist of a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, release, err := rt.openClientStore(cmd, args[0])
			if err != nil {
				return err
			}
			defer release()
			for _, key := range []string{localstore.KeyCartItems, localstore.KeyWishlistProductIDs} {
				v, found, err := store.Get(cmd.Context(), key)
				if err != nil {
					return fmt.Errorf("reading %s: %w", key, err)
				}
				if !found {
					v = []byte("(none)")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", key, v)
			}
			token, err := localstore.GetString(cmd.Context(), store, localstore.KeyAuthToken)
			if err != nil {
				return fmt.Errorf("reading %s: %w", localstore.KeyAuthToken, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged_in: %t\n", token != "")
			return nil
		},
	}
}

func newClientPurgeCommand(rt *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <client-id>",
		Args:  cobra.ExactArgs(1),
		Short: "Delete every stored key of a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, release, err := rt.openClientStore(cmd, args[0])
			if err != nil {
				return err
			}
			defer release()
			if err := store.Delete(cmd.Context(), localstore.ClientKeys()...); err != nil {
				return fmt.Errorf("purging client %s: %w", args[0], err)
			}
			rt.logger.Info("Client state purged", "client_id", args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "purged %s\n", args[0])
			return nil
		},
	}
}
