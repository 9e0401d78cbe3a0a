package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCatalogCmd(a *app, resource, short string) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   resource,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s := a.session
			switch resource {
			case "materials":
				if err := s.Materials.Fetch(ctx, refresh); err != nil {
					return err
				}
				return a.out.materials(s.Materials.Items())
			case "rooms":
				if err := s.Rooms.Fetch(ctx, refresh); err != nil {
					return err
				}
				return a.out.rooms(s.Rooms.Items())
			case "users":
				if err := s.Users.Fetch(ctx, refresh); err != nil {
					return err
				}
				return a.out.users(s.Users.Items())
			}
			return fmt.Errorf("unknown resource %s", resource)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore cached data")
	return cmd
}
