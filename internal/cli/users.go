package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tOgg1/parley/internal/models"
)

func newBlockCmd(a *app, block bool) *cobra.Command {
	use, short, verb := "block <thread>", "Block the peer of a direct thread", "Blocked"
	if !block {
		use, short, verb = "unblock <thread>", "Unblock the peer of a direct thread", "Unblocked"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(rt *runtime) error {
				thread, err := a.resolveThread(rt.engine, args[0])
				if err != nil {
					return err
				}
				if err := rt.engine.SetBlocked(cmd.Context(), thread.ID, block); err != nil {
					return failure(err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, thread.DisplayName)
				return err
			})
		},
	}
}

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search users to start a conversation with",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			users, err := rt.engine.SearchUsers(cmd.Context(), args[0])
			if err != nil {
				return failure(err)
			}
			if users == nil {
				users = []models.User{}
			}
			return emit(cmd.OutOrStdout(), a.format(), users, func(out io.Writer) error {
				if len(users) == 0 {
					_, err := fmt.Fprintln(out, "No users found.")
					return err
				}
				t := newTable("ID", "NAME", "USERNAME")
				for _, user := range users {
					t.add(user.ID.String(), orDash(user.Name), "@"+user.Username)
				}
				return t.write(out)
			})
		},
	}
}

func newStartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start <user-id>",
		Short: "Start a direct conversation and make it the current thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || n <= 0 {
				return usageError(cmd, fmt.Sprintf("invalid user id %q", args[0]))
			}

			rt, err := a.newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			thread, err := rt.engine.StartThread(cmd.Context(), models.UserID(n))
			if err != nil {
				return failure(err)
			}

			saved, err := a.contexts.Load()
			if err != nil {
				return err
			}
			saved.SetThread(int64(thread.ID), thread.DisplayName)
			if err := a.contexts.Save(saved); err != nil {
				return err
			}

			return emit(cmd.OutOrStdout(), a.format(), thread, func(out io.Writer) error {
				_, err := fmt.Fprintf(out, "Started thread %s (%d)\n", orDash(thread.DisplayName), thread.ID)
				return err
			})
		},
	}
}
