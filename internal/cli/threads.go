package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tOgg1/parley/internal/models"
)

// run builds a runtime, loads the thread list and hands both to fn.
func (a *app) run(cmd *cobra.Command, fn func(rt *runtime) error) error {
	rt, err := a.newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.engine.Refresh(cmd.Context()); err != nil {
		return fmt.Errorf("load threads: %w", err)
	}
	return fn(rt)
}

func newThreadsCmd(a *app) *cobra.Command {
	var unreadOnly bool

	cmd := &cobra.Command{
		Use:     "threads",
		Aliases: []string{"ls"},
		Short:   "List conversation threads",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(rt *runtime) error {
				list := rt.engine.Threads()
				if unreadOnly {
					filtered := list[:0:0]
					for _, thread := range list {
						if thread.UnreadCount > 0 {
							filtered = append(filtered, thread)
						}
					}
					list = filtered
				}
				return emit(cmd.OutOrStdout(), a.format(), list, func(out io.Writer) error {
					return writeThreads(out, list)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "only threads with unread messages")
	return cmd
}

func writeThreads(out io.Writer, list []models.Thread) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(out, "No threads.")
		return err
	}
	t := newTable("ID", "NAME", "KIND", "UNREAD", "ONLINE", "BLOCKED", "LAST", "PREVIEW")
	for _, thread := range list {
		unread := "-"
		if thread.UnreadCount > 0 {
			unread = strconv.Itoa(thread.UnreadCount)
		}
		t.add(
			thread.ID.String(),
			thread.DisplayName,
			string(thread.Kind),
			unread,
			yesNo(thread.Online),
			yesNo(thread.Blocked),
			relativeTime(thread.LastMessageTime),
			orDash(truncate(thread.LastMessagePreview, 40)),
		)
	}
	return t.write(out)
}

func newUseCmd(a *app) *cobra.Command {
	var clearThread bool

	cmd := &cobra.Command{
		Use:   "use [thread]",
		Short: "Set or show the current thread",
		Long:  "Set the thread used by commands that take an optional thread argument.\nWith no argument, print the current thread.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if clearThread {
				if err := a.contexts.Clear(); err != nil {
					return err
				}
				_, err := fmt.Fprintln(out, "Current thread cleared.")
				return err
			}
			if len(args) == 0 {
				saved, err := a.contexts.Load()
				if err != nil {
					return err
				}
				return emit(out, a.format(), saved, func(out io.Writer) error {
					_, err := fmt.Fprintln(out, saved.String())
					return err
				})
			}

			return a.run(cmd, func(rt *runtime) error {
				thread, err := matchThread(rt.engine.Threads(), args[0])
				if err != nil {
					return err
				}
				saved, err := a.contexts.Load()
				if err != nil {
					return err
				}
				saved.SetThread(int64(thread.ID), thread.DisplayName)
				if err := a.contexts.Save(saved); err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "Current thread: %s\n", saved.String())
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&clearThread, "clear", false, "clear the current thread")
	return cmd
}
