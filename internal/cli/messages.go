package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tOgg1/parley/internal/models"
	"github.com/tOgg1/parley/internal/staging"
)

// openThread makes ref the active thread and loads its messages.
func (a *app) openThread(cmd *cobra.Command, rt *runtime, ref string) (models.Thread, error) {
	thread, err := a.resolveThread(rt.engine, ref)
	if err != nil {
		return models.Thread{}, err
	}
	if err := rt.engine.OpenThread(cmd.Context(), thread.ID); err != nil {
		return models.Thread{}, err
	}
	if err := rt.engine.Reload(cmd.Context()); err != nil {
		return models.Thread{}, fmt.Errorf("load messages: %w", err)
	}
	return thread, nil
}

func newMessagesCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "messages [thread]",
		Aliases: []string{"read"},
		Short:   "Show the messages of a thread",
		Long:    "Show the messages of a thread and mark it read.\nWith no thread, the current thread (see `parley use`) is shown.",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(rt *runtime) error {
				thread, err := a.openThread(cmd, rt, firstArg(args))
				if err != nil {
					return err
				}
				list := rt.engine.Messages()
				if limit > 0 && len(list) > limit {
					list = list[len(list)-limit:]
				}
				self := models.UserID(a.cfg.Sync.SelfUserID)
				return emit(cmd.OutOrStdout(), a.format(), list, func(out io.Writer) error {
					return writeMessages(out, thread, list, self)
				})
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show only the newest n messages")
	return cmd
}

func writeMessages(out io.Writer, thread models.Thread, list []models.Message, self models.UserID) error {
	if len(list) == 0 {
		_, err := fmt.Fprintf(out, "No messages in %s.\n", thread.DisplayName)
		return err
	}
	t := newTable("ID", "FROM", "WHEN", "TEXT", "ATTACHMENTS")
	for _, msg := range list {
		t.add(
			msg.ID.String(),
			senderLabel(msg, self),
			relativeTime(msg.CreatedAt),
			orDash(truncate(msg.Content, 60)),
			attachmentSummary(msg.Attachments),
		)
	}
	return t.write(out)
}

func senderLabel(msg models.Message, self models.UserID) string {
	if self != 0 && msg.SenderID == self {
		return "you"
	}
	if msg.SenderName != "" {
		return msg.SenderName
	}
	if msg.SenderUsername != "" {
		return "@" + msg.SenderUsername
	}
	return "user " + msg.SenderID.String()
}

func attachmentSummary(attachments []models.Attachment) string {
	if len(attachments) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(attachments))
	for _, att := range attachments {
		name := att.Name
		if name == "" {
			name = string(att.Kind)
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, ", ")
}

func newSendCmd(a *app) *cobra.Command {
	var attach []string

	cmd := &cobra.Command{
		Use:   "send <thread> [text...]",
		Short: "Send a message",
		Long:  "Send a message with optional attachments. Use - as the text to read it from stdin.",
		Example: `  parley send alice "see you at 5"
  parley send 12 --attach photo.jpg
  echo hello | parley send alice -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			if text == "-" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = strings.TrimRight(string(raw), "\n")
			}

			files := make([]staging.File, 0, len(attach))
			for _, path := range attach {
				file, err := staging.NewFileFromPath(path)
				if err != nil {
					return Exitf(ExitCodeUsage, "attachment %s: %v", path, err)
				}
				files = append(files, file)
			}

			return a.run(cmd, func(rt *runtime) error {
				if _, err := a.openThread(cmd, rt, args[0]); err != nil {
					return err
				}
				for _, file := range files {
					if err := rt.engine.Stage(file); err != nil {
						return Exitf(ExitCodeUsage, "attachment %s (%s): %v", file.Name, humanize.Bytes(uint64(file.Size)), err)
					}
				}

				sent, err := rt.engine.Send(cmd.Context(), text)
				if err != nil {
					return failure(err)
				}
				return emit(cmd.OutOrStdout(), a.format(), sent, func(out io.Writer) error {
					_, err := fmt.Fprintf(out, "Sent message %s\n", sent.ID)
					return err
				})
			})
		},
	}

	cmd.Flags().StringArrayVarP(&attach, "attach", "a", nil, "file to attach (repeatable)")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <thread> <message>",
		Short: "Delete one of your messages",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := models.ParseMessageID(args[1])
			if err != nil {
				return Exitf(ExitCodeUsage, "%v", err)
			}

			return a.run(cmd, func(rt *runtime) error {
				if _, err := a.openThread(cmd, rt, args[0]); err != nil {
					return err
				}
				if err := rt.engine.Delete(cmd.Context(), id); err != nil {
					return failure(err)
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted message %s\n", id)
				return err
			})
		},
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
