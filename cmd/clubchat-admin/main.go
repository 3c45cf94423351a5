package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tcriess/clubchat/config"
	"github.com/tcriess/clubchat/feed"
	"github.com/tcriess/clubchat/globals"
	"github.com/tcriess/clubchat/importance"
	"github.com/tcriess/clubchat/membership"
	"github.com/tcriess/clubchat/persistence"
	"github.com/tcriess/clubchat/retention"
	"github.com/tcriess/clubchat/store"
	"github.com/tcriess/clubchat/types"
)

// A very simple CLI tool for the administration of clubchat chats.

var (
	configPath   string
	globalConfig *config.Config
	persister    persistence.Persister
	notifier     feed.Notifier
	chatStore    *store.Store
)

func printJSON(v interface{}) {
	r, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		globals.AppLogger.Error("could not marshal output", "error", err)
		return
	}
	fmt.Println(string(r))
}

// setup opens the configured persistence. Changes are announced through the configured notifier, so
// running servers pick them up.
func setup(flagSet *pflag.FlagSet) error {
	var err error
	globalConfig, err = config.ReadConfiguration(configPath, flagSet)
	if err != nil {
		return err
	}
	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	persister, err = persistence.NewPersister(globalConfig)
	if err != nil {
		return err
	}
	notifier, err = feed.NewNotifier(globalConfig)
	if err != nil {
		return err
	}
	chatStore, err = store.New(globalConfig, persister, notifier)
	return err
}

func teardown() {
	if chatStore != nil {
		chatStore.Close()
		chatStore = nil
	}
	if notifier != nil {
		notifier.Close()
		notifier = nil
	}
	if persister != nil {
		persister.Close()
		persister = nil
	}
}

func main() {
	_ = godotenv.Load()

	ctx := context.Background()

	var participant string
	var includeClosed bool
	var olderThan time.Duration

	var cmdChats = &cobra.Command{
		Use:   "chats",
		Short: "Manage chats",
	}
	var cmdChatsList = &cobra.Command{
		Use:   "list",
		Short: "List chats",
		Long:  `list prints all chats, or the chats visible to --participant.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			var chats []*types.Chat
			var err error
			if participant == "" {
				chats, err = chatStore.Chats(ctx)
			} else {
				p := types.Participant{Id: participant, Role: types.RoleMember}
				if globalConfig.IsSuperUser(participant) {
					p.Role = types.RoleSuperAdmin
				}
				chats, err = chatStore.ListChats(ctx, p, includeClosed)
			}
			if err != nil {
				globals.AppLogger.Error("could not get chats", "error", err)
				return
			}
			printJSON(chats)
		},
	}
	cmdChatsList.Flags().StringVar(&participant, "participant", "", "only chats visible to this participant")
	cmdChatsList.Flags().BoolVar(&includeClosed, "closed", false, "include closed chats")

	var cmdChatsShow = &cobra.Command{
		Use:   "show [chat id]",
		Short: "Show chat",
		Long:  `show prints the chat with the given id and all of its messages.`,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			chat, err := chatStore.GetChat(ctx, args[0])
			if err != nil {
				globals.AppLogger.Error("could not get chat", "error", err)
				return
			}
			messages, err := persister.GetMessages(ctx, args[0])
			if err != nil {
				globals.AppLogger.Error("could not get messages", "error", err)
				return
			}
			printJSON(types.Snapshot{Chat: chat, Messages: messages})
		},
	}
	var cmdChatsCreate = &cobra.Command{
		Use:   "create [chat definition]",
		Short: "Create chat",
		Long:  `create creates a chat from a JSON definition ({"title", "creator_id", "members", "club_id", "team_id"}). If the definition is "-", it is read from STDIN.`,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var r io.Reader
			if args[0] == "-" {
				r = os.Stdin
			} else {
				r = bytes.NewReader([]byte(args[0]))
			}
			spec := types.ChatSpec{}
			if err := json.NewDecoder(r).Decode(&spec); err != nil {
				globals.AppLogger.Error("could not decode chat", "error", err)
				return
			}
			id, err := chatStore.CreateChat(ctx, spec)
			if err != nil {
				globals.AppLogger.Error("could not create chat", "error", err)
				return
			}
			fmt.Println(id)
		},
	}
	var cmdChatsClose = &cobra.Command{
		Use:   "close [chat id]",
		Short: "Close chat",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := chatStore.CloseChat(ctx, args[0]); err != nil {
				globals.AppLogger.Error("could not close chat", "error", err)
			}
		},
	}
	var cmdChatsDelete = &cobra.Command{
		Use:   "delete [chat id]",
		Short: "Delete chat",
		Long:  `delete removes the chat with the given id and all of its messages.`,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := chatStore.DeleteChat(ctx, args[0]); err != nil {
				globals.AppLogger.Error("could not delete chat", "error", err)
			}
		},
	}
	var cmdChatsPurge = &cobra.Command{
		Use:   "purge",
		Short: "Delete closed chats",
		Long:  `purge deletes all chats that have been closed for longer than --older-than.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			n, err := retention.Purge(ctx, chatStore, time.Now().UTC().Add(-olderThan))
			if err != nil {
				globals.AppLogger.Error("could not purge chats", "error", err)
			}
			fmt.Printf("%d chats deleted\n", n)
		},
	}
	cmdChatsPurge.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "minimum time since closing")

	var cmdMembers = &cobra.Command{
		Use:   "members",
		Short: "Manage chat members",
	}
	var cmdMembersAdd = &cobra.Command{
		Use:   "add [chat id] [participant id]",
		Short: "Add member",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			_, err := chatStore.UpdateChat(ctx, args[0], func(chat *types.Chat) error {
				_, err := membership.AddMember(chat, args[1])
				return err
			})
			if err != nil {
				globals.AppLogger.Error("could not add member", "error", err)
			}
		},
	}
	var cmdMembersRemove = &cobra.Command{
		Use:   "remove [chat id] [participant id]",
		Short: "Remove member",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			_, err := chatStore.UpdateChat(ctx, args[0], func(chat *types.Chat) error {
				_, err := membership.RemoveMember(chat, args[1])
				return err
			})
			if err != nil {
				globals.AppLogger.Error("could not remove member", "error", err)
			}
		},
	}

	var cmdUnread = &cobra.Command{
		Use:   "unread [chat id] [participant id]",
		Short: "Show unread important messages",
		Long:  `unread prints the important messages of a chat the participant has not acknowledged yet, oldest first.`,
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			messages, err := persister.GetMessages(ctx, args[0])
			if err != nil {
				globals.AppLogger.Error("could not get messages", "error", err)
				return
			}
			printJSON(importance.UnreadImportantFor(messages, args[1]))
		},
	}

	flagSet := config.GetFlagSet()
	var rootCmd = &cobra.Command{
		Use:           "clubchat-admin",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(flagSet)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			teardown()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file or directory")
	rootCmd.PersistentFlags().AddFlagSet(flagSet)
	rootCmd.AddCommand(cmdChats, cmdMembers, cmdUnread)
	cmdChats.AddCommand(cmdChatsList, cmdChatsShow, cmdChatsCreate, cmdChatsClose, cmdChatsDelete, cmdChatsPurge)
	cmdMembers.AddCommand(cmdMembersAdd, cmdMembersRemove)
	if err := rootCmd.Execute(); err != nil {
		teardown()
		os.Exit(1)
	}
}
