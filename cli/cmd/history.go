/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history <room_id>",
	Short: "Prints the message history of a room.",
	Long: `Prints the recent message history of a room on the chatroom server,
oldest first. Deleted messages show up as tombstones.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		roomID := args[0]
		var res struct {
			Messages []historyMessage `json:"messages"`
			HasMore  bool             `json:"hasMore"`
		}
		path := fmt.Sprintf("/api/rooms/%s/history?limit=%d", roomID, historyLimit)
		if err := getJSON(path, &res); err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching history for %s: %v\n", roomID, err)
			return
		}

		if res.HasMore {
			fmt.Println("(older messages omitted)")
		}
		for _, msg := range res.Messages {
			printMessage(msg)
		}
	},
}

type historyMessage struct {
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Deleted   bool      `json:"deleted"`
}

func printMessage(msg historyMessage) {
	content := msg.Content
	if msg.Deleted {
		content = "(deleted)"
	}
	fmt.Printf("%s %s: %s\n", msg.CreatedAt.Local().Format("2006-01-02 15:04"), msg.Author, content)
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Maximum number of messages to fetch")
}
