/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

// grepCmd represents the grep command
var grepCmd = &cobra.Command{
	Use:   "grep <pattern> <room_id>",
	Short: "Searches for a pattern in a room's messages.",
	Long:  `Searches for a given regular expression within the messages of a room on the chatroom server.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		pattern := args[0]
		roomID := args[1]

		var res struct {
			Messages []historyMessage `json:"messages"`
		}
		path := fmt.Sprintf("/api/rooms/%s/search?q=%s", roomID, url.QueryEscape(pattern))
		if err := getJSON(path, &res); err != nil {
			fmt.Fprintf(os.Stderr, "Error searching for '%s' in %s: %v\n", pattern, roomID, err)
			return
		}

		for _, msg := range res.Messages {
			printMessage(msg)
		}
	},
}

func init() {
	rootCmd.AddCommand(grepCmd)
}
