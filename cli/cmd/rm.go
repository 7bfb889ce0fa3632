/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

// rmCmd represents the rm command
var rmCmd = &cobra.Command{
	Use:   "rm <room_id...>",
	Short: "Removes rooms.",
	Long:  `Removes one or more rooms on the chatroom server, including their messages.`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		for _, roomID := range args {
			req, err := http.NewRequest(http.MethodDelete, serverAddress+"/api/rooms/"+roomID, nil)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error building request for %s: %v\n", roomID, err)
				continue
			}
			res, err := httpClient.Do(req)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error removing room %s: %v\n", roomID, err)
				continue
			}
			res.Body.Close()
			if res.StatusCode != http.StatusNoContent {
				fmt.Fprintf(os.Stderr, "Failed to remove room %s: %s\n", roomID, res.Status)
				continue
			}
			fmt.Printf("Removed: %s\n", roomID)
		}
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
