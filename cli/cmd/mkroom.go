/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

// mkroomCmd represents the mkroom command
var mkroomCmd = &cobra.Command{
	Use:   "mkroom <room_name...>",
	Short: "Creates new rooms.",
	Long:  `Creates one or more new rooms on the chatroom server.`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range args {
			body, _ := json.Marshal(map[string]string{"name": name})
			res, err := httpClient.Post(serverAddress+"/api/rooms", "application/json", bytes.NewReader(body))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating room %s: %v\n", name, err)
				continue
			}
			func() {
				defer res.Body.Close()
				if res.StatusCode != http.StatusCreated {
					fmt.Fprintf(os.Stderr, "Failed to create room %s: %v\n", name, apiError(res))
					return
				}
				var room struct {
					ID string `json:"id"`
				}
				if err := json.NewDecoder(res.Body).Decode(&room); err != nil {
					fmt.Fprintf(os.Stderr, "Error decoding response for %s: %v\n", name, err)
					return
				}
				fmt.Printf("Room created: %s (%s)\n", name, room.ID)
			}()
		}
	},
}

func init() {
	rootCmd.AddCommand(mkroomCmd)
}
