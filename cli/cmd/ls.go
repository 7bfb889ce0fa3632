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

// lsCmd represents the ls command
var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "Lists rooms on the chatroom server.",
	Long: `Lists all rooms on the chatroom server with their id, creation time,
online participant count and message count.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		var res struct {
			Rooms []struct {
				ID           string    `json:"id"`
				Name         string    `json:"name"`
				OnlineCount  int       `json:"onlineCount"`
				MessageCount int       `json:"messageCount"`
				CreatedAt    time.Time `json:"createdAt"`
			} `json:"rooms"`
		}
		if err := getJSON("/api/rooms", &res); err != nil {
			fmt.Fprintf(os.Stderr, "Error listing rooms: %v\n", err)
			return
		}

		if len(res.Rooms) == 0 {
			fmt.Println("No rooms.")
			return
		}

		for _, room := range res.Rooms {
			t := room.CreatedAt
			formattedTime := fmt.Sprintf("%s %2d %s", t.Format("1"), t.Day(), t.Format("15:04"))
			fmt.Printf("%-26s  %s  %4d online  %6d msgs  %s\n",
				room.ID, formattedTime, room.OnlineCount, room.MessageCount, room.Name)
		}
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
