// Command spendchat is a terminal client for the spending dashboard chat.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ashureev/spendchat/internal/chatclient"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:           "spendchat",
	Short:         "Chat with the spending agent from a terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:3000", "dashboard server base URL")
	rootCmd.PersistentFlags().String("user", "", "allow-listed user id")

	viper.SetEnvPrefix("spendchat")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}

func newClient() *chatclient.Client {
	return chatclient.New(chatclient.Options{BaseURL: viper.GetString("server")})
}

func userID() (string, error) {
	id := strings.TrimSpace(viper.GetString("user"))
	if id == "" {
		return "", fmt.Errorf("a user id is required (--user or SPENDCHAT_USER)")
	}
	return id, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
