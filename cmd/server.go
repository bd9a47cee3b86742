package cmd

import (
	"X402FM/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动X402FM服务器",
	Long:  `启动X402FM的HTTP服务器，提供支付结算、流会话与音频交付接口`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
