package cmd

import (
	"VibeMelody/server"

	"github.com/spf13/cobra"
)

var serverInMemory bool

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 relay 服务器",
	Long:  `启动实时 relay 服务器：WebSocket 推送在线状态、活动和私信，REST 提供历史消息与通知。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(cfg, serverInMemory)
	},
}

func init() {
	serverCmd.Flags().BoolVar(&serverInMemory, "memory", false, "keep users, messages and presence in memory instead of MySQL and Redis")
	rootCmd.AddCommand(serverCmd)
}
