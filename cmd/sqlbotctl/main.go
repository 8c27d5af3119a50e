// sqlbotctl 问数引擎运维命令
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	configPath string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "sqlbotctl",
	Short:         "SQLBot 运维工具",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yml", "配置文件路径")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "命令超时")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(fillEmbeddingsCmd)
	rootCmd.AddCommand(reloadTemplatesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}
