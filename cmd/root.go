package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xerc1155/xchain/cmd/xercd"
	"github.com/xerc1155/xchain/pkg/version"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "xercd",
	Short: "Cross-chain multi-token transfer devnet",
}

// Top-level version subcommand
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display binary version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.xercd.yaml)")
	rootCmd.AddCommand(xercd.NodeCmd)
	rootCmd.AddCommand(xercd.ClientCmd)
	rootCmd.AddCommand(xercd.MetadataCmd)
	rootCmd.AddCommand(xercd.PacketCmd)
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in a .env file, the config file and ENV variables if set.
func initConfig() {
	// A missing .env file is fine; variables may come from the real environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Println("failed to load .env file:", err)
		os.Exit(1)
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".xercd" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".xercd")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Println("failed to read config file:", err)
		os.Exit(1)
	}
}
