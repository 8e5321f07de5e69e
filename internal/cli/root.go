package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/vrceventbot/vrceventbot/internal/config"
)

// EnvDBPath overrides the database location from the config file.
const EnvDBPath = "VRCEVENTBOT_DB_PATH"

// Version is stamped at build time with -ldflags.
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

// GlobalFlags contains global flags available for all commands
type GlobalFlags struct {
	Config  string
	DBPath  string
	Verbose bool
	JSON    bool
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "vrceventbot",
	Short: "VRCEventBot - Discord bot for VRChat group events",
	Long: `VRCEventBot links Discord users to their VRChat accounts and lets
servers manage the VRChat groups their events are posted for.

Credentials are sealed with a per-installation secret before they are
stored, and MFA challenges are completed from inside Discord.

Usage:
  vrceventbot [command] [flags]

Available Commands:
  serve        Connect to Discord and start the ops server (main mode)
  secret       Create or inspect the credential sealing secret
  credentials  List or forget stored credential records
  doctor       Diagnose system and configuration issues
  version      Print version information

Use "vrceventbot [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// InitRoot initializes the root command with global flags
func InitRoot() {
	RootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", config.ResolvePath(""), "Path to configuration file")
	RootCmd.PersistentFlags().StringVar(&globalFlags.DBPath, "db", os.Getenv(EnvDBPath), "Path to SQLite database (overrides store.path)")
	RootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose output")
	RootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format")

	RootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of VRCEventBot",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd)
	},
}

var globalFlags GlobalFlags

// GetGlobalFlags returns the global flags
func GetGlobalFlags() GlobalFlags {
	return globalFlags
}

func printVersion(cmd *cobra.Command) {
	info := GetVersionInfo()
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "VRCEventBot Version:", info.Version)
	fmt.Fprintln(out, "Go Version:", info.GoVersion)
	fmt.Fprintln(out, "OS/Arch:", info.OS+"/"+info.Arch)
	fmt.Fprintln(out, "Build Date:", info.BuildDate)
}

// VersionInfo contains version information
type VersionInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	BuildDate string `json:"build_date"`
}

// GetVersionInfo returns version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		BuildDate: BuildDate,
	}
}
