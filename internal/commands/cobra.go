package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// RootCmd launches the chat when no subcommand is given.
var RootCmd = &cobra.Command{
	Use:   "calassist",
	Short: "Natural-language scheduling assistant for Cal.com",
	Long: `Talk to your Cal.com account in plain language: check availability, book,
list, cancel and reschedule meetings. Anything that changes your calendar is
summarized and only runs after you confirm.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunChat(false)
	},
}

// ChatCmd starts an interactive conversation.
var ChatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant",
	Long:  "Start a conversation in the terminal UI, or a plain line REPL with --plain or when stdin is not a terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		plain, _ := cmd.Flags().GetBool("plain")
		return RunChat(plain)
	},
}

// ServeCmd runs the websocket chat server.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the assistant over HTTP and websocket",
	Long:  "Serve /ws (chat), /health, /status and /metrics. Set CALASSIST_SERVE_TOKENS to require a bearer token.",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		return RunServe(addr)
	},
}

// MCPCmd runs the MCP stdio server.
var MCPCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose Cal.com operations as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunMCP()
	},
}

// StatusCmd reports credential presence.
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which credentials and backend are configured",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		return RunStatus(jsonOut)
	},
}

// ConfigCmd is the parent for configuration commands.
var ConfigCmd = &cobra.Command{
	Use:     "config",
	Aliases: []string{"c"},
	Short:   "Inspect configuration",
}

// ConfigShowCmd prints the effective configuration.
var ConfigShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunConfigShow()
	},
}

// EventTypesCmd lists event types without going through the assistant.
var EventTypesCmd = &cobra.Command{
	Use:     "event-types",
	Aliases: []string{"et"},
	Short:   "List the event types on the account",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		return RunEventTypes(jsonOut)
	},
}

// VersionCmd prints build information.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show calassist version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "calassist version %s (commit %s, built %s)\n", Version, Commit, Date)
	},
}

// CompletionCmd generates shell completion scripts
var CompletionCmd = &cobra.Command{
	Use:    "completion [bash|zsh|fish|powershell]",
	Short:  "Generate shell completion script",
	Hidden: true,
	Long: `Generate shell completion script for the specified shell.

Usage examples:
  # Bash
  source <(calassist completion bash)

  # Zsh
  source <(calassist completion zsh)

  # Fish
  calassist completion fish | source`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletionV2(os.Stdout, true)
		case "zsh":
			return cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			return cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		return fmt.Errorf("unsupported shell %q", args[0])
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
	RootCmd.PersistentFlags().StringVar(&configPath, "config-dir", "", "directory containing config.yaml (default: . and ~/.calassist)")

	ChatCmd.Flags().Bool("plain", false, "Use the line REPL even on a terminal")
	ServeCmd.Flags().String("addr", "", "Listen address (default: CALASSIST_SERVE_ADDR)")
	StatusCmd.Flags().Bool("json", false, "Output in JSON format")
	EventTypesCmd.Flags().Bool("json", false, "Output in JSON format")

	ConfigCmd.AddCommand(ConfigShowCmd)
	RootCmd.AddCommand(ChatCmd, ServeCmd, MCPCmd, StatusCmd, ConfigCmd, EventTypesCmd, VersionCmd, CompletionCmd)
}
