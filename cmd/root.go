package cmd

import (
	charm "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/cloudposse/grant/pkg/api"
	cfg "github.com/cloudposse/grant/pkg/config"
	"github.com/cloudposse/grant/pkg/logger"
	"github.com/cloudposse/grant/pkg/schema"
	"github.com/cloudposse/grant/pkg/session"
)

var grantConfig schema.GrantConfiguration

var (
	logsLevelFlag string
	logsFileFlag  string
)

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:   "grant",
	Short: "Just-in-time SSH, SCP and RSYNC access to cloud instances",
	Long:  `Grant establishes SSH, SCP and RSYNC sessions to cloud instances through backend-approved, short-lived access grants over AWS SSM, GCP IAP and Azure Bastion`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Determine if the command is a help command or if the help flag is set
		isHelpRequested := cmd.Name() == "help" || cmd.Flags().Changed("help")

		if isHelpRequested {
			// Do not silence usage or errors when help is invoked
			cmd.SilenceUsage = false
			cmd.SilenceErrors = false
		} else {
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true
		}

		setupLogger()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() error {
	var err error
	grantConfig, err = cfg.LoadConfig()
	if err != nil {
		return err
	}

	return RootCmd.Execute()
}

// Cleanup releases every session resource still registered. Called by the
// signal handler and on normal exit.
func Cleanup() {
	session.DefaultRegistry().Drain()
}

// setupLogger resolves level and destination from flags falling back to the
// CLI config, and installs the process-wide default logger.
func setupLogger() {
	level := grantConfig.Logs.Level
	if logsLevelFlag != "" {
		level = logsLevelFlag
	}
	parsed, err := logger.ParseLevel(level)
	if err != nil {
		logger.Warn("Invalid log level, falling back to Info", "level", level)
		parsed = charm.InfoLevel
	}

	file := grantConfig.Logs.File
	if logsFileFlag != "" {
		file = logsFileFlag
	}
	out, err := logger.Output(file)
	if err != nil {
		logger.Warn("Failed to open log file, falling back to stderr", "file", file, "error", err)
		out, _ = logger.Output("")
	}

	l := charm.New(out)
	l.SetLevel(parsed)
	l.SetReportTimestamp(false)
	logger.SetDefault(logger.NewGrantLogger(l))
}

// newOrchestrator wires the backend client and update feed for one session
// command invocation.
func newOrchestrator(dryRun bool) (*session.Orchestrator, *api.Feed, error) {
	client, err := api.NewAPIClientFromConfig(&grantConfig)
	if err != nil {
		return nil, nil, err
	}

	feed := api.NewFeed(client)

	return &session.Orchestrator{
		Client: client,
		Feed:   feed,
		Config: &grantConfig,
		DryRun: dryRun,
	}, feed, nil
}

func init() {
	RootCmd.PersistentFlags().StringVar(&logsLevelFlag, "logs-level", "", "Logs level. Supported log levels are Trace, Debug, Info, Warning, Off. If the log level is set to Off, all logging will be disabled")
	RootCmd.PersistentFlags().StringVar(&logsFileFlag, "logs-file", "", "The file to write logs to. Logs can be written to any file or any standard file descriptor, including '/dev/stdout', '/dev/stderr' and '/dev/null'")
}
