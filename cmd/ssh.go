package cmd

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/cloudposse/grant/pkg/logger"
	"github.com/cloudposse/grant/pkg/session"
)

var sshFlags sessionFlags

var sshCmd = &cobra.Command{
	Use:   "ssh <instance> [-- command args...]",
	Short: "Open an SSH session to a cloud instance",
	Long:  `This command requests access to a cloud instance and opens an SSH session once the backend grants it. Arguments after '--' run as a remote command instead of an interactive shell`,
	Example: "grant ssh i-0abc12345 --provider aws --reason \"incident 4711\"\n" +
		"grant ssh my-vm --provider gcp -- systemctl status nginx",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 && !isatty.IsTerminal(os.Stdin.Fd()) {
			logger.Warn("stdin is not a terminal; the remote shell will not be interactive")
		}

		req := sshFlags.request(session.ToolSSH, args[0])
		req.RemoteCommand = args[1:]

		return runSession(cmd.Context(), req, &sshFlags)
	},
}

func init() {
	addSessionFlags(sshCmd, &sshFlags)
	RootCmd.AddCommand(sshCmd)
}
