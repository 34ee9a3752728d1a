package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cloudposse/grant/pkg/session"
)

var rsyncFlags sessionFlags

var rsyncCmd = &cobra.Command{
	Use:   "rsync <source> <destination> [-- rsync flags...]",
	Short: "Synchronize files with a cloud instance",
	Long:  `This command requests access to a cloud instance and runs rsync over ssh once the backend grants it. Flags after '--' are passed through; ssh flags among them (-i, -o, -v, -p) are routed into the ssh transport`,
	Example: "grant rsync ./site/ i-0abc12345:/var/www/ --provider aws --reason \"deploy\" -- -az --delete\n" +
		"grant rsync i-0abc12345:/etc/nginx/ ./nginx-backup/ --sudo",
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resource, err := remoteResource(args[0], args[1])
		if err != nil {
			return err
		}

		req := rsyncFlags.request(session.ToolRsync, resource)
		req.Source = args[0]
		req.Destination = args[1]
		req.ExtraFlags = args[2:]

		return runSession(cmd.Context(), req, &rsyncFlags)
	},
}

func init() {
	addSessionFlags(rsyncCmd, &rsyncFlags)
	rsyncCmd.Flags().BoolVar(&rsyncFlags.sudo, "sudo", false, "Run the remote rsync under sudo")
	RootCmd.AddCommand(rsyncCmd)
}
