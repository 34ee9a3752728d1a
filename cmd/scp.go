package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cloudposse/grant/pkg/session"
)

var scpFlags sessionFlags

var scpCmd = &cobra.Command{
	Use:   "scp <source> <destination>",
	Short: "Copy files to or from a cloud instance",
	Long:  `This command requests access to a cloud instance and copies files with scp once the backend grants it. Exactly one of source and destination must be remote ('instance:path')`,
	Example: "grant scp ./bundle.tgz i-0abc12345:/tmp/ --provider aws --reason \"hotfix\"\n" +
		"grant scp i-0abc12345:/var/log/app.log ./",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resource, err := remoteResource(args[0], args[1])
		if err != nil {
			return err
		}

		req := scpFlags.request(session.ToolSCP, resource)
		req.Source = args[0]
		req.Destination = args[1]

		return runSession(cmd.Context(), req, &scpFlags)
	},
}

func init() {
	addSessionFlags(scpCmd, &scpFlags)
	RootCmd.AddCommand(scpCmd)
}
