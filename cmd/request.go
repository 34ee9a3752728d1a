package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudposse/grant/pkg/api"
	"github.com/cloudposse/grant/pkg/provision"
	"github.com/cloudposse/grant/pkg/schema"
)

var requestFlags sessionFlags

var requestCmd = &cobra.Command{
	Use:     "request <resource>",
	Short:   "Submit an access request and wait for the decision",
	Long:    `This command submits an access request for a resource and waits for the backend's decision without opening a session. Useful for pre-approving access before a maintenance window`,
	Example: "grant request i-0abc12345 --provider aws --reason \"maintenance window\" --duration 2h",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := api.NewAPIClientFromConfig(&grantConfig)
		if err != nil {
			return err
		}

		submitted, err := client.SubmitAccessRequest(cmd.Context(), &schema.AccessRequest{
			Resource:        args[0],
			Provider:        requestFlags.provider,
			Reason:          requestFlags.reason,
			DurationSeconds: int(requestFlags.duration.Seconds()),
		})
		if err != nil {
			return err
		}

		if submitted.IsPreexisting || submitted.Status == schema.StatusDone {
			fmt.Printf("Access request %s is already granted\n", submitted.ID)
			return nil
		}

		fmt.Printf("Submitted access request %s, waiting for the decision...\n", submitted.ID)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		feed := api.NewFeed(client)
		feed.Start(ctx)
		defer feed.Stop()

		waiter := &provision.Waiter{
			Feed:   feed,
			Client: client,
			Window: grantConfig.Backend.GrantWindow,
		}
		granted, err := waiter.Wait(ctx, submitted.ID)
		if err != nil {
			return err
		}

		fmt.Printf("Access request %s granted for %s\n", granted.ID, granted.Permission.InstanceID)
		return nil
	},
}

func init() {
	requestCmd.Flags().StringVar(&requestFlags.provider, "provider", "aws", "Cloud provider the resource lives in (aws, gcp, azure)")
	requestCmd.Flags().StringVar(&requestFlags.reason, "reason", "", "Reason for the access request, shown to approvers")
	requestCmd.Flags().DurationVar(&requestFlags.duration, "duration", time.Hour, "Requested access duration (the backend may cap it)")
	RootCmd.AddCommand(requestCmd)
}
