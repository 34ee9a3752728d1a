package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	log "github.com/cloudposse/grant/pkg/logger"
	"github.com/cloudposse/grant/pkg/schema"
)

// awsCredentialEnv materializes the provisioned access key into subprocess
// environment variables after validating it against STS. An empty generated
// credential means the grant rides on ambient credentials.
func (c *Capabilities) awsCredentialEnv(ctx context.Context, request *schema.ProvisionedRequest) ([]string, error) {
	generated := request.Generated
	region := request.Permission.Region
	if region == "" {
		region = c.Config.Region
	}

	if generated.AccessKeyID == "" {
		log.Debug("No generated AWS credential; using ambient credentials")
		if region == "" {
			return nil, nil
		}
		return []string{"AWS_REGION=" + region}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(generated.AccessKeyID, generated.SecretAccessKey, generated.SessionToken),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble AWS session credentials: %w", err)
	}

	identity, err := sts.NewFromConfig(awsCfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("generated AWS credential failed validation: %w", err)
	}
	log.Debug("Validated AWS session credential", "arn", aws.ToString(identity.Arn))

	env := []string{
		"AWS_ACCESS_KEY_ID=" + generated.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY=" + generated.SecretAccessKey,
	}
	if generated.SessionToken != "" {
		env = append(env, "AWS_SESSION_TOKEN="+generated.SessionToken)
	}
	if region != "" {
		env = append(env, "AWS_REGION="+region)
	}
	return env, nil
}

// awsInstanceReady asks SSM whether the managed instance is online. Used as a
// cheap reachability check before the first connect attempt; a negative
// answer is advisory, never fatal, since the fleet view can lag the instance.
func awsInstanceReady(ctx context.Context, awsCfg aws.Config, instanceID string) (bool, error) {
	out, err := ssm.NewFromConfig(awsCfg).DescribeInstanceInformation(ctx, &ssm.DescribeInstanceInformationInput{
		Filters: []ssmtypes.InstanceInformationStringFilter{
			{Key: aws.String("InstanceIds"), Values: []string{instanceID}},
		},
	})
	if err != nil {
		return false, err
	}
	for _, info := range out.InstanceInformationList {
		if info.PingStatus == ssmtypes.PingStatusOnline {
			return true, nil
		}
	}
	return false, nil
}

// InstanceReachable reports whether the target looks reachable from the
// provider's control plane. Only implemented for SSM; other kinds report true.
func (c *Capabilities) InstanceReachable(ctx context.Context, request *schema.ProvisionedRequest, env []string) bool {
	if c.Config.Kind != KindAWSSSM {
		return true
	}

	region := request.Permission.Region
	if region == "" {
		region = c.Config.Region
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if request.Generated.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				request.Generated.AccessKeyID, request.Generated.SecretAccessKey, request.Generated.SessionToken,
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.Debug("Skipping SSM reachability check", "error", err)
		return true
	}

	ready, err := awsInstanceReady(ctx, awsCfg, request.Permission.InstanceID)
	if err != nil {
		log.Debug("SSM reachability check failed", "error", err)
		return true
	}
	if !ready {
		log.Debug("SSM reports instance not yet online", "instance", request.Permission.InstanceID)
	}
	return ready
}
