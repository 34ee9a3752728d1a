package provider

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"

	errUtils "github.com/cloudposse/grant/errors"
	log "github.com/cloudposse/grant/pkg/logger"
	"github.com/cloudposse/grant/pkg/schema"
)

const gcpCloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// gcpCredentialEnv verifies application default credentials exist (gcloud
// reads them itself) and passes project/zone hints through the environment.
func (c *Capabilities) gcpCredentialEnv(ctx context.Context, request *schema.ProvisionedRequest) ([]string, error) {
	creds, err := google.FindDefaultCredentials(ctx, gcpCloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("%w: no Google application default credentials: %w", errUtils.ErrLoginRequired, err)
	}
	log.Debug("Found Google application default credentials", "project", creds.ProjectID)

	var env []string
	if project := request.Permission.Project; project != "" {
		env = append(env, "CLOUDSDK_CORE_PROJECT="+project)
	}
	if zone := request.Permission.Zone; zone != "" {
		env = append(env, "CLOUDSDK_COMPUTE_ZONE="+zone)
	}
	return env, nil
}
