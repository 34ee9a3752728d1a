package provider

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	errUtils "github.com/cloudposse/grant/errors"
	log "github.com/cloudposse/grant/pkg/logger"
)

const azureManagementScope = "https://management.azure.com/.default"

// azureCredentialEnv verifies the Azure CLI is logged in; the `az` subprocess
// manages its own token cache, so no environment is injected.
func (c *Capabilities) azureCredentialEnv(ctx context.Context) ([]string, error) {
	cred, err := azidentity.NewAzureCLICredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Azure CLI credential: %w", err)
	}

	token, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{azureManagementScope}})
	if err != nil {
		return nil, fmt.Errorf("%w: Azure CLI has no valid token: %w", errUtils.ErrLoginRequired, err)
	}
	log.Debug("Validated Azure CLI credential", "expires_on", token.ExpiresOn)

	return nil, nil
}
