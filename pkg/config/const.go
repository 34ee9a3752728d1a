package config

const (
	// CliConfigFileName is the name of the CLI config file, without extension.
	CliConfigFileName = "grant"

	// SystemDirConfigFilePath is the system-wide config location on Linux.
	SystemDirConfigFilePath = "/usr/local/etc/grant"

	// GrantBaseURLEnvVarName overrides the backend base URL.
	GrantBaseURLEnvVarName = "GRANT_PRO_BASE_URL"

	// GrantEndpointEnvVarName overrides the backend API endpoint.
	GrantEndpointEnvVarName = "GRANT_PRO_ENDPOINT"

	// GrantTokenEnvVarName holds the backend API token.
	GrantTokenEnvVarName = "GRANT_PRO_TOKEN"

	// GrantDefaultBaseURL is used when no base URL is configured.
	GrantDefaultBaseURL = "https://api.grant.cloudposse.com"

	// GrantDefaultEndpoint is the default API endpoint version path.
	GrantDefaultEndpoint = "api/v1"
)
