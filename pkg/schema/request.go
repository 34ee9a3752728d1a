package schema

// RequestStatus is the backend-owned lifecycle status of an access request.
// Transitions are driven exclusively by the backend; the client only observes
// them through the update feed.
type RequestStatus string

const (
	StatusNew      RequestStatus = "NEW"
	StatusPending  RequestStatus = "PENDING"
	StatusApproved RequestStatus = "APPROVED"
	StatusDone     RequestStatus = "DONE"
	StatusDenied   RequestStatus = "DENIED"
	StatusError    RequestStatus = "ERROR"
)

// Terminal reports whether no further transition can occur from this status.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusDone, StatusDenied, StatusError:
		return true
	default:
		return false
	}
}

// AccessRequest identifies a requested grant. Immutable after submission; the
// backend assigns it an ID.
type AccessRequest struct {
	Resource        string `yaml:"resource" json:"resource" mapstructure:"resource"`
	Provider        string `yaml:"provider" json:"provider" mapstructure:"provider"`
	Principal       string `yaml:"principal,omitempty" json:"principal,omitempty" mapstructure:"principal"`
	Reason          string `yaml:"reason,omitempty" json:"reason,omitempty" mapstructure:"reason"`
	DurationSeconds int    `yaml:"duration_seconds,omitempty" json:"durationSeconds,omitempty" mapstructure:"duration_seconds"`
}

// GeneratedAccess carries the credentials and role bindings the backend
// provisioned for a granted request.
type GeneratedAccess struct {
	AccessKeyID     string `json:"accessKeyId,omitempty"`
	SecretAccessKey string `json:"secretAccessKey,omitempty"`
	SessionToken    string `json:"sessionToken,omitempty"`
	PrincipalID     string `json:"principalId,omitempty"`
	RoleBinding     string `json:"roleBinding,omitempty"`
}

// Permission describes the resolved target of a granted request.
type Permission struct {
	InstanceID    string `json:"instanceId,omitempty"`
	LinuxUserName string `json:"linuxUserName,omitempty"`
	Region        string `json:"region,omitempty"`
	Project       string `json:"project,omitempty"`
	Zone          string `json:"zone,omitempty"`
	ResourceGroup string `json:"resourceGroup,omitempty"`
	HostPublicKey string `json:"hostPublicKey,omitempty"`
}

// ProvisionedRequest is the resolved request payload once the backend reports
// a terminal success status. Owned by the orchestrator for one session.
type ProvisionedRequest struct {
	ID            string          `json:"id"`
	IsPreexisting bool            `json:"isPreexisting,omitempty"`
	Status        RequestStatus   `json:"status"`
	Generated     GeneratedAccess `json:"generated,omitempty"`
	Permission    Permission      `json:"permission,omitempty"`
}
