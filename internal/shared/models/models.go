package models

// Provider kinds a model version can be bound to.
const (
	ProviderOpenAI   = "openai"
	ProviderInternal = "internal"
)

// Principal is an authenticated caller identity derived from a credential.
// It is a read-only snapshot borrowed from the directory for one request.
type Principal struct {
	ID       string
	Username string
}

// User is a directory user row, including the login secret hash.
type User struct {
	ID           string
	Username     string
	PasswordHash *string
}

// ModelVersion is a named, versioned inference target bound to exactly one
// provider. (ModelName, Version) is unique in the directory.
type ModelVersion struct {
	ID                  string
	ModelName           string
	Version             string
	ProviderKind        string
	UpstreamModel       string
	InternalEndpointURL string
}

// Policy is a fixed-window rate-limit rule attached to a group/model-version
// permission. A nil *Policy on an allowed permission means unlimited.
type Policy struct {
	WindowSeconds int
	MaxRequests   int
}

// Permission is one group's permission row for a model version as seen
// through a principal's memberships.
type Permission struct {
	Allowed bool
	Policy  *Policy
}

// RequestLog is one request-outcome record for the logging sink.
type RequestLog struct {
	PrincipalID *string
	ModelName   string
	Version     string
	Outcome     string
	StatusCode  int
	LatencyMs   int
	Detail      *string
}
