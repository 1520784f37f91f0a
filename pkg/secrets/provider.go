package secrets

import "context"

// Provider fetches secret material, such as the Crypto Pay API token.
// Concrete implementations (AWS, GCP, etc.) can satisfy this.
type Provider interface {
	// GetSecret retrieves a secret by name and returns its key-value fields.
	GetSecret(ctx context.Context, key string) (map[string]string, error)
}
