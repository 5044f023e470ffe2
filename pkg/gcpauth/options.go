// Package gcpauth turns GCP settings into client options shared by the
// Pub/Sub and BigQuery clients.
package gcpauth

import (
	"strings"

	"google.golang.org/api/option"

	"github.com/angelmondragon/lensdist-backend/pkg/config"
)

// Options returns explicit credentials when configured. Inline JSON wins
// over a key file path; with neither, the client falls back to ADC.
func Options(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(strings.TrimSpace(gcp.ApplicationCredentials))}
	}
	return nil
}
