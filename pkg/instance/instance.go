package instance

import (
	"os"

	"github.com/angelmondragon/commerce-core/pkg/env"
)

// GetID identifies the running process in logs. COMMERCE_INSTANCE_ID wins,
// then the platform dyno name, then the hostname.
func GetID() string {
	if id := env.First("COMMERCE_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
