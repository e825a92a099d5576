// Package appid loads the application identity, falling back to the copy
// compiled into the binary when no .fulmen/app.yaml is reachable.
package appid

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/appidentity"

	appidentityassets "github.com/ghostpni/ghostpni/internal/assets/appidentity"
)

var embedErr error

func init() {
	embedErr = appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML)
}

// Get returns the identity. FULMEN_APP_IDENTITY_PATH and an on-disk
// .fulmen/app.yaml take precedence over the embedded copy.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	identity, err := appidentity.Get(ctx)
	if err != nil && embedErr != nil {
		return nil, fmt.Errorf("%w (embedded identity rejected: %v)", err, embedErr)
	}
	return identity, err
}

// Namespace returns the telemetry namespace, defaulting to the binary name.
func Namespace(identity *appidentity.Identity) string {
	if identity == nil {
		return ""
	}
	if ns := identity.TelemetryNamespace(); ns != "" {
		return ns
	}
	return identity.BinaryName
}
