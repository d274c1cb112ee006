// Package runtime provides environment/runtime detection helpers shared across logwatch.
package runtime

import "sync"

// strictIdentityModeOnce caches the strict identity mode check at startup.
var (
	strictIdentityModeOnce  sync.Once
	strictIdentityModeValue bool
)

// ResetStrictIdentityModeCache resets the cached strict identity mode value.
// This should only be used in tests.
func ResetStrictIdentityModeCache() {
	strictIdentityModeOnce = sync.Once{}
	strictIdentityModeValue = false
}

// StrictIdentityMode returns true when the service should fail closed on
// identity/transport boundaries (e.g. refuse to dial a peer or cloud source
// over plain http). Production always runs strict; other environments can be
// relaxed for local development against directory/syslog sources.
func StrictIdentityMode() bool {
	strictIdentityModeOnce.Do(func() {
		strictIdentityModeValue = Env() == Production
	})
	return strictIdentityModeValue
}
