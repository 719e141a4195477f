// Package kvstore is the boundary to the host's key-value persistence. Two
// namespaces mirror the extension storage areas: "synced" for settings and
// rules, "local" for statistics. Writes emit change notifications so
// in-memory caches can resubscribe instead of polling.
package kvstore

// Namespace names.
const (
	NamespaceSynced = "synced"
	NamespaceLocal  = "local"
)

// Well-known keys. Names match the legacy extension storage layout so an
// imported database is readable without translation.
const (
	KeySettings    = "settings"
	KeyRules       = "blockedDomainsV2"
	KeyLegacyRules = "blockedDomains"
	KeyStatistics  = "statistics"
)

// Change identifies a mutated entry. Subscribers re-read the value rather
// than receiving it inline, matching the storage-change-event model.
type Change struct {
	Namespace string
	Key       string
}

// Store is the persistence contract. Values are JSON-encoded records; Get
// reports presence separately from errors so absent keys are not failures.
type Store interface {
	// Get unmarshals the value for key into v, reporting whether it existed.
	Get(namespace, key string, v any) (bool, error)

	// Put marshals v under key and notifies subscribers.
	Put(namespace, key string, v any) error

	// Delete removes key and notifies subscribers. Deleting an absent key is
	// a no-op.
	Delete(namespace, key string) error

	// Subscribe registers a change listener. The returned cancel function
	// must be called to release it. A slow listener may miss intermediate
	// notifications; listeners are expected to re-read full values on every
	// event, so a coalesced stream is sufficient.
	Subscribe() (<-chan Change, func())

	// Close releases the underlying database.
	Close() error
}
