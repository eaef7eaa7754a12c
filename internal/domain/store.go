package domain

// Txn is a transactional view of the key-value store. Writes made through a
// Txn become visible together when the enclosing Update returns nil.
type Txn interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// KeyValueStore is the persistence contract the caches are built on.
// Get on a missing key returns (nil, false, nil); Delete on a missing key is a no-op.
type KeyValueStore interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error

	// Keys lists stored keys that start with prefix
	Keys(prefix string) ([]string, error)

	// Update runs fn against a single transaction; all writes commit or none do
	Update(fn func(tx Txn) error) error

	Close() error
}
