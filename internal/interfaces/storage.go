package interfaces

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	HoldingsStorage() HoldingsStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
