package store

// Store is the string key-value contract the persistence layer writes through.
// A missing key is reported with ok=false, not with an error.
type Store interface {
	GetItem(key string) (value string, ok bool, err error)
	SetItem(key, value string) error
}
