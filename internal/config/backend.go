package config

import "errors"

// ConfigBackend is where non-secret settings persist between runs: the
// `defaults` domain on macOS and a JSON file elsewhere. Keys are the dotted
// names from the key table, e.g. "search.max_results".
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

// errSecretNotFound is returned by readSecret when the store has no entry
// for the account. Any other error means the store itself is unreadable.
var errSecretNotFound = errors.New("secret not found")
