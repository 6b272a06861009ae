package auth

import "sync"

var (
	storeMu         sync.RWMutex
	registeredStore Store
)

// RegisterTokenStore sets the process wide credential store.
func RegisterTokenStore(store Store) {
	storeMu.Lock()
	registeredStore = store
	storeMu.Unlock()
}

// GetTokenStore returns the registered store, defaulting to a file store in
// the current directory when none was registered.
func GetTokenStore() Store {
	storeMu.RLock()
	s := registeredStore
	storeMu.RUnlock()
	if s != nil {
		return s
	}
	storeMu.Lock()
	defer storeMu.Unlock()
	if registeredStore == nil {
		registeredStore = NewFileTokenStore(".")
	}
	return registeredStore
}
