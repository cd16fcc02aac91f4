package state

import (
	"time"

	"cssapply/loader"
)

// newLocalEnv creates a new LocalEnv instance with default values
func newLocalEnv() *LocalEnv {
	return &LocalEnv{
		start:   time.Now(),
		loaders: make(map[string]*loader.CachedLoader),
	}
}
