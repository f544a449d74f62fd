package ingest

import (
	"sync"

	"github.com/rs/zerolog"
)

// RunMutexManager hands out one mutex per run name so ingestions of the
// same run serialize while different runs proceed fully in parallel. There
// is deliberately no global ingestion lock.
type RunMutexManager struct {
	mutexes map[string]*sync.Mutex
	mapLock sync.RWMutex
	logger  zerolog.Logger
}

// NewRunMutexManager creates a new run mutex manager
func NewRunMutexManager(logger zerolog.Logger) *RunMutexManager {
	return &RunMutexManager{
		mutexes: make(map[string]*sync.Mutex),
		logger:  logger.With().Str("component", "RunMutexManager").Logger(),
	}
}

// GetMutex returns the mutex for the given run name, creating it on first use.
func (rmm *RunMutexManager) GetMutex(runName string) *sync.Mutex {
	rmm.mapLock.RLock()
	mutex, exists := rmm.mutexes[runName]
	rmm.mapLock.RUnlock()

	if exists {
		return mutex
	}

	rmm.mapLock.Lock()
	defer rmm.mapLock.Unlock()

	// Double-check after acquiring write lock
	if mutex, exists := rmm.mutexes[runName]; exists {
		return mutex
	}

	mutex = &sync.Mutex{}
	rmm.mutexes[runName] = mutex
	return mutex
}

// CleanupUnusedMutexes removes mutexes for runs that are no longer active.
func (rmm *RunMutexManager) CleanupUnusedMutexes(activeRuns []string) {
	activeSet := make(map[string]struct{})
	for _, name := range activeRuns {
		activeSet[name] = struct{}{}
	}

	rmm.mapLock.Lock()
	defer rmm.mapLock.Unlock()

	for name := range rmm.mutexes {
		if _, active := activeSet[name]; !active {
			delete(rmm.mutexes, name)
		}
	}

	rmm.logger.Debug().
		Int("active_mutexes", len(rmm.mutexes)).
		Msg("Cleaned up unused run mutexes")
}
