package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// ConnectionManager caches named connection pools so repeated backend
// operations reuse them instead of redialing. Backends typically hold one
// pool for their target database and one for the admin database.
type ConnectionManager struct {
	service *Service

	mu    sync.Mutex
	conns map[string]*sql.DB
}

// NewConnectionManager creates a connection manager backed by the service
func NewConnectionManager(service *Service) *ConnectionManager {
	if service == nil {
		service = NewService()
	}
	return &ConnectionManager{
		service: service,
		conns:   make(map[string]*sql.DB),
	}
}

// Get returns the pool registered under name, opening it on first use
func (cm *ConnectionManager) Get(ctx context.Context, name, driver string, settings *ConnectionSettings) (*sql.DB, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if db, ok := cm.conns[name]; ok {
		return db, nil
	}

	db, err := cm.service.Connect(ctx, driver, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection %q: %w", name, err)
	}

	cm.conns[name] = db
	return db, nil
}

// Invalidate closes and forgets the pool registered under name
func (cm *ConnectionManager) Invalidate(name string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	db, ok := cm.conns[name]
	if !ok {
		return nil
	}
	delete(cm.conns, name)
	return cm.service.Close(db)
}

// CloseAll closes every cached pool. Safe to call more than once.
func (cm *ConnectionManager) CloseAll() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var firstErr error
	for name, db := range cm.conns {
		if err := cm.service.Close(db); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close connection %q: %w", name, err)
		}
		delete(cm.conns, name)
	}
	return firstErr
}
