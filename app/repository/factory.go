package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Repositories bundles the account repositories used by authorization and auth middleware.
type Repositories struct {
	User       UserRepository
	Capability CapabilityRepository
}

// NewRepositories creates all repositories over one connection
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:       NewUserRepository(db),
		Capability: NewCapabilityRepository(db),
	}
}

var (
	globalRepos *Repositories
	reposOnce   sync.Once
)

// InitializeRepositories builds the process-wide repositories once.
func InitializeRepositories(db *gorm.DB) {
	reposOnce.Do(func() {
		globalRepos = NewRepositories(db)
	})
}

// GetGlobalRepositories returns the repositories built by InitializeRepositories.
func GetGlobalRepositories() *Repositories {
	if globalRepos == nil {
		panic("repositories not initialized: call InitializeRepositories first")
	}
	return globalRepos
}
