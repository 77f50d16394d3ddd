package session

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/PlanFox/internal/pkg/cache"
	"github.com/ManuelReschke/PlanFox/internal/pkg/env"
	"github.com/ManuelReschke/PlanFox/internal/pkg/usercontext"
)

var sessionStore *session.Store

// RedisConfig derives the storage settings from the shared cache client.
// database selects the Redis logical DB (cache uses 0).
func RedisConfig(database int) redis.Config {
	cacheClient := cache.GetClient()
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnvInt("CACHE_PORT", 6379)
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		// Prefer password from the underlying client if present
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}
	return redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: database,
		Reset:    false,
	}
}

func NewSessionStore() *session.Store {
	// Create Redis storage for sessions using database 1 (cache uses DB 0)
	storage := redis.New(RedisConfig(1))

	sessionStore = session.New(session.Config{
		Storage:        storage,
		CookieHTTPOnly: true,
		CookieSecure:   !env.IsDev(),
		Expiration:     time.Hour * 1,
		KeyLookup:      "cookie:session_id",
	})

	return sessionStore
}

// SetSessionStore replaces the shared store (tests use the in-memory default).
func SetSessionStore(store *session.Store) {
	sessionStore = store
}

// Identity is what the login service stored in the shared session under the
// usercontext keys. This service only reads it.
type Identity struct {
	UserID uint
	Email  string
	Name   string
}

// LoadIdentity returns the identity bound to the session, if any.
func LoadIdentity(c *fiber.Ctx) (Identity, bool) {
	if sessionStore == nil {
		return Identity{}, false
	}
	sess, err := sessionStore.Get(c)
	if err != nil {
		return Identity{}, false
	}
	userID, ok := sess.Get(usercontext.KeyUserID).(uint)
	if !ok || userID == 0 {
		return Identity{}, false
	}
	email, _ := sess.Get(usercontext.KeyEmail).(string)
	name, _ := sess.Get(usercontext.KeyUsername).(string)
	return Identity{UserID: userID, Email: email, Name: name}, true
}
