package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/pagesift/config"
	"github.com/mohammad-safakhou/pagesift/models"
)

// ErrNotFound signals an unknown session identifier. Callers surface it as a
// "create a session first" instruction instead of silently creating one.
var ErrNotFound = errors.New("session not found")

// Store owns per-session conversation and analysis state. Turns within one
// session append in submission order; different sessions never block each
// other.
type Store interface {
	Create(ctx context.Context) (string, error)
	Delete(ctx context.Context, id string) error
	AppendTurn(ctx context.Context, id string, turn models.ConversationTurn) error
	History(ctx context.Context, id string) ([]models.ConversationTurn, error)
	Analysis(ctx context.Context, id string) (*models.SiteAnalysis, error)
	SetAnalysis(ctx context.Context, id string, analysis models.SiteAnalysis) error
	Close() error
}

type StoreType string

const (
	InMemoryStore StoreType = "inmemory"
	RedisStore    StoreType = "redis"
)

// NewStore creates a session store of the configured type.
func NewStore(cfg config.SessionsConfig, redisCfg config.RedisConfig) (Store, error) {
	switch StoreType(cfg.Store) {
	case InMemoryStore, "":
		return NewInMemory(cfg.TTL), nil
	case RedisStore:
		return NewRedis(fmt.Sprintf("%s:%s", redisCfg.Host, redisCfg.Port), redisCfg.Pass, redisCfg.DB, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported session store type: %s", cfg.Store)
	}
}
