package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/pagesift/models"
)

// Redis is the redis-backed session store for deployments where extraction
// workers share session state.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(addr, pass string, db int, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}),
		ttl:    ttl,
	}
}

func sessKey(id string) string     { return "sess:" + id }
func turnsKey(id string) string    { return "sess:" + id + ":turns" }
func analysisKey(id string) string { return "sess:" + id + ":analysis" }

func (s *Redis) exists(ctx context.Context, id string) error {
	n, err := s.client.Exists(ctx, sessKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Redis) touch(ctx context.Context, id string) {
	pipe := s.client.Pipeline()
	pipe.Expire(ctx, sessKey(id), s.ttl)
	pipe.Expire(ctx, turnsKey(id), s.ttl)
	pipe.Expire(ctx, analysisKey(id), s.ttl)
	_, _ = pipe.Exec(ctx)
}

func (s *Redis) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := s.client.Set(ctx, sessKey(id), time.Now().Format(time.RFC3339), s.ttl).Err(); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Redis) Delete(ctx context.Context, id string) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	return s.client.Del(ctx, sessKey(id), turnsKey(id), analysisKey(id)).Err()
}

func (s *Redis) AppendTurn(ctx context.Context, id string, turn models.ConversationTurn) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	raw, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, turnsKey(id), raw).Err(); err != nil {
		return err
	}
	s.touch(ctx, id)
	return nil
}

func (s *Redis) History(ctx context.Context, id string) ([]models.ConversationTurn, error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}
	raws, err := s.client.LRange(ctx, turnsKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	turns := make([]models.ConversationTurn, 0, len(raws))
	for _, raw := range raws {
		var turn models.ConversationTurn
		if err := json.Unmarshal([]byte(raw), &turn); err != nil {
			continue
		}
		turns = append(turns, turn)
	}
	s.touch(ctx, id)
	return turns, nil
}

func (s *Redis) Analysis(ctx context.Context, id string) (*models.SiteAnalysis, error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}
	raw, err := s.client.Get(ctx, analysisKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var analysis models.SiteAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

func (s *Redis) SetAnalysis(ctx context.Context, id string, analysis models.SiteAnalysis) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	raw, err := json.Marshal(analysis)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, analysisKey(id), raw, s.ttl).Err(); err != nil {
		return err
	}
	s.touch(ctx, id)
	return nil
}

func (s *Redis) Close() error { return s.client.Close() }
