package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/NexaFlowAI/voice-widget-service/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type keyKind string

const (
	keyProfile     keyKind = "profile"
	keyLastCall    keyKind = "last_call"
	keyChatSession keyKind = "chat_session"
)

const keyPrefix = "nexaflow:widget"

// visitorTTL mirrors "lifetime = browser storage lifetime": entries live a
// long time and every write refreshes the clock.
const visitorTTL = 180 * 24 * time.Hour

// RedisStore is the production Store backed by Redis
type RedisStore struct {
	client *redis.Client
}

// RedisOptions configures the Redis connection
type RedisOptions struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", opts.Host, opts.Port),
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func visitorKey(kind keyKind, visitorID string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, kind, visitorID)
}

// SaveProfile writes the lead profile as a JSON blob
func (s *RedisStore) SaveProfile(ctx context.Context, visitorID string, lead *domain.LeadProfile) error {
	data, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("failed to marshal lead profile: %w", err)
	}
	return s.client.Set(ctx, visitorKey(keyProfile, visitorID), data, visitorTTL).Err()
}

// GetProfile returns the stored profile, or (nil, nil) when absent
func (s *RedisStore) GetProfile(ctx context.Context, visitorID string) (*domain.LeadProfile, error) {
	val, err := s.client.Get(ctx, visitorKey(keyProfile, visitorID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var lead domain.LeadProfile
	if err := json.Unmarshal([]byte(val), &lead); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lead profile: %w", err)
	}
	return &lead, nil
}

// SetLastCallTime stores the timestamp as epoch milliseconds
func (s *RedisStore) SetLastCallTime(ctx context.Context, visitorID string, t time.Time) error {
	return s.client.Set(ctx, visitorKey(keyLastCall, visitorID), strconv.FormatInt(t.UnixMilli(), 10), visitorTTL).Err()
}

// GetLastCallTime returns the stored timestamp, or the zero time when absent
func (s *RedisStore) GetLastCallTime(ctx context.Context, visitorID string) (time.Time, error) {
	val, err := s.client.Get(ctx, visitorKey(keyLastCall, visitorID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}

	millis, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// Corrupt value resets the limiter to "allowed", same as cleared
		// browser storage would.
		return time.Time{}, nil
	}
	return time.UnixMilli(millis), nil
}

// ChatSessionID mints the durable chat session on first use
func (s *RedisStore) ChatSessionID(ctx context.Context, visitorID string) (domain.ChatSession, error) {
	key := visitorKey(keyChatSession, visitorID)

	val, err := s.client.Get(ctx, key).Result()
	if err == nil {
		var session domain.ChatSession
		if jsonErr := json.Unmarshal([]byte(val), &session); jsonErr == nil && session.SessionID != "" {
			return session, nil
		}
		// fall through and re-mint a corrupt entry
	} else if !errors.Is(err, redis.Nil) {
		return domain.ChatSession{}, err
	}

	session := domain.ChatSession{
		SessionID: uuid.New().String(),
		CreatedAt: time.Now(),
	}
	data, err := json.Marshal(session)
	if err != nil {
		return domain.ChatSession{}, fmt.Errorf("failed to marshal chat session: %w", err)
	}

	// SetNX keeps the first minted session if two requests race
	ok, err := s.client.SetNX(ctx, key, data, visitorTTL).Result()
	if err != nil {
		return domain.ChatSession{}, err
	}
	if !ok {
		if val, err := s.client.Get(ctx, key).Result(); err == nil {
			var existing domain.ChatSession
			if json.Unmarshal([]byte(val), &existing) == nil && existing.SessionID != "" {
				return existing, nil
			}
		}
	}
	return session, nil
}
