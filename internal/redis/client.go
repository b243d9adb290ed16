package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"registration-service/internal/config"
	"registration-service/internal/models"
)

// Client wraps the Redis client with application-specific methods
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection to Redis
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key prefixes
const (
	SessionKeyPrefix = "regsession:"
	IntentKeyPrefix  = "intent:"
)

// DefaultIntentTTL is how long an unconsumed intent reference is kept.
// Intents older than this are recreated rather than reused.
const DefaultIntentTTL = 24 * time.Hour

// SaveSession stores a registration session under its ID.
func (c *Client) SaveSession(ctx context.Context, session *models.RegistrationSession, ttl time.Duration) error {
	key := SessionKeyPrefix + session.ID

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal registration session: %w", err)
	}

	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// GetSession retrieves a registration session. Returns (nil, nil) when the
// session does not exist or has expired.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*models.RegistrationSession, error) {
	key := SessionKeyPrefix + sessionID

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registration session: %w", err)
	}

	var session models.RegistrationSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal registration session: %w", err)
	}

	return &session, nil
}

// IntentRef is the cached payment continuation for a (business, plan) pair.
// It is what makes intent creation idempotent: repeated requests for the same
// pair return the same client secret instead of minting a new intent.
type IntentRef struct {
	IntentID     string    `json:"intent_id"`
	ClientSecret string    `json:"client_secret"`
	Kind         string    `json:"kind"`
	CustomerID   string    `json:"customer_id"`
	BusinessID   string    `json:"business_id"`
	PlanKey      string    `json:"plan_key"`
	CreatedAt    time.Time `json:"created_at"`
}

func intentKey(businessID, planKey string) string {
	return IntentKeyPrefix + businessID + ":" + planKey
}

// PutIntentRefIfAbsent stores an intent reference for the (business, plan)
// pair unless one already exists. Returns the stored reference and whether
// the given one won the write. Losing the race means another request already
// created an intent; the caller should reuse the returned reference.
func (c *Client) PutIntentRefIfAbsent(ctx context.Context, ref *IntentRef, ttl time.Duration) (*IntentRef, bool, error) {
	key := intentKey(ref.BusinessID, ref.PlanKey)
	ref.CreatedAt = time.Now().UTC()

	data, err := json.Marshal(ref)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal intent ref: %w", err)
	}

	set, err := c.rdb.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to store intent ref: %w", err)
	}
	if set {
		return ref, true, nil
	}

	existing, err := c.GetIntentRef(ctx, ref.BusinessID, ref.PlanKey)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// Expired between SetNX and Get; treat ours as current.
		if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
			return nil, false, fmt.Errorf("failed to store intent ref: %w", err)
		}
		return ref, true, nil
	}
	return existing, false, nil
}

// GetIntentRef retrieves the intent reference for a (business, plan) pair.
// Returns (nil, nil) when none exists.
func (c *Client) GetIntentRef(ctx context.Context, businessID, planKey string) (*IntentRef, error) {
	data, err := c.rdb.Get(ctx, intentKey(businessID, planKey)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get intent ref: %w", err)
	}

	var ref IntentRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("failed to unmarshal intent ref: %w", err)
	}
	return &ref, nil
}

// DeleteIntentRef removes the intent reference for a (business, plan) pair.
// Called once the intent is consumed by activation, or abandoned.
func (c *Client) DeleteIntentRef(ctx context.Context, businessID, planKey string) error {
	return c.rdb.Del(ctx, intentKey(businessID, planKey)).Err()
}
