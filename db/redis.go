package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jamesdoliver/featune-sub001/config"
	"github.com/jamesdoliver/featune-sub001/model"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the global Redis client.
var RedisClient *redis.Client

// Abandoned carts expire on their own; settlement never depends on them.
const cartTTL = 7 * 24 * time.Hour

// ConnectRedis initializes the Redis connection.
func ConnectRedis(cfg *config.Config) error {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return nil
}

// CloseRedis closes the Redis connection.
func CloseRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}

// CartKey builds the Redis key for a buyer's cart.
func CartKey(buyerID int64) string {
	return fmt.Sprintf("cart:%d", buyerID)
}

func cartField(item model.CartItem) string {
	return fmt.Sprintf("%d:%s", item.TrackID, item.LicenseType)
}

// AddToCart puts an item into the buyer's cart. Adding the same track with
// the same license type twice is a no-op overwrite.
func AddToCart(ctx context.Context, buyerID int64, item model.CartItem) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	itemJSON, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal cart item: %w", err)
	}

	key := CartKey(buyerID)
	if err := RedisClient.HSet(ctx, key, cartField(item), itemJSON).Err(); err != nil {
		return fmt.Errorf("failed to add item to cart: %w", err)
	}

	if err := RedisClient.Expire(ctx, key, cartTTL).Err(); err != nil {
		return fmt.Errorf("failed to set cart expiration: %w", err)
	}

	return nil
}

// RemoveFromCart deletes one item from the buyer's cart.
func RemoveFromCart(ctx context.Context, buyerID int64, item model.CartItem) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	if err := RedisClient.HDel(ctx, CartKey(buyerID), cartField(item)).Err(); err != nil {
		return fmt.Errorf("failed to remove item from cart: %w", err)
	}

	return nil
}

// GetCart returns all items in the buyer's cart.
func GetCart(ctx context.Context, buyerID int64) ([]model.CartItem, error) {
	if RedisClient == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	values, err := RedisClient.HGetAll(ctx, CartKey(buyerID)).Result()
	if err != nil {
		if err == redis.Nil {
			return []model.CartItem{}, nil
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	items := make([]model.CartItem, 0, len(values))
	for _, itemJSON := range values {
		var item model.CartItem
		if err := json.Unmarshal([]byte(itemJSON), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cart item: %w", err)
		}
		items = append(items, item)
	}

	return items, nil
}

// ClearCart empties the buyer's cart.
func ClearCart(ctx context.Context, buyerID int64) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	if err := RedisClient.Del(ctx, CartKey(buyerID)).Err(); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}

	return nil
}
