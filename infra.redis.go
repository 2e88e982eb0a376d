package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// GetRedisClient provides a ready to use redis client.
func GetRedisClient(ctx context.Context, config *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", config.Redis.Host, config.Redis.Port),
		DialTimeout:  config.Redis.DialTimeout,
		ReadTimeout:  config.Redis.ReadTimeout,
		WriteTimeout: config.Redis.WriteTimeout,
		PoolSize:     config.Redis.PoolSize,
		PoolTimeout:  config.Redis.PoolTimeout,
		Password:     config.Redis.Password,
		Username:     config.Redis.Username,
		DB:           config.Redis.DatabaseIndex,
	})

	// test connection.
	if pong, err := client.Ping(ctx).Result(); pong != "PONG" || err != nil {
		client.Close()
		return nil, fmt.Errorf("test connection failed: %v", err)
	}
	return client, nil
}
