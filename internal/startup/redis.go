package startup

import (
	"context"
	"os"
	"time"

	"github.com/corpchat/internal/logger"
	redisstorage "github.com/corpchat/internal/storage/redis"
)

// ConnectRedisWithRetry подключается к Redis (сессии, push-подписки,
// rate-limit) с повторами. logPrefix добавляется к сообщениям лога.
func ConnectRedisWithRetry(redisURL string, maxWait time.Duration, logPrefix string) *redisstorage.Client {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := redisstorage.New(ctx, redisURL)
		cancel()
		if err != nil {
			if time.Now().After(deadline) {
				logger.Errorf("%ssession store (gave up after %v): %v", logPrefix, maxWait, err)
				os.Exit(1)
			}
			logger.Errorf("%ssession store connect failed, retry in %v: %v", logPrefix, backoff, err)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		return client
	}
}
