package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/corpchat/internal/logger"
)

// startListener держит выделенное соединение с LISTEN docstore_changes и
// перезапускает подписки при каждом уведомлении. Триггер на documents шлёт
// имя коллекции в payload; при обрыве соединение пересоздаётся с бэкоффом.
func (s *Store) startListener(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("docstore: acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN docstore_changes"); err != nil {
		conn.Release()
		return fmt.Errorf("docstore: listen: %w", err)
	}

	go func() {
		defer close(s.listenDone)
		defer conn.Release()
		backoff := time.Second
		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				logger.Errorf("docstore: wait for notification: %v", err)
				conn.Release()
				for {
					select {
					case <-ctx.Done():
						// conn уже освобождён, второй Release в defer безопасен
						return
					case <-time.After(backoff):
					}
					conn, err = s.pool.Acquire(ctx)
					if err != nil {
						logger.Errorf("docstore: reacquire listen connection: %v", err)
						if backoff < 30*time.Second {
							backoff *= 2
						}
						continue
					}
					if _, err := conn.Exec(ctx, "LISTEN docstore_changes"); err != nil {
						logger.Errorf("docstore: re-listen: %v", err)
						conn.Release()
						if backoff < 30*time.Second {
							backoff *= 2
						}
						continue
					}
					backoff = time.Second
					break
				}
				continue
			}
			s.notify(ctx, notification.Payload)
		}
	}()
	return nil
}
