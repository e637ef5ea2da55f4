// Package push отправляет Web Push уведомления о новых сообщениях и
// объявлениях. Подписки живут в SessionStore; протухшие (410/404)
// удаляются при первой неудачной доставке.
package push

import (
	"context"
	"encoding/json"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/corpchat/internal/logger"
	"github.com/corpchat/internal/storage"
)

// Subscription — браузерная push-подписка в формате PushManager.subscribe.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

type Notifier struct {
	store storage.SessionStore
	vapid *webpush.Options
}

// NewNotifier возвращает нотификатор; без VAPID-ключей он принимает подписки,
// но ничего не отправляет.
func NewNotifier(store storage.SessionStore, publicKey, privateKey string) *Notifier {
	n := &Notifier{store: store}
	if publicKey != "" && privateKey != "" {
		n.vapid = &webpush.Options{
			Subscriber:      "corpchat-push",
			VAPIDPublicKey:  publicKey,
			VAPIDPrivateKey: privateKey,
			TTL:             30,
		}
	}
	return n
}

// Enabled сообщает, настроена ли отправка.
func (n *Notifier) Enabled() bool { return n.vapid != nil }

func (n *Notifier) Subscribe(ctx context.Context, userID string, sub *Subscription) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return n.store.SavePushSubscription(ctx, userID, string(raw))
}

func (n *Notifier) Unsubscribe(ctx context.Context, userID string) error {
	return n.store.DeletePushSubscriptions(ctx, userID)
}

// Notify шлёт уведомление на все подписки пользователя. Ошибки доставки не
// прерывают рассылку; мёртвые endpoints вычищаются.
func (n *Notifier) Notify(ctx context.Context, userID string, note *Notification) {
	if n.vapid == nil {
		return
	}
	raws, err := n.store.ListPushSubscriptions(ctx, userID)
	if err != nil {
		logger.Errorf("push: list subscriptions %s: %v", userID, err)
		return
	}
	if len(raws) == 0 {
		return
	}
	payload, err := json.Marshal(note)
	if err != nil {
		logger.Errorf("push: encode payload: %v", err)
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for _, raw := range raws {
		var sub Subscription
		if json.Unmarshal([]byte(raw), &sub) != nil || sub.Endpoint == "" {
			continue
		}
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		}
		resp, err := webpush.SendNotificationWithContext(sendCtx, payload, wpSub, n.vapid)
		if err != nil {
			logger.Errorf("push: send to %s: %v", userID, err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == 410 || resp.StatusCode == 404 {
			// endpoint мёртв; убираем всю подписку, браузер переподпишется
			if err := n.store.DeletePushSubscriptions(sendCtx, userID); err != nil {
				logger.Errorf("push: drop dead subscription %s: %v", userID, err)
			}
		}
	}
}
