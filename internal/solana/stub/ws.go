package stub

import (
	"context"
	"fmt"
	"sync"

	"solana-trade-engine/internal/solana"
)

// WSClient implements solana.WSClient in memory. Emit pushes a notification
// to every subscription that mentions the address.
type WSClient struct {
	mu   sync.Mutex
	subs map[chan solana.LogNotification][]string

	// SubscribeErr, when set, is returned by SubscribeLogs.
	SubscribeErr error
}

var _ solana.WSClient = (*WSClient)(nil)

// NewWSClient creates an in-memory subscription client.
func NewWSClient() *WSClient {
	return &WSClient{subs: make(map[chan solana.LogNotification][]string)}
}

// SubscribeLogs registers a subscription.
func (c *WSClient) SubscribeLogs(_ context.Context, filter solana.LogsFilter) (<-chan solana.LogNotification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubscribeErr != nil {
		return nil, c.SubscribeErr
	}
	ch := make(chan solana.LogNotification, 64)
	c.subs[ch] = append([]string(nil), filter.Mentions...)
	return ch, nil
}

// UnsubscribeLogs removes and closes the subscription.
func (c *WSClient) UnsubscribeLogs(_ context.Context, ch <-chan solana.LogNotification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sub := range c.subs {
		if (<-chan solana.LogNotification)(sub) == ch {
			delete(c.subs, sub)
			close(sub)
			return nil
		}
	}
	return fmt.Errorf("unknown subscription")
}

// Emit delivers n to subscriptions mentioning address.
func (c *WSClient) Emit(address string, n solana.LogNotification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch, mentions := range c.subs {
		for _, m := range mentions {
			if m == address {
				ch <- n
				break
			}
		}
	}
}

// Subscriptions returns the number of open subscriptions.
func (c *WSClient) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Close closes every subscription.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		close(ch)
		delete(c.subs, ch)
	}
	return nil
}
