package messenger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/psy-protocol/doge-bridge/internal/ledger"
	"github.com/psy-protocol/doge-bridge/internal/merkle"
	"github.com/psy-protocol/doge-bridge/pkg/logging"
)

// Publisher broadcasts raw envelope bytes; the gossip Node satisfies it.
type Publisher interface {
	Publish(ctx context.Context, data []byte) error
}

// Poster is the bridge's message-post capability. Every post is journaled in
// the ledger outbox before the gossip publish, so an unpublished transaction
// survives a restart and can be flushed later.
type Poster struct {
	store *ledger.Store
	pub   Publisher
	ctx   context.Context
	log   *logging.Logger
}

// NewPoster wires a poster to the ledger outbox and an optional publisher.
// With a nil publisher posts stay pending in the outbox.
func NewPoster(ctx context.Context, store *ledger.Store, pub Publisher) *Poster {
	return &Poster{
		store: store,
		pub:   pub,
		ctx:   ctx,
		log:   logging.GetDefault().Component("messenger"),
	}
}

// PostMessage journals and broadcasts one signed withdrawal transaction.
func (p *Poster) PostMessage(nonce uint32, sighash merkle.Hash, txBytes []byte) error {
	id, err := p.store.EnqueueTx(nonce, sighash, txBytes)
	if err != nil {
		return fmt.Errorf("failed to journal tx: %w", err)
	}

	if p.pub == nil {
		p.log.Warn("No publisher attached, tx left pending", "sighash", sighash)
		return nil
	}

	data, err := EncodeEnvelope(nonce, sighash, txBytes)
	if err != nil {
		return err
	}
	if err := p.pub.Publish(p.ctx, data); err != nil {
		// The outbox entry stays pending; FlushPending retries it.
		p.log.Warn("Publish failed, tx left pending", "sighash", sighash, "error", err)
		return nil
	}

	if err := p.store.MarkPublished(id); err != nil {
		return fmt.Errorf("failed to mark tx published: %w", err)
	}
	p.log.Info("Broadcast withdrawal tx", "nonce", nonce, "sighash", sighash, "bytes", len(txBytes))
	return nil
}

// FlushPending republishes outbox entries that never made it onto the wire.
func (p *Poster) FlushPending(limit int) (int, error) {
	if p.pub == nil {
		return 0, nil
	}

	pending, err := p.store.PendingTxs(limit)
	if err != nil {
		return 0, err
	}

	flushed := 0
	for _, e := range pending {
		data, err := EncodeEnvelope(e.Nonce, e.Sighash, e.Payload)
		if err != nil {
			return flushed, err
		}
		if err := p.pub.Publish(p.ctx, data); err != nil {
			return flushed, fmt.Errorf("failed to publish pending tx %s: %w", e.ID, err)
		}
		if err := p.store.MarkPublished(e.ID); err != nil {
			return flushed, err
		}
		flushed++
	}
	return flushed, nil
}

// RunFlusher periodically flushes the pending outbox until ctx is done.
func (p *Poster) RunFlusher(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			n, err := p.FlushPending(100)
			if err != nil {
				p.log.Warn("Outbox flush failed", "error", err)
			} else if n > 0 {
				p.log.Info("Flushed pending txs", "count", n)
			}
		}
	}
}

// MemoryPublisher collects published envelopes in memory.
type MemoryPublisher struct {
	mu        sync.Mutex
	published [][]byte
	Err       error
}

// Publish records the envelope bytes, or fails with the configured error.
func (m *MemoryPublisher) Publish(ctx context.Context, data []byte) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.published = append(m.published, buf)
	return nil
}

// Published returns a copy of everything published so far.
func (m *MemoryPublisher) Published() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.published))
	copy(out, m.published)
	return out
}
