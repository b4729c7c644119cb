// Package producer is the broker-producer pool: one franz-go client per
// configured name, each dialed from its own option map and optional SASL
// password file.
package producer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ncubeanalytics/ingest/internal/apperror"
	"github.com/ncubeanalytics/ingest/internal/config"
	"github.com/ncubeanalytics/ingest/internal/metrics"
)

// brokerClient abstracts the subset of *kgo.Client the pool depends on, so
// tests can substitute a fake broker without dialing a real one.
type brokerClient interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// Pool holds one broker-producer client per name, built once at startup and
// shared read-only for the process lifetime.
type Pool struct {
	producers map[string]brokerClient
	inFlight  map[string]*int64
	names     []string
}

// Build constructs a Pool from configs. Fails with
// apperror.CodeConfigDuplicateProducerName if two entries share a name, or
// surfaces whatever error the broker client's own construction returns.
func Build(configs []config.ProducerConfig) (*Pool, error) {
	p := &Pool{
		producers: make(map[string]brokerClient, len(configs)),
		inFlight:  make(map[string]*int64, len(configs)),
	}

	for _, c := range configs {
		if _, exists := p.producers[c.Name]; exists {
			return nil, apperror.ErrConfigDuplicateProducerName.WithDetails("name", c.Name)
		}

		client, err := newClient(c)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeConfigInvalid, "failed to construct broker client").
				WithField(fmt.Sprintf("producers[%s]", c.Name)).
				WithDetails("name", c.Name)
		}

		p.producers[c.Name] = client
		p.inFlight[c.Name] = new(int64)
		p.names = append(p.names, c.Name)
	}

	return p, nil
}

func newClient(c config.ProducerConfig) (brokerClient, error) {
	opts, err := buildOpts(c)
	if err != nil {
		return nil, err
	}
	return kgo.NewClient(opts...)
}

// Names returns the configured producer names.
func (p *Pool) Names() []string {
	names := make([]string, len(p.names))
	copy(names, p.names)
	return names
}

// Has reports whether name is a configured producer.
func (p *Pool) Has(name string) bool {
	_, ok := p.producers[name]
	return ok
}

// Future resolves once the broker acknowledges (or rejects) one produced
// message. It is backed by a buffered channel of size 1 so the promise
// callback never blocks waiting for a caller that never reads the result.
type Future struct {
	done chan error
}

func newFuture() *Future {
	return &Future{done: make(chan error, 1)}
}

// Wait blocks until the delivery resolves or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case err := <-f.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send produces one message to topic on the named producer and returns a
// Future that resolves on delivery. Send gives no inter-message ordering
// guarantee across concurrent calls; ordering within a request is the
// ingest pipeline's responsibility.
func (p *Pool) Send(ctx context.Context, name, topic, key string, headers []kgo.RecordHeader, payload []byte) (*Future, error) {
	client, ok := p.producers[name]
	if !ok {
		return nil, apperror.ErrConfigUnknownProducer.WithDetails("name", name)
	}

	record := &kgo.Record{
		Topic:   topic,
		Value:   payload,
		Headers: headers,
	}
	if key != "" {
		record.Key = []byte(key)
	}

	counter := p.inFlight[name]
	depth := atomic.AddInt64(counter, 1)
	metrics.Get().SetProducerQueueDepth(name, int(depth))

	future := newFuture()
	client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		depth := atomic.AddInt64(counter, -1)
		metrics.Get().SetProducerQueueDepth(name, int(depth))
		future.done <- err
	})
	return future, nil
}

// Flush drains every producer concurrently, blocking until ctx is done or
// every in-flight delivery resolves. It never imposes its own deadline; the
// caller supplies one via ctx.
func (p *Pool) Flush(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make([]error, len(p.names))

	for i, name := range p.names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			errs[i] = p.producers[name].Flush(ctx)
		}(i, name)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("flush producer %q: %w", p.names[i], err)
		}
	}
	return nil
}

// Close releases every producer's network resources. Call after Flush
// during shutdown.
func (p *Pool) Close() {
	for _, name := range p.names {
		p.producers[name].Close()
	}
}
