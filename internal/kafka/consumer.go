package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int

	RetryBase time.Duration
	RetryMax  time.Duration
}

func NewConsumer(brokers []string, group string, topics []string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, RetryBase: 200 * time.Millisecond, RetryMax: 10 * time.Second}
}

// workerFor: satu partisi selalu ke worker yang sama supaya offset di-commit berurutan.
func workerFor(m kafka.Message, workers int) int {
	return m.Partition % workers
}

// handleWithRetry menjalankan h sampai sukses atau ctx selesai. Pesan yang gagal
// tidak pernah dilewati, jadi offset sesudahnya tidak ikut ter-commit.
func handleWithRetry(ctx context.Context, h Handler, m kafka.Message, base, ceiling time.Duration) error {
	backoff := base
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := h(ctx, m)
		if err == nil {
			return nil
		}
		zap.L().Error("handler failed",
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > ceiling {
			backoff = ceiling
		}
	}
}

func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	queues := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup

	for i := range queues {
		queues[i] = make(chan kafka.Message, 256)
		wg.Add(1)
		go func(jobs <-chan kafka.Message) {
			defer wg.Done()
			for m := range jobs {
				if err := handleWithRetry(ctx, h, m, c.RetryBase, c.RetryMax); err != nil {
					continue // shutdown: tidak di-commit, akan dikirim ulang
				}
				// commit on success
				if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
					zap.L().Warn("commit failed", zap.String("topic", m.Topic), zap.Error(err))
				}
			}
		}(queues[i])
	}
	defer wg.Wait()
	defer func() {
		for _, q := range queues {
			close(q)
		}
	}()

	// dispatcher loop
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			// kecilkan noise saat shutdown
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case queues[workerFor(m, c.workers)] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}
