package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ppiankov/toolwarden/internal/alert"
	"github.com/ppiankov/toolwarden/internal/audit"
	"github.com/ppiankov/toolwarden/internal/config"
	"github.com/ppiankov/toolwarden/internal/ledger"
	"github.com/ppiankov/toolwarden/internal/queue"
	"github.com/ppiankov/toolwarden/internal/receipt"
	receiptmongo "github.com/ppiankov/toolwarden/internal/receipt/mongo"
	"github.com/ppiankov/toolwarden/internal/rules"
	"github.com/ppiankov/toolwarden/internal/server"
	"github.com/ppiankov/toolwarden/internal/toolset"
)

// stack is everything a long-running surface needs: rules, tools, and the
// recorders every call is reported to.
type stack struct {
	holder   *server.Holder
	tools    *toolset.Registry
	process  *ledger.Ledger
	recorder ledger.Recorder
	receipts receipt.Store
	queue    *queue.Store

	closers []func(context.Context) error
}

// buildStack wires backends from c. reg may be nil to skip metrics.
func buildStack(ctx context.Context, c *config.Config, reg prometheus.Registerer) (_ *stack, err error) {
	logger := slog.Default().With("component", "cli")
	s := &stack{process: ledger.New()}
	defer func() {
		if err != nil {
			s.Close(context.Background())
		}
	}()

	s.holder, err = server.NewHolder(c.Rules.Path, rules.Options{Strict: c.Rules.Strict})
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	recorders := []ledger.Recorder{s.process}
	if reg != nil {
		recorders = append(recorders, ledger.NewMetrics(reg))
	}

	if c.Ledger.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     c.Ledger.RedisAddr,
			Password: c.Ledger.RedisPassword,
			DB:       c.Ledger.RedisDB,
		})
		s.closers = append(s.closers, func(context.Context) error { return client.Close() })
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", c.Ledger.RedisAddr, err)
		}
		shared, err := ledger.NewRedis(client, c.Ledger.Prefix, c.Ledger.Scope)
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, shared)
		logger.Info("shared usage ledger enabled", "redis", c.Ledger.RedisAddr, "scope", c.Ledger.Scope)
	}

	if c.Audit.Path != "" {
		log, err := audit.Open(c.Audit.Path)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) error { return log.Close() })
		recorders = append(recorders, audit.Recorder(log, s.holder.Hash))
	}
	if c.Alert.URL != "" {
		d := alert.NewDispatcher([]alert.Config{{
			URL:      c.Alert.URL,
			Format:   c.Alert.Format,
			Outcomes: c.Alert.Outcomes,
			Headers:  c.Alert.Headers,
		}}, s.holder.Hash)
		s.closers = append(s.closers, func(context.Context) error { d.Wait(); return nil })
		recorders = append(recorders, d)
	}
	s.recorder = ledger.Multi(recorders...)

	s.receipts, err = openReceipts(ctx, c.Receipts, s)
	if err != nil {
		return nil, err
	}

	if c.Queue.Path != "" {
		q, err := queue.Open(c.Queue.Path)
		if err != nil {
			return nil, err
		}
		s.queue = q
		s.closers = append(s.closers, func(context.Context) error { return q.Close() })
	}

	s.tools = toolset.Builtin(toolset.Deps{Queue: s.queue, Receipts: s.receipts})
	return s, nil
}

func openReceipts(ctx context.Context, c config.ReceiptsConfig, s *stack) (receipt.Store, error) {
	if c.MongoURI != "" {
		client, err := mongo.Connect(options.Client().ApplyURI(c.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		s.closers = append(s.closers, client.Disconnect)

		store, err := receiptmongo.New(receiptmongo.Options{
			Client:     client,
			Database:   c.Database,
			Collection: c.Collection,
			Timeout:    c.Timeout,
		})
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, c.Timeout)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		return store, nil
	}
	if c.Path != "" {
		return receipt.NewJSONLStore(c.Path)
	}
	return nil, nil
}

// Close releases every backend in reverse order of opening.
func (s *stack) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	s.closers = nil
	return errors.Join(errs...)
}
