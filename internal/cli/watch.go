package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tOgg1/parley/internal/events"
	"github.com/tOgg1/parley/internal/logging"
	"github.com/tOgg1/parley/internal/metrics"
	"github.com/tOgg1/parley/internal/models"
)

// eventWriter writes engine events as JSONL. Publish delivers from several
// goroutines, so writes are serialized.
type eventWriter struct {
	mu  sync.Mutex
	out io.Writer
	err error
}

func (w *eventWriter) handle(event *models.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	line, err := json.Marshal(event)
	if err != nil {
		w.err = err
		return
	}
	line = append(line, '\n')
	_, w.err = w.out.Write(line)
}

func (w *eventWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		types       []string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch [thread]",
		Short: "Stream engine events as JSON lines",
		Long: `Poll the thread list, and the given thread if any, printing every engine
event as one JSON object per line until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := a.newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if metricsAddr != "" {
				shutdown, err := serveMetrics(ctx, metricsAddr, rt)
				if err != nil {
					return err
				}
				defer shutdown()
			}

			filter := events.Filter{}
			for _, t := range types {
				filter.EventTypes = append(filter.EventTypes, models.EventType(t))
			}
			writer := &eventWriter{out: cmd.OutOrStdout()}
			subscriber := "watch-" + uuid.NewString()
			if err := rt.publisher.Subscribe(subscriber, filter, writer.handle); err != nil {
				return err
			}
			defer rt.publisher.Unsubscribe(subscriber)

			if len(args) == 1 {
				if err := rt.engine.Refresh(ctx); err != nil {
					return fmt.Errorf("load threads: %w", err)
				}
				thread, err := a.resolveThread(rt.engine, args[0])
				if err != nil {
					return err
				}
				if err := rt.engine.OpenThread(ctx, thread.ID); err != nil {
					return err
				}
			}
			rt.engine.ShowSurface()

			logger := logging.Component("cli")
			logger.Debug().Strs("types", types).Msg("watching engine events")

			<-ctx.Done()
			return writer.Err()
		},
	}

	cmd.Flags().StringSliceVar(&types, "type", nil, "only these event types (e.g. messages.updated)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

// serveMetrics exposes the runtime's collectors until the returned func is called.
func serveMetrics(ctx context.Context, addr string, rt *runtime) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(rt.registry))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	logger := logging.Component("cli")
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", listener.Addr().String()).Msg("serving metrics")

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}, nil
}
