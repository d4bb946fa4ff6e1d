package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tOgg1/storechat/internal/auth"
	"github.com/tOgg1/storechat/internal/chatsync"
	"github.com/tOgg1/storechat/internal/events"
	"github.com/tOgg1/storechat/internal/logging"
)

// StreamConfig configures event streaming behavior.
type StreamConfig struct {
	// ConversationID selects a conversation so its thread is polled too.
	ConversationID string

	// Types filters to specific event types (nil = all).
	Types []events.Type
}

// streamRecord is one JSONL line.
type streamRecord struct {
	Time           time.Time   `json:"time"`
	Type           events.Type `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Content        string      `json:"content,omitempty"`
	Error          string      `json:"error,omitempty"`
	TotalUnread    *int        `json:"total_unread,omitempty"`
}

// StreamEngine is the engine surface the streamer drives.
type StreamEngine interface {
	Start(ctx context.Context) (*chatsync.Handle, error)
	Stop(h *chatsync.Handle) error
	Select(ctx context.Context, conversationID string) error
	Subscribe(id string, filter events.Filter, handler events.Handler) error
	Unsubscribe(id string) error
	TotalUnread() int
}

// EventStreamer writes engine events to an output writer in JSONL format.
type EventStreamer struct {
	engine StreamEngine
	out    io.Writer
	config StreamConfig

	mu       sync.Mutex
	writeErr error
}

// NewEventStreamer creates a new event streamer.
func NewEventStreamer(engine StreamEngine, out io.Writer, config StreamConfig) *EventStreamer {
	return &EventStreamer{engine: engine, out: out, config: config}
}

// Stream polls until the context is cancelled or the session expires.
// Returns nil on graceful shutdown (Ctrl+C).
func (s *EventStreamer) Stream(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logging.Debug().Msg("received interrupt, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	var (
		expiredMu sync.Mutex
		expired   error
	)
	subID := "watch-" + uuid.NewString()
	err := s.engine.Subscribe(subID, events.Filter{}, func(event *events.Event) {
		if event.Type == events.AuthExpired {
			expiredMu.Lock()
			expired = event.Err
			if expired == nil {
				expired = auth.ErrUnauthorized
			}
			expiredMu.Unlock()
			cancel()
		}
		if s.wants(event.Type) {
			s.writeEvent(event)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer func() { _ = s.engine.Unsubscribe(subID) }()

	if s.config.ConversationID != "" {
		if err := s.engine.Select(ctx, s.config.ConversationID); err != nil {
			return err
		}
	}

	handle, err := s.engine.Start(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.engine.Stop(handle) }()

	var done <-chan struct{}
	if handle != nil {
		done = handle.Done()
	}
	select {
	case <-ctx.Done():
	case <-done:
	}

	expiredMu.Lock()
	authErr := expired
	expiredMu.Unlock()
	if authErr != nil {
		return authErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeErr
}

func (s *EventStreamer) wants(t events.Type) bool {
	if len(s.config.Types) == 0 {
		return true
	}
	for _, want := range s.config.Types {
		if want == t {
			return true
		}
	}
	return false
}

// writeEvent writes a single event as JSONL. The first write error sticks.
func (s *EventStreamer) writeEvent(event *events.Event) {
	record := streamRecord{
		Time:           event.Time,
		Type:           event.Type,
		ConversationID: event.ConversationID,
		Content:        event.Content,
	}
	if record.Time.IsZero() {
		record.Time = time.Now().UTC()
	}
	if event.Err != nil {
		record.Error = event.Err.Error()
	}
	if event.Type == events.UnreadUpdated {
		total := s.engine.TotalUnread()
		record.TotalUnread = &total
	}

	data, err := json.Marshal(record)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return
	}
	if err != nil {
		s.writeErr = err
		return
	}
	_, s.writeErr = fmt.Fprintln(s.out, string(data))
}

func newWatchCmd(a *app) *cobra.Command {
	var types []string
	cmd := &cobra.Command{
		Use:   "watch [conversation-id]",
		Short: "Stream sync events as JSON lines",
		Long: `Run the sync engine headless and print every event as one JSON object per line.

When a conversation id is given its thread is polled too and marked read.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config := StreamConfig{}
			if len(args) == 1 {
				config.ConversationID = args[0]
			}
			for _, t := range types {
				config.Types = append(config.Types, events.Type(t))
			}
			return runWatch(cmd, a, config)
		},
	}
	cmd.Flags().StringSliceVar(&types, "type", nil, "only print these event types (repeatable)")
	return cmd
}

func runWatch(cmd *cobra.Command, a *app, config StreamConfig) error {
	engine, err := a.newEngine()
	if err != nil {
		return err
	}
	streamer := NewEventStreamer(engine, cmd.OutOrStdout(), config)
	return commandError("watch", streamer.Stream(cmd.Context()))
}
