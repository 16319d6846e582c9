package sink_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"housing-chat/domain/chat"
	"housing-chat/domain/event"
	"housing-chat/mocks"
	"housing-chat/sink"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSearchSink_Consume(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockIndex := mocks.NewMockMessageIndex(ctrl)
	// Silencing logs for clean test output
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("Flush triggered by size limit", func(t *testing.T) {
		maxSize := 3
		s := sink.NewSearchSink(mockIndex, logger, maxSize, 10*time.Second)

		mockIndex.EXPECT().
			IndexBatch(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, messages []chat.Message) error {
				req.Len(messages, maxSize)
				return nil
			}).Times(1)

		for i := 0; i < maxSize; i++ {
			req.NoError(s.Consume(ctx, event.MessageStored{Message: chat.Message{ID: chat.MessageID(fmt.Sprintf("m-%d", i))}}))
		}
	})

	t.Run("Flush triggered by timeout", func(t *testing.T) {
		timeout := 50 * time.Millisecond
		s := sink.NewSearchSink(mockIndex, logger, 100, timeout)

		done := make(chan struct{})
		mockIndex.EXPECT().
			IndexBatch(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, messages []chat.Message) error {
				req.Len(messages, 1)
				close(done)
				return nil
			}).Times(1)

		req.NoError(s.Consume(ctx, event.MessageStored{Message: chat.Message{ID: "m-1"}}))

		select {
		case <-done:
		case <-time.After(time.Second):
			req.Fail("Timeout flush did not happen")
		}
	})

	t.Run("Other events are ignored", func(t *testing.T) {
		s := sink.NewSearchSink(mockIndex, logger, 1, time.Second)

		// No IndexBatch expectation: gomock fails on any call
		req.NoError(s.Consume(ctx, event.PresenceChanged{}))
		req.NoError(s.Flush(ctx))
	})
}
