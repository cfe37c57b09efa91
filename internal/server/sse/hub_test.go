package sse

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ipcam-analysis/internal/core/models"
	"ipcam-analysis/internal/util/timezone"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRun() *models.PipelineRun {
	labels := models.NewLabelSet()
	labels.Put(models.FilteredLabel{DisplayName: "Person", Confidence: 99.2})
	return &models.PipelineRun{
		ImagePath:       "/uploads/door/snap.png",
		Camera:          "door",
		Timestamp:       time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC),
		Labels:          labels,
		AnnotatedWidth:  320,
		AnnotatedHeight: 240,
	}
}

func receive(t *testing.T, client Client) []byte {
	t.Helper()
	select {
	case msg, ok := <-client:
		require.True(t, ok, "client channel closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestHubDeliversDetectionEvents(t *testing.T) {
	timezone.Initialize("UTC")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	client := make(Client, 4)
	require.True(t, hub.Register(ctx, client))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.PublishLabels(ctx, testRun()))

	var data DetectionData
	require.NoError(t, json.Unmarshal(receive(t, client), &data))
	assert.Equal(t, "door", data.Camera)
	assert.Equal(t, "snap.png", data.Filename)
	assert.Equal(t, "2021-01-02T03:04:05.000000", data.Timestamp)
	assert.Equal(t, []LabelData{{Name: "Person", Confidence: 99.2}}, data.Labels)
	assert.Equal(t, 320, data.Width)
}

func TestHubClosesClientsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := make(Client, 1)
	require.True(t, hub.Register(ctx, client))
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	_, ok := <-client
	assert.False(t, ok)
	assert.Zero(t, hub.ClientCount())
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	hub := NewHub()
	for i := 0; i < cap(hub.broadcast); i++ {
		require.True(t, hub.Broadcast([]byte("x")))
	}
	assert.False(t, hub.Broadcast([]byte("x")))
	assert.Error(t, hub.PublishLabels(context.Background(), testRun()))
}
