package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bananaslides/deckwizard/internal/model"
	"github.com/bananaslides/deckwizard/internal/store"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func subscribe(t *testing.T, h *Hub, topic string) *Client {
	t.Helper()
	c := &Client{Topic: topic, Send: make(chan []byte, 8)}
	h.Register(c)
	require.Eventually(t, func() bool { return h.Subscribers(topic) > 0 }, time.Second, 5*time.Millisecond)
	return c
}

func receive(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestHub_ExportUpdatesReachProjectTopic(t *testing.T) {
	h := startHub(t)
	mine := subscribe(t, h, ExportTopic("p1"))
	other := subscribe(t, h, ExportTopic("p2"))

	h.NotifyExport(model.ExportTask{ID: "export-1", ProjectID: "p1", Status: model.ExportStatusCompleted, DownloadURL: "/files/a.pptx"})

	msg := receive(t, mine)
	assert.Equal(t, model.WSMessageTypeExport, msg["type"])
	task := msg["task"].(map[string]interface{})
	assert.Equal(t, "export-1", task["id"])
	assert.Equal(t, "COMPLETED", task["status"])

	select {
	case <-other.Send:
		t.Fatal("other project received the update")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_FailedExportSendsError(t *testing.T) {
	h := startHub(t)
	c := subscribe(t, h, ExportTopic("p1"))

	h.NotifyExport(model.ExportTask{ID: "export-2", ProjectID: "p1", Status: model.ExportStatusFailed, ErrorMessage: "renderer crashed"})

	msg := receive(t, c)
	assert.Equal(t, model.WSMessageTypeExport, msg["type"])

	msg = receive(t, c)
	assert.Equal(t, model.WSMessageTypeError, msg["type"])
	assert.Equal(t, ExportTopic("p1"), msg["topic"])
	e := msg["error"].(map[string]interface{})
	assert.Equal(t, "EXPORT_FAILED", e["code"])
	assert.Equal(t, "renderer crashed", e["message"])
}

func TestHub_ProjectSnapshots(t *testing.T) {
	h := startHub(t)
	c := subscribe(t, h, ProjectTopic("p1"))

	h.BroadcastProject(store.Snapshot{})
	h.BroadcastProject(store.Snapshot{
		Project:             &model.Project{ID: "p1", Pages: []model.Page{{ID: "a"}}},
		IsGlobalLoading:     true,
		PageGeneratingTasks: map[string]string{"a": "task-1"},
	})

	msg := receive(t, c)
	assert.Equal(t, model.WSMessageTypeProject, msg["type"])
	assert.Equal(t, true, msg["isGlobalLoading"])
	assert.Equal(t, map[string]interface{}{"a": "task-1"}, msg["pageGeneratingTasks"])
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h := startHub(t)
	c := subscribe(t, h, ExportTopic("p1"))

	h.Unregister(c)
	require.Eventually(t, func() bool { return h.Subscribers(ExportTopic("p1")) == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-c.Send
	assert.False(t, ok)
}
