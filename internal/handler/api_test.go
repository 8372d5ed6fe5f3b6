package handler_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bananaslides/deckwizard/internal/middleware"
	"github.com/bananaslides/deckwizard/internal/model"
)

func TestHealth(t *testing.T) {
	ta := setupApp(t)
	resp, err := doRequest(ta.app, http.MethodGet, "/health", "", nil)
	require.NoError(t, err)
	assertStatus(t, resp, http.StatusOK)
	assert.Equal(t, "ok", parseJSON(t, resp)["status"])
}

func TestSession_IssuedWhenMissing(t *testing.T) {
	ta := setupApp(t)
	resp, err := doRequest(ta.app, http.MethodGet, "/api/wizard", "", nil)
	require.NoError(t, err)
	assertStatus(t, resp, http.StatusOK)
	assert.NotEmpty(t, resp.Header.Get(middleware.SessionHeader))
	assert.NotEqual(t, testSessionID, resp.Header.Get(middleware.SessionHeader))

	resp = doSessionRequest(t, ta.app, http.MethodGet, "/api/wizard", "")
	assert.Equal(t, testSessionID, resp.Header.Get(middleware.SessionHeader))
	result := parseJSON(t, resp)
	assert.Equal(t, float64(1), result["step"])
	assert.Equal(t, "fill-content", result["stepName"])
}

func TestWizard_DraftValidation(t *testing.T) {
	ta := setupApp(t)
	resp := doSessionRequest(t, ta.app, http.MethodPut, "/api/wizard/draft", `{"creationType":"slides","content":"x"}`)
	assertStatus(t, resp, http.StatusBadRequest)
	result := parseJSON(t, resp)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, result))
	details := result["error"].(map[string]interface{})["details"].(map[string]interface{})
	assert.Equal(t, "oneof", details["CreationType"])
}

func TestWizard_NextBlockedWithoutContent(t *testing.T) {
	ta := setupApp(t)
	resp := doSessionRequest(t, ta.app, http.MethodPost, "/api/wizard/next", "")
	assertStatus(t, resp, http.StatusUnprocessableEntity)
	assert.Equal(t, "STEP_BLOCKED", errorCode(t, parseJSON(t, resp)))
}

func TestWizard_IdeaToOutline(t *testing.T) {
	ta := setupApp(t)

	resp := doSessionRequest(t, ta.app, http.MethodPut, "/api/wizard/draft", `{"creationType":"idea","content":"solar energy"}`)
	assertStatus(t, resp, http.StatusOK)
	resp = doSessionRequest(t, ta.app, http.MethodPost, "/api/wizard/next", "")
	assertStatus(t, resp, http.StatusOK)
	assert.Equal(t, "select-template", parseJSON(t, resp)["stepName"])

	resp = doSessionRequest(t, ta.app, http.MethodPost, "/api/wizard/next", "")
	assertStatus(t, resp, http.StatusOK)
	state := parseJSON(t, resp)
	assert.Equal(t, "outline", state["stepName"])
	assert.Equal(t, "p1", state["projectId"])
	assert.Equal(t, true, state["firstRun"])

	// Empty project, nothing to overwrite
	resp = doSessionRequest(t, ta.app, http.MethodPost, "/api/project/outline/generate", "")
	assertStatus(t, resp, http.StatusOK)
	project := parseJSON(t, resp)["project"].(map[string]interface{})
	assert.Len(t, project["pages"], 2)

	resp = doSessionRequest(t, ta.app, http.MethodPost, "/api/project/outline/generate", "")
	assertStatus(t, resp, http.StatusConflict)
	assert.Equal(t, "CONFIRMATION_REQUIRED", errorCode(t, parseJSON(t, resp)))

	resp = doSessionRequest(t, ta.app, http.MethodPost, "/api/project/outline/generate", `{"confirm":true}`)
	assertStatus(t, resp, http.StatusOK)

	resp = doSessionRequest(t, ta.app, http.MethodPost, "/api/project/pages/move", `{"from":1,"to":0}`)
	assertStatus(t, resp, http.StatusOK)
	require.Len(t, ta.deck.reordered, 1)
	assert.Equal(t, []string{"g2", "g1"}, ta.deck.reordered[0])

	resp = doSessionRequest(t, ta.app, http.MethodGet, "/api/project/markdown/outline", "")
	assertStatus(t, resp, http.StatusOK)
	md := readBody(t, resp)
	assert.True(t, strings.HasPrefix(md, "## 1. Plan"), md)
	assert.Contains(t, md, "## 2. Intro\n\n- why")
}

func TestWizard_RecoverUnknownStep(t *testing.T) {
	ta := setupApp(t)
	resp := doSessionRequest(t, ta.app, http.MethodPost, "/api/wizard/recover", `{"projectId":"p1","step":"export"}`)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestProject_NoProjectOpen(t *testing.T) {
	ta := setupApp(t)
	resp := doSessionRequest(t, ta.app, http.MethodGet, "/api/project/markdown/outline", "")
	assertStatus(t, resp, http.StatusNotFound)
	assert.Equal(t, "NOT_FOUND", errorCode(t, parseJSON(t, resp)))

	resp = doSessionRequest(t, ta.app, http.MethodPost, "/api/project/pages", "")
	assertStatus(t, resp, http.StatusNotFound)
}

func seedPreview(t *testing.T, ta *testApp, withImages bool) {
	t.Helper()
	p := &model.Project{ID: "p9", CreationType: model.CreationTypeIdea}
	for _, id := range []string{"a", "b"} {
		page := model.Page{ID: id, DescriptionContent: &model.DescriptionContent{Text: "about " + id}}
		if withImages {
			page.GeneratedImagePath = "/img/" + id + ".png"
		}
		p.Pages = append(p.Pages, page)
	}
	ta.deck.put(p)

	resp := doSessionRequest(t, ta.app, http.MethodPost, "/api/wizard/recover", `{"projectId":"p9","step":"preview"}`)
	assertStatus(t, resp, http.StatusOK)
	require.Equal(t, "preview", parseJSON(t, resp)["stepName"])
}

func TestExport_BlockedWithoutImages(t *testing.T) {
	ta := setupApp(t)
	seedPreview(t, ta, false)

	resp := doSessionRequest(t, ta.app, http.MethodPost, "/api/exports", `{"type":"pptx"}`)
	assertStatus(t, resp, http.StatusUnprocessableEntity)
	assert.Equal(t, "STEP_BLOCKED", errorCode(t, parseJSON(t, resp)))

	// A selection only needs the selected pages
	resp = doSessionRequest(t, ta.app, http.MethodPut, "/api/wizard/selection", `{"multiSelect":true,"pageIds":["a"]}`)
	assertStatus(t, resp, http.StatusOK)
	resp = doSessionRequest(t, ta.app, http.MethodPost, "/api/exports", `{"type":"pptx"}`)
	assertStatus(t, resp, http.StatusCreated)
	assert.Equal(t, []interface{}{"a"}, parseJSON(t, resp)["pageIds"])
}

func TestExport_SyncAndList(t *testing.T) {
	ta := setupApp(t)
	seedPreview(t, ta, true)

	resp := doSessionRequest(t, ta.app, http.MethodPost, "/api/exports", `{"type":"pptx"}`)
	assertStatus(t, resp, http.StatusCreated)
	task := parseJSON(t, resp)
	assert.Equal(t, "COMPLETED", task["status"])
	assert.Equal(t, "/files/p9.pptx", task["downloadUrl"])

	resp = doSessionRequest(t, ta.app, http.MethodPost, "/api/exports", `{"type":"pdf"}`)
	assertStatus(t, resp, http.StatusBadGateway)
	assert.Equal(t, "UPSTREAM_ERROR", errorCode(t, parseJSON(t, resp)))

	resp = doSessionRequest(t, ta.app, http.MethodGet, "/api/exports", "")
	assertStatus(t, resp, http.StatusOK)
	tasks := parseJSON(t, resp)["tasks"].([]interface{})
	require.Len(t, tasks, 2)
	assert.Equal(t, "FAILED", tasks[0].(map[string]interface{})["status"])
	assert.Equal(t, "renderer crashed", tasks[0].(map[string]interface{})["errorMessage"])

	id := task["id"].(string)
	resp = doSessionRequest(t, ta.app, http.MethodGet, "/api/exports/"+id, "")
	assertStatus(t, resp, http.StatusOK)

	resp = doSessionRequest(t, ta.app, http.MethodPost, "/api/exports/clear", "")
	assertStatus(t, resp, http.StatusOK)
	assert.Equal(t, float64(2), parseJSON(t, resp)["removed"])

	resp = doSessionRequest(t, ta.app, http.MethodGet, "/api/exports/"+id, "")
	assertStatus(t, resp, http.StatusNotFound)
}

func TestExport_UnknownType(t *testing.T) {
	ta := setupApp(t)
	seedPreview(t, ta, true)
	resp := doSessionRequest(t, ta.app, http.MethodPost, "/api/exports", `{"type":"docx"}`)
	assertStatus(t, resp, http.StatusBadRequest)
	assert.Equal(t, 0, ta.deck.exports)
}

func TestSettings_BrandNeedsPassword(t *testing.T) {
	ta := setupApp(t)
	resp := doSessionRequest(t, ta.app, http.MethodPut, "/api/settings/brand", `{"brand_name":"Acme"}`)
	assertStatus(t, resp, http.StatusBadRequest)
	result := parseJSON(t, resp)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, result))
}
