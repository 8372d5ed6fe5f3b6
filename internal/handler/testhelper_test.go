package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/bananaslides/deckwizard/internal/client"
	"github.com/bananaslides/deckwizard/internal/config"
	"github.com/bananaslides/deckwizard/internal/handler"
	"github.com/bananaslides/deckwizard/internal/middleware"
	"github.com/bananaslides/deckwizard/internal/model"
	"github.com/bananaslides/deckwizard/internal/service"
	"github.com/bananaslides/deckwizard/internal/session"
	"github.com/bananaslides/deckwizard/internal/store"
	"github.com/bananaslides/deckwizard/internal/tracker"
)

const testSessionID = "5f0c2b8e-8d7a-4c1e-9a3b-2f6d1e0c4b7a"

// fakeDeck is an in-memory deck backend. Calls it does not implement panic
// through the nil embedded interface.
type fakeDeck struct {
	client.DeckAPI

	mu        sync.Mutex
	projects  map[string]*model.Project
	nextID    int
	exports   int
	reordered [][]string
}

func newFakeDeck() *fakeDeck {
	return &fakeDeck{projects: make(map[string]*model.Project)}
}

func (f *fakeDeck) put(p *model.Project) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[p.ID] = p.Clone()
}

func (f *fakeDeck) CreateProject(_ context.Context, req *client.CreateProjectRequest) (*model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p := &model.Project{ID: fmt.Sprintf("p%d", f.nextID), CreationType: req.CreationType, IdeaPrompt: req.IdeaPrompt, TemplateStyle: req.TemplateStyle}
	f.projects[p.ID] = p
	return p.Clone(), nil
}

func (f *fakeDeck) ListProjects(_ context.Context, _, _ int) (*client.ProjectList, error) {
	return &client.ProjectList{}, nil
}

func (f *fakeDeck) GetProject(_ context.Context, id string) (*model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, &client.RequestError{StatusCode: 404, Message: "project not found"}
	}
	return p.Clone(), nil
}

func (f *fakeDeck) GenerateOutline(_ context.Context, id string) ([]model.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.projects[id]
	p.Pages = []model.Page{
		{ID: "g1", OutlineContent: model.OutlineContent{Title: "Intro", Points: []string{"why"}}},
		{ID: "g2", OrderIndex: 1, OutlineContent: model.OutlineContent{Title: "Plan"}},
	}
	return p.Pages, nil
}

func (f *fakeDeck) ReorderPages(_ context.Context, _ string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reordered = append(f.reordered, ids)
	return nil
}

func (f *fakeDeck) ExportPPTX(_ context.Context, projectID string, _ []string) (*model.ExportFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exports++
	return &model.ExportFile{DownloadURL: "/files/" + projectID + ".pptx"}, nil
}

func (f *fakeDeck) ExportPDF(_ context.Context, _ string, _ []string) (*model.ExportFile, error) {
	return nil, &client.RequestError{StatusCode: 500, Message: "renderer crashed"}
}

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	deck     *fakeDeck
	sessions *session.Registry
	tracker  *tracker.Tracker
}

// setupApp creates a Fiber app wired like main.go against an in-memory backend
func setupApp(t *testing.T) *testApp {
	t.Helper()

	deck := newFakeDeck()
	validate := validator.New()

	sessions := session.NewRegistry(deck, store.NewMemoryPrefs(), session.Options{})
	t.Cleanup(sessions.Close)

	exportTracker := tracker.New(tracker.NewMemoryRepository(), deck, tracker.Options{})
	t.Cleanup(exportTracker.Close)

	exportService := service.NewExportService(deck, exportTracker, nil)
	settingsService := service.NewSettingsService(deck)

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	handler.RegisterRoutes(app, handler.Handlers{
		Wizard:   handler.NewWizardHandler(sessions, validate),
		Project:  handler.NewProjectHandler(sessions, validate),
		Export:   handler.NewExportHandler(exportService, exportTracker, sessions, validate),
		Settings: handler.NewSettingsHandler(settingsService, validate),
	}, nil, config.RateLimitConfig{})

	return &testApp{app: app, deck: deck, sessions: sessions, tracker: exportTracker}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doSessionRequest performs a request within the fixed test session.
func doSessionRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(app, method, path, body, map[string]string{
		middleware.SessionHeader: testSessionID,
	})
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode returns error.code of an error envelope.
func errorCode(t *testing.T, result map[string]interface{}) string {
	t.Helper()
	e, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("response has no error envelope: %v", result)
	}
	code, _ := e["code"].(string)
	return code
}
