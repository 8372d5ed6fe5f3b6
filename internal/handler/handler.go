package handler

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/bananaslides/deckwizard/internal/client"
	"github.com/bananaslides/deckwizard/internal/middleware"
	"github.com/bananaslides/deckwizard/internal/model"
	"github.com/bananaslides/deckwizard/internal/session"
	"github.com/bananaslides/deckwizard/internal/store"
	"github.com/bananaslides/deckwizard/internal/tracker"
	"github.com/bananaslides/deckwizard/internal/wizard"
	"github.com/bananaslides/deckwizard/pkg/response"
)

const maxUploadSize = wizard.MaxReferenceFileSize

// bindError is a request body that failed to parse or validate
type bindError struct {
	message string
	details interface{}
}

func (e *bindError) Error() string {
	return e.message
}

// parseBody decodes and validates the request body into req
func parseBody(c *fiber.Ctx, v *validator.Validate, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		return &bindError{message: "Invalid request body"}
	}
	if err := v.Struct(req); err != nil {
		return &bindError{message: "Validation failed", details: formatValidationErrors(err)}
	}
	return nil
}

// parseOptionalBody is parseBody for endpoints whose body may be empty
func parseOptionalBody(c *fiber.Ctx, v *validator.Validate, req interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return parseBody(c, v, req)
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}

// respondError maps a service error onto the error envelope
func respondError(c *fiber.Ctx, err error) error {
	var (
		be      *bindError
		ve      *client.ValidationError
		confirm *wizard.ConfirmationRequiredError
		blocked *wizard.StepBlockedError
		re      *client.RequestError
	)
	switch {
	case errors.As(err, &be):
		return response.ValidationError(c, be.message, be.details)
	case errors.As(err, &ve):
		var details interface{}
		if ve.Field != "" {
			details = map[string]string{ve.Field: ve.Message}
		}
		return response.ValidationError(c, ve.Error(), details)
	case errors.As(err, &confirm):
		return response.ConfirmationRequired(c, confirm.Message, fiber.Map{"kind": confirm.Kind})
	case errors.As(err, &blocked):
		return response.StepBlocked(c, blocked.Reason, fiber.Map{"step": blocked.Step, "stepName": blocked.Step.String()})
	case errors.Is(err, store.ErrNoProject):
		return response.NotFound(c, "No project is open")
	case errors.Is(err, store.ErrPageNotFound):
		return response.NotFound(c, "Page not found")
	case errors.Is(err, tracker.ErrTaskNotFound):
		return response.NotFound(c, "Export task not found")
	case errors.Is(err, wizard.ErrNothingToResume):
		return response.NotFound(c, "No project to resume")
	case errors.Is(err, store.ErrPageBusy):
		return response.Conflict(c, "A generation is already running for these pages")
	case client.IsTimeout(err):
		return response.Timeout(c, client.UserMessage(err))
	case client.IsNotFound(err):
		return response.NotFound(c, client.UserMessage(err))
	case errors.As(err, &re):
		return response.UpstreamError(c, client.UserMessage(err))
	}
	log.Printf("[HTTP] %s %s failed: %v", c.Method(), c.Path(), err)
	return response.ServiceError(c, client.UserMessage(err))
}

// currentSession returns the session of the request
func currentSession(c *fiber.Ctx, sessions *session.Registry) *session.Session {
	return sessions.Get(c.Context(), middleware.GetSessionID(c))
}

// readUpload loads a multipart file into memory
func readUpload(file *multipart.FileHeader) (*model.Upload, error) {
	if file.Size > maxUploadSize {
		return nil, &client.ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file too large: %.1fMB, the limit is 200MB", float64(file.Size)/(1<<20)),
		}
	}
	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return &model.Upload{
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// formUpload reads the named file part, returning nil when it is absent
func formUpload(c *fiber.Ctx, field string) (*model.Upload, error) {
	file, err := c.FormFile(field)
	if err != nil {
		return nil, nil
	}
	return readUpload(file)
}
