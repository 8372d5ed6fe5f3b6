package response

import "github.com/gofiber/fiber/v2"

// Error codes
const (
	CodeValidationError      = "VALIDATION_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeStepBlocked          = "STEP_BLOCKED"
	CodeRateLimited          = "RATE_LIMITED"
	CodeTimeout              = "TIMEOUT"
	CodeUpstreamError        = "UPSTREAM_ERROR"
	CodeServiceError         = "SERVICE_ERROR"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func Error(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func ValidationError(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, CodeNotFound, message, nil)
}

func Conflict(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusConflict, CodeConflict, message, nil)
}

// ConfirmationRequired asks the UI to repeat the call with confirm set
func ConfirmationRequired(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusConflict, CodeConfirmationRequired, message, details)
}

func StepBlocked(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusUnprocessableEntity, CodeStepBlocked, message, details)
}

func RateLimited(c *fiber.Ctx) error {
	return Error(c, fiber.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", nil)
}

func Timeout(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusGatewayTimeout, CodeTimeout, message, nil)
}

func UpstreamError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadGateway, CodeUpstreamError, message, nil)
}

func ServiceError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, CodeServiceError, message, nil)
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(data)
}

func Accepted(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusAccepted).JSON(data)
}

func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}
