package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/lever-lab/backend/internal/storage/models"
	"github.com/lever-lab/backend/pkg/logger"
)

// MaxUtteranceBytes bounds a single chat message.
const MaxUtteranceBytes = 4000

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Report JSON names so messages match the request body.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	_ = validate.RegisterValidation("notcontrol", func(fl validator.FieldLevel) bool {
		return fl.Field().String() != models.ControlLever
	})
}

// FieldError names the first offending field of a rejected request.
type FieldError struct {
	Field string
	Rule  string
	Param string
}

func (e *FieldError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s failed %s=%s", e.Field, e.Rule, e.Param)
	}
	return fmt.Sprintf("%s failed %s", e.Field, e.Rule)
}

// Struct validates any tagged value.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		return &FieldError{Field: field, Rule: fe.Tag(), Param: fe.Param()}
	}
	return err
}

// BindJSON parses the body into dst and validates it.
func BindJSON(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return Struct(dst)
}

// BindQuery parses query parameters into dst and validates it.
func BindQuery(c *fiber.Ctx, dst any) error {
	if err := c.QueryParser(dst); err != nil {
		return fmt.Errorf("invalid query parameters: %w", err)
	}
	return Struct(dst)
}

type Config struct {
	AllowedContentTypes []string
	MaxBodyBytes        int
}

// Middleware rejects write requests with an unexpected content type or an
// oversized body before they reach a handler.
func Middleware(cfg Config) fiber.Handler {
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON}
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 64 * 1024
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		if len(c.Body()) > cfg.MaxBodyBytes {
			logger.Warn("Request body too large",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
				zap.Int("bytes", len(c.Body())),
			)
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"success": false,
				"error":   "Request body too large",
			})
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType == "" || len(c.Body()) == 0 {
			return c.Next()
		}
		for _, allowed := range cfg.AllowedContentTypes {
			if strings.HasPrefix(contentType, allowed) {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
			"success": false,
			"error":   "Unsupported content type",
		})
	}
}
