package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"rental-service/internal/apperror"
	"rental-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

func init() {
	// report json/form names instead of Go field names
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	}
}

// respondError writes err as {"error", "kind"} with the status of its kind.
// Errors without a kind are logged and answered with a generic message.
func respondError(c *gin.Context, err error) {
	kind := apperror.KindOf(err)
	if kind == apperror.KindInternal {
		util.LoggerFromContext(c.Request.Context()).Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	c.JSON(apperror.HTTPStatus(kind), gin.H{
		"error": apperror.Message(err),
		"kind":  kind,
	})
}

// abortWithError is respondError for middleware
func abortWithError(c *gin.Context, err error) {
	respondError(c, err)
	c.Abort()
}

// badRequest answers a request that failed binding. Validation failures are
// reported by field; malformed bodies get message.
func badRequest(c *gin.Context, message string, err error) {
	body := gin.H{
		"error": message,
		"kind":  apperror.KindValidation,
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		body["error"] = fieldMessage(fieldErrs[0])
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
		body["fields"] = fields
	} else if err != nil {
		body["details"] = err.Error()
	}

	c.JSON(http.StatusBadRequest, body)
}

// fieldLabel turns "start_date" into "Start date"
func fieldLabel(name string) string {
	label := strings.ReplaceAll(name, "_", " ")
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

func fieldMessage(fe validator.FieldError) string {
	field := fieldLabel(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", field)
	case "email":
		return "Enter a valid email address."
	case "url":
		return fmt.Sprintf("%s must be a valid URL.", field)
	case "datetime":
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD format.", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s.", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters.", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s.", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters.", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s.", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid.", field)
}
