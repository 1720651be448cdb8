package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"agentchat/internal/app"
	"agentchat/internal/model"
	"agentchat/internal/transport/http/middleware"
	"agentchat/internal/transport/http/response"
)

var registerOnce sync.Once

// RegisterValidators adds the custom binding rules and reports fields by
// their wire names. Safe to call repeatedly.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("notblank", validators.NotBlank)
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// bindingError answers a request whose body or query failed to bind.
func bindingError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		response.JSON(c, http.StatusUnprocessableEntity, "Validation error", fields)
		return
	}
	response.Error(c, http.StatusUnprocessableEntity, "Invalid request payload")
}

func currentUser(c *gin.Context) (*model.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "Could not validate credentials")
	}
	return user, ok
}

// chatError maps orchestrator errors onto the envelope. Unknown errors are
// recorded on the context and answered with the generic 500.
func chatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusUnprocessableEntity, "Invalid request payload")
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, "Session not found")
	case errors.Is(err, app.ErrMessageNotFound):
		response.Error(c, http.StatusNotFound, "Chat not found or you don't have access")
	case errors.Is(err, app.ErrSessionBusy):
		response.Error(c, http.StatusConflict, "Session is busy, please retry")
	default:
		_ = c.Error(err)
		response.Internal(c)
	}
}
