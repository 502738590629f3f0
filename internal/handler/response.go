package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// Page is the data of list responses.
type Page struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// RespondError writes the status and public message carried by err. The
// error is attached to the context so the error middleware can log it.
func RespondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(apperrors.StatusOf(err), NewErrorResponse(apperrors.PublicMessage(err)))
}

// BindError reports a request that failed binding or validation.
func BindError(c *gin.Context, err error) {
	RespondError(c, apperrors.NewBadRequest(validationMessage(err), err))
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		switch e.Tag() {
		case "required":
			msgs = append(msgs, e.Field()+" is required")
		case "date":
			msgs = append(msgs, e.Field()+" must be YYYY-MM-DD")
		case "clock":
			msgs = append(msgs, e.Field()+" must be HH:MM")
		case "min", "max":
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", e.Field(), e.Tag(), e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", e.Field(), e.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// ParamID parses a uuid path parameter, writing a 400 when it is malformed.
func ParamID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		RespondError(c, apperrors.NewBadRequest("invalid "+name, err))
		return uuid.Nil, false
	}
	return id, true
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, NewSuccessResponse(data))
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, NewSuccessResponse(data))
}

// BindOptionalJSON binds the body when one was sent and validates the zero
// value otherwise.
func BindOptionalJSON(c *gin.Context, obj interface{}) error {
	if c.Request.ContentLength == 0 {
		return binding.Validator.ValidateStruct(obj)
	}
	return c.ShouldBindJSON(obj)
}
