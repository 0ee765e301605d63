package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"luna-backend/internal/lifecycle"
)

func init() {
	// Report binding failures under the JSON field names clients send.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

var statusByKind = map[lifecycle.Kind]int{
	lifecycle.KindValidation: http.StatusBadRequest,
	lifecycle.KindNotFound:   http.StatusNotFound,
	lifecycle.KindAuth:       http.StatusUnauthorized,
	lifecycle.KindDependency: http.StatusInternalServerError,
}

// writeError renders err as {"error", "kind"[, "fields"]} with the status matching its kind.
// Causes of dependency failures are logged, never returned.
func writeError(c *gin.Context, err error) {
	kind := lifecycle.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	msg := "Internal server error"
	var le *lifecycle.Error
	if errors.As(err, &le) {
		msg = le.Msg
	}
	if kind == lifecycle.KindDependency {
		log.Printf("Error handling %s %s: %v", c.Request.Method, c.FullPath(), err)
	}

	body := gin.H{"error": msg, "kind": kind}
	if le != nil && len(le.Fields) > 0 {
		body["fields"] = le.Fields
	}
	c.AbortWithStatusJSON(status, body)
}

// writeBindError reports a request body that failed to bind or validate.
func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request", "kind": lifecycle.KindValidation})
		return
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			fields[fe.Field()] = "is required"
		} else {
			fields[fe.Field()] = fmt.Sprintf("failed %q validation", fe.Tag())
		}
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":  "invalid request",
		"kind":   lifecycle.KindValidation,
		"fields": fields,
	})
}

// writeNotFound and writeInternal cover handlers that talk to the store directly.
func writeNotFound(c *gin.Context, what string) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": what + " not found", "kind": lifecycle.KindNotFound})
}

func writeInternal(c *gin.Context, err error) {
	log.Printf("Error handling %s %s: %v", c.Request.Method, c.FullPath(), err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "kind": lifecycle.KindDependency})
}
