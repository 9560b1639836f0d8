package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-api/internal/middleware"
	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
	"github.com/noah-isme/lms-api/pkg/response"
)

// actorFromContext returns the authenticated actor. It writes a 401 and returns false when absent.
func actorFromContext(c *gin.Context) (models.Actor, bool) {
	claims := middleware.ClaimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, ""))
		return models.Actor{}, false
	}
	return claims.Actor(), true
}

func invalidPayload(c *gin.Context, err error) {
	response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
}

// queryList accepts both repeated and comma separated query values.
func queryList(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func queryInt(c *gin.Context, key string) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return value
}
