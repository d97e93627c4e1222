package acquisition

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/otapush/acquisition/internal/appversion"
	"github.com/otapush/acquisition/internal/models"
)

// queryValue returns the first non-empty value among the camelCase and
// snake_case spellings of a query field.
func queryValue(q url.Values, camel, snake string) string {
	if v := q.Get(camel); v != "" {
		return v
	}
	return q.Get(snake)
}

// parseBoolValue reports whether raw spells a true value. The SDKs send
// "true" in assorted casings.
func parseBoolValue(raw string) bool {
	return strings.EqualFold(raw, "true")
}

// parseUpdateCheckRequest reads an update-check request from the query
// string, accepting both field name families. On a validation failure the
// 400 response has already been written when this returns.
func (h *Handler) parseUpdateCheckRequest(c *gin.Context) (*models.UpdateCheckRequest, error) {
	q := c.Request.URL.Query()

	req := &models.UpdateCheckRequest{
		DeploymentKey:  queryValue(q, "deploymentKey", "deployment_key"),
		AppVersion:     queryValue(q, "appVersion", "app_version"),
		PackageHash:    queryValue(q, "packageHash", "package_hash"),
		Label:          q.Get("label"),
		ClientUniqueID: queryValue(q, "clientUniqueId", "client_unique_id"),
		IsCompanion:    parseBoolValue(queryValue(q, "isCompanion", "is_companion")),
		Beta:           parseBoolValue(q.Get("beta")),
	}

	if req.DeploymentKey == "" {
		h.Logger.Warn("update check missing deployment key",
			zap.String("request_id", c.GetString("request_id")),
		)
		c.String(http.StatusBadRequest, "An update check must include a valid deployment key")
		return nil, ErrMalformedRequest
	}

	req.NormalizedAppVersion = appversion.Normalize(req.AppVersion)
	if !appversion.IsValid(req.NormalizedAppVersion) {
		h.Logger.Warn("update check with invalid app version",
			zap.String("deployment_key", req.DeploymentKey),
			zap.String("app_version", req.AppVersion),
		)
		c.String(http.StatusBadRequest, "An update check must include a valid semver compliant app version")
		return nil, ErrMalformedRequest
	}

	return req, nil
}
