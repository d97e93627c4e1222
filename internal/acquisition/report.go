package acquisition

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/otapush/acquisition/internal/appversion"
	"github.com/otapush/acquisition/internal/metrics"
	"github.com/otapush/acquisition/internal/models"
)

// sdkVersionHeader carries the reporting SDK's own version. It decides
// which metrics path a deploy report takes.
const sdkVersionHeader = "X-CodePush-SDK-Version"

// metricsBreakingVersion is the first SDK version that reports through
// the aggregated metrics path. Older SDKs (and requests without a valid
// version header) take the per-client legacy path.
const metricsBreakingVersion = "1.5.2-beta"

// ReportDeploy handles POST /reportStatus/deploy.
func (h *Handler) ReportDeploy(c *gin.Context) {
	h.reportDeploy(c, pathLegacyRoute)
}

// ReportDeployV1 handles POST /v0.1/public/codepush/report_status/deploy.
func (h *Handler) ReportDeployV1(c *gin.Context) {
	h.reportDeploy(c, pathNewRoute)
}

// reportDeploy validates an install report, answers 200 immediately, and
// shifts all counter work onto the dispatcher. The SDK version header
// picks between the aggregated and the per-client legacy metrics paths.
func (h *Handler) reportDeploy(c *gin.Context, route string) {
	var req models.ReportDeployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Logger.Warn("invalid deploy report body", zap.Error(err))
		c.String(http.StatusBadRequest, "A deploy report must include a valid JSON body")
		return
	}

	if req.DeploymentKey == "" || req.AppVersion == "" {
		c.String(http.StatusBadRequest, "A deploy report must include a valid deployment key and app version")
		return
	}
	if req.Status != "" && !metrics.IsValidStatus(req.Status) {
		c.String(http.StatusBadRequest, "Invalid status: "+req.Status)
		return
	}

	if appversion.AtLeast(c.GetHeader(sdkVersionHeader), metricsBreakingVersion) {
		h.reportDeployAggregated(c, &req, route)
		return
	}
	h.reportDeployLegacy(c, &req, route)
}

// reportDeployAggregated is the metrics path for modern SDKs: either a
// labeled failure counter bump or a recordUpdate, followed in both cases
// by releasing the client's claim on its previous deployment.
func (h *Handler) reportDeployAggregated(c *gin.Context, req *models.ReportDeployRequest, route string) {
	statusReportsTotal.WithLabelValues(kindDeploy, route).Inc()
	c.String(http.StatusOK, "OK")

	h.dispatcher.Go("report deploy", func(ctx context.Context) error {
		if req.Label != "" && req.Status == metrics.StatusDeploymentFailed {
			if err := h.Metrics.IncrementLabelStatusCount(ctx, req.DeploymentKey, req.Label, req.Status); err != nil {
				return err
			}
		} else {
			labelOrAppVersion := req.Label
			if labelOrAppVersion == "" {
				labelOrAppVersion = req.AppVersion
			}
			if err := h.Metrics.RecordUpdate(ctx, req.DeploymentKey, labelOrAppVersion, req.PreviousDeploymentKey, req.PreviousLabelOrAppVersion); err != nil {
				return err
			}
		}

		// Either way the client has moved on from its legacy-tracked
		// label, so drop the stale per-client entry.
		if req.ClientUniqueID == "" {
			return nil
		}
		previousKey := req.PreviousDeploymentKey
		if previousKey == "" {
			previousKey = req.DeploymentKey
		}
		return h.Metrics.RemoveDeploymentKeyClientActiveLabel(ctx, previousKey, req.ClientUniqueID)
	})
}

// reportDeployLegacy is the pre-1.5.2 path, which tracks an active label
// per client and therefore needs the client's identity.
func (h *Handler) reportDeployLegacy(c *gin.Context, req *models.ReportDeployRequest, route string) {
	if req.ClientUniqueID == "" {
		c.String(http.StatusBadRequest, "A deploy report must include a client unique ID")
		return
	}
	if req.Status != "" && req.Label == "" {
		c.String(http.StatusBadRequest, "A deploy report with a status must include a label")
		return
	}

	statusReportsTotal.WithLabelValues(kindDeploy, route).Inc()
	c.String(http.StatusOK, "OK")

	h.dispatcher.Go("report deploy legacy", func(ctx context.Context) error {
		currentLabel, err := h.Metrics.GetCurrentActiveLabel(ctx, req.DeploymentKey, req.ClientUniqueID)
		if err != nil {
			return err
		}

		switch req.Status {
		case metrics.StatusDeploymentSucceeded:
			// A repeated success report for the label the client already
			// runs would double count, so skip it.
			if req.Label == currentLabel {
				return nil
			}
			if err := h.Metrics.IncrementLabelStatusCount(ctx, req.DeploymentKey, req.Label, req.Status); err != nil {
				return err
			}
			return h.Metrics.UpdateActiveAppForClient(ctx, req.DeploymentKey, req.ClientUniqueID, req.Label, currentLabel)

		case metrics.StatusDeploymentFailed:
			return h.Metrics.IncrementLabelStatusCount(ctx, req.DeploymentKey, req.Label, req.Status)

		default:
			// No status: the client reports what it currently runs.
			labelOrAppVersion := req.Label
			if labelOrAppVersion == "" {
				labelOrAppVersion = req.AppVersion
			}
			if labelOrAppVersion == currentLabel {
				return nil
			}
			return h.Metrics.UpdateActiveAppForClient(ctx, req.DeploymentKey, req.ClientUniqueID, labelOrAppVersion, currentLabel)
		}
	})
}

// ReportDownload handles POST /reportStatus/download.
func (h *Handler) ReportDownload(c *gin.Context) {
	h.reportDownload(c, pathLegacyRoute)
}

// ReportDownloadV1 handles POST /v0.1/public/codepush/report_status/download.
func (h *Handler) ReportDownloadV1(c *gin.Context) {
	h.reportDownload(c, pathNewRoute)
}

// reportDownload answers 200 and bumps the Downloaded counter for the
// reported label asynchronously.
func (h *Handler) reportDownload(c *gin.Context, route string) {
	var req models.ReportDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Logger.Warn("invalid download report body", zap.Error(err))
		c.String(http.StatusBadRequest, "A download report must include a valid JSON body")
		return
	}

	if req.DeploymentKey == "" || req.Label == "" {
		c.String(http.StatusBadRequest, "A download report must include a valid deployment key and label")
		return
	}

	statusReportsTotal.WithLabelValues(kindDownload, route).Inc()
	c.String(http.StatusOK, "OK")

	h.dispatcher.Go("report download", func(ctx context.Context) error {
		return h.Metrics.IncrementLabelStatusCount(ctx, req.DeploymentKey, req.Label, metrics.StatusDownloaded)
	})
}
