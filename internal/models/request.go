package models

import "encoding/json"

// UpdateCheckRequest is the parsed form of an update-check query. Query
// parameters arrive in either camelCase (legacy SDKs) or snake_case (new API
// surface); the handler folds both spellings into this one shape.
type UpdateCheckRequest struct {
	// DeploymentKey routes the request to one deployment's release history.
	DeploymentKey string

	// AppVersion is the binary version exactly as the client sent it.
	AppVersion string

	// NormalizedAppVersion is AppVersion canonicalized to a full
	// three-segment semver string for range comparison.
	NormalizedAppVersion string

	// PackageHash identifies the bundle the client currently runs, if any.
	PackageHash string

	// Label identifies the client's current release by label, if known.
	Label string

	// ClientUniqueID is the stable per-install identifier used for rollout
	// cohort selection and active-label tracking.
	ClientUniqueID string

	// IsCompanion requests any update regardless of binary compatibility.
	IsCompanion bool

	// Beta bypasses rollout gating for test devices.
	Beta bool
}

// ReportDeployRequest is the body of a deployment status report. Both field
// name families are accepted; see UnmarshalJSON.
type ReportDeployRequest struct {
	DeploymentKey             string
	AppVersion                string
	Label                     string
	Status                    string
	ClientUniqueID            string
	PreviousDeploymentKey     string
	PreviousLabelOrAppVersion string
}

// UnmarshalJSON accepts camelCase and snake_case spellings of every field,
// preferring the camelCase value when a body carries both.
func (r *ReportDeployRequest) UnmarshalJSON(data []byte) error {
	var aux struct {
		DeploymentKey                  string `json:"deploymentKey"`
		DeploymentKeySnake             string `json:"deployment_key"`
		AppVersion                     string `json:"appVersion"`
		AppVersionSnake                string `json:"app_version"`
		Label                          string `json:"label"`
		Status                         string `json:"status"`
		ClientUniqueID                 string `json:"clientUniqueId"`
		ClientUniqueIDSnake            string `json:"client_unique_id"`
		PreviousDeploymentKey          string `json:"previousDeploymentKey"`
		PreviousDeploymentKeySnake     string `json:"previous_deployment_key"`
		PreviousLabelOrAppVersion      string `json:"previousLabelOrAppVersion"`
		PreviousLabelOrAppVersionSnake string `json:"previous_label_or_app_version"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.DeploymentKey = firstNonEmpty(aux.DeploymentKey, aux.DeploymentKeySnake)
	r.AppVersion = firstNonEmpty(aux.AppVersion, aux.AppVersionSnake)
	r.Label = aux.Label
	r.Status = aux.Status
	r.ClientUniqueID = firstNonEmpty(aux.ClientUniqueID, aux.ClientUniqueIDSnake)
	r.PreviousDeploymentKey = firstNonEmpty(aux.PreviousDeploymentKey, aux.PreviousDeploymentKeySnake)
	r.PreviousLabelOrAppVersion = firstNonEmpty(aux.PreviousLabelOrAppVersion, aux.PreviousLabelOrAppVersionSnake)
	return nil
}

// ReportDownloadRequest is the body of a download report.
type ReportDownloadRequest struct {
	DeploymentKey string
	Label         string
}

// UnmarshalJSON accepts camelCase and snake_case spellings.
func (r *ReportDownloadRequest) UnmarshalJSON(data []byte) error {
	var aux struct {
		DeploymentKey      string `json:"deploymentKey"`
		DeploymentKeySnake string `json:"deployment_key"`
		Label              string `json:"label"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.DeploymentKey = firstNonEmpty(aux.DeploymentKey, aux.DeploymentKeySnake)
	r.Label = aux.Label
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
