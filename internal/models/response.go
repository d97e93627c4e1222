package models

// UpdateInfo is the outcome of running the selection engine for one request.
// It is serialized in two wire shapes: camelCase for the legacy routes and
// snake_case for the /v0.1 public API.
type UpdateInfo struct {
	// IsAvailable reports whether an update exists for this client.
	IsAvailable bool

	// IsMandatory forces the client to install immediately. It is true when
	// the selected release is mandatory or when a mandatory release sits
	// between the client's current release and the selected one.
	IsMandatory bool

	// AppVersion echoes the client's binary version (raw form preferred).
	AppVersion string

	// TargetBinaryRange is the selected release's appVersion range; for a
	// no-update answer it echoes the client's version.
	TargetBinaryRange string

	// PackageHash is the content hash of the payload the client should
	// download (full bundle, even when a diff URL is served).
	PackageHash string

	// Label identifies the selected release.
	Label string

	// Description is the release's free-text description.
	Description string

	// DownloadURL points at the full bundle, or at a diff archive when the
	// client's current package hash has a diff to the selected release.
	DownloadURL string

	// PackageSize is the byte size of whatever DownloadURL points at.
	PackageSize int64

	// UpdateAppVersion is always false on the acquisition path; it exists
	// for wire compatibility with clients that understand binary-update
	// prompts.
	UpdateAppVersion bool
}

// legacyUpdateInfo is the camelCase wire form consumed by pre-v0.1 SDKs.
type legacyUpdateInfo struct {
	IsAvailable       bool   `json:"isAvailable"`
	IsMandatory       bool   `json:"isMandatory"`
	AppVersion        string `json:"appVersion"`
	TargetBinaryRange string `json:"targetBinaryRange"`
	PackageHash       string `json:"packageHash,omitempty"`
	Label             string `json:"label,omitempty"`
	Description       string `json:"description,omitempty"`
	DownloadURL       string `json:"downloadURL,omitempty"`
	PackageSize       int64  `json:"packageSize,omitempty"`
	UpdateAppVersion  bool   `json:"updateAppVersion"`
}

// publicUpdateInfo is the snake_case wire form of the /v0.1 public API.
type publicUpdateInfo struct {
	IsAvailable       bool   `json:"is_available"`
	IsMandatory       bool   `json:"is_mandatory"`
	AppVersion        string `json:"app_version"`
	TargetBinaryRange string `json:"target_binary_range"`
	PackageHash       string `json:"package_hash,omitempty"`
	Label             string `json:"label,omitempty"`
	Description       string `json:"description,omitempty"`
	DownloadURL       string `json:"download_url,omitempty"`
	PackageSize       int64  `json:"package_size,omitempty"`
	UpdateAppVersion  bool   `json:"update_app_version"`
}

// LegacyUpdateCheckResponse wraps UpdateInfo for the legacy routes.
type LegacyUpdateCheckResponse struct {
	UpdateInfo legacyUpdateInfo `json:"updateInfo"`
}

// UpdateCheckResponse wraps UpdateInfo for the /v0.1 public routes.
type UpdateCheckResponse struct {
	UpdateInfo publicUpdateInfo `json:"update_info"`
}

// NewLegacyUpdateCheckResponse serializes info in the camelCase shape.
func NewLegacyUpdateCheckResponse(info UpdateInfo) LegacyUpdateCheckResponse {
	return LegacyUpdateCheckResponse{UpdateInfo: legacyUpdateInfo{
		IsAvailable:       info.IsAvailable,
		IsMandatory:       info.IsMandatory,
		AppVersion:        info.AppVersion,
		TargetBinaryRange: info.TargetBinaryRange,
		PackageHash:       info.PackageHash,
		Label:             info.Label,
		Description:       info.Description,
		DownloadURL:       info.DownloadURL,
		PackageSize:       info.PackageSize,
		UpdateAppVersion:  info.UpdateAppVersion,
	}}
}

// NewUpdateCheckResponse serializes info in the snake_case shape.
func NewUpdateCheckResponse(info UpdateInfo) UpdateCheckResponse {
	return UpdateCheckResponse{UpdateInfo: publicUpdateInfo{
		IsAvailable:       info.IsAvailable,
		IsMandatory:       info.IsMandatory,
		AppVersion:        info.AppVersion,
		TargetBinaryRange: info.TargetBinaryRange,
		PackageHash:       info.PackageHash,
		Label:             info.Label,
		Description:       info.Description,
		DownloadURL:       info.DownloadURL,
		PackageSize:       info.PackageSize,
		UpdateAppVersion:  info.UpdateAppVersion,
	}}
}
