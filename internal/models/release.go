// Package models contains the wire and storage data models for the acquisition
// service: releases as published to a deployment, the cacheable response bodies
// held by the distributed cache, and the request/response shapes of the
// update-check and report-status endpoints.
package models

// Release represents one versioned bundle published to a deployment.
// Releases are served to clients by the update-selection engine; the
// management surface owns their lifecycle (promote, rollback, disable)
// and this service only ever reads them.
//
// Example:
//
//	release := models.Release{
//	    Label:       "v17",
//	    AppVersion:  "1.2.x",
//	    PackageHash: "3ab2...",
//	    BlobURL:     "https://cdn.example.com/bundles/3ab2",
//	    Size:        512034,
//	}
type Release struct {
	// Label is the server-assigned identifier of the release, monotonically
	// increasing and unique within its deployment (e.g. "v17").
	Label string `json:"label,omitempty" bson:"label,omitempty"`

	// AppVersion is a semver range (or exact version) naming the binary
	// versions this bundle is compatible with.
	AppVersion string `json:"appVersion" bson:"appVersion"`

	// PackageHash is the content hash of the full bundle archive and the
	// primary content identity of the release.
	PackageHash string `json:"packageHash,omitempty" bson:"packageHash,omitempty"`

	// BlobURL is the URL from which the full bundle can be downloaded.
	BlobURL string `json:"blobUrl,omitempty" bson:"blobUrl,omitempty"`

	// Size is the byte size of the full bundle.
	Size int64 `json:"size,omitempty" bson:"size,omitempty"`

	// IsMandatory marks the release as one clients must install.
	IsMandatory bool `json:"isMandatory" bson:"isMandatory"`

	// IsDisabled removes the release from selection without deleting it.
	IsDisabled bool `json:"isDisabled" bson:"isDisabled"`

	// Description is optional free text shown to the user.
	Description string `json:"description,omitempty" bson:"description,omitempty"`

	// Rollout is the percentage of clients eligible for this release, in
	// [0,100]. Nil or 100 means fully rolled out.
	Rollout *int `json:"rollout,omitempty" bson:"rollout,omitempty"`

	// RolloutHoldDurationMinutes is how long the rollout stays at its base
	// percentage before the time ramp starts.
	RolloutHoldDurationMinutes int `json:"rolloutHoldDurationMinutes,omitempty" bson:"rolloutHoldDurationMinutes,omitempty"`

	// RolloutRampDurationMinutes is how long the ramp from the base
	// percentage to 100 takes once the hold window has passed.
	RolloutRampDurationMinutes int `json:"rolloutRampDurationMinutes,omitempty" bson:"rolloutRampDurationMinutes,omitempty"`

	// RolloutUploadTime anchors the time ramp, in unix milliseconds.
	// Zero means absent; the rollout then stays at its base percentage.
	RolloutUploadTime int64 `json:"rolloutUploadTime,omitempty" bson:"rolloutUploadTime,omitempty"`

	// UploadTime is when the release was published, in unix milliseconds.
	// Histories are ordered by this field, oldest first.
	UploadTime int64 `json:"uploadTime,omitempty" bson:"uploadTime,omitempty"`

	// DiffPackageMap maps a source package hash to the diff archive that
	// upgrades from that source to this release.
	DiffPackageMap map[string]DiffInfo `json:"diffPackageMap,omitempty" bson:"diffPackageMap,omitempty"`
}

// DiffInfo describes one binary-diff archive between two package hashes.
type DiffInfo struct {
	// Size is the byte size of the diff archive.
	Size int64 `json:"size" bson:"size"`

	// URL is where the diff archive can be downloaded.
	URL string `json:"url" bson:"url"`
}

// CacheableResponse is the pre-selection form of an update-check answer as
// held by the distributed response cache: an HTTP status code plus the
// release list the selection engine runs over. It is stored verbatim as JSON
// and must round-trip without loss.
type CacheableResponse struct {
	StatusCode int           `json:"statusCode"`
	Body       CacheableBody `json:"body"`
}

// CacheableBody carries the releases whose appVersion range can match the
// request fingerprint the entry was cached under.
type CacheableBody struct {
	Releases []Release `json:"releases"`
}
