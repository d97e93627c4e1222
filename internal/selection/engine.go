// Package selection implements the update-selection engine: given one
// deployment's release history and a client's installed identity, it computes
// the single update answer the client should receive, honoring rollout
// cohorts, mandatory-flag forwarding over skipped releases, and binary-diff
// substitution.
package selection

import (
	"time"

	"go.uber.org/zap"

	"github.com/otapush/acquisition/internal/appversion"
	"github.com/otapush/acquisition/internal/models"
	"github.com/otapush/acquisition/internal/rollout"
)

// Request carries the parsed client identity the walk decides against.
type Request struct {
	// ClientUniqueID feeds rollout cohort selection.
	ClientUniqueID string

	// Beta bypasses rollout gating.
	Beta bool

	// Label is the client's current release label, when known.
	Label string

	// PackageHash is the client's current bundle hash, used for isCurrent
	// detection when no label is given and for diff substitution.
	PackageHash string

	// RawAppVersion is the version string exactly as sent; echoed back.
	RawAppVersion string

	// NormalizedAppVersion is the canonical three-segment form used for
	// range satisfaction.
	NormalizedAppVersion string

	// IsCompanion requests any update regardless of binary compatibility.
	IsCompanion bool
}

// DiffMapFetcher resolves the diff map of a release by its package hash.
// Implementations consult the tiered diff caches; a nil map without error
// means no diffs exist for that release.
type DiffMapFetcher func(packageHash string) (map[string]models.DiffInfo, error)

// Engine walks release histories newest-first and produces update answers.
type Engine struct {
	logger *zap.Logger

	// Clock supplies the time used for rollout ramp evaluation.
	// Overridable in tests; defaults to time.Now.
	Clock func() time.Time
}

// NewEngine returns an Engine logging diff-hydration failures to logger.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger, Clock: time.Now}
}

// Select walks releases (ordered oldest first, walked newest first) and
// returns exactly one update answer for req.
//
// The walk keeps three pieces of state: the current candidate, a
// forceMandatory flag raised by any newer applicable mandatory release that
// was not itself chosen, and a pendingMandatory latch covering mandatory
// releases skipped only because this client fell outside their rollout
// cohort. Reaching the client's current release terminates the walk; a
// disabled current release does not (the client is treated as being on no
// release at all).
func (e *Engine) Select(releases []models.Release, req Request, fetchDiffMap DiffMapFetcher) models.UpdateInfo {
	var selected *models.Release
	forceMandatory := false
	pendingMandatory := false

	for i := len(releases) - 1; i >= 0; i-- {
		release := &releases[i]

		isCurrent := (req.Label != "" && release.Label == req.Label) ||
			(req.Label == "" && req.PackageHash != "" && release.PackageHash == req.PackageHash)

		if isCurrent && release.IsDisabled {
			continue
		}
		if isCurrent {
			if selected != nil {
				return e.finalize(selected, req, fetchDiffMap, forceMandatory)
			}
			return noUpdate(req)
		}
		if release.IsDisabled {
			continue
		}

		applies := req.IsCompanion ||
			(req.NormalizedAppVersion != "" && appversion.Satisfies(req.NormalizedAppVersion, release.AppVersion))
		if !applies {
			continue
		}

		if selected != nil {
			if release.IsMandatory {
				forceMandatory = true
			}
			continue
		}

		if e.inRollout(release, req) {
			selected = release
			forceMandatory = pendingMandatory || release.IsMandatory
		} else if release.IsMandatory {
			pendingMandatory = true
		}
	}

	if selected == nil {
		return noUpdate(req)
	}
	return e.finalize(selected, req, fetchDiffMap, forceMandatory)
}

// inRollout decides whether req's client receives a release still ramping
// out. Releases without a rollout, with a finished rollout, or with neither
// label nor package hash to seed the cohort hash are served to everyone.
func (e *Engine) inRollout(release *models.Release, req Request) bool {
	if !rollout.IsUnfinished(release.Rollout) {
		return true
	}
	if req.Beta {
		return true
	}
	tag := release.Label
	if tag == "" {
		tag = release.PackageHash
	}
	if tag == "" {
		return true
	}
	return rollout.IsSelected(req.ClientUniqueID, rollout.Effective(*release, e.Clock()), tag)
}

func (e *Engine) finalize(release *models.Release, req Request, fetchDiffMap DiffMapFetcher, forceMandatory bool) models.UpdateInfo {
	info := models.UpdateInfo{
		IsAvailable:       true,
		IsMandatory:       release.IsMandatory || forceMandatory,
		AppVersion:        echoAppVersion(req),
		TargetBinaryRange: release.AppVersion,
		PackageHash:       release.PackageHash,
		Label:             release.Label,
		Description:       release.Description,
		DownloadURL:       release.BlobURL,
		PackageSize:       release.Size,
	}

	if req.PackageHash != "" && fetchDiffMap != nil {
		diffMap, err := fetchDiffMap(release.PackageHash)
		if err != nil {
			e.logger.Warn("diff map fetch failed, serving full bundle",
				zap.String("label", release.Label),
				zap.String("packageHash", release.PackageHash),
				zap.Error(err))
		} else if diff, ok := diffMap[req.PackageHash]; ok {
			info.DownloadURL = diff.URL
			info.PackageSize = diff.Size
		}
	}

	return info
}

func noUpdate(req Request) models.UpdateInfo {
	v := echoAppVersion(req)
	return models.UpdateInfo{
		IsAvailable:       false,
		AppVersion:        v,
		TargetBinaryRange: v,
	}
}

func echoAppVersion(req Request) string {
	if req.RawAppVersion != "" {
		return req.RawAppVersion
	}
	return req.NormalizedAppVersion
}
