// Package templates renders the HTML pages of the web server as templ
// components. Edit the .templ files and run `templ generate`; the
// *_templ.go files are generated.
package templates

import (
	"time"

	"github.com/JonMunkholm/importset/internal/core"
)

// DashboardData is everything the dashboard shows.
type DashboardData struct {
	WorkDir        string
	ImportsPath    string
	ActiveBuilds   int
	MaxBuilds      int
	HistoryEnabled bool
	HistoryError   string
	Builds         []core.BuildRecord
	GeneratedAt    time.Time
}

// buildOutput is the result column of a history row: the published
// location, else the local archive, or the error of a failed build.
func buildOutput(rec core.BuildRecord) string {
	switch {
	case rec.Status == core.BuildFailed:
		return rec.ErrorCode + " " + rec.Error
	case rec.PublishedTo != "":
		return rec.PublishedTo
	default:
		return rec.OutputPath
	}
}
