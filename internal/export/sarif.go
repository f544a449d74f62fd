package export

import (
	"io"
	"strings"

	"github.com/aleister1102/codetriage/internal/common"
	"github.com/aleister1102/codetriage/internal/models"

	"github.com/owenrumney/go-sarif/v2/sarif"
	"github.com/rs/zerolog"
)

const (
	sarifToolName = "codetriage"
	sarifToolURI  = "https://github.com/aleister1102/codetriage"

	// fingerprintKey names the partial fingerprint slot carrying the
	// stable report identity in exported documents.
	fingerprintKey = "codetriageFingerprint/v1"
)

// SarifExporter writes a run's reports as a SARIF 2.1.0 document for
// interchange with other result viewers.
type SarifExporter struct {
	logger zerolog.Logger
}

// NewSarifExporter creates a new SARIF exporter
func NewSarifExporter(logger zerolog.Logger) *SarifExporter {
	return &SarifExporter{
		logger: logger.With().Str("component", "SarifExporter").Logger(),
	}
}

// Export writes the reports of one run to out as pretty-printed SARIF.
func (se *SarifExporter) Export(runName string, reports []models.Report, out io.Writer) error {
	doc, err := sarif.New(sarif.Version210)
	if err != nil {
		return common.WrapError(err, "failed to create SARIF document")
	}

	run := sarif.NewRunWithInformationURI(sarifToolName, sarifToolURI)

	seenRules := make(map[string]struct{})
	for _, report := range reports {
		if _, seen := seenRules[report.CheckerID]; !seen {
			run.AddRule(report.CheckerID).
				WithDefaultConfiguration(&sarif.ReportingConfiguration{
					Level: toSarifLevel(report.Severity),
				})
			seenRules[report.CheckerID] = struct{}{}
		}

		location := sarif.NewLocation().WithPhysicalLocation(
			sarif.NewPhysicalLocation().
				WithArtifactLocation(sarif.NewArtifactLocation().WithUri(report.FilePath)).
				WithRegion(sarif.NewRegion().
					WithStartLine(report.Line).
					WithStartColumn(report.Column)),
		)

		result := sarif.NewRuleResult(report.CheckerID).
			WithMessage(sarif.NewTextMessage(report.Message)).
			WithLevel(toSarifLevel(report.Severity)).
			WithLocations([]*sarif.Location{location})
		result.PartialFingerprints = map[string]interface{}{
			fingerprintKey: report.Fingerprint,
		}
		run.AddResult(result)
	}

	doc.AddRun(run)

	if err := doc.PrettyWrite(out); err != nil {
		return common.WrapError(err, "failed to write SARIF document")
	}

	se.logger.Info().
		Str("run", runName).
		Int("reports", len(reports)).
		Msg("Run exported as SARIF")
	return nil
}

// toSarifLevel maps checker severities onto SARIF result levels.
func toSarifLevel(severity models.Severity) string {
	switch models.Severity(strings.ToUpper(string(severity))) {
	case models.SeverityCritical, models.SeverityHigh:
		return "error"
	case models.SeverityMedium:
		return "warning"
	case models.SeverityLow, models.SeverityStyle:
		return "note"
	default:
		return "none"
	}
}
