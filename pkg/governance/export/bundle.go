// Package export builds per-engagement data export bundles.
package export

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"maturity-hq/steward/pkg/governance"
)

// Version is the bundle schema version.
const Version = "1.0"

// Bundle formats.
const (
	FormatJSON       = "json"
	FormatJSONPretty = "json_pretty"
)

// Formats returns the supported bundle formats.
func Formats() []string {
	return []string{FormatJSON, FormatJSONPretty}
}

// Options are the export request options stored in job parameters.
type Options struct {
	IncludeDocuments bool   `json:"include_documents"`
	Format           string `json:"format" validate:"omitempty,oneof=json json_pretty"`
}

// OptionsFromJob reads the options of an export job, defaulting the format.
func OptionsFromJob(job *governance.JobRecord) Options {
	opts := Options{
		IncludeDocuments: job.ParamBool("include_documents"),
		Format:           job.Param("format"),
	}
	if opts.Format == "" {
		opts.Format = FormatJSON
	}
	return opts
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.Format != "" && !slices.Contains(Formats(), o.Format) {
		return governance.NewValidationError("format", fmt.Sprintf("unsupported format %q", o.Format))
	}
	return nil
}

// Parameters returns the options as job parameters.
func (o Options) Parameters() map[string]any {
	format := o.Format
	if format == "" {
		format = FormatJSON
	}
	return map[string]any{
		"include_documents": o.IncludeDocuments,
		"format":            format,
	}
}

// Bundle is the exported snapshot of one engagement.
type Bundle struct {
	ExportVersion string                  `json:"export_version"`
	JobID         string                  `json:"job_id"`
	EngagementID  string                  `json:"engagement_id"`
	GeneratedAt   time.Time               `json:"generated_at"`
	Options       Options                 `json:"options"`
	Engagement    *governance.Engagement  `json:"engagement"`
	Assessments   []governance.Assessment `json:"assessments"`
	Answers       []governance.Answer     `json:"answers"`
	Members       []governance.Member     `json:"members"`
	Findings      []governance.Finding    `json:"findings"`
	Documents     []governance.Document   `json:"documents"`
	Counts        map[string]int          `json:"counts"`
}

func (b *Bundle) countRecords() {
	b.Counts = map[string]int{
		"assessments": len(b.Assessments),
		"answers":     len(b.Answers),
		"members":     len(b.Members),
		"findings":    len(b.Findings),
		"documents":   len(b.Documents),
	}
}

// Encode serializes the bundle in the requested format.
func (b *Bundle) Encode() ([]byte, error) {
	if b.Options.Format == FormatJSONPretty {
		return json.MarshalIndent(b, "", "  ")
	}
	return json.Marshal(b)
}
