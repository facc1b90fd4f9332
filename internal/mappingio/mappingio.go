// Package mappingio reads and writes team mapping files. Rows carry no
// database ids; imports are matched to existing mappings by source org and
// source team slug.
package mappingio

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kuhlman-labs/team-migrator/internal/models"
)

// Format is a mapping file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrUnsupportedFormat is returned for formats other than csv, json and yaml.
var ErrUnsupportedFormat = errors.New("unsupported mapping file format")

// ParseFormat accepts a format name or a file name. An empty value means CSV.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.LastIndex(s, "."); i >= 0 {
		s = s[i+1:]
	}
	switch s {
	case "", "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// ContentType returns the MIME type used when serving the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	default:
		return "text/csv"
	}
}

// Row is the portable form of a team mapping.
type Row struct {
	SourceOrg           string `json:"source_org" yaml:"source_org"`
	SourceTeamSlug      string `json:"source_team_slug" yaml:"source_team_slug"`
	SourceTeamName      string `json:"source_team_name,omitempty" yaml:"source_team_name,omitempty"`
	DestinationOrg      string `json:"destination_org,omitempty" yaml:"destination_org,omitempty"`
	DestinationTeamSlug string `json:"destination_team_slug,omitempty" yaml:"destination_team_slug,omitempty"`
	DestinationTeamName string `json:"destination_team_name,omitempty" yaml:"destination_team_name,omitempty"`
	MappingStatus       string `json:"mapping_status,omitempty" yaml:"mapping_status,omitempty"`
}

var csvHeader = []string{
	"source_org",
	"source_team_slug",
	"source_team_name",
	"destination_org",
	"destination_team_slug",
	"destination_team_name",
	"mapping_status",
}

// columnAliases maps accepted header spellings to the canonical column.
var columnAliases = map[string]string{
	"source_org":            "source_org",
	"sourceorg":             "source_org",
	"source_team_slug":      "source_team_slug",
	"sourceteamslug":        "source_team_slug",
	"source_team":           "source_team_slug",
	"source_team_name":      "source_team_name",
	"sourceteamname":        "source_team_name",
	"destination_org":       "destination_org",
	"destinationorg":        "destination_org",
	"dest_org":              "destination_org",
	"destorg":               "destination_org",
	"target_org":            "destination_org",
	"destination_team_slug": "destination_team_slug",
	"destinationteamslug":   "destination_team_slug",
	"dest_team_slug":        "destination_team_slug",
	"destteamslug":          "destination_team_slug",
	"target_team":           "destination_team_slug",
	"destination_team_name": "destination_team_name",
	"destinationteamname":   "destination_team_name",
	"dest_team_name":        "destination_team_name",
	"status":                "mapping_status",
	"mapping_status":        "mapping_status",
}

// RowFromMapping converts a stored mapping for export.
func RowFromMapping(m *models.TeamMapping) Row {
	return Row{
		SourceOrg:           m.SourceOrg,
		SourceTeamSlug:      m.SourceTeamSlug,
		SourceTeamName:      deref(m.SourceTeamName),
		DestinationOrg:      deref(m.DestinationOrg),
		DestinationTeamSlug: deref(m.DestinationTeamSlug),
		DestinationTeamName: deref(m.DestinationTeamName),
		MappingStatus:       string(m.MappingStatus),
	}
}

// ToMapping validates the row and builds a mapping ready for import. A
// missing status becomes mapped when a destination is present and unmapped
// otherwise.
func (r Row) ToMapping() (*models.TeamMapping, error) {
	m := &models.TeamMapping{
		SourceOrg:           strings.TrimSpace(r.SourceOrg),
		SourceTeamSlug:      strings.TrimSpace(r.SourceTeamSlug),
		SourceTeamName:      optional(r.SourceTeamName),
		DestinationOrg:      optional(r.DestinationOrg),
		DestinationTeamSlug: optional(r.DestinationTeamSlug),
		DestinationTeamName: optional(r.DestinationTeamName),
	}
	if m.SourceOrg == "" || m.SourceTeamSlug == "" {
		return nil, fmt.Errorf("empty source_org or source_team_slug")
	}

	if strings.TrimSpace(r.MappingStatus) == "" {
		if m.HasDestination() {
			m.MappingStatus = models.MappingStatusMapped
		} else {
			m.MappingStatus = models.MappingStatusUnmapped
		}
	} else {
		m.MappingStatus = models.ParseMappingStatus(r.MappingStatus)
		if !m.MappingStatus.IsValid() {
			return nil, fmt.Errorf("invalid mapping_status %q", r.MappingStatus)
		}
	}

	if m.MappingStatus == models.MappingStatusMapped && !m.HasDestination() {
		return nil, fmt.Errorf("status 'mapped' requires destination_org and destination_team_slug")
	}
	return m, nil
}

// Encode writes mappings in the given format.
func Encode(w io.Writer, format Format, mappings []*models.TeamMapping) error {
	rows := make([]Row, 0, len(mappings))
	for _, m := range mappings {
		rows = append(rows, RowFromMapping(m))
	}

	switch format {
	case FormatCSV:
		return encodeCSV(w, rows)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func encodeCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := writer.Write([]string{
			r.SourceOrg,
			r.SourceTeamSlug,
			r.SourceTeamName,
			r.DestinationOrg,
			r.DestinationTeamSlug,
			r.DestinationTeamName,
			r.MappingStatus,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Result is the outcome of decoding a mapping file. Rows that fail
// validation are reported in Errors and left out of Mappings.
type Result struct {
	Mappings []*models.TeamMapping
	Errors   []string
}

// Decode reads mappings in the given format. It fails only when the file as
// a whole cannot be read; problems with individual rows go to Result.Errors.
// Duplicate source teams keep the last row.
func Decode(r io.Reader, format Format) (*Result, error) {
	var rows []Row
	var labels []string
	result := &Result{}

	switch format {
	case FormatCSV:
		var err error
		rows, labels, err = decodeCSV(r, result)
		if err != nil {
			return nil, err
		}
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&rows); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&rows); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	index := make(map[string]int, len(rows))
	for i, row := range rows {
		label := fmt.Sprintf("Entry %d", i+1)
		if labels != nil {
			label = labels[i]
		}
		m, err := row.ToMapping()
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", label, err.Error()))
			continue
		}
		key := m.SourceFullSlug()
		if pos, ok := index[key]; ok {
			result.Mappings[pos] = m
			continue
		}
		index[key] = len(result.Mappings)
		result.Mappings = append(result.Mappings, m)
	}
	return result, nil
}

// decodeCSV returns the rows with a "Line N" label for each. Unreadable
// lines are recorded in result and skipped.
func decodeCSV(r io.Reader, result *Result) ([]Row, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int)
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\uFEFF")))
		if canonical, ok := columnAliases[col]; ok {
			if _, dup := columns[canonical]; !dup {
				columns[canonical] = i
			}
		}
	}
	if _, ok := columns["source_org"]; !ok {
		return nil, nil, fmt.Errorf("CSV must have 'source_org' and 'source_team_slug' columns")
	}
	if _, ok := columns["source_team_slug"]; !ok {
		return nil, nil, fmt.Errorf("CSV must have 'source_org' and 'source_team_slug' columns")
	}

	field := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []Row
	var labels []string
	for lineNum := 2; ; lineNum++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Line %d: failed to read row", lineNum))
			continue
		}
		if isBlank(record) {
			continue
		}
		rows = append(rows, Row{
			SourceOrg:           field(record, "source_org"),
			SourceTeamSlug:      field(record, "source_team_slug"),
			SourceTeamName:      field(record, "source_team_name"),
			DestinationOrg:      field(record, "destination_org"),
			DestinationTeamSlug: field(record, "destination_team_slug"),
			DestinationTeamName: field(record, "destination_team_name"),
			MappingStatus:       field(record, "mapping_status"),
		})
		labels = append(labels, fmt.Sprintf("Line %d", lineNum))
	}
	return rows, labels, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
