package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Paths contains all the application paths.
// This is the single source of truth for every artifact location; stages never
// build file names on their own.
type Paths struct {
	BaseDir    string
	DataDir    string
	RawDir     string
	ResultsDir string
	TablesDir  string
	ReportsDir string
	LogsDir    string
}

// NewPaths resolves the standard directory layout under base:
//
//	base/
//	  ├── data/raw/           (merged prices, sector metadata)
//	  ├── results/tables/     (per-stage CSV tables)
//	  ├── results/reports/    (xlsx workbook, manifest)
//	  └── logs/
func NewPaths(base string) (*Paths, error) {
	if base == "" {
		base = "."
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory %q: %w", base, err)
	}

	return &Paths{
		BaseDir:    abs,
		DataDir:    filepath.Join(abs, "data"),
		RawDir:     filepath.Join(abs, "data", "raw"),
		ResultsDir: filepath.Join(abs, "results"),
		TablesDir:  filepath.Join(abs, "results", "tables"),
		ReportsDir: filepath.Join(abs, "results", "reports"),
		LogsDir:    filepath.Join(abs, "logs"),
	}, nil
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.RawDir, p.TablesDir, p.ReportsDir, p.LogsDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// MergedPricesPath returns the wide price panel written by the download stage
func (p *Paths) MergedPricesPath() string {
	return filepath.Join(p.RawDir, MergedPricesFile)
}

// SectorMetaPath returns the ticker metadata file written by the download stage
func (p *Paths) SectorMetaPath() string {
	return filepath.Join(p.RawDir, SectorMetaFile)
}

// TablePath returns the path of a dated result table, e.g.
// TablePath(TableEventPanel, "2021-03-23") -> results/tables/event_study_panel_2021-03-23.csv
func (p *Paths) TablePath(table, eventDate string) string {
	ext := ".csv"
	if strings.HasSuffix(table, ".txt") {
		table = strings.TrimSuffix(table, ".txt")
		ext = ".txt"
	}
	return filepath.Join(p.TablesDir, fmt.Sprintf("%s_%s%s", table, eventDate, ext))
}

// ReportPath returns the xlsx workbook path for an event date
func (p *Paths) ReportPath(eventDate string) string {
	return filepath.Join(p.ReportsDir, fmt.Sprintf("report_%s.xlsx", eventDate))
}

// ManifestPath returns the run manifest path for an event date
func (p *Paths) ManifestPath(eventDate string) string {
	return filepath.Join(p.ReportsDir, fmt.Sprintf("manifest_%s.json", eventDate))
}

// IsSubPath reports whether target lies inside base. Used to keep HTTP
// lookups confined to the results tree.
func IsSubPath(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// LogPathResolution logs the resolved layout for debugging
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("resolved paths",
		slog.String("base_dir", p.BaseDir),
		slog.String("raw_dir", p.RawDir),
		slog.String("tables_dir", p.TablesDir),
		slog.String("reports_dir", p.ReportsDir),
		slog.String("logs_dir", p.LogsDir))
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// DirExists reports whether path is an existing directory
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
