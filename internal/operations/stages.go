package operations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"shockstudy/internal/classify"
	"shockstudy/internal/config"
	apperrors "shockstudy/internal/errors"
	"shockstudy/internal/eventstudy"
	"shockstudy/internal/exporter"
	"shockstudy/internal/inference"
	"shockstudy/internal/marketdata"
	"shockstudy/internal/panel"
	"shockstudy/internal/schema"
	"shockstudy/internal/volatility"
)

// NewStudyRegistry registers every stage of the study in run order
func NewStudyRegistry() (*Registry, error) {
	r := NewRegistry()
	for _, s := range []Stage{
		NewDownloadStage(),
		NewEventStudyStage(),
		NewSectorsStage(),
		NewInferenceStage(),
		NewDiDStage(),
		NewDDDStage(),
		NewVolatilityStage(),
		NewVolGroupsStage(),
		NewLinkagesStage(),
		NewReportStage(),
	} {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// eventStage is the base of every stage that needs an event date
type eventStage struct {
	BaseStage
}

func (s *eventStage) Validate(state *State) error {
	return state.RequireEvent(s.ID())
}

// DownloadStage fetches prices and sector metadata
type DownloadStage struct {
	BaseStage
}

// NewDownloadStage creates the download stage
func NewDownloadStage() *DownloadStage {
	return &DownloadStage{BaseStage: NewBaseStage(config.StageDownload, "Market data download")}
}

// Validate checks the fetcher and the download window
func (s *DownloadStage) Validate(state *State) error {
	if state.Fetcher == nil {
		return NewValidationError(s.ID(), "no market-data fetcher configured")
	}
	if _, _, err := state.Config.Study.DownloadWindow(); err != nil {
		return NewValidationError(s.ID(), err.Error())
	}
	return nil
}

// Execute downloads the universe and writes the merged prices and metadata
func (s *DownloadStage) Execute(ctx context.Context, state *State) error {
	from, to, err := state.Config.Study.DownloadWindow()
	if err != nil {
		return err
	}
	res, err := marketdata.NewDownloader(state.Fetcher, state.Universe, state.Logger).Run(ctx, from, to)
	if err != nil {
		return err
	}
	if err := state.Paths.EnsureDirectories(); err != nil {
		return apperrors.NewStorageError("create output directories", err)
	}
	if err := res.Save(state.Writer, state.Paths); err != nil {
		return err
	}
	state.AddFile(state.Paths.MergedPricesPath())
	state.AddFile(state.Paths.SectorMetaPath())
	state.RecordTickers(len(res.Equities), res.Skips.Count(apperrors.ErrTypeInsufficientData))
	return nil
}

// EventStudyStage runs the market-model event study
type EventStudyStage struct {
	eventStage
}

// NewEventStudyStage creates the event-study stage
func NewEventStudyStage() *EventStudyStage {
	return &EventStudyStage{eventStage{NewBaseStage(config.StageEventStudy, "Event study", config.StageDownload)}}
}

// studyParams maps the study configuration onto event-study parameters
func studyParams(cfg config.StudyConfig) eventstudy.Params {
	return eventstudy.Params{
		PreDays:   cfg.PreDays,
		PostDays:  cfg.PostDays,
		GapDays:   cfg.GapDays,
		LeadDays:  cfg.LeadDays,
		CARK1:     cfg.CARK1,
		CARK2:     cfg.CARK2,
		CAROrigin: cfg.CAROrigin,
	}
}

// Execute fits the market model per equity and writes the AR/CAR panel,
// the summary and the mean AR series
func (s *EventStudyStage) Execute(ctx context.Context, state *State) error {
	prices, err := panel.LoadPrices(state.Paths.MergedPricesPath())
	if err != nil {
		return err
	}
	market := state.Universe.MarketTicker
	returns, err := panel.LogReturns(prices, market)
	if err != nil {
		return err
	}

	nonEquity := state.Universe.NonEquityColumns()
	var tickers []string
	for _, c := range prices.Columns {
		if !nonEquity[c] {
			tickers = append(tickers, c)
		}
	}
	if len(tickers) == 0 {
		return apperrors.NewMissingInputError(
			fmt.Sprintf("equity columns in %s", config.MergedPricesFile), config.StageDownload, nil)
	}

	engine := eventstudy.NewEngine(studyParams(state.Config.Study), state.Logger)
	engine.SetConfiguration(state.Config.Study.Workers, 0)
	res, err := engine.Run(ctx, returns, market, tickers, state.Event)
	if err != nil {
		return err
	}

	panelPath := state.TablePath(config.TableEventPanel)
	if err := eventstudy.SavePanel(state.Writer, panelPath, res); err != nil {
		return err
	}
	state.AddFile(panelPath)
	if err := state.WriteTables(eventstudy.SummaryTable(res), eventstudy.MeanARTable(res)); err != nil {
		return err
	}
	state.RecordTickers(len(res.Securities), res.Skips.Len())
	return nil
}

// labelTickers labels tickers and logs the unmapped ones under stage
func labelTickers(ctx context.Context, state *State, stage string, c *classify.Classifier, tickers []string) map[string]classify.Label {
	report := &apperrors.SkipReport{}
	labels := c.LabelAll(tickers, report)
	report.Log(ctx, state.Logger, stage)
	counts := classify.Counts(labels)
	state.Logger.InfoContext(ctx, "tickers labelled",
		"stage", stage,
		"sector_source", c.Source().String(),
		"treated", counts[config.GroupTreated],
		"defensive", counts[config.GroupDefensive],
		"other", counts[config.GroupOther])
	return labels
}

func loadPanel(state *State) ([]eventstudy.PanelRow, error) {
	return eventstudy.LoadPanel(state.TablePath(config.TableEventPanel))
}

func loadSummary(state *State) ([]eventstudy.SummaryRow, error) {
	st := state.Config.Study
	return eventstudy.LoadSummary(state.TablePath(config.TableEventSummary), st.CARK1, st.CARK2)
}

func summaryTickers(rows []eventstudy.SummaryRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Ticker
	}
	return out
}

// SectorsStage aggregates CARs by sector
type SectorsStage struct {
	eventStage
}

// NewSectorsStage creates the sector analysis stage
func NewSectorsStage() *SectorsStage {
	return &SectorsStage{eventStage{NewBaseStage(config.StageSectors, "Sector analysis", config.StageEventStudy)}}
}

// Execute writes the mean and median sector tables and the Treated vs
// Defensive note
func (s *SectorsStage) Execute(ctx context.Context, state *State) error {
	summary, err := loadSummary(state)
	if err != nil {
		return err
	}
	c, err := state.Classifier(classify.StudyMapFirst)
	if err != nil {
		return err
	}
	labels := labelTickers(ctx, state, s.ID(), c, summaryTickers(summary))

	st := state.Config.Study
	mean := inference.SectorAggregates(summary, labels, inference.Mean)
	median := inference.SectorAggregates(summary, labels, inference.Median)
	if err := state.WriteTables(
		inference.SectorTable(config.TableSectorMean, mean, st.CARK1, st.CARK2),
		inference.SectorTable(config.TableSectorMedian, median, st.CARK1, st.CARK2),
	); err != nil {
		return err
	}

	metrics := inference.CARMetrics(summary, labels, st.CARK1, st.CARK2)
	note := inference.TreatedNote(state.EventDate, state.Universe, metrics[1])
	if err := state.WriteText(config.TableTreatedNote, note); err != nil {
		return err
	}
	w := metrics[1].Welch()
	state.Logger.InfoContext(ctx, "sector tables written",
		"sectors", len(mean),
		"metric", metrics[1].Name,
		"mean_treated", w.MeanA,
		"mean_defensive", w.MeanB,
		"t_stat", w.T)

	unmapped := 0
	for _, l := range labels {
		if !l.Mapped {
			unmapped++
		}
	}
	state.RecordTickers(len(labels)-unmapped, unmapped)
	return nil
}

// InferenceStage compares CARs of Treated and Defensive tickers
type InferenceStage struct {
	eventStage
}

// NewInferenceStage creates the CAR inference stage
func NewInferenceStage() *InferenceStage {
	return &InferenceStage{eventStage{NewBaseStage(config.StageInference, "CAR inference", config.StageEventStudy)}}
}

// Execute writes the Welch tests and bootstrap intervals of both horizons
func (s *InferenceStage) Execute(ctx context.Context, state *State) error {
	summary, err := loadSummary(state)
	if err != nil {
		return err
	}
	c, err := state.Classifier(classify.StudyMapFirst)
	if err != nil {
		return err
	}
	labels := labelTickers(ctx, state, s.ID(), c, summaryTickers(summary))

	st := state.Config.Study
	metrics := inference.CARMetrics(summary, labels, st.CARK1, st.CARK2)
	if len(metrics[0].Groups[config.GroupTreated]) == 0 && len(metrics[0].Groups[config.GroupDefensive]) == 0 {
		return apperrors.NewInsufficientDataError(config.TableWelch, "no Treated or Defensive tickers in the summary")
	}
	if err := state.WriteTables(
		inference.WelchTable(metrics),
		inference.BootstrapTable(metrics, st.BootstrapCAR, st.BootstrapSeed),
	); err != nil {
		return err
	}

	w := metrics[1].Welch()
	state.Logger.InfoContext(ctx, "treated vs defensive CAR",
		"metric", metrics[1].Name,
		"t_stat", w.T,
		"pval", w.P,
		"n_treated", w.NA,
		"n_defensive", w.NB)
	state.RecordTickers(w.NA+w.NB, len(summary)-w.NA-w.NB)
	return nil
}

// PanelRegressionStage fits the DiD or the DDD model on the AR panel
type PanelRegressionStage struct {
	eventStage
	model  inference.Model
	table  string
	window func(config.StudyConfig) (int, int)
	// eventTime adds the group-mean AR by relative day
	eventTime bool
}

// NewDiDStage creates the difference-in-differences stage
func NewDiDStage() *PanelRegressionStage {
	return &PanelRegressionStage{
		eventStage: eventStage{NewBaseStage(config.StageDiD, "Difference-in-differences", config.StageEventStudy)},
		model:      inference.DiD,
		table:      config.TableDiD,
		window:     func(c config.StudyConfig) (int, int) { return c.DiDRelMin, c.DiDRelMax },
		eventTime:  true,
	}
}

// NewDDDStage creates the triple-difference stage
func NewDDDStage() *PanelRegressionStage {
	return &PanelRegressionStage{
		eventStage: eventStage{NewBaseStage(config.StageDDD, "Triple difference", config.StageEventStudy)},
		model:      inference.DDD,
		table:      config.TableDDD,
		window:     func(c config.StudyConfig) (int, int) { return c.DDDRelMin, c.DDDRelMax },
	}
}

// Execute builds the regression frame and writes the coefficient table
func (s *PanelRegressionStage) Execute(ctx context.Context, state *State) error {
	rows, err := loadPanel(state)
	if err != nil {
		return err
	}
	c, err := state.Classifier(classify.StudyMapFirst)
	if err != nil {
		return err
	}
	labels := labelTickers(ctx, state, s.ID(), c, inference.PanelTickers(rows))

	st := state.Config.Study
	opts := inference.FrameOptions{Event: state.Event}
	opts.RelMin, opts.RelMax = s.window(st)
	start, end, ok, err := st.Donut()
	if err != nil {
		return apperrors.NewConfigError("invalid donut window", err)
	}
	if ok {
		opts.Donut = &inference.DateRange{Start: start, End: end}
	}

	frame, fs := inference.BuildFrame(rows, labels, opts)
	state.Logger.InfoContext(ctx, "regression frame built",
		"model", s.model.Name,
		"input_rows", fs.Input,
		"other_group", fs.OtherGroup,
		"missing_ar", fs.MissingAR,
		"donut", fs.Donut,
		"outside_window", fs.OutsideWindow,
		"kept", fs.Kept)

	est, err := inference.Fit(ctx, state.Logger, s.model, frame)
	if err != nil {
		return err
	}
	tables := []*exporter.Table{est.Table(s.table)}
	if s.eventTime {
		tables = append(tables, inference.EventTimeTable(frame))
	}
	if err := state.WriteTables(tables...); err != nil {
		return err
	}
	state.Logger.InfoContext(ctx, est.Summary())
	state.RecordTickers(est.Clusters, len(inference.PanelTickers(rows))-est.Clusters)
	return nil
}

// VolatilityStage contrasts pre and post event volatility per ticker
type VolatilityStage struct {
	eventStage
}

// NewVolatilityStage creates the volatility stage
func NewVolatilityStage() *VolatilityStage {
	return &VolatilityStage{eventStage{NewBaseStage(config.StageVolatility, "Volatility contrast", config.StageEventStudy)}}
}

// Validate also checks the estimator name
func (s *VolatilityStage) Validate(state *State) error {
	if err := s.eventStage.Validate(state); err != nil {
		return err
	}
	switch state.Config.Study.VolatilityModel {
	case volatility.ModelAuto, volatility.ModelGARCH, volatility.ModelStdDev, "":
		return nil
	}
	return NewValidationError(s.ID(), fmt.Sprintf("unknown volatility model %q", state.Config.Study.VolatilityModel))
}

// Execute writes the per-ticker, per-sector and group volatility tables
func (s *VolatilityStage) Execute(ctx context.Context, state *State) error {
	rows, err := loadPanel(state)
	if err != nil {
		return err
	}
	c, err := state.Classifier(classify.MetadataFirst)
	if err != nil {
		return err
	}
	labels := labelTickers(ctx, state, s.ID(), c, inference.PanelTickers(rows))

	st := state.Config.Study
	est, err := volatility.SelectEstimator(st.VolatilityModel, state.Logger)
	if err != nil {
		return err
	}
	contrast := volatility.NewContrast(est, st.MinVolObs, state.Logger)
	contrast.SetWorkers(st.Workers)
	res, err := contrast.Run(ctx, rows, labels, state.Event)
	if err != nil {
		return err
	}

	if err := state.WriteTables(
		volatility.SummaryTable(res),
		volatility.SectorTable(res.Rows),
		volatility.GroupsTable(res.Rows),
	); err != nil {
		return err
	}
	state.RecordTickers(len(res.Rows), res.Skips.Count(apperrors.ErrTypeInsufficientData))
	state.RecordDegraded(res.Skips.Count(apperrors.ErrTypeConvergence))
	return nil
}

func loadVolSummary(state *State, c *classify.Classifier) ([]volatility.SummaryRecord, error) {
	records, err := volatility.LoadSummary(state.TablePath(config.TableVolSummary))
	if err != nil {
		return nil, err
	}
	volatility.FillSectors(records, c)
	return records, nil
}

// VolGroupsStage compares delta sigma across the volatility sector buckets
type VolGroupsStage struct {
	eventStage
}

// NewVolGroupsStage creates the volatility group comparison stage
func NewVolGroupsStage() *VolGroupsStage {
	return &VolGroupsStage{eventStage{NewBaseStage(config.StageVolGroups, "Volatility group comparison", config.StageVolatility)}}
}

// Execute writes the group summary and the Welch and bootstrap tests
func (s *VolGroupsStage) Execute(ctx context.Context, state *State) error {
	base, err := state.Classifier(classify.MetadataFirst)
	if err != nil {
		return err
	}
	records, err := loadVolSummary(state, base)
	if err != nil {
		return err
	}

	st := state.Config.Study
	cmp, err := volatility.CompareGroups(records, base.WithGroups(state.Universe.VolGroups()), st.BootstrapVol, st.BootstrapSeed)
	if err != nil {
		return err
	}
	if err := state.WriteTables(cmp.SummaryTable(), cmp.TestsTable()); err != nil {
		return err
	}
	state.Logger.InfoContext(ctx, "volatility groups compared",
		"treated", len(cmp.Treated),
		"defensive", len(cmp.Defensive),
		"t_stat", cmp.Welch.T,
		"pval", cmp.Welch.P)
	n := len(cmp.Treated) + len(cmp.Defensive)
	state.RecordTickers(n, len(records)-n)
	return nil
}

// LinkagesStage relates volatility changes to the macro shocks
type LinkagesStage struct {
	eventStage
}

// NewLinkagesStage creates the macro linkage stage
func NewLinkagesStage() *LinkagesStage {
	return &LinkagesStage{eventStage{NewBaseStage(config.StageLinkages, "Global linkages", config.StageDownload, config.StageVolatility)}}
}

// Execute computes the macro shocks and fits the linkage regression
func (s *LinkagesStage) Execute(ctx context.Context, state *State) error {
	prices, err := panel.LoadPrices(state.Paths.MergedPricesPath())
	if err != nil {
		return err
	}
	st := state.Config.Study
	shocks, err := volatility.ComputeMacroShocks(prices, state.Universe.Macro, state.Event, st.KPre, st.KPost)
	if err != nil {
		return err
	}

	c, err := state.Classifier(classify.MetadataFirst)
	if err != nil {
		return err
	}
	records, err := loadVolSummary(state, c)
	if err != nil {
		return err
	}
	link, err := volatility.FitLinkages(ctx, state.Logger, records, shocks)
	if err != nil {
		return err
	}
	if err := state.WriteTables(link.Table(), volatility.ShocksTable(shocks)); err != nil {
		return err
	}
	state.RecordTickers(link.N, len(records)-link.N)
	return nil
}

// ReportStage collects every table of the event date into one workbook
type ReportStage struct {
	eventStage
}

// NewReportStage creates the report stage
func NewReportStage() *ReportStage {
	return &ReportStage{eventStage{NewBaseStage(config.StageReport, "Workbook report", config.StageEventStudy)}}
}

// Execute writes results/reports/report_{date}.xlsx
func (s *ReportStage) Execute(ctx context.Context, state *State) error {
	tables, err := CollectTables(state.Paths, state.EventDate)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		return apperrors.NewMissingInputError(
			fmt.Sprintf("result tables for %s in %s", state.EventDate, state.Paths.TablesDir),
			config.StageEventStudy, nil)
	}

	path := state.Paths.ReportPath(state.EventDate)
	if err := exporter.NewWorkbookExporter(state.Logger).Export(path, tables); err != nil {
		return apperrors.NewStorageError("write report workbook", err)
	}
	state.AddFile(path)
	state.Logger.InfoContext(ctx, "report written", "path", path, "sheets", len(tables))
	return nil
}

// CollectTables reads every result table of an event date, in stage order.
// Text notes become single-column sheets.
func CollectTables(paths *config.Paths, eventDate string) ([]*exporter.Table, error) {
	suffix := "_" + eventDate
	entries, err := os.ReadDir(paths.TablesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.NewStorageError("list result tables", err)
	}

	type entry struct {
		file  string
		table string
	}
	var found []entry
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		base := strings.TrimSuffix(e.Name(), ext)
		if e.IsDir() || (ext != ".csv" && ext != ".txt") || !strings.HasSuffix(base, suffix) {
			continue
		}
		found = append(found, entry{file: e.Name(), table: strings.TrimSuffix(base, suffix)})
	}
	sort.SliceStable(found, func(i, j int) bool {
		return tableRank(found[i].table) < tableRank(found[j].table)
	})

	tables := make([]*exporter.Table, 0, len(found))
	for _, f := range found {
		t, err := ReadTable(filepath.Join(paths.TablesDir, f.file), f.table)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// ReadTable loads one result file as a table. A .txt file becomes a single
// "note" column with one row per line.
func ReadTable(path, name string) (*exporter.Table, error) {
	if filepath.Ext(path) != ".txt" {
		csv, err := schema.ReadCSV(path, config.StageReport)
		if err != nil {
			return nil, err
		}
		return &exporter.Table{Name: name, Headers: csv.Header, Rows: csv.Rows}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("read %s", filepath.Base(path)), err)
	}
	t := &exporter.Table{Name: name, Headers: []string{"note"}}
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		t.AddRow(line)
	}
	return t, nil
}

// reportOrder is the sheet order of the workbook; unknown tables go last
var reportOrder = []string{
	config.TableEventSummary,
	config.TableMeanAR,
	config.TableEventPanel,
	config.TableSectorMean,
	config.TableSectorMedian,
	strings.TrimSuffix(config.TableTreatedNote, ".txt"),
	config.TableWelch,
	config.TableBootstrap,
	config.TableDiD,
	config.TableDiDEventTime,
	config.TableDDD,
	config.TableVolSummary,
	config.TableVolSector,
	config.TableVolGroups,
	config.TableVolGroupSummary,
	config.TableVolGroupTests,
	config.TableGlobalLinkages,
	config.TableMacroShocks,
}

func tableRank(table string) int {
	for i, name := range reportOrder {
		if table == name {
			return i
		}
	}
	return len(reportOrder)
}
