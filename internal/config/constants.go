package config

// DateLayout is the date format used on the CLI, in file names and in CSV tables
const DateLayout = "2006-01-02"

// Raw input files
const (
	MergedPricesFile = "merged_market_daily.csv"
	SectorMetaFile   = "ticker_sectors.csv"
)

// Result table prefixes. The event date is appended by Paths.TablePath.
const (
	TableEventPanel      = "event_study_panel"
	TableEventSummary    = "event_study_summary"
	TableMeanAR          = "mean_ar"
	TableSectorMean      = "sector_avg_mean"
	TableSectorMedian    = "sector_avg_median"
	TableTreatedNote     = "treated_vs_defensive.txt"
	TableWelch           = "welch_tests"
	TableBootstrap       = "bootstrap_ci"
	TableDiD             = "did_summary"
	TableDiDEventTime    = "did_event_time"
	TableDDD             = "ddd_summary"
	TableVolSummary      = "volatility_summary"
	TableVolSector       = "volatility_sector"
	TableVolGroups       = "volatility_groups"
	TableVolGroupSummary = "vol_vol_group_summary"
	TableVolGroupTests   = "vol_vol_group_tests"
	TableGlobalLinkages  = "global_linkages"
	TableMacroShocks     = "macro_shocks"
)

// tableStages maps each result table to the stage writing it
var tableStages = map[string]string{
	TableEventPanel:      StageEventStudy,
	TableEventSummary:    StageEventStudy,
	TableMeanAR:          StageEventStudy,
	TableSectorMean:      StageSectors,
	TableSectorMedian:    StageSectors,
	TableTreatedNote:     StageSectors,
	TableWelch:           StageInference,
	TableBootstrap:       StageInference,
	TableDiD:             StageDiD,
	TableDiDEventTime:    StageDiD,
	TableDDD:             StageDDD,
	TableVolSummary:      StageVolatility,
	TableVolSector:       StageVolatility,
	TableVolGroups:       StageVolatility,
	TableVolGroupSummary: StageVolGroups,
	TableVolGroupTests:   StageVolGroups,
	TableGlobalLinkages:  StageLinkages,
	TableMacroShocks:     StageLinkages,
}

// ProducedBy returns the stage writing table, or "" for unknown tables.
// The .txt suffix is optional.
func ProducedBy(table string) string {
	if stage, ok := tableStages[table]; ok {
		return stage
	}
	return tableStages[table+".txt"]
}

// Stage identifiers, used in error hints and the run manifest
const (
	StageDownload   = "download"
	StageEventStudy = "eventstudy"
	StageSectors    = "sectors"
	StageInference  = "inference"
	StageDiD        = "did"
	StageDDD        = "ddd"
	StageVolatility = "volatility"
	StageVolGroups  = "volgroups"
	StageLinkages   = "linkages"
	StageReport     = "report"
)

// Group labels
const (
	GroupTreated   = "Treated"
	GroupDefensive = "Defensive"
	GroupOther     = "Other"
)

// UnmappedSector is assigned when no sector can be found for a ticker
const UnmappedSector = "Unmapped"
