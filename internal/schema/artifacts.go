package schema

import (
	"fmt"

	"shockstudy/internal/config"
)

// Field names shared by the artifacts below
const (
	FieldDate          = "date"
	FieldTicker        = "ticker"
	FieldSector        = "sector"
	FieldIndustry      = "industry"
	FieldExposureGroup = "exposure_group"
	FieldSource        = "source"
	FieldAR            = "ar"
	FieldCAR           = "car"
	FieldAlpha         = "alpha"
	FieldBeta          = "beta"
	FieldPreSigma      = "pre_mean_sigma"
	FieldPostSigma     = "post_mean_sigma"
	FieldDeltaSigma    = "delta_sigma"
	FieldEstimator     = "estimator"
)

var tickerField = Field{Name: FieldTicker, Aliases: []string{"Ticker", "symbol", "Symbol", "tic"}}

// Prices is the wide price panel; only the date column is declared, every
// other column is a security.
func Prices() *Schema {
	return &Schema{
		Artifact:   config.MergedPricesFile,
		ProducedBy: config.StageDownload,
		Fields: []Field{
			{Name: FieldDate, Aliases: []string{"Date", "Datetime", "dt", "index"}},
		},
	}
}

// SectorMeta is the ticker metadata file
func SectorMeta() *Schema {
	return &Schema{
		Artifact:   config.SectorMetaFile,
		ProducedBy: config.StageDownload,
		Fields: []Field{
			tickerField,
			{Name: FieldSector, Aliases: []string{"Sector"}},
			{Name: FieldIndustry, Aliases: []string{"Industry"}, Optional: true},
			{Name: FieldExposureGroup, Aliases: []string{"ExposureGroup", "exposure"}, Optional: true},
			{Name: FieldSource, Aliases: []string{"Source"}, Optional: true},
		},
	}
}

// Panel is the AR/CAR panel written by the event study
func Panel() *Schema {
	return &Schema{
		Artifact:   config.TableEventPanel,
		ProducedBy: config.StageEventStudy,
		Fields: []Field{
			{Name: FieldDate, Aliases: []string{"Date", "dt"}},
			tickerField,
			{Name: FieldAR, Aliases: []string{"AR", "abnormal_return", "AbnormalReturn"}},
			{Name: FieldCAR, Aliases: []string{"CAR", "cumulative_abnormal_return", "CumulativeAbnormalReturn"}, Optional: true},
		},
	}
}

// CARField is the fixed-horizon CAR column for horizon k
func CARField(k int) Field {
	return Field{
		Name: CARColumn(k),
		Aliases: []string{
			fmt.Sprintf("CAR%d", k),
			fmt.Sprintf("CAR%dd", k),
			fmt.Sprintf("CAR_%d", k),
		},
	}
}

// CARColumn is the canonical header of the horizon-k CAR column
func CARColumn(k int) string {
	return fmt.Sprintf("CAR_%dd", k)
}

// Summary is the per-ticker event-study summary
func Summary(k1, k2 int) *Schema {
	return &Schema{
		Artifact:   config.TableEventSummary,
		ProducedBy: config.StageEventStudy,
		Fields: []Field{
			tickerField,
			{Name: FieldAlpha, Aliases: []string{"Alpha"}, Optional: true},
			{Name: FieldBeta, Aliases: []string{"Beta"}, Optional: true},
			CARField(k1),
			CARField(k2),
		},
	}
}

// VolSummary is the per-ticker volatility table. Either the delta column
// or both level columns must be present; callers check that with Has.
func VolSummary() *Schema {
	return &Schema{
		Artifact:   config.TableVolSummary,
		ProducedBy: config.StageVolatility,
		Fields: []Field{
			tickerField,
			{Name: FieldSector, Aliases: []string{"Sector"}, Optional: true},
			{Name: FieldExposureGroup, Aliases: []string{"ExposureGroup"}, Optional: true},
			{Name: FieldPreSigma, Aliases: []string{"sigma_pre", "pre_sigma"}, Optional: true},
			{Name: FieldPostSigma, Aliases: []string{"sigma_post", "post_sigma"}, Optional: true},
			{Name: FieldDeltaSigma, Aliases: []string{"d_sigma", "dsigma"}, Optional: true},
			{Name: FieldEstimator, Optional: true},
		},
	}
}
