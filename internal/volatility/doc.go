// Package volatility contrasts abnormal-return volatility before and after
// the event.
//
// Each ticker's pre and post segments are reduced to a mean volatility by
// an Estimator: GARCH(1,1) fitted by quasi maximum likelihood, or the
// sample standard deviation. SelectEstimator picks the variant once per
// run. A GARCH fit that fails falls back to the standard deviation and the
// row is flagged degraded.
//
// The change in volatility is then aggregated by sector and group, compared
// between Treated and Defensive buckets, and regressed on sector exposure
// to oil, risk and currency shocks measured around the event.
package volatility
