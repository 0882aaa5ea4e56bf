// Package stats holds the numerical building blocks shared by the event
// study, inference and volatility stages.
//
// Linear algebra is delegated to gonum. LeastSquares returns the
// minimum-norm solution (the same answer as LAPACK gelsd) so that a single
// observation or a constant regressor still yields a deterministic fit.
// OLS builds on a Design, drops columns that are linearly dependent on
// earlier ones (fixed effects absorb the main effects of a DiD
// interaction), and exposes cluster-robust and HC1 covariance estimators.
//
// Robust standard errors use the normal reference distribution for
// p-values. Welch tests use Student's t with Welch–Satterthwaite degrees of
// freedom.
//
// Bootstrap resampling is seeded per call so the same seed and input always
// produce the same interval, regardless of call order.
package stats
