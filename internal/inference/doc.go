// Package inference compares treated and defensive securities.
//
// Fit estimates two-way fixed-effects regressions on the daily AR panel:
// DiD (TreatedFlag*Post) and DDD (TreatedFlag*HighExposure*Post), each with
// ticker and date dummies and standard errors clustered by ticker. The main
// effects that the dummies absorb are reported as dropped terms rather
// than estimated.
//
// The cross-sectional helpers work on the event-study summary: Welch tests
// and bootstrap confidence intervals of mean CAR per group, sector mean and
// median tables, and the event-time mean AR by group.
package inference
