/*
Package drift compares current feature distributions against stored
baselines.

A baseline captures per-feature moments plus a binned histogram for
numeric features and category proportions for categorical ones. Checks
score each feature with the population stability index or the
Kolmogorov-Smirnov statistic (numeric) or a chi-square distance
(categorical) and classify the worst score into none, low, medium or
high severity.
*/
package drift
