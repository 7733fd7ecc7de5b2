/*
Package domain defines AeroSuite's aggregate roots and their invariants.

Each aggregate (Inspection, Component, Customer) embeds Root, which carries
identity, timestamps, the optimistic-concurrency version token, and the
ordered list of domain events recorded by state-changing operations.
Aggregates enforce their own status-transition tables; invalid transitions
surface as validation errors. Persistence and event publication are the
caller's responsibility: repositories bump the version token on save, and
services publish TakeEvents() only after a save succeeds.
*/
package domain
