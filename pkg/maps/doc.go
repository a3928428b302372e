// Package maps is a thin client for the Azure Maps geocoding and route
// directions APIs.
//
// Directions forwards the provider's route JSON unmodified. PlanRoute
// summarises it into travel time, distance and traffic delay, and is exposed
// to agent runs as the plan_survival_route tool.
package maps
