// Package logging is the leveled printf logger used across the catalog
// service.
//
// Levels are debug, info, warn and error. DEBUG=true forces debug output,
// otherwise LOG_LEVEL selects the level (default info).
package logging
