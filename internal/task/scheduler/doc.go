// Package scheduler registers named cron triggers (robfig/cron) and runs
// their jobs with a timeout, panic recovery and skip-if-still-running.
//
// Names are unique: registering an existing name replaces it.
package scheduler
