// Package governor implements the performance governor of the save
// engine: payload compression, process memory monitoring with pressure
// alarms, and activity-rate tracking that derives the adaptive save
// interval consumed by the scheduler.
package governor
