// Package scheduler implements the default Scheduler strategy. It keeps
// track of which vehicle holds which plant resources (points, paths,
// locations) and refuses to hand a resource to a second vehicle.
package scheduler
