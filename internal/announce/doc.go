// Package announce schedules sounds to play on cron cadences.
//
// Cron helpers parse expressions and compute upcoming run times, which the
// repository materializes as claimable jobs. The queue hands claimed jobs to
// the playback worker over a redis stream.
package announce
