// Package reclaim frees host disk space held by the container runtime.
//
// A run prunes the whole system, then unused images, then unused volumes,
// and finally prints a df table. Every step is announced on stdout right
// before it starts. Prune output is discarded and prune failures never
// stop the run: the df table is always printed and the process exit
// status is the exit status of the df step alone.
package reclaim
