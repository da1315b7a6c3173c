// Package tasksync builds the task tree from the tracker in the background.
//
// A Synchronizer runs one pass: list tasks, fetch each task's detail, group
// the results with tasktree and attach element thumbnails. The Controller
// owns at most one running pass, publishes its events in order and keeps the
// last completed tree. Cancellation is cooperative and checked before every
// tracker request; a cancelled pass never produces a tree.
package tasksync
