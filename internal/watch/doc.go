// Package watch runs an analysis whenever a disc is inserted.
//
// A Watcher holds a flock on the state directory so only one watcher runs per
// host, listens for udev netlink events that announce optical media, and
// hands the mounted disc path to a Handler. Handler failures are logged and
// the watch continues with the next insertion.
package watch
