package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/pilebones/go-udev/netlink"

	"bdscan/internal/config"
	"bdscan/internal/discfs"
	"bdscan/internal/logging"
)

// ErrAlreadyRunning is returned by Run when another watcher holds the lock.
var ErrAlreadyRunning = errors.New("another bdscan watcher is already running")

// Event describes a disc insertion whose filesystem is mounted.
type Event struct {
	Device     string
	MountPoint string
	Action     string
}

// Handler is called once per insertion. Calls are serialized.
type Handler func(ctx context.Context, ev Event) error

// Watcher reacts to disc insertions reported by udev.
type Watcher struct {
	logger    *slog.Logger
	handler   Handler
	device    string
	lockPath  string
	mountWait time.Duration
	resolve   func(device string) (string, error)
}

// New builds a watcher from the [drive] and [paths] configuration. An empty
// drive device accepts insertions on any optical drive.
func New(cfg *config.Config, logger *slog.Logger, handler Handler) (*Watcher, error) {
	if cfg == nil || handler == nil {
		return nil, errors.New("watch requires config and handler")
	}
	return &Watcher{
		logger:    logging.NewComponentLogger(logger, "watch"),
		handler:   handler,
		device:    strings.TrimSpace(cfg.Drive.Device),
		lockPath:  cfg.WatchLockPath(),
		mountWait: 30 * time.Second,
		resolve:   discfs.ResolveMountPoint,
	}, nil
}

// Run holds the watch lock and processes insertions until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	lock := flock.New(w.lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() { _ = lock.Unlock() }()

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return fmt.Errorf("connect netlink socket: %w", err)
	}
	defer conn.Close()

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	quit := conn.Monitor(queue, errs, Matcher())
	defer close(quit)

	w.logger.Info("watching for disc insertions",
		logging.String(logging.FieldEventType, "watch_started"),
		logging.String("device", w.deviceLabel()),
		logging.String("lock", w.lockPath),
	)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped", logging.String(logging.FieldEventType, "watch_stopped"))
			return nil
		case uevent := <-queue:
			w.handleEvent(ctx, uevent)
		case err := <-errs:
			logging.WarnWithContext(w.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "disc insertions may be missed"),
			)
		}
	}
}

// Matcher accepts add and change events for optical drives with media.
func Matcher() netlink.Matcher {
	action := "change|add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM":      "block",
			"ID_CDROM":       "1",
			"ID_CDROM_MEDIA": "1",
		},
	})
	return rules
}

func (w *Watcher) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	device := deviceName(uevent)
	if device == "" {
		w.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}
	if w.device != "" && device != w.device {
		w.logger.Debug("ignoring event for other device",
			logging.String("device", device),
			logging.String("configured_device", w.device),
		)
		return
	}

	mountPoint, err := w.waitForMount(ctx, device)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.WarnWithContext(w.logger, "disc inserted but not mounted", "watch_mount_missing",
			logging.String("device", device),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "mount the disc or enable automounting"),
			logging.String(logging.FieldImpact, "disc not scanned"),
		)
		return
	}

	ev := Event{Device: device, MountPoint: mountPoint, Action: string(uevent.Action)}
	w.logger.Info("disc detected",
		logging.String(logging.FieldEventType, "watch_disc_detected"),
		logging.String("device", device),
		logging.String("mount_point", mountPoint),
		logging.String("action", ev.Action),
	)
	if err := w.handler(ctx, ev); err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.WarnWithContext(w.logger, "disc handler failed", "watch_handler_failed",
			logging.String("device", device),
			logging.Error(err),
			logging.String(logging.FieldImpact, "waiting for the next disc"),
		)
	}
}

// waitForMount polls until the automounter has mounted device.
func (w *Watcher) waitForMount(ctx context.Context, device string) (string, error) {
	deadline := time.Now().Add(w.mountWait)
	for {
		mountPoint, err := w.resolve(device)
		if err == nil {
			return mountPoint, nil
		}
		if !errors.Is(err, discfs.ErrMountNotFound) || !time.Now().Before(deadline) {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (w *Watcher) deviceLabel() string {
	if w.device == "" {
		return "any"
	}
	return w.device
}

// deviceName gets the device node from a uevent, falling back to the last
// DEVPATH element.
func deviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			devname = "/dev/" + devname
		}
		return devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
