package watch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/pilebones/go-udev/netlink"

	"bdscan/internal/discfs"
	"bdscan/internal/testsupport"
)

func discEvent(action netlink.KObjAction, env map[string]string) netlink.UEvent {
	base := map[string]string{
		"SUBSYSTEM":      "block",
		"ID_CDROM":       "1",
		"ID_CDROM_MEDIA": "1",
	}
	for k, v := range env {
		base[k] = v
	}
	return netlink.UEvent{Action: action, Env: base}
}

func newTestWatcher(t *testing.T, device string, handler Handler) *Watcher {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithDrive(device))
	w, err := New(cfg, nil, handler)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.mountWait = 0
	w.resolve = func(dev string) (string, error) {
		if dev == "/dev/sr0" || dev == "/dev/sr1" {
			return "/media/" + dev[len("/dev/"):], nil
		}
		return "", fmt.Errorf("%s: %w", dev, discfs.ErrMountNotFound)
	}
	return w
}

func TestNewRequiresHandler(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := New(cfg, nil, nil); err == nil {
		t.Fatal("expected error without handler")
	}
	if _, err := New(nil, nil, func(context.Context, Event) error { return nil }); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestMatcher(t *testing.T) {
	tests := []struct {
		name  string
		event netlink.UEvent
		want  bool
	}{
		{"change", discEvent(netlink.CHANGE, nil), true},
		{"add", discEvent(netlink.ADD, nil), true},
		{"remove", discEvent(netlink.REMOVE, nil), false},
		{"no media", discEvent(netlink.CHANGE, map[string]string{"ID_CDROM_MEDIA": "0"}), false},
		{"not a cdrom", discEvent(netlink.CHANGE, map[string]string{"ID_CDROM": "0"}), false},
	}
	matcher := Matcher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matcher.Evaluate(tt.event); got != tt.want {
				t.Fatalf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeviceName(t *testing.T) {
	tests := []struct {
		env  map[string]string
		want string
	}{
		{map[string]string{"DEVNAME": "/dev/sr0"}, "/dev/sr0"},
		{map[string]string{"DEVNAME": "sr1"}, "/dev/sr1"},
		{map[string]string{"DEVPATH": "/devices/pci0000:00/ata2/host1/block/sr0"}, "/dev/sr0"},
		{map[string]string{}, ""},
	}
	for _, tt := range tests {
		if got := deviceName(netlink.UEvent{Env: tt.env}); got != tt.want {
			t.Fatalf("deviceName(%v) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestHandleEventCallsHandler(t *testing.T) {
	var got []Event
	w := newTestWatcher(t, "/dev/sr0", func(_ context.Context, ev Event) error {
		got = append(got, ev)
		return nil
	})

	w.handleEvent(context.Background(), discEvent(netlink.CHANGE, map[string]string{"DEVNAME": "/dev/sr0"}))
	w.handleEvent(context.Background(), discEvent(netlink.CHANGE, map[string]string{"DEVNAME": "/dev/sr1"}))
	w.handleEvent(context.Background(), discEvent(netlink.CHANGE, nil))

	if len(got) != 1 {
		t.Fatalf("handler calls = %d, want 1", len(got))
	}
	want := Event{Device: "/dev/sr0", MountPoint: "/media/sr0", Action: "change"}
	if got[0] != want {
		t.Fatalf("event = %+v, want %+v", got[0], want)
	}
}

func TestHandleEventAnyDevice(t *testing.T) {
	var devices []string
	w := newTestWatcher(t, "", func(_ context.Context, ev Event) error {
		devices = append(devices, ev.Device)
		return nil
	})
	w.handleEvent(context.Background(), discEvent(netlink.ADD, map[string]string{"DEVNAME": "/dev/sr0"}))
	w.handleEvent(context.Background(), discEvent(netlink.ADD, map[string]string{"DEVNAME": "/dev/sr1"}))
	if len(devices) != 2 {
		t.Fatalf("devices = %v", devices)
	}
}

func TestHandleEventSkipsUnmountedDisc(t *testing.T) {
	called := false
	w := newTestWatcher(t, "", func(context.Context, Event) error {
		called = true
		return nil
	})
	w.handleEvent(context.Background(), discEvent(netlink.CHANGE, map[string]string{"DEVNAME": "/dev/sr9"}))
	if called {
		t.Fatal("handler called for a disc that never mounted")
	}
}

func TestHandlerFailureKeepsWatching(t *testing.T) {
	calls := 0
	w := newTestWatcher(t, "/dev/sr0", func(context.Context, Event) error {
		calls++
		return errors.New("scan failed")
	})
	ev := discEvent(netlink.CHANGE, map[string]string{"DEVNAME": "/dev/sr0"})
	w.handleEvent(context.Background(), ev)
	w.handleEvent(context.Background(), ev)
	if calls != 2 {
		t.Fatalf("handler calls = %d, want 2", calls)
	}
}

func TestWaitForMountRetries(t *testing.T) {
	w := newTestWatcher(t, "", func(context.Context, Event) error { return nil })
	w.mountWait = 5 * time.Second
	attempts := 0
	w.resolve = func(dev string) (string, error) {
		attempts++
		if attempts < 2 {
			return "", discfs.ErrMountNotFound
		}
		return "/media/bd", nil
	}
	got, err := w.waitForMount(context.Background(), "/dev/sr0")
	if err != nil || got != "/media/bd" {
		t.Fatalf("waitForMount = %q, %v", got, err)
	}
}

func TestWaitForMountStopsOnCancel(t *testing.T) {
	w := newTestWatcher(t, "", func(context.Context, Event) error { return nil })
	w.mountWait = time.Minute
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.waitForMount(ctx, "/dev/sr7"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRunRefusesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	held := flock.New(cfg.WatchLockPath())
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer func() { _ = held.Unlock() }()

	w, err := New(cfg, nil, func(context.Context, Event) error { return nil })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Run err = %v, want ErrAlreadyRunning", err)
	}
}
