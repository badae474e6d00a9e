package worker

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DialProbe reports the remote as online when a TCP connection to its
// host can be established.
func DialProbe(baseURL string, timeout time.Duration) Connectivity {
	return ProbeFunc(func(ctx context.Context) bool {
		u, err := url.Parse(baseURL)
		if err != nil {
			return false
		}
		host := u.Host
		if u.Port() == "" {
			port := "443"
			if u.Scheme == "http" {
				port = "80"
			}
			host = net.JoinHostPort(u.Hostname(), port)
		}

		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", host)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	})
}

// ConnectivityWatcher polls the probe and fires the worker once per
// offline-to-online transition. It is the agent's equivalent of a
// connectivity-restored signal; it never re-triggers an idle worker on
// its own.
type ConnectivityWatcher struct {
	worker   *SyncWorker
	probe    Connectivity
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewConnectivityWatcher(w *SyncWorker, probe Connectivity) *ConnectivityWatcher {
	return &ConnectivityWatcher{
		worker:   w,
		probe:    probe,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the poll interval.
func (cw *ConnectivityWatcher) WithInterval(interval time.Duration) *ConnectivityWatcher {
	if interval > 0 {
		cw.interval = interval
	}
	return cw
}

// Start blocks and watches for reconnects until Stop or ctx cancellation.
func (cw *ConnectivityWatcher) Start(ctx context.Context) {
	zap.L().Info("connectivity watcher starting", zap.Duration("interval", cw.interval))
	ticker := time.NewTicker(cw.interval)
	defer ticker.Stop()

	online := cw.probe.Online(ctx)
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("connectivity watcher context canceled")
			return
		case <-cw.stopCh:
			zap.L().Info("connectivity watcher stop signal received")
			return
		case <-ticker.C:
			now := cw.probe.Online(ctx)
			if now && !online {
				zap.L().Info("connectivity restored, triggering sync")
				cw.worker.Trigger()
			}
			online = now
		}
	}
}

// Stop stops the watcher loop.
func (cw *ConnectivityWatcher) Stop() {
	cw.stopOnce.Do(func() {
		close(cw.stopCh)
	})
}

// Run starts the watcher in a goroutine and returns a stop function.
func (cw *ConnectivityWatcher) Run(ctx context.Context) func() {
	go cw.Start(ctx)
	return cw.Stop
}
