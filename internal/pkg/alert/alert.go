// Package alert pushes error-level log entries to a Bark server so that
// operators hear about path collisions and similar faults.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appcfg "github.com/bookbridge/core/internal/config"
)

// Notifier sends throttled Bark pushes.
type Notifier struct {
	cfg        appcfg.AlertsConfig
	httpClient *http.Client
	now        func() time.Time

	mu       sync.Mutex
	lastPush map[string]time.Time
	wg       sync.WaitGroup
}

func New(cfg appcfg.AlertsConfig) *Notifier {
	if cfg.Throttle <= 0 {
		cfg.Throttle = 10 * time.Minute
	}
	return &Notifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		lastPush:   make(map[string]time.Time),
	}
}

type pushPayload struct {
	DeviceKey string `json:"device_key"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Group     string `json:"group,omitempty"`
}

// Push sends one notification immediately.
func (n *Notifier) Push(ctx context.Context, title, body string) error {
	if n.cfg.BarkKey == "" {
		return fmt.Errorf("bark key not configured")
	}
	b, err := json.Marshal(pushPayload{
		DeviceKey: n.cfg.BarkKey,
		Title:     fmt.Sprintf("[%s] %s", n.cfg.Title, title),
		Body:      body,
		Group:     n.cfg.Title,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.BarkServer+"/push", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("bark push: status %d", resp.StatusCode)
	}
	return nil
}

// allow reports whether key may push now, at most once per throttle window.
func (n *Notifier) allow(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	if last, ok := n.lastPush[key]; ok && now.Sub(last) < n.cfg.Throttle {
		return false
	}
	n.lastPush[key] = now
	return true
}

// hook runs for every entry the logger writes. Pushes happen off the
// logging goroutine and their failures are dropped.
func (n *Notifier) hook(e zapcore.Entry) error {
	if e.Level < zapcore.ErrorLevel || !n.allow(e.LoggerName+"|"+e.Message) {
		return nil
	}
	body := e.Message
	if e.Caller.Defined {
		body += "\n" + e.Caller.TrimmedPath()
	}
	title := e.LoggerName
	if title == "" {
		title = "error"
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = n.Push(ctx, title, body)
	}()
	return nil
}

// Wait blocks until in-flight pushes finish.
func (n *Notifier) Wait() { n.wg.Wait() }

// Attach returns log with error entries forwarded to n. A nil notifier or an
// empty key leaves log unchanged.
func Attach(log *zap.Logger, n *Notifier) *zap.Logger {
	if n == nil || n.cfg.BarkKey == "" {
		return log
	}
	return log.WithOptions(zap.Hooks(n.hook))
}
