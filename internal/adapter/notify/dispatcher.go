// Package notify delivers backup outcomes over email and Telegram.
package notify

import (
	"context"
	"fmt"

	"github.com/semmidev/dumpvault/internal/config"
	"github.com/semmidev/dumpvault/internal/domain"
)

// Channel is one delivery transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, subject, body string) error
	TestConnection(ctx context.Context) error
}

// Policy selects which outcomes a channel receives.
type Policy struct {
	OnSuccess bool
	OnFailure bool
}

func (p Policy) allows(success bool) bool {
	if success {
		return p.OnSuccess
	}
	return p.OnFailure
}

type route struct {
	channel Channel
	policy  Policy
}

// Dispatcher fans a result out to every channel whose policy accepts it.
// Delivery errors are logged and never returned.
type Dispatcher struct {
	routes []route
	logger domain.Logger
}

func NewDispatcher(logger domain.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

// FromConfig registers every enabled channel on d.
func FromConfig(cfg config.NotificationConfig, d *Dispatcher) {
	if cfg.Email.Enabled {
		d.Register(NewEmail(cfg.Email), Policy{OnSuccess: cfg.Email.NotifyOnSuccess, OnFailure: cfg.Email.NotifyOnFailure})
	}
	if cfg.Telegram.Enabled {
		d.Register(NewTelegram(cfg.Telegram), Policy{OnSuccess: cfg.Telegram.NotifyOnSuccess, OnFailure: cfg.Telegram.NotifyOnFailure})
	}
}

func (d *Dispatcher) Register(channel Channel, policy Policy) {
	d.routes = append(d.routes, route{channel: channel, policy: policy})
}

func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.routes))
	for _, r := range d.routes {
		names = append(names, r.channel.Name())
	}
	return names
}

func (d *Dispatcher) Notify(ctx context.Context, result *domain.BackupResult) {
	if result == nil {
		return
	}

	subject := Subject(result)
	body := Format(result)

	for _, r := range d.routes {
		if !r.policy.allows(result.Success) {
			continue
		}
		d.send(ctx, r.channel, subject, body, result.Database)
	}
}

func (d *Dispatcher) send(ctx context.Context, channel Channel, subject, body, database string) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Errorf("[%s] Notification via %s panicked: %v", database, channel.Name(), rec)
		}
	}()

	if err := channel.Send(ctx, subject, body); err != nil {
		d.logger.Errorf("[%s] Failed to send %s notification: %v", database, channel.Name(), err)
		return
	}
	d.logger.Infof("[%s] %s notification sent", database, channel.Name())
}

// TestConnections checks every channel and reports reachability by name.
func (d *Dispatcher) TestConnections(ctx context.Context) map[string]bool {
	status := make(map[string]bool, len(d.routes))
	for _, r := range d.routes {
		err := r.channel.TestConnection(ctx)
		if err != nil {
			d.logger.Warnf("Notification channel %s unreachable: %v", r.channel.Name(), err)
		}
		status[r.channel.Name()] = err == nil
	}
	return status
}

// SendTest pushes a test message through every channel regardless of policy.
func (d *Dispatcher) SendTest(ctx context.Context) map[string]error {
	results := make(map[string]error, len(d.routes))
	for _, r := range d.routes {
		results[r.channel.Name()] = r.channel.Send(ctx, "🧪 Test Notification",
			fmt.Sprintf("🧪 Test notification from dumpvault via %s.\n\n✅ If you receive this message, notifications are working correctly!", r.channel.Name()))
	}
	return results
}
