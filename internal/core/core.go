// Package core assembles the forgeloop runtime from configuration: the
// broker, the durable journal, the change tracker, the improvement
// engine, and the optional relay and notifier.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/forgeloop/forgeloop/internal/broker"
	"github.com/forgeloop/forgeloop/internal/config"
	"github.com/forgeloop/forgeloop/internal/improve"
	"github.com/forgeloop/forgeloop/internal/journal"
	"github.com/forgeloop/forgeloop/internal/notify"
	"github.com/forgeloop/forgeloop/internal/relay"
	"github.com/forgeloop/forgeloop/internal/tracker"
)

// Core holds the wired subsystems. Journal, Relay, and Notifier are nil
// when disabled by config.
type Core struct {
	Config   *config.Config
	Broker   *broker.Broker
	Journal  *journal.Journal
	Tracker  *tracker.Tracker
	Engine   *improve.Engine
	Relay    *relay.Relay
	Notifier *notify.SlackNotifier
}

// New wires the runtime. Construction is side-effecting: state
// directories are created and persisted state is loaded.
func New(cfg *config.Config) (*Core, error) {
	if err := os.MkdirAll(cfg.Paths.StateRoot, 0o700); err != nil {
		return nil, fmt.Errorf("state root: %w", err)
	}

	c := &Core{
		Config: cfg,
		Broker: broker.New(cfg.Broker.MaxHistory),
	}

	if cfg.Journal.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.DBPath), 0o700); err != nil {
			return nil, fmt.Errorf("journal dir: %w", err)
		}
		j, err := journal.Open(cfg.Journal.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		c.Journal = j
		c.Broker.SetRecorder(j)
	}

	trk, err := tracker.New(cfg.Paths.StateRoot)
	if err != nil {
		c.closePartial()
		return nil, fmt.Errorf("tracker: %w", err)
	}
	c.Tracker = trk

	eng, err := improve.New(cfg.Paths.StateRoot, c.Broker)
	if err != nil {
		c.closePartial()
		return nil, fmt.Errorf("engine: %w", err)
	}
	c.Engine = eng

	if n := notify.NewSlack(cfg.Notify.Slack); n != nil {
		c.Notifier = n
		c.Engine.SetNotifier(n)
	}

	if cfg.Relay.Enabled {
		r := relay.New(cfg.Relay, c.Broker)
		c.Relay = r
		c.Broker.SetForwarder(r)
		slog.Info("Core: relay enabled", "node", r.NodeID(), "brokers", cfg.Relay.Brokers)
	}

	return c, nil
}

// Start launches the background parts. Safe to call when the relay is
// disabled.
func (c *Core) Start(ctx context.Context) error {
	if c.Relay != nil {
		if err := c.Relay.Start(ctx); err != nil {
			return fmt.Errorf("start relay: %w", err)
		}
	}
	return nil
}

// Rollback reverts a change through the tracker and announces it.
func (c *Core) Rollback(changeID, reason string) error {
	if err := c.Tracker.Rollback(changeID, reason); err != nil {
		return err
	}
	if c.Notifier != nil {
		if chg, ok := c.Tracker.Get(changeID); ok {
			c.Notifier.ChangeRolledBack(chg, reason)
		}
	}
	return nil
}

// Close releases the relay and the journal.
func (c *Core) Close() error {
	var err error
	if c.Relay != nil {
		if rerr := c.Relay.Close(); rerr != nil {
			err = rerr
		}
	}
	if jerr := c.closePartial(); jerr != nil && err == nil {
		err = jerr
	}
	return err
}

func (c *Core) closePartial() error {
	if c.Journal != nil {
		return c.Journal.Close()
	}
	return nil
}
