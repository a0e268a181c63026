package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/multiplayer-sessions/internal/coordinator"
	"github.com/DoyleJ11/multiplayer-sessions/internal/engine"
)

var errTimedOut = errors.New("no outcome before request timeout")

// outcome is what ends a menu run: a travel or a reported failure.
type outcome struct {
	travel  string
	mode    engine.TravelMode
	failure engine.FailureKind
}

// menu is a headless stand-in for the session menu. It owns the coordinator
// and records what a real menu would render.
type menu struct {
	log      *zap.Logger
	outcomes chan outcome
	enabled  map[engine.Control]bool
}

func newMenu(log *zap.Logger) *menu {
	return &menu{
		log:      log.Named("menu"),
		outcomes: make(chan outcome, 4),
		enabled:  map[engine.Control]bool{engine.ControlHost: true, engine.ControlJoin: true},
	}
}

func (m *menu) TravelRequested(address string, mode engine.TravelMode) {
	m.log.Info("travel", zap.String("address", address), zap.String("mode", string(mode)))
	m.outcomes <- outcome{travel: address, mode: mode}
}

func (m *menu) ControlEnableChanged(control engine.Control, enabled bool) {
	m.enabled[control] = enabled
	m.log.Debug("control", zap.String("control", string(control)), zap.Bool("enabled", enabled))
}

func (m *menu) FailureReported(kind engine.FailureKind) {
	m.outcomes <- outcome{failure: kind}
}

// run presses the button for action and waits for the first outcome.
func (m *menu) run(ctx context.Context, co *coordinator.Coordinator, action string, timeout time.Duration) error {
	var err error
	switch action {
	case "host":
		err = co.RequestHost()
	case "join":
		err = co.RequestJoin()
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	if err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-m.outcomes:
		if o.failure != "" {
			return fmt.Errorf("%s failed: %s", action, o.failure)
		}
		fmt.Printf("travel %s (%s)\n", o.travel, o.mode)
		if o.mode == engine.TravelListenHost {
			// a listen host keeps the session advertised until interrupted
			<-ctx.Done()
		}
		return nil
	case <-timer.C:
		return errTimedOut
	case <-ctx.Done():
		return ctx.Err()
	}
}
