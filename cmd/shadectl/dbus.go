package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// ============================================================================
// D-Bus control surface (serve command)
// ============================================================================
// Session-bus interface for desktop integration: status applets and
// keybinding daemons talk to shadectl instead of spawning their own
// helper. Methods enqueue work; a single dispatch loop applies it, so
// fades never interleave.
// ============================================================================

const (
	defaultBusName = "io.github.screenshade"
	dbusObjectPath = "/io/github/screenshade/Shade"
	dbusInterface  = "io.github.screenshade.Shade"
)

const introXML = `
<node>
	<interface name="` + dbusInterface + `">
		<method name="SetLevel">
			<arg direction="in" type="d" name="level"/>
		</method>
		<method name="FadeTo">
			<arg direction="in" type="d" name="level"/>
		</method>
		<method name="GetStatus">
			<arg direction="out" type="s" name="status"/>
		</method>
		<method name="Quit"/>
		<signal name="LevelChanged">
			<arg type="d" name="level"/>
		</signal>
	</interface>` + introspect.IntrospectDataString + `</node>`

// shadeRequest is one unit of work for the dispatch loop.
type shadeRequest struct {
	level float64
	eased bool
	quit  bool
}

// shadeService is the exported D-Bus object. Methods run on godbus
// worker goroutines and must not touch the helper directly.
type shadeService struct {
	app      *app
	requests chan shadeRequest
}

func (s *shadeService) enqueue(req shadeRequest) *dbus.Error {
	select {
	case s.requests <- req:
		return nil
	default:
		return dbus.MakeFailedError(fmt.Errorf("controller busy"))
	}
}

// SetLevel jumps the overlay to level with no transition.
func (s *shadeService) SetLevel(level float64) *dbus.Error {
	return s.enqueue(shadeRequest{level: level})
}

// FadeTo eases the overlay toward level.
func (s *shadeService) FadeTo(level float64) *dbus.Error {
	return s.enqueue(shadeRequest{level: level, eased: true})
}

// GetStatus returns the controller state as a JSON string.
func (s *shadeService) GetStatus() (string, *dbus.Error) {
	status := struct {
		Level    float64  `json:"level"`
		Monitors []string `json:"monitors"`
	}{
		Level:    s.app.current(),
		Monitors: s.app.helper.Monitors(),
	}
	data, err := json.Marshal(status)
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return string(data), nil
}

// Quit fades out and terminates the controller.
func (s *shadeService) Quit() *dbus.Error {
	return s.enqueue(shadeRequest{quit: true})
}

// serveDBus claims the bus name, exports the control object, and
// dispatches requests until Quit or a termination signal.
func (a *app) serveDBus(ctx context.Context, busName string) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}
	defer conn.Close()

	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name %s: %w", busName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", busName)
	}

	svc := &shadeService{app: a, requests: make(chan shadeRequest, 8)}
	if err := conn.Export(svc, dbusObjectPath, dbusInterface); err != nil {
		return fmt.Errorf("export %s: %w", dbusInterface, err)
	}
	if err := conn.Export(introspect.Introspectable(introXML), dbusObjectPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}

	a.logger.Info("dbus control ready", "name", busName, "path", dbusObjectPath)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case req := <-svc.requests:
			if req.quit {
				a.logger.Info("quit requested over dbus")
				return a.fadeTo(ctx, 0)
			}

			var applyErr error
			if req.eased {
				applyErr = a.fadeTo(ctx, req.level)
			} else {
				applyErr = a.set(req.level)
			}
			if applyErr != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return applyErr
			}

			if err := conn.Emit(dbusObjectPath, dbusInterface+".LevelChanged", a.current()); err != nil {
				a.logger.Debug("emit LevelChanged", "error", err)
			}
		}
	}
}
