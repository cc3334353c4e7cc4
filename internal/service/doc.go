// Package service stops and starts the Home Assistant service.
//
// The Controller interface is what the apply cycle depends on. Systemd is
// the production implementation: it shells out to systemctl (optionally
// through sudo) with every call bounded by the caller's context.
//
// Example usage:
//
//	ctl := service.NewSystemd(service.Config{
//	    Unit:    "home-assistant@homeassistant",
//	    UseSudo: true,
//	})
//	ctl.SetLogger(logger)
//
//	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
//	defer cancel()
//	if err := ctl.Stop(ctx); err != nil {
//	    var ce *service.ControlError
//	    errors.As(err, &ce) // ce.Output holds systemctl's message
//	}
package service
