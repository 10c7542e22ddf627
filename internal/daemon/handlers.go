package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// handleRequest dispatches the request to the matching handler.
func (d *Daemon) handleRequest(ctx context.Context, req *Request) Response {
	switch req.Method {
	case MethodStatus:
		return d.handleStatus()
	case MethodEstop:
		return d.handleEstop(req)
	case MethodReset:
		return d.handleReset(ctx)
	case MethodPreflight:
		return d.handlePreflight(ctx)
	case MethodDispense:
		return d.handleDispense(ctx, req)
	case MethodStop:
		d.requestStop()
		return Response{Result: "stopping"}
	default:
		return Response{Error: fmt.Sprintf("unknown method: %s", req.Method)}
	}
}

func (d *Daemon) handleStatus() Response {
	stats := d.ctrl.PumpStats()
	start := d.StartTime()

	return Response{
		Result: StatusResponse{
			State:               string(d.monitor.State()),
			Ready:               d.Ready(),
			EmergencyStop:       d.monitor.IsEmergencyStop(),
			Reason:              d.monitor.EmergencyStopReason(),
			ConsecutiveFailures: d.monitor.ConsecutiveFailures(),
			Uptime:              time.Since(start).Truncate(time.Second).String(),
			StartTime:           start.Format(time.RFC3339),
			Pumps: PumpTotals{
				MilkMS:  stats.Milk.Milliseconds(),
				CocoaMS: stats.Cocoa.Milliseconds(),
				SugarMS: stats.Sugar.Milliseconds(),
			},
		},
	}
}

func (d *Daemon) handleEstop(req *Request) Response {
	var params EstopParams
	if err := decodeParams(req.Params, &params); err != nil {
		return Response{Error: err.Error()}
	}
	if params.Reason == "" {
		params.Reason = "remote operator request"
	}
	d.monitor.TriggerEmergencyStop(params.Reason)
	d.setReady(false)
	return Response{Result: "emergency stop latched"}
}

// handleReset clears the latch and re-runs preflight; readiness follows
// the preflight result.
func (d *Daemon) handleReset(ctx context.Context) Response {
	if err := d.monitor.ResetEmergencyStop(); err != nil {
		return Response{Error: fmt.Sprintf("reset refused: %v", err)}
	}
	d.setReady(false)
	return d.handlePreflight(ctx)
}

func (d *Daemon) handlePreflight(ctx context.Context) Response {
	passed, err := d.Preflight(ctx)
	if err != nil {
		return Response{Error: err.Error()}
	}

	results := d.monitor.LastPreflight()
	checks := make([]CheckResult, 0, len(results))
	for _, r := range results {
		checks = append(checks, CheckResult{
			Name:     r.Name,
			Passed:   r.Passed,
			Message:  r.Message,
			Severity: string(r.Severity),
		})
	}
	return Response{Result: PreflightResponse{Passed: passed, Checks: checks}}
}

func (d *Daemon) handleDispense(ctx context.Context, req *Request) Response {
	var params DispenseParams
	if err := decodeParams(req.Params, &params); err != nil {
		return Response{Error: err.Error()}
	}
	if params.Recipe == "" {
		params.Recipe = "standard"
	}
	if _, err := d.cfg.Recipes.Lookup(params.Recipe); err != nil {
		return Response{Error: err.Error()}
	}
	if !d.Ready() {
		return Response{Error: "not ready: run preflight (or reset) until it passes"}
	}

	start := time.Now()
	if err := d.ctrl.Run(ctx, d.monitor, params.Recipe); err != nil {
		if d.monitor.IsEmergencyStop() {
			d.setReady(false)
		}
		return Response{Error: err.Error()}
	}
	return Response{Result: DispenseResponse{
		Recipe:  params.Recipe,
		Elapsed: time.Since(start).Round(time.Millisecond).String(),
	}}
}

// decodeParams maps the generic JSON params onto out using its json tags.
func decodeParams(params any, out any) error {
	if params == nil {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(params); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}
