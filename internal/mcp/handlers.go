package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/plantsim/internal/ratelimit"
	"github.com/nvandessel/plantsim/internal/signals"
	"github.com/nvandessel/plantsim/internal/simulation"
	"github.com/nvandessel/plantsim/internal/store"
)

// SignalsResourceURI is the URI of the live snapshot resource.
const SignalsResourceURI = "plant://signals"

// registerTools registers the plant tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolSignals,
		Description: "List every plant signal with its type, category, bounds and current value",
	}, s.handlePlantSignals)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolRead,
		Description: "Read the latest committed value of one signal, or of all signals",
	}, s.handlePlantRead)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolWrite,
		Description: "Overwrite a signal as an external operator; large changes schedule an automated decision",
	}, s.handlePlantWrite)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolHistory,
		Description: "Query recorded samples of a signal, newest first",
	}, s.handlePlantHistory)
}

// registerResources registers the snapshot resource.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         SignalsResourceURI,
		Name:        "plant-signals",
		Description: "Latest committed snapshot of every plant signal.",
		MIMEType:    "application/json",
	}, s.handleSignalsResource)
}

// snapshotDocument is the JSON body of the plant://signals resource.
type snapshotDocument struct {
	Tick              uint64             `json:"tick"`
	Time              string             `json:"time"`
	Mode              string             `json:"mode"`
	Status            string             `json:"status"`
	ProcessEfficiency float64            `json:"process_efficiency"`
	Values            map[string]float64 `json:"values"`
}

func (s *Server) handleSignalsResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	snap := s.plant.Snapshot()
	doc := snapshotDocument{
		Tick:              snap.Tick,
		Time:              formatTime(snap.Taken),
		Mode:              snap.Mode().String(),
		Status:            snap.Status().String(),
		ProcessEfficiency: snap.ProcessEfficiency(),
		Values:            snap.Values(),
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      SignalsResourceURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

// handlePlantSignals implements the plant_signals tool.
func (s *Server) handlePlantSignals(ctx context.Context, req *sdk.CallToolRequest, args PlantSignalsInput) (_ *sdk.CallToolResult, _ PlantSignalsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolSignals, start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolSignals, ""); err != nil {
		return nil, PlantSignalsOutput{}, err
	}

	snap := s.plant.Snapshot()
	descs := s.plant.Signals()
	out := make([]SignalInfo, 0, len(descs))
	for _, d := range descs {
		out = append(out, SignalInfo{
			Name:     d.Name,
			Type:     d.Type,
			Category: d.Category,
			Min:      d.Min,
			Max:      d.Max,
			Variance: d.Variance,
			Value:    snap.Value(d.Name),
		})
	}

	return nil, PlantSignalsOutput{
		Signals:    out,
		Count:      len(out),
		TickPeriod: s.plant.TickPeriod().String(),
	}, nil
}

// handlePlantRead implements the plant_read tool.
func (s *Server) handlePlantRead(ctx context.Context, req *sdk.CallToolRequest, args PlantReadInput) (_ *sdk.CallToolResult, _ PlantReadOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolRead, start, retErr, sanitizeToolParams(map[string]interface{}{
			"signal": args.Signal,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolRead, ""); err != nil {
		return nil, PlantReadOutput{}, err
	}

	snap := s.plant.Snapshot()
	out := PlantReadOutput{
		Tick:              snap.Tick,
		Time:              formatTime(snap.Taken),
		Mode:              snap.Mode().String(),
		Status:            snap.Status().String(),
		ProcessEfficiency: snap.ProcessEfficiency(),
	}

	if args.Signal != "" {
		sig, ok := snap.Get(args.Signal)
		if !ok {
			return nil, PlantReadOutput{}, s.unknownSignal(args.Signal)
		}
		out.Values = []SignalValue{{Name: sig.Name, Value: sig.Value}}
		return nil, out, nil
	}

	out.Values = make([]SignalValue, 0, len(snap.Signals))
	for _, sig := range snap.Signals {
		out.Values = append(out.Values, SignalValue{Name: sig.Name, Value: sig.Value})
	}
	return nil, out, nil
}

// handlePlantWrite implements the plant_write tool.
func (s *Server) handlePlantWrite(ctx context.Context, req *sdk.CallToolRequest, args PlantWriteInput) (_ *sdk.CallToolResult, _ PlantWriteOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolWrite, start, retErr, sanitizeToolParams(map[string]interface{}{
			"signal": args.Signal,
			"value":  args.Value,
		}))
	}()

	if args.Signal == "" {
		return nil, PlantWriteOutput{}, fmt.Errorf("'signal' parameter is required")
	}
	// Buckets are keyed by signal, so only known names may reach the limiter.
	if _, ok := s.plant.Snapshot().Get(args.Signal); !ok {
		return nil, PlantWriteOutput{}, s.unknownSignal(args.Signal)
	}
	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolWrite, args.Signal); err != nil {
		return nil, PlantWriteOutput{}, err
	}

	res, err := s.plant.Write(ctx, args.Signal, args.Value)
	if err != nil {
		return nil, PlantWriteOutput{}, fmt.Errorf("writing %s: %w", args.Signal, err)
	}

	s.logger.Debug("external write",
		"signal", res.Signal,
		"old", res.Old,
		"new", res.New,
		"change_percent", res.ChangePercent,
		"decision_scheduled", res.DecisionScheduled)

	return nil, PlantWriteOutput{
		Signal:            res.Signal,
		Old:               res.Old,
		New:               res.New,
		ChangePercent:     res.ChangePercent,
		Observed:          res.Observed,
		DecisionScheduled: res.DecisionScheduled,
		Message:           writeMessage(res),
	}, nil
}

func writeMessage(res simulation.WriteResult) string {
	switch {
	case res.DecisionScheduled:
		return fmt.Sprintf("%s changed by %.2f%%; automated decision scheduled", res.Signal, res.ChangePercent)
	case res.Observed:
		return fmt.Sprintf("%s changed by %.2f%%; change observed", res.Signal, res.ChangePercent)
	default:
		return fmt.Sprintf("%s set to %g", res.Signal, res.New)
	}
}

// handlePlantHistory implements the plant_history tool.
func (s *Server) handlePlantHistory(ctx context.Context, req *sdk.CallToolRequest, args PlantHistoryInput) (_ *sdk.CallToolResult, _ PlantHistoryOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolHistory, start, retErr, sanitizeToolParams(map[string]interface{}{
			"signal": args.Signal,
			"run_id": args.RunID,
			"since":  args.Since,
			"limit":  args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolHistory, ""); err != nil {
		return nil, PlantHistoryOutput{}, err
	}
	if s.history == nil {
		return nil, PlantHistoryOutput{}, fmt.Errorf("history store is disabled")
	}
	if _, ok := s.plant.Snapshot().Get(args.Signal); !ok {
		return nil, PlantHistoryOutput{}, s.unknownSignal(args.Signal)
	}
	if args.Limit < 0 {
		return nil, PlantHistoryOutput{}, fmt.Errorf("limit must be non-negative, got %d", args.Limit)
	}

	q := store.HistoryQuery{
		Signal: args.Signal,
		RunID:  args.RunID,
		Limit:  args.Limit,
	}
	if q.RunID == "" {
		q.RunID = s.runID
	}
	if args.Since != "" {
		d, err := time.ParseDuration(args.Since)
		if err != nil {
			return nil, PlantHistoryOutput{}, fmt.Errorf("invalid since %q: %w", args.Since, err)
		}
		q.Since = time.Now().Add(-d)
	}

	samples, err := s.history.History(ctx, q)
	if err != nil {
		return nil, PlantHistoryOutput{}, fmt.Errorf("querying history: %w", err)
	}

	out := make([]HistorySample, 0, len(samples))
	for _, sm := range samples {
		out = append(out, HistorySample{
			RunID:      sm.RunID,
			Tick:       sm.Tick,
			Time:       formatTime(sm.Time),
			Value:      sm.Value,
			DataSource: sm.DataSource,
		})
	}

	return nil, PlantHistoryOutput{
		Signal:  args.Signal,
		Samples: out,
		Count:   len(out),
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var _ Plant = (*simulation.Engine)(nil)

// unknownSignal wraps ErrUnknownSignal with the list of valid names.
func (s *Server) unknownSignal(name string) error {
	return fmt.Errorf("%w: %s (valid: %s)", simulation.ErrUnknownSignal, name, strings.Join(signalNames(s.plant.Signals()), ", "))
}

func signalNames(descs []signals.Descriptor) []string {
	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	return names
}
