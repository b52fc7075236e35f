package mcp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/apparatuslabs/apparatus/internal/model"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("apparatus_list_experiments",
			mcplib.WithDescription("List all experiments, newest first. Every run belongs to exactly one experiment; runs created without one land in the well-known Default experiment."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
		),
		s.handleListExperiments,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("apparatus_list_runs",
			mcplib.WithDescription("List an experiment's root runs, newest first. Nested runs are reached through apparatus_get_run, which returns the breadcrumb chain."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("experiment_uuid",
				mcplib.Description("Experiment UUID. Use the zero UUID for the Default experiment."),
				mcplib.Required(),
			),
		),
		s.handleListRuns,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("apparatus_get_run",
			mcplib.WithDescription("Fetch one run with its owning experiment and ancestor chain (root first)."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("run_uuid",
				mcplib.Description("Run UUID"),
				mcplib.Required(),
			),
		),
		s.handleGetRun,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("apparatus_list_params",
			mcplib.WithDescription("List a run's parameters with their typed values. Each key holds the last value logged for it."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("run_uuid",
				mcplib.Description("Run UUID"),
				mcplib.Required(),
			),
		),
		s.handleListParams,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("apparatus_get_series",
			mcplib.WithDescription("Fetch a run's metric series in arrival order. Omit key to list the run's series keys instead."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("run_uuid",
				mcplib.Description("Run UUID"),
				mcplib.Required(),
			),
			mcplib.WithString("key",
				mcplib.Description("Series key, e.g. \"loss\". Omit to list available keys."),
			),
		),
		s.handleGetSeries,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("apparatus_list_artifacts",
			mcplib.WithDescription("List a run's artifact records (logical path, storage URI, content type)."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("run_uuid",
				mcplib.Description("Run UUID"),
				mcplib.Required(),
			),
		),
		s.handleListArtifacts,
	)
}

func (s *Server) handleListExperiments(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	experiments, err := s.store.ListExperiments(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("list experiments failed: %v", err)), nil
	}
	return jsonResult(experiments), nil
}

func (s *Server) handleListRuns(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	expID, res := requestUUID(request, "experiment_uuid")
	if res != nil {
		return res, nil
	}

	if _, err := s.store.GetExperiment(ctx, expID); err != nil {
		return errorResult(fmt.Sprintf("experiment lookup failed: %v", err)), nil
	}
	runs, err := s.store.ListRootRuns(ctx, expID)
	if err != nil {
		return errorResult(fmt.Sprintf("list runs failed: %v", err)), nil
	}
	return jsonResult(runs), nil
}

func (s *Server) handleGetRun(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runID, res := requestUUID(request, "run_uuid")
	if res != nil {
		return res, nil
	}

	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return errorResult(fmt.Sprintf("run lookup failed: %v", err)), nil
	}
	exp, err := s.store.GetExperiment(ctx, run.ExperimentID)
	if err != nil {
		return errorResult(fmt.Sprintf("experiment lookup failed: %v", err)), nil
	}
	ancestors, err := s.store.Ancestors(ctx, runID)
	if err != nil {
		return errorResult(fmt.Sprintf("ancestor walk failed: %v", err)), nil
	}
	if ancestors == nil {
		ancestors = []model.Run{}
	}

	return jsonResult(model.RunDetail{Run: run, Experiment: exp, Ancestors: ancestors}), nil
}

func (s *Server) handleListParams(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runID, res := requestUUID(request, "run_uuid")
	if res != nil {
		return res, nil
	}

	params, err := s.store.ListParams(ctx, runID)
	if err != nil {
		return errorResult(fmt.Sprintf("list params failed: %v", err)), nil
	}

	entries := make([]model.ParamEntry, 0, len(params))
	for _, p := range params {
		entries = append(entries, model.ParamEntry{Key: p.Key, Type: p.Value.Type, Value: p.Value.Native()})
	}
	return jsonResult(entries), nil
}

func (s *Server) handleGetSeries(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runID, res := requestUUID(request, "run_uuid")
	if res != nil {
		return res, nil
	}

	key := request.GetString("key", "")
	if key == "" {
		keys, err := s.store.ListSeriesKeys(ctx, runID)
		if err != nil {
			return errorResult(fmt.Sprintf("list series keys failed: %v", err)), nil
		}
		return jsonResult(model.SeriesKeysResponse{Keys: keys}), nil
	}

	points, err := s.store.GetSeries(ctx, runID, key)
	if err != nil {
		return errorResult(fmt.Sprintf("get series failed: %v", err)), nil
	}
	return jsonResult(model.Series{Key: key, Points: points}), nil
}

func (s *Server) handleListArtifacts(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runID, res := requestUUID(request, "run_uuid")
	if res != nil {
		return res, nil
	}

	artifacts, err := s.store.ListArtifacts(ctx, runID)
	if err != nil {
		return errorResult(fmt.Sprintf("list artifacts failed: %v", err)), nil
	}
	return jsonResult(artifacts), nil
}

// requestUUID parses a required UUID argument; a non-nil result means the
// argument was missing or malformed.
func requestUUID(request mcplib.CallToolRequest, arg string) (uuid.UUID, *mcplib.CallToolResult) {
	raw := request.GetString(arg, "")
	if raw == "" {
		return uuid.Nil, errorResult(arg + " is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errorResult("invalid " + arg)
	}
	return id, nil
}
