// Package server wires all MCP components and creates the server instance.
//
// This is the composition root (DIP): it creates concrete implementations
// and injects them into the tools/prompts/resources that depend on them.
// No business logic lives here, only wiring.
package server

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/HendryAvila/lifecycle/internal/config"
	"github.com/HendryAvila/lifecycle/internal/metrics"
	"github.com/HendryAvila/lifecycle/internal/notify"
	"github.com/HendryAvila/lifecycle/internal/prompts"
	"github.com/HendryAvila/lifecycle/internal/resources"
	"github.com/HendryAvila/lifecycle/internal/store"
	"github.com/HendryAvila/lifecycle/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// DefaultActor is recorded on events when neither the caller nor the
// configuration names one.
const DefaultActor = "mcp"

// StoreConfig maps the file configuration onto store.Config.
func StoreConfig(cfg *config.Config, logger *slog.Logger) store.Config {
	sc := store.DefaultConfig()
	switch cfg.Database.Driver {
	case "postgres":
		sc.Dialect = store.DialectPostgres
		sc.DSN = cfg.Database.DSN
	default:
		sc.Dialect = store.DialectSQLite
		if cfg.Database.Path != "" {
			sc.Path = filepath.Clean(cfg.Database.Path)
		}
	}
	sc.MaxTxAttempts = cfg.Database.MaxTxAttempts
	sc.MaxAllocAttempts = cfg.Database.MaxAllocAttempts
	sc.RequireApprovedRequirements = cfg.Policy.RequireApprovedRequirementsEnabled()
	sc.RequireCompleteTasks = cfg.Policy.RequireCompleteTasksEnabled()
	sc.Logger = logger
	return sc
}

// OpenStore opens the configured store without any MCP wiring. The CLI
// status and migrate commands use it directly.
func OpenStore(cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	st, err := store.New(StoreConfig(cfg, logger))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return st, nil
}

// New creates and configures the MCP server with all tools, prompts,
// and resources registered. This is the single place where all
// dependencies are resolved.
//
// The returned recorder backs the /metrics endpoint. The cleanup function
// drains the notifier and closes the store; it is always non-nil and must
// be called on shutdown (typically via defer).
func New(cfg *config.Config, logger *slog.Logger) (*server.MCPServer, *metrics.Recorder, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	// --- Create shared dependencies ---

	st, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, nil, noop, err
	}

	recorder := metrics.New(prometheus.NewRegistry())
	st.SetMetrics(recorder)

	// Event fan-out is optional: if NATS is unreachable the server still
	// works, events just stay in the audit log.
	var notifier *notify.Notifier
	if cfg.NATS.URL != "" {
		notifier, err = notify.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			logger.Warn("event fan-out disabled", "url", cfg.NATS.URL, "error", err)
		} else {
			st.SetEventSink(notifier)
		}
	}

	cleanup := func() {
		if notifier != nil {
			if err := notifier.Close(); err != nil {
				logger.Warn("notifier close", "error", err)
			}
		}
		if err := st.Close(); err != nil {
			logger.Warn("store close", "error", err)
		}
	}

	actor := cfg.Actor
	if actor == "" {
		actor = DefaultActor
	}

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"lifecycle",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	registerTools(s, st, actor)

	// --- Register prompts ---

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	planPrompt := prompts.NewPlanPrompt()
	s.AddPrompt(planPrompt.Definition(), planPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(st)
	s.AddResource(resourceHandler.StatusResource(), resourceHandler.HandleStatus)

	return s, recorder, cleanup, nil
}

// noop is the cleanup returned when construction fails.
func noop() {}

// registerTools registers all 20 lifecycle MCP tools with the server.
func registerTools(s *server.MCPServer, st *store.Store, actor string) {
	// --- Requirements ---
	createReq := tools.NewCreateRequirementTool(st, actor)
	s.AddTool(createReq.Definition(), createReq.Handle)

	updateReq := tools.NewUpdateRequirementStatusTool(st, actor)
	s.AddTool(updateReq.Definition(), updateReq.Handle)

	queryReq := tools.NewQueryRequirementsTool(st)
	s.AddTool(queryReq.Definition(), queryReq.Handle)

	reqDetails := tools.NewGetRequirementDetailsTool(st)
	s.AddTool(reqDetails.Definition(), reqDetails.Handle)

	trace := tools.NewTraceRequirementTool(st)
	s.AddTool(trace.Definition(), trace.Handle)

	// --- Tasks ---
	createTask := tools.NewCreateTaskTool(st, actor)
	s.AddTool(createTask.Definition(), createTask.Handle)

	updateTask := tools.NewUpdateTaskStatusTool(st, actor)
	s.AddTool(updateTask.Definition(), updateTask.Handle)

	queryTasks := tools.NewQueryTasksTool(st)
	s.AddTool(queryTasks.Definition(), queryTasks.Handle)

	taskDetails := tools.NewGetTaskDetailsTool(st)
	s.AddTool(taskDetails.Definition(), taskDetails.Handle)

	// --- Architecture ---
	createArch := tools.NewCreateArchitectureTool(st, actor)
	s.AddTool(createArch.Definition(), createArch.Handle)

	updateArch := tools.NewUpdateArchitectureStatusTool(st, actor)
	s.AddTool(updateArch.Definition(), updateArch.Handle)

	supersede := tools.NewSupersedeArchitectureTool(st, actor)
	s.AddTool(supersede.Definition(), supersede.Handle)

	queryArch := tools.NewQueryArchitectureTool(st)
	s.AddTool(queryArch.Definition(), queryArch.Handle)

	archDetails := tools.NewGetArchitectureDetailsTool(st)
	s.AddTool(archDetails.Definition(), archDetails.Handle)

	review := tools.NewAddReviewTool(st, actor)
	s.AddTool(review.Definition(), review.Handle)

	// --- Relationships ---
	link := tools.NewCreateRelationshipTool(st, actor)
	s.AddTool(link.Definition(), link.Handle)

	queryLinks := tools.NewQueryRelationshipsTool(st)
	s.AddTool(queryLinks.Definition(), queryLinks.Handle)

	// --- Status & audit ---
	status := tools.NewProjectStatusTool(st)
	s.AddTool(status.Definition(), status.Handle)

	history := tools.NewEntityHistoryTool(st)
	s.AddTool(history.Definition(), history.Handle)

	table := tools.NewTransitionTableTool()
	s.AddTool(table.Definition(), table.Handle)
}

// serverInstructions returns the system instructions that tell the AI
// how to use the lifecycle server effectively.
func serverInstructions() string {
	return `You have access to a lifecycle tracking server for requirements, tasks and architecture decisions.

## ENTITIES

- Requirements (REQ-NNNN-TYPE-00): what the system must do. Types: FUNC, NFUNC, TECH, BUS, INTF.
- Tasks (TASK-NNNN-SS-00): implementation work. Subtasks share their parent's number.
- Architecture (ADR-NNNN, TDD-NNNN-COMPONENT-00, INTG-NNNN-COMPONENT-00): decisions and designs.

## LIFECYCLES

Every status change is checked against a fixed transition table. Call get_transition_table
when unsure. Illegal transitions are rejected and nothing is written.

- Requirement: Draft → Under Review → Approved → (Architecture) → Ready → Implemented → Validated.
  Validated needs every linked task Complete. Deprecated is terminal.
- Task: Not Started → In Progress → Complete. Blocked and Abandoned are side exits.
  Complete can be reopened to In Progress; requirement progress follows automatically.
- ADR: Proposed → Under Review → Approved → Implemented. Replace an approved decision with
  supersede_architecture, never by editing it.

## RELATIONSHIPS

create_relationship links "source <relationship> target":
- requirement implements task, requirement addresses architecture (either side may be the source)
- requirement parent/depends/refines/conflicts/relates requirement
- task parent/blocks/informs/requires task

Requirements nest from level 0 (top) down to level 3 at most. Cycles are rejected. Linking twice is a no-op.
"A depends B", "A blocks B" and "A requires B" all mean A waits for B.

## ERRORS

Rejections come back as tool errors starting with a code: VALIDATION_ERROR, INVALID_TRANSITION,
DEPTH_EXCEEDED, CIRCULAR_DEPENDENCY, NOT_FOUND, IDENTIFIER_CONFLICT, CONCURRENCY_CONFLICT.
The last two are safe to retry. For the others, fix the input; do not retry blindly.

## WORKFLOW

1. Search with query_requirements before creating anything new.
2. Create requirements, decompose them, record decisions, then create tasks.
3. Move tasks as work happens. Check get_project_status for blocked work.
4. Use trace_requirement or get_entity_history to answer "what happened and why".`
}
