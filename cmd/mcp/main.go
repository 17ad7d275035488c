package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hearthfin/hearth/internal/bootstrap"
	"github.com/hearthfin/hearth/internal/buildinfo"
	"github.com/hearthfin/hearth/internal/config"
	"github.com/hearthfin/hearth/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	// The stdio transport owns stdout, so logs must go to stderr.
	slog.SetDefault(logging.NewTextLogger(cfg.LogLevel))

	app, err := bootstrap.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	srv := server.NewMCPServer("hearth", buildinfo.Version,
		server.WithToolCapabilities(false),
	)
	registerTools(srv, app)

	slog.Info("mcp_server_started", "tools", []string{"ask_finances", "import_status"})
	if err := server.ServeStdio(srv); err != nil {
		log.Fatalf("mcp server error: %v", err)
	}
}

func registerTools(srv *server.MCPServer, app *bootstrap.App) {
	askTool := mcp.NewTool("ask_finances",
		mcp.WithDescription("Answer a free-text question about the imported transactions, grounded on recent history."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer."),
		),
		mcp.WithString("owner",
			mcp.Description("Account holder to answer for. Defaults to the configured one."),
		),
	)
	srv.AddTool(askTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := request.RequireString("question")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		owner := request.GetString("owner", app.Config.DefaultAccountHolder)

		answer, err := app.QueryUC.Ask(ctx, owner, question)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("answering question: %v", err)), nil
		}
		return mcp.NewToolResultText(answer), nil
	})

	statusTool := mcp.NewTool("import_status",
		mcp.WithDescription("Report the current progress of a statement import job."),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Import job identifier."),
		),
		mcp.WithString("owner",
			mcp.Description("Account holder owning the job. Defaults to the configured one."),
		),
	)
	srv.AddTool(statusTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		owner := request.GetString("owner", app.Config.DefaultAccountHolder)

		job, err := app.ReaderUC.GetJob(ctx, owner, jobID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("fetching job: %v", err)), nil
		}
		snapshot, err := json.MarshalIndent(job.Snapshot(), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding snapshot: %w", err)
		}
		return mcp.NewToolResultText(string(snapshot)), nil
	})
}
