// Crucible pipeline server - drives the multi-agent reasoning pipeline
// over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/copperdogma/crucible-pipeline/pkg/config"
	"github.com/copperdogma/crucible-pipeline/pkg/gateway"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
	"github.com/copperdogma/crucible-pipeline/pkg/orchestrator"
	"github.com/copperdogma/crucible-pipeline/pkg/remediation"
	"github.com/copperdogma/crucible-pipeline/pkg/services"
	"github.com/copperdogma/crucible-pipeline/pkg/snapshot"
	"github.com/copperdogma/crucible-pipeline/pkg/store"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	ginMode := getEnv("GIN_MODE", "debug")
	gin.SetMode(ginMode)

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}
	stats := cfg.Stats()

	entityStore := store.New()

	agentGateway := gateway.New(mustAgentClient())
	orch := orchestrator.New(entityStore, agentGateway,
		orchestrator.WithConcurrency(cfg.OrchestratorConcurrency))
	remediationEngine := remediation.New(entityStore, orch)
	snapshotEngine := snapshot.New(entityStore, orch)

	projectService := services.NewProjectService(entityStore)
	specService := services.NewProblemSpecService(entityStore)
	worldModelService := services.NewWorldModelService(entityStore)
	runService := services.NewRunService(entityStore)
	candidateService := services.NewCandidateService(entityStore)
	evaluationService := services.NewEvaluationService(entityStore)
	issueService := services.NewIssueService(entityStore)
	snapshotService := services.NewSnapshotService(entityStore)
	chatService := services.NewChatService(entityStore)
	_ = specService
	_ = worldModelService
	_ = chatService

	router := gin.Default()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"config": gin.H{
				"log_level":   stats.LogLevel,
				"api_port":    stats.APIPort,
				"concurrency": stats.Concurrency,
			},
		})
	})

	// Each handler echoes the service result verbatim (§6: thin adapter).
	router.POST("/projects", func(c *gin.Context) {
		var body struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		project, err := projectService.Create(c.Request.Context(), body.Title, body.Description)
		if respondError(c, err) {
			return
		}
		c.JSON(http.StatusCreated, project)
	})

	router.GET("/projects/:id", func(c *gin.Context) {
		project, err := projectService.Get(c.Param("id"))
		if respondError(c, err) {
			return
		}
		c.JSON(http.StatusOK, project)
	})

	router.GET("/projects/:id/runs", func(c *gin.Context) {
		c.JSON(http.StatusOK, runService.List(c.Param("id"), c.Query("chat_session_id")))
	})

	router.GET("/projects/:id/candidates", func(c *gin.Context) {
		c.JSON(http.StatusOK, candidateService.List("", c.Param("id")))
	})

	router.POST("/projects/:id/runs", func(c *gin.Context) {
		var body struct {
			Mode   string           `json:"mode"`
			Config models.RunConfig `json:"config"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		run, check, err := runService.Create(c.Request.Context(), services.CreateRunRequest{
			ProjectID: c.Param("id"),
			Mode:      models.RunMode(body.Mode),
			Config:    body.Config,
		})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error(), "preflight": check})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"run": run, "preflight": check})
	})

	router.POST("/runs/:id/pipeline", func(c *gin.Context) {
		run, err := runService.Get(c.Param("id"))
		if respondError(c, err) {
			return
		}
		result, err := orch.ExecuteFullPipeline(c.Request.Context(), run.ID,
			run.Config.NumCandidates, run.Config.NumScenarios)
		if respondError(c, err) {
			return
		}
		c.JSON(http.StatusOK, result)
	})

	router.POST("/runs/:id/evaluate-and-rank", func(c *gin.Context) {
		evalResult, rankResult, err := orch.ExecuteEvaluateAndRankPhase(c.Request.Context(), c.Param("id"))
		if respondError(c, err) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"evaluation": evalResult, "ranking": rankResult})
	})

	router.GET("/runs/:id", func(c *gin.Context) {
		run, err := runService.Get(c.Param("id"))
		if respondError(c, err) {
			return
		}
		c.JSON(http.StatusOK, run)
	})

	router.GET("/runs/:id/evaluations", func(c *gin.Context) {
		c.JSON(http.StatusOK, evaluationService.List(c.Query("candidate_id"), c.Param("id")))
	})

	router.POST("/issues", func(c *gin.Context) {
		var body struct {
			ProjectID   string `json:"project_id"`
			RunID       string `json:"run_id"`
			CandidateID string `json:"candidate_id"`
			Type        string `json:"type"`
			Severity    string `json:"severity"`
			Description string `json:"description"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		issue, err := issueService.File(c.Request.Context(), services.FileIssueRequest{
			ProjectID:   body.ProjectID,
			RunID:       body.RunID,
			CandidateID: body.CandidateID,
			Type:        models.IssueType(body.Type),
			Severity:    models.IssueSeverity(body.Severity),
			Description: body.Description,
		})
		if respondError(c, err) {
			return
		}
		c.JSON(http.StatusCreated, issue)
	})

	router.POST("/issues/:id/resolve", func(c *gin.Context) {
		var body remediation.Request
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := remediationEngine.Resolve(c.Request.Context(), c.Param("id"), body)
		if respondError(c, err) {
			return
		}
		c.JSON(http.StatusOK, result)
	})

	router.POST("/snapshots/:id/replay", func(c *gin.Context) {
		var body snapshot.ReplayOptions
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := snapshotEngine.ReplaySnapshot(c.Request.Context(), c.Param("id"), body)
		if respondError(c, err) {
			return
		}
		c.JSON(http.StatusOK, result)
	})

	router.GET("/snapshots/:id", func(c *gin.Context) {
		snap, err := snapshotService.Get(c.Param("id"))
		if respondError(c, err) {
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	log.Printf("Starting crucible-pipeline on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// mustAgentClient wires the agent transport. The language-model client is
// an external collaborator; this binary refuses to start without one
// rather than shipping a stub that silently answers nothing.
func mustAgentClient() gateway.AgentClient {
	endpoint := os.Getenv("AGENT_ENDPOINT")
	if endpoint == "" {
		log.Fatalf("AGENT_ENDPOINT is required: the agent transport is external to this service")
	}
	return newHTTPAgentClient(endpoint)
}

func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return httpStatus(err)
}

func respondError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	c.JSON(httpStatus(err), gin.H{"error": err.Error()})
	return true
}
