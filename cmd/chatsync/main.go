package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"chatsync/internal/infrastructure/backend"
	pushadapter "chatsync/internal/infrastructure/push/adapter"
	pushport "chatsync/internal/infrastructure/push/port"
	queueadapter "chatsync/internal/infrastructure/queue/adapter"
	qport "chatsync/internal/infrastructure/queue/port"
	"chatsync/internal/pkg/augment"
	"chatsync/internal/pkg/conversation"
	"chatsync/internal/pkg/conversation/domain"
	"chatsync/internal/pkg/conversation/task"
	"chatsync/internal/pkg/presence"
	"chatsync/internal/pkg/syncer"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	selfID := os.Getenv("SELF_ID")
	if selfID == "" {
		log.Fatal("SELF_ID environment variable is not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api, err := backend.NewClientFromEnv()
	if err != nil {
		log.Fatalf("failed to configure chat backend client: %v", err)
	}

	transport, err := newTransport(ctx, selfID)
	if err != nil {
		log.Fatalf("failed to connect push transport: %v", err)
	}
	defer transport.Close()

	tracker := presence.NewTracker()
	timeline := conversation.NewTimeline(selfID, api, transport, tracker)

	gateway := augment.NewGatewayFromEnv()
	orch := augment.NewOrchestrator(gateway, augment.Events{
		Availability: func(available bool) {
			log.Printf("augmentation available=%v", available)
		},
		Rewrite: func(text string, err error) {
			if err != nil {
				log.Printf("rewrite failed: %v", err)
			}
		},
		Summary: func(text string, err error) {
			if err != nil {
				log.Printf("summarize failed: %v", err)
			}
		},
	})
	orch.RefreshAvailability(ctx)

	client, server := newQueue()
	defer client.Close()
	task.RegisterDeliverMessageTask(server, api)
	go func() {
		if err := server.Run(ctx); err != nil {
			log.Printf("queue server stopped: %v", err)
		}
	}()

	ctl := syncer.NewController(selfID, timeline, orch, client, api)
	defer ctl.Close()

	r := gin.Default()
	registerRoutes(r, ctl, orch, gateway, tracker, timeline)

	// Start HTTP server (blocks until shutdown)
	if err := r.Run(); err != nil {
		log.Fatalf("http server stopped: %v", err)
	}
}

// newTransport picks the push adapter: redis pub/sub when PUSH_TRANSPORT=redis,
// websocket otherwise.
func newTransport(ctx context.Context, selfID string) (pushport.Transport, error) {
	if os.Getenv("PUSH_TRANSPORT") == "redis" {
		dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return pushadapter.NewRedisTransportFromEnv(dialCtx, selfID)
	}
	return pushadapter.NewWebsocketTransportFromEnv(selfID)
}

// newQueue prefers asynq over Redis; without REDIS_URL deliveries run on the
// in-process queue.
func newQueue() (qport.Client, qport.Server) {
	if os.Getenv("REDIS_URL") != "" {
		client, err := queueadapter.NewAsynqClientFromEnv()
		if err == nil {
			if server, err := queueadapter.NewAsynqServer(); err == nil {
				return client, server
			}
			_ = client.Close()
		}
		log.Printf("asynq unavailable, falling back to in-process queue: %v", err)
	}
	q := queueadapter.NewMemoryQueue()
	return q, q
}

// augmentStatus maps augmentation errors onto HTTP statuses: unavailable
// service to 503, validation failures to 400, anything else to 502.
func augmentStatus(err error) int {
	var reqErr *augment.RequestError
	switch {
	case errors.Is(err, augment.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func registerRoutes(r *gin.Engine, ctl *syncer.Controller, orch *augment.Orchestrator, gateway *augment.Gateway, tracker *presence.Tracker, timeline *conversation.Timeline) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	r.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"selected":  ctl.Selected(),
			"online":    tracker.Online(),
			"messages":  len(timeline.Messages()),
			"available": orch.Available(),
			"draft":     orch.Draft(),
		})
	})

	r.POST("/select", func(c *gin.Context) {
		var in struct {
			CounterpartID string `json:"counterpartId"`
		}
		if err := c.ShouldBindJSON(&in); err != nil || in.CounterpartID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "counterpartId is required"})
			return
		}
		if err := ctl.Select(c.Request.Context(), in.CounterpartID); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"selected": in.CounterpartID})
	})

	r.POST("/messages", func(c *gin.Context) {
		var in struct {
			Text  *string `json:"text"`
			Image *string `json:"image"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		draft, err := domain.NewDraft(in.Text, in.Image)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		msg, err := ctl.Send(c.Request.Context(), draft)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": msg.ID})
	})

	r.DELETE("/messages/:id", func(c *gin.Context) {
		if err := ctl.Delete(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.POST("/draft", func(c *gin.Context) {
		var in struct {
			Text string `json:"text"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		orch.SetDraft(c.Request.Context(), in.Text)
		c.JSON(http.StatusOK, gin.H{"draft": in.Text})
	})

	r.GET("/draft", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"draft":        orch.Draft(),
			"suggestion":   orch.Suggestion(),
			"quickReplies": orch.QuickReplies(),
		})
	})

	r.POST("/draft/reply", func(c *gin.Context) {
		var in struct {
			Index int `json:"index"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		draft, ok := orch.AcceptQuickReply(c.Request.Context(), in.Index)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such suggestion"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"draft": draft})
	})

	r.POST("/draft/accept", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"draft": orch.AcceptCompletion()})
	})

	r.POST("/draft/rewrite", func(c *gin.Context) {
		if !orch.Rewrite(c.Request.Context()) {
			c.JSON(http.StatusConflict, gin.H{"error": "rewrite unavailable or already running"})
			return
		}
		c.Status(http.StatusAccepted)
	})

	r.POST("/messages/:id/translate", func(c *gin.Context) {
		var in struct {
			Text           string `json:"text"`
			TargetLanguage string `json:"targetLanguage"`
			On             bool   `json:"on"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		orch.SetTranslation(c.Request.Context(), c.Param("id"), in.Text, in.TargetLanguage, in.On)
		c.Status(http.StatusAccepted)
	})

	r.GET("/messages/:id/translate", func(c *gin.Context) {
		state := orch.Translation(c.Param("id"))
		c.JSON(http.StatusOK, gin.H{"status": int(state.Status), "text": state.Text})
	})

	r.POST("/assistant", func(c *gin.Context) {
		var in struct {
			Message string `json:"message"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		reply, err := gateway.Chat(c.Request.Context(), in.Message)
		if err != nil {
			c.JSON(augmentStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"response": reply})
	})

	r.POST("/summarize", func(c *gin.Context) {
		if !ctl.Summarize(c.Request.Context()) {
			c.JSON(http.StatusConflict, gin.H{"error": "summarize unavailable or already running"})
			return
		}
		c.Status(http.StatusAccepted)
	})
}
