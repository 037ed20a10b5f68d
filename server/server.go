// Package server exposes the pipeline over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/harmon/clients"
	"github.com/maastricht-university/harmon/orchestrator"
)

type Options struct {
	Addr         string
	AllowOrigins []string
	Pipeline     *orchestrator.Pipeline
	Hub          *Hub
	// Transcriber may be nil; binary audio frames are then ignored.
	Transcriber *clients.Deepgram
	// Services is reported by the health endpoint.
	Services    map[string]string
	RecentLimit int
	Log         logrus.FieldLogger
}

type Server struct {
	opts     Options
	p        *orchestrator.Pipeline
	hub      *Hub
	dg       *clients.Deepgram
	log      logrus.FieldLogger
	engine   *gin.Engine
	upgrader websocket.Upgrader
}

func New(o Options) *Server {
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
	if o.Hub == nil {
		o.Hub = NewHub(o.Log)
	}
	if o.RecentLimit <= 0 {
		o.RecentLimit = 50
	}
	s := &Server{
		opts: o,
		p:    o.Pipeline,
		hub:  o.Hub,
		dg:   o.Transcriber,
		log:  o.Log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log), cors.New(corsConfig(s.opts.AllowOrigins)))

	api := r.Group("/api")
	api.GET("/health", s.health)
	api.POST("/analyze_sentiment", s.analyzeSentiment)
	api.POST("/process_command", s.processCommand)
	api.POST("/generate_response", s.generateResponse)
	api.POST("/translate", s.translate)
	api.POST("/analyze_emotion", s.analyzeEmotion)
	api.POST("/utterances", s.processUtterance)
	api.POST("/conversations", s.openConversation)
	api.DELETE("/conversations/:id", s.closeConversation)
	api.GET("/discussions", s.listDiscussions)
	api.POST("/discussions", s.createDiscussion)
	api.GET("/discussions/:id/transcript", s.transcript)
	api.GET("/discussions/:id/notes", s.notes)

	r.GET("/ws", s.serveWS)
	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

// slowRequest is the latency above which requests are logged at WARN.
const slowRequest = 2 * time.Second

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		d := time.Since(start)

		entry := log.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": d.Milliseconds(),
		})
		switch {
		case len(c.Errors) > 0:
			entry.WithError(c.Errors.Last()).Warn("request failed")
		case d > slowRequest:
			entry.Warn("slow request")
		default:
			entry.Debug("request completed")
		}
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.opts.Addr).Info("http server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	s.hub.CloseAll()
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
