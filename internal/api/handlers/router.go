package handlers

import (
	"net/http"
	"time"

	"ipcam-analysis/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// NewRouter richtet die Routen des HTTP-Empfängers ein. events darf nil sein.
func NewRouter(cfg config.UploadConfig, upload *UploadHandler, system *SystemHandler, events *EventHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	api := router.Group("/api")

	public := api.Group("")
	if len(cfg.HTTP.CORSOrigins) > 0 {
		public.Use(cors.New(cors.Config{
			AllowOrigins: cfg.HTTP.CORSOrigins,
			AllowMethods: []string{http.MethodGet},
			AllowHeaders: []string{"Origin", "Accept", "Cache-Control"},
			MaxAge:       12 * time.Hour,
		}))
	}
	public.GET("/health", system.Health)

	accounts := gin.Accounts{}
	for _, u := range cfg.Users {
		accounts[u.Name] = u.Password
	}
	api.POST("/upload", gin.BasicAuth(accounts), upload.Upload)

	if events != nil {
		public.GET("/events", gin.BasicAuth(accounts), events.Stream)
	}

	return router
}

// requestLogger protokolliert Anfragen über logrus statt über den gin-Logger
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
			"client":  c.ClientIP(),
		}).Debug("HTTP request")
	}
}
