// Package router assembles the gin engine: the global middleware chain,
// the /api/v1 routes, static images and the operational endpoints.
package router

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/harentsoaR/jobboard-api/internal/apperror"
	"github.com/harentsoaR/jobboard-api/internal/handlers"
	"github.com/harentsoaR/jobboard-api/internal/images"
	"github.com/harentsoaR/jobboard-api/internal/logger"
	"github.com/harentsoaR/jobboard-api/internal/metrics"
	"github.com/harentsoaR/jobboard-api/internal/middleware"
	"github.com/harentsoaR/jobboard-api/internal/models"
)

// JSONBodyLimit caps JSON request bodies.
const JSONBodyLimit = 10 << 10

type Deps struct {
	Handler     *handlers.Handler
	Auth        *middleware.Authenticator
	Limiter     *middleware.RateLimiter
	Log         *zap.Logger
	Development bool
	CORSOrigins []string
	// ImagesDir is served under /images when set.
	ImagesDir string
	// ImageURL redirects /images requests to remote storage when set.
	ImageURL func(stored string) string
	// Health reports whether the database is reachable.
	Health func(ctx context.Context) error
}

func New(d Deps) *gin.Engine {
	models.RegisterValidators()

	r := gin.New()
	// gzip closes its writer when it returns, so it wraps everything that
	// may still write a response afterwards.
	r.Use(
		gzip.Gzip(gzip.DefaultCompression),
		middleware.Recovery(d.Log),
		logger.Middleware(d.Log),
		metrics.Middleware(),
		apperror.Handler(d.Development, d.Log),
		middleware.SecureHeaders(),
		cors.New(corsConfig(d.CORSOrigins)),
		middleware.BodyLimit(JSONBodyLimit, images.MaxUploadBytes),
		middleware.Sanitize(),
		middleware.NoStore(),
	)

	switch {
	case d.ImagesDir != "":
		r.Static(images.URLPrefix, d.ImagesDir)
	case d.ImageURL != nil:
		r.GET(images.URLPrefix+"/*path", func(c *gin.Context) {
			c.Redirect(http.StatusFound, d.ImageURL(images.URLPrefix+c.Param("path")))
		})
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", health(d.Health))

	api := r.Group("/api")
	if d.Limiter != nil {
		api.Use(d.Limiter.Middleware())
	}
	registerRoutes(api.Group("/v1"), d.Handler, d.Auth)

	r.NoRoute(func(c *gin.Context) {
		apperror.Abort(c, apperror.NotFound(fmt.Sprintf("Can't find %s on this server!", c.Request.URL.Path)))
	})
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{logger.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func health(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func registerRoutes(v1 *gin.RouterGroup, h *handlers.Handler, auth *middleware.Authenticator) {
	protect := auth.Protect()
	adminOnly := middleware.RestrictTo(models.RoleAdmin, models.RoleDev)
	devOnly := middleware.RestrictTo(models.RoleDev)

	v1.POST("/logout", h.Logout)

	users := v1.Group("/users")
	users.POST("/signup", h.Signup)
	users.POST("/login", h.Login)
	users.POST("/logout", h.Logout)
	users.POST("/forgotPassword", h.ForgotPassword)
	users.PATCH("/resetPassword/:token", h.ResetPassword)

	users.Use(protect)
	users.GET("/me", h.GetMe, h.GetOne(h.Me))
	users.PATCH("/updateMe", h.UpdateMe)
	users.PATCH("/updateMyPassword", h.UpdateMyPassword)
	users.DELETE("/deleteMe", h.DeleteMe)

	users.Use(adminOnly)
	regular := handlers.ListOptions{Filter: bson.M{"role": models.RoleUser}}
	admins := handlers.ListOptions{Filter: bson.M{"role": models.RoleAdmin}}
	users.GET("", h.GetAll(h.Users, regular))
	users.GET("/admins", h.GetAll(h.Users, admins))
	users.GET("/all/admins", h.GetAllNoPagination(h.Users, admins))
	users.GET("/all", h.GetAllNoPagination(h.Users, handlers.ListOptions{}))
	users.POST("", h.CreateUser)
	users.POST("/admin", h.CreateAdmin)
	users.DELETE("/delete-all", devOnly, h.DeleteAll(h.Users))
	users.GET("/:id", h.GetOne(h.Users))
	users.PATCH("/:id", h.UpdateOne(h.Users))
	users.DELETE("/:id", h.DeleteOne(h.Users))

	writes := resourceWrites{protect: protect, admin: adminOnly, dev: devOnly}

	writes.mount(v1.Group("/categories"), h, h.Categories,
		[]gin.HandlerFunc{h.GetAll(h.Categories, handlers.ListOptions{})},
		[]gin.HandlerFunc{h.GetAllNoPagination(h.Categories, handlers.ListOptions{})})

	for path, ref := range map[string]struct {
		res        *handlers.Resource
		foreignKey string
	}{
		"/departments": {h.Departments, "department"},
		"/locations":   {h.Locations, "location"},
		"/levels":      {h.Levels, "level"},
	} {
		writes.mount(v1.Group(path), h, ref.res,
			[]gin.HandlerFunc{h.GetAll(ref.res, handlers.ListOptions{Defer: true}), h.WithJobCounts(ref.foreignKey)},
			[]gin.HandlerFunc{h.GetAllNoPagination(ref.res, handlers.ListOptions{After: h.JobCounts(ref.foreignKey)})})
	}

	resolve := h.ResolveDocumentNumbers()
	writes.mount(v1.Group("/jobs"), h, h.Jobs,
		[]gin.HandlerFunc{resolve, h.GetAll(h.Jobs, handlers.ListOptions{})},
		[]gin.HandlerFunc{resolve, h.GetAllNoPagination(h.Jobs, handlers.ListOptions{})})
}

type resourceWrites struct {
	protect, admin, dev gin.HandlerFunc
}

// mount registers the public reads and the protected writes of a resource.
func (w resourceWrites) mount(g *gin.RouterGroup, h *handlers.Handler, res *handlers.Resource, list, all []gin.HandlerFunc) {
	g.GET("", list...)
	g.GET("/all", all...)
	g.GET("/:id", h.GetOne(res))
	g.POST("", w.protect, w.admin, h.CreateOne(res))
	g.PATCH("/:id", w.protect, w.admin, h.UpdateOne(res))
	g.DELETE("/delete-all", w.protect, w.dev, h.DeleteAll(res))
	g.DELETE("/:id", w.protect, w.admin, h.DeleteOne(res))
}

