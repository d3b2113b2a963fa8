package router

import (
	"database/sql"
	"strconv"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/field-reservation/internal/config"
	"github.com/iliyamo/field-reservation/internal/handler"
	"github.com/iliyamo/field-reservation/internal/middleware"
	"github.com/iliyamo/field-reservation/internal/repository"
	"github.com/iliyamo/field-reservation/internal/service"
	"github.com/iliyamo/field-reservation/internal/storage"
	"github.com/iliyamo/field-reservation/internal/validation"
)

// Deps carries everything NewServer wires together.  Redis may be nil, in
// which case the response cache is off and rate limiting is per process.
type Deps struct {
	Cfg       config.Config
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
	DB        *sql.DB
	Redis     *redis.Client
	Events    service.Publisher
	Log       zerolog.Logger
	Now       handler.Clock
}

// NewServer builds the Echo instance with repositories, handlers,
// middleware and every route registered.
func NewServer(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.NewEchoValidator()

	if d.Events == nil {
		d.Events = service.NopPublisher{}
	}

	users := repository.NewUserRepo(d.DB)
	tokens := repository.NewTokenRepo(d.DB)
	fields := repository.NewFieldRepo(d.DB)
	reservations := repository.NewReservationRepo(d.DB)
	store := storage.NewLocalStore(d.Cfg.UploadDir, d.Cfg.UploadMaxBytes)
	cache := middleware.NewResponseCache(d.Cache, d.Redis)

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(middleware.Metrics())
	e.Use(echomw.BodyLimit(bodyLimit(d.Cfg.UploadMaxBytes)))
	e.Use(middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Cfg.JWTSecret))

	RegisterRoutes(e, &handler.HealthHandler{DB: d.DB})
	RegisterAuth(e, handler.NewAuthHandler(d.Cfg, users, tokens), d.Cfg.JWTSecret)
	RegisterPublic(e, &handler.PublicHandler{
		Fields:       fields,
		Reservations: reservations,
		Location:     d.Cfg.Location,
		WindowDays:   d.Cfg.WindowDays,
		Now:          d.Now,
	}, cache.Middleware())
	RegisterReservations(e, &handler.ReservationHandler{
		Cfg:          d.Cfg,
		Users:        users,
		Fields:       fields,
		Reservations: reservations,
		Store:        store,
		Events:       d.Events,
		Now:          d.Now,
	}, d.Cfg.JWTSecret)
	RegisterAdmin(e, AdminHandlers{
		Fields: &handler.AdminFieldHandler{Fields: fields, Store: store, Cache: cache},
		Users:  &handler.AdminUserHandler{Users: users},
		Reservations: &handler.AdminReservationHandler{
			Reservations: reservations,
			Users:        users,
			Fields:       fields,
			Store:        store,
			Events:       d.Events,
			Location:     d.Cfg.Location,
			Now:          d.Now,
		},
	}, d.Cfg.JWTSecret)
	RegisterUploads(e, d.Cfg.UploadDir)
	return e
}

// bodyLimit leaves room for multipart framing around the largest upload.
func bodyLimit(maxUpload int64) string {
	if maxUpload <= 0 {
		maxUpload = 5 << 20
	}
	mb := maxUpload>>20 + 1
	return strconv.FormatInt(mb, 10) + "M"
}
