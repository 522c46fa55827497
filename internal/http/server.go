package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/internal/deeplink"
	"moff.io/moff-wallet/internal/requests"
	"moff.io/moff-wallet/internal/session"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
	"moff.io/moff-wallet/pkg/log/middleware"
)

// DeepLinks parses and dispatches deep links.
type DeepLinks interface {
	Parse(raw string) deeplink.Result
	Handle(ctx context.Context, e deeplink.Event) (deeplink.Result, error)
}

// Modal is the request modal state machine.
type Modal interface {
	View(ctx context.Context) (requests.View, error)
	Queued(ctx context.Context) ([]walletconnect.PendingRequest, error)
	OpenScan(ctx context.Context) (requests.View, error)
	CloseScan(ctx context.Context) (requests.View, error)
	ResolvePendingSession(ctx context.Context, approve bool) (requests.View, error)
	Approve(ctx context.Context, id string, result json.RawMessage) (requests.View, error)
	Reject(ctx context.Context, id string) (requests.View, error)
	DismissWarning(ctx context.Context, id string) (requests.View, error)
}

type SessionInitializer interface {
	Initialize(ctx context.Context) (*session.Result, error)
	State() session.State
}

type Options struct {
	Address     string
	Timeout     time.Duration
	DeepLinks   DeepLinks
	Modal       Modal
	Pairer      deeplink.Pairer
	Session     SessionInitializer
	RateLimiter Allower
	// requests per minute per client ip, 0 disables limiting
	RateLimitPerMinute int
}

type Server struct {
	opts   Options
	router *gin.Engine
	srv    *http.Server
}

func NewServer(opts Options) *Server {
	if opts.Address == "" {
		opts.Address = ":8080"
	}
	router := gin.New()
	router.Use(middleware.RecoveredHTTPLog(), middleware.TimeoutHTTP(opts.Timeout))
	if opts.RateLimiter != nil && opts.RateLimitPerMinute > 0 {
		router.Use(RateLimit(opts.RateLimiter, opts.RateLimitPerMinute))
	}
	s := &Server{opts: opts, router: router}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.GET("/hello", func(ctx *gin.Context) {
		ok(ctx, gin.H{"hello": "wallet"})
	})

	if s.opts.DeepLinks != nil {
		s.router.POST("/deeplink/parse", s.parseDeepLink)
		s.router.POST("/deeplink/open", s.openDeepLink)
	}
	if s.opts.Modal != nil {
		s.router.GET("/modal", s.modalView)
		s.router.POST("/modal/scan/open", s.modalCall(func(ctx *gin.Context) (requests.View, error) {
			return s.opts.Modal.OpenScan(ctx.Request.Context())
		}))
		s.router.POST("/modal/scan/close", s.modalCall(func(ctx *gin.Context) (requests.View, error) {
			return s.opts.Modal.CloseScan(ctx.Request.Context())
		}))
		s.router.GET("/requests", s.queuedRequests)
		s.router.POST("/requests/:id/approve", s.approveRequest)
		s.router.POST("/requests/:id/reject", s.modalCall(func(ctx *gin.Context) (requests.View, error) {
			return s.opts.Modal.Reject(ctx.Request.Context(), ctx.Param("id"))
		}))
		s.router.POST("/requests/:id/dismiss", s.modalCall(func(ctx *gin.Context) (requests.View, error) {
			return s.opts.Modal.DismissWarning(ctx.Request.Context(), ctx.Param("id"))
		}))
		s.router.POST("/sessions/pending/approve", s.modalCall(func(ctx *gin.Context) (requests.View, error) {
			return s.opts.Modal.ResolvePendingSession(ctx.Request.Context(), true)
		}))
		s.router.POST("/sessions/pending/reject", s.modalCall(func(ctx *gin.Context) (requests.View, error) {
			return s.opts.Modal.ResolvePendingSession(ctx.Request.Context(), false)
		}))
	}
	if s.opts.Pairer != nil {
		s.router.POST("/walletconnect/pair", s.pair)
	}
	s.router.GET("/walletconnect/qrcode", s.qrcode)
	if s.opts.Session != nil {
		s.router.GET("/session", func(ctx *gin.Context) {
			ok(ctx, gin.H{"state": s.opts.Session.State().String()})
		})
		s.router.POST("/session/init", s.initSession)
	}
}

func (s *Server) Apply(c *config.Configuration) {
	if c.Server.HTTPAddress != "" {
		s.opts.Address = c.Server.HTTPAddress
	}
}

// Start serves until ctx is done.
func (s *Server) Start(ctx context.Context) {
	s.srv = &http.Server{Addr: s.opts.Address, Handler: s.router}
	go func() {
		log.Infof("http server listening on %v", s.opts.Address)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(errors.WrapAndReport(err, "http server"))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Warnf("shutdown http server:%v", err)
	}
}

type deepLinkBody struct {
	URL       string `json:"url" binding:"required"`
	ColdStart bool   `json:"cold_start"`
	Source    string `json:"source"`
}

func (s *Server) parseDeepLink(ctx *gin.Context) {
	var body deepLinkBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		fail(ctx, http.StatusBadRequest, err)
		return
	}
	ok(ctx, s.opts.DeepLinks.Parse(body.URL))
}

func (s *Server) openDeepLink(ctx *gin.Context) {
	var body deepLinkBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		fail(ctx, http.StatusBadRequest, err)
		return
	}
	result, err := s.opts.DeepLinks.Handle(ctx.Request.Context(), deeplink.Event{
		URL:       body.URL,
		ColdStart: body.ColdStart,
		Source:    body.Source,
	})
	if err != nil {
		fail(ctx, statusOf(err), err)
		return
	}
	ok(ctx, result)
}

func (s *Server) modalView(ctx *gin.Context) {
	v, err := s.opts.Modal.View(ctx.Request.Context())
	if err != nil {
		fail(ctx, statusOf(err), err)
		return
	}
	ok(ctx, v)
}

func (s *Server) queuedRequests(ctx *gin.Context) {
	list, err := s.opts.Modal.Queued(ctx.Request.Context())
	if err != nil {
		fail(ctx, statusOf(err), err)
		return
	}
	ok(ctx, list)
}

func (s *Server) modalCall(call func(ctx *gin.Context) (requests.View, error)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		v, err := call(ctx)
		if err != nil {
			fail(ctx, statusOf(err), err)
			return
		}
		ok(ctx, v)
	}
}

type approveBody struct {
	Result json.RawMessage `json:"result"`
}

func (s *Server) approveRequest(ctx *gin.Context) {
	var body approveBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		fail(ctx, http.StatusBadRequest, err)
		return
	}
	if len(body.Result) == 0 {
		fail(ctx, http.StatusBadRequest, errors.New("result is required"))
		return
	}
	v, err := s.opts.Modal.Approve(ctx.Request.Context(), ctx.Param("id"), body.Result)
	if err != nil {
		fail(ctx, statusOf(err), err)
		return
	}
	ok(ctx, v)
}

type pairBody struct {
	URI string `json:"uri" binding:"required"`
}

func (s *Server) pair(ctx *gin.Context) {
	var body pairBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		fail(ctx, http.StatusBadRequest, err)
		return
	}
	if err := s.opts.Pairer.Pair(ctx.Request.Context(), body.URI); err != nil {
		fail(ctx, statusOf(err), err)
		return
	}
	ok(ctx, gin.H{"paired": true})
}

func (s *Server) qrcode(ctx *gin.Context) {
	uri := ctx.Query("uri")
	if _, err := walletconnect.ParseURI(uri); err != nil {
		fail(ctx, http.StatusBadRequest, err)
		return
	}
	png, err := walletconnect.QRCode(uri)
	if err != nil {
		fail(ctx, http.StatusInternalServerError, err)
		return
	}
	ctx.Data(http.StatusOK, "image/png", png)
}

func (s *Server) initSession(ctx *gin.Context) {
	result, err := s.opts.Session.Initialize(ctx.Request.Context())
	if err != nil {
		fail(ctx, statusOf(err), err)
		return
	}
	ok(ctx, result)
}

func ok(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok", "data": data})
}

func fail(ctx *gin.Context, status int, err error) {
	ctx.JSON(status, gin.H{"code": status * 10, "msg": err.Error()})
}

func statusOf(err error) int {
	var (
		noSolver   *session.NoSolverAvailableError
		maxRetries *session.MaxChallengeRetriesError
	)
	switch {
	case errors.Is(err, requests.ErrUnknownRequest), errors.Is(err, walletconnect.ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, requests.ErrNotSigner):
		return http.StatusForbidden
	case errors.Is(err, requests.ErrNoPendingSession), errors.Is(err, requests.ErrNoWarning):
		return http.StatusConflict
	case errors.Is(err, deeplink.ErrUnknownAccount), errors.Is(err, walletconnect.ErrInvalidURI),
		errors.Is(err, walletconnect.ErrUnsupportedVersion), errors.Is(err, deeplink.ErrInvalidScantastic):
		return http.StatusUnprocessableEntity
	case errors.Is(err, requests.ErrLoopStopped):
		return http.StatusServiceUnavailable
	case errors.As(err, &noSolver), errors.As(err, &maxRetries):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
