package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"lsp-backend/internal/config"
	"lsp-backend/internal/jsonrpc"
	"lsp-backend/internal/usecase"
)

// maxBodyBytes caps a JSON-RPC request body.
const maxBodyBytes = 1 << 20

type Server struct {
	cfg    config.Config
	engine *gin.Engine
	rpc    *jsonrpc.Dispatcher
	lsp    *usecase.LSPService
	orders *usecase.OrderService
	log    zerolog.Logger
}

func New(cfg config.Config, lsp *usecase.LSPService, orders *usecase.OrderService, log zerolog.Logger) *Server {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		cfg:    cfg,
		engine: gin.New(),
		rpc:    jsonrpc.NewDispatcher(log),
		lsp:    lsp,
		orders: orders,
		log:    log,
	}
	s.engine.Use(RequestID(), Logger(log), Recovery(log), Timeout(cfg.RequestTimeout))
	s.registerMethods()
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.POST("/", s.handleRPC)
	s.engine.POST("/jsonrpc", s.handleRPC)
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "methods": s.rpc.Methods()})
}

func (s *Server) handleRPC(c *gin.Context) {
	body, err := decodeBody(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		_ = c.Error(err)
		e := jsonrpc.NewError(jsonrpc.KindParseError, nil)
		c.JSON(e.HTTPStatus, jsonrpc.ErrorResponse(nil, e))
		return
	}
	resp, status := s.rpc.Handle(c.Request.Context(), body)
	c.JSON(status, resp)
}

// decodeBody parses exactly one JSON value, keeping numbers as json.Number
// so integer ids and amounts survive unchanged.
func decodeBody(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON body")
	}
	return body, nil
}
