// Package httpapi is the HTTP surface (C8): it parses
// /bot<TOKEN>/<METHOD>, extracts parameters from JSON/form/query per
// spec.md §4.8, and renders the dispatcher's envelope as JSON with the
// corresponding HTTP status.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/botgateway/internal/botapi"
	"github.com/hrygo/botgateway/internal/dispatch"
)

// Server wires the echo instance around a Dispatcher.
type Server struct {
	echo *echo.Echo
	disp *dispatch.Dispatcher
	log  *slog.Logger
}

// New builds the HTTP surface. reg is the registry /metrics serves
// from; a nil reg falls back to the global default registry, which is
// only correct when nothing else registers against a dedicated one.
func New(disp *dispatch.Dispatcher, log *slog.Logger, reg *prometheus.Registry) *Server {
	if log == nil {
		log = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{echo: e, disp: disp, log: log}
	e.Any("/bot*", s.handleBot)
	var metricsHandler http.Handler
	if reg != nil {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	} else {
		metricsHandler = promhttp.Handler()
	}
	e.GET("/metrics", echo.WrapHandler(metricsHandler))
	e.Any("/*", s.handleNotFound)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) ListenAndServe(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the HTTP listener started by ListenAndServe.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleNotFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, botapi.Error(404, "Not Found"))
}

func (s *Server) handleBot(c echo.Context) error {
	tail := c.Param("*")
	idx := strings.LastIndex(tail, "/")
	if idx <= 0 {
		return c.JSON(http.StatusNotFound, botapi.Error(404, "Not Found"))
	}
	token := tail[:idx]
	method := tail[idx+1:]
	if token == "" || method == "" {
		return c.JSON(http.StatusNotFound, botapi.Error(404, "Not Found"))
	}

	params, err := extractParams(c.Request())
	if err != nil {
		s.log.Warn("httpapi: param extraction failed", "err", err)
		return c.JSON(http.StatusOK, botapi.Error(400, "Bad Request: malformed request body"))
	}

	env, status := s.disp.Process(c.Request().Context(), token, method, params)
	return c.JSON(status, env)
}

// extractParams implements spec.md §4.8: JSON body, form body, raw
// body JSON-then-querystring fallback, or GET querystring.
// Multi-valued keys carrying a single element are collapsed to the
// scalar.
func extractParams(r *http.Request) (dispatch.Params, error) {
	if r.Method == http.MethodGet {
		return valuesToParams(r.URL.Query()), nil
	}

	contentType := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	switch mediaType {
	case "application/json":
		return decodeJSONBody(r)
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			if err := r.ParseForm(); err != nil {
				return nil, err
			}
		}
		return valuesToParams(r.Form), nil
	default:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		if len(strings.TrimSpace(string(body))) > 0 {
			var m map[string]interface{}
			if jsonErr := json.Unmarshal(body, &m); jsonErr == nil {
				return dispatch.Params(m), nil
			}
		}
		q, err := url.ParseQuery(string(body))
		if err != nil {
			return dispatch.Params{}, nil
		}
		return valuesToParams(q), nil
	}
}

func decodeJSONBody(r *http.Request) (dispatch.Params, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return dispatch.Params{}, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	return dispatch.Params(m), nil
}

func valuesToParams(values url.Values) dispatch.Params {
	params := make(dispatch.Params, len(values))
	for k, v := range values {
		if len(v) == 1 {
			params[k] = v[0]
		} else {
			params[k] = v
		}
	}
	return params
}
