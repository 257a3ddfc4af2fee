// Package gateway wires the dispatcher, sandbox, and CGI/Lambda
// protocol translators into a single http.Handler, per spec.md §4.7.
package gateway

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/wasmcgi/wcgi/internal/cgiproto"
	"github.com/wasmcgi/wcgi/internal/config"
	"github.com/wasmcgi/wcgi/internal/dispatcher"
	"github.com/wasmcgi/wcgi/internal/lambdaproto"
	"github.com/wasmcgi/wcgi/internal/logforward"
	"github.com/wasmcgi/wcgi/internal/logging"
	"github.com/wasmcgi/wcgi/internal/sandbox"
)

// Gateway implements http.Handler: dispatch a request path to a
// wgi-bin script, run it in the sandbox, translate its output back into
// an HTTP response.
type Gateway struct {
	harness  *sandbox.Harness
	logger   *zap.Logger
	cfg      config.Config
	guestLvl zap.AtomicLevel
	workDir  string
}

// New builds a Gateway bound to harness. cfg.GuestLogLevel configures the
// severity guest stdout/stderr lines are logged at. workDir is resolved
// once from the process's current directory so PATH_TRANSLATED (spec.md
// §4.5) is always an absolute path, regardless of what relative
// directory the guest's filesystem is mounted from.
func New(harness *sandbox.Harness, logger *zap.Logger, cfg config.Config) *Gateway {
	wd, err := os.Getwd()
	if err != nil {
		logger.Warn("resolve working directory, falling back to relative", zap.Error(err))
		wd = "."
	}

	return &Gateway{
		harness:  harness,
		logger:   logger,
		cfg:      cfg,
		guestLvl: zap.NewAtomicLevelAt(logging.ParseLevel(cfg.GuestLogLevel)),
		workDir:  wd,
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := newRequestID()
	log := g.logger.With(
		zap.String("request_id", reqID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("mode", g.cfg.Mode.String()),
	)

	match, err := dispatcher.Dispatch(r.URL.Path)
	if err != nil {
		var noMatch *dispatcher.ErrNoMatch
		if errors.As(err, &noMatch) {
			http.NotFound(w, r)
			return
		}
		log.Error("dispatch failed", zap.Error(err))
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.cfg.MaxBodyBytes))
	if err != nil {
		log.Error("read request body", zap.Error(err))
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	switch g.cfg.Mode {
	case config.ModeLambda:
		g.serveLambda(w, r, log, match, body, reqID)
	default:
		g.serveCGI(w, r, log, match, body, reqID)
	}
}

func (g *Gateway) serveCGI(w http.ResponseWriter, r *http.Request, log *zap.Logger, match *dispatcher.Match, body []byte, reqID string) {
	env := cgiproto.BuildEnv(r, match.ScriptName, match.PathInfo, g.workDir)

	var stdout bytes.Buffer
	stderrWriter := logforward.New(logforward.NewZapSink(log, g.guestLvl.Level(), "stderr"))
	defer stderrWriter.Close()

	err := g.harness.Run(r.Context(), match.Bytes, sandbox.RunOptions{
		Name:    sandbox.UniqueName(match.ScriptName, reqID),
		WorkDir: ".",
		Env:     env,
		Stdin:   bytes.NewReader(body),
		Stdout:  &stdout,
		Stderr:  stderrWriter,
		Timeout: g.cfg.GuestTimeout,
	})
	if err != nil {
		log.Error("guest execution failed", zap.Error(err))
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	resp, err := cgiproto.ParseResponse(stdout.Bytes())
	if err != nil {
		log.Error("parse cgi response", zap.Error(err))
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func (g *Gateway) serveLambda(w http.ResponseWriter, r *http.Request, log *zap.Logger, match *dispatcher.Match, body []byte, reqID string) {
	req := lambdaproto.BuildRequest(r, body)
	bridge, err := lambdaproto.NewBridge(req)
	if err != nil {
		log.Error("build lambda request", zap.Error(err))
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	stdoutWriter := logforward.New(logforward.NewZapSink(log, g.guestLvl.Level(), "stdout"))
	defer stdoutWriter.Close()
	stderrWriter := logforward.New(logforward.NewZapSink(log, g.guestLvl.Level(), "stderr"))
	defer stderrWriter.Close()

	err = g.harness.Run(r.Context(), match.Bytes, sandbox.RunOptions{
		Name:    sandbox.UniqueName(match.ScriptName, reqID),
		WorkDir: ".",
		Stdin:   bytes.NewReader(nil),
		Stdout:  stdoutWriter,
		Stderr:  stderrWriter,
		Bridge:  bridge,
		Timeout: g.cfg.GuestTimeout,
	})
	if err != nil {
		log.Error("guest execution failed", zap.Error(err))
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	resp := bridge.Response()
	if resp == nil {
		log.Error("guest returned without sending a lambda response")
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	if err := resp.WriteHTTP(w); err != nil {
		log.Error("write lambda response", zap.Error(err))
	}
}

func newRequestID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b[:])
}
