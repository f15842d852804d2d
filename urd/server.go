/*******************************************************************************
 * Copyright (c) 2024 Genome Research Ltd.
 *
 * Author: Sendu Bala <sb10@sanger.ac.uk>
 *
 * Permission is hereby granted, free of charge, to any person obtaining
 * a copy of this software and associated documentation files (the
 * "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish,
 * distribute, sublicense, and/or sell copies of the Software, and to
 * permit persons to whom the Software is furnished to do so, subject to
 * the following conditions:
 *
 * The above copyright notice and this permission notice shall be included
 * in all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
 * EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
 * MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY
 * CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
 * TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 ******************************************************************************/

package urd

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"gopkg.in/tylerb/graceful.v1"
)

const stopTimeout = 10 * time.Second

// Server serves the §6.5 urd HTTP surface over HTTP basic auth (§1
// Non-goals: "the urd service uses HTTP basic auth only... expected to run
// on trusted networks").
type Server struct {
	router   *gin.Engine
	store    *Store
	srv      *graceful.Server
	accounts gin.Accounts
}

// NewServer returns a Server over store, logging access/recovery output to
// logWriter the way server.New does for the job server. Call SetAccounts
// before Start to configure which users POST /add's basic auth accepts.
func NewServer(store *Store, logWriter io.Writer) *Server {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.LoggerWithWriter(logWriter))
	r.Use(gin.RecoveryWithWriter(logWriter))
	r.Use(secure.New(secure.DefaultConfig()))

	s := &Server{router: r, store: store}

	r.GET("/list", s.getList)
	r.GET("/:user/:list/since/:ts", s.getSince)
	r.GET("/:user/:list/:ts", s.getEntry)
	r.POST("/add", s.requireBasicAuth, s.postAdd)
	r.POST("/truncate/:user/:list/:ts", s.postTruncate)

	return s
}

// SetAccounts installs the username/password pairs basic auth will accept
// for POST /add. Call before Start.
func (s *Server) SetAccounts(accounts gin.Accounts) {
	s.accounts = accounts
}

// requireBasicAuth validates the request's basic auth credentials against
// the accounts installed by SetAccounts, deferring the actual gin.BasicAuth
// middleware construction until request time so accounts can be configured
// after routes are registered.
func (s *Server) requireBasicAuth(c *gin.Context) {
	gin.BasicAuth(s.accounts)(c)
}

// Start listens on addr, blocking until a graceful shutdown completes.
func (s *Server) Start(addr string) error {
	srv := &graceful.Server{
		Timeout: stopTimeout,
		Server:  &http.Server{Addr: addr, Handler: s.router},
	}
	s.srv = srv

	return srv.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	ch := s.srv.StopChan()
	s.srv.Stop(stopTimeout)
	<-ch
}

func (s *Server) getList(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.List())
}

func (s *Server) getSince(c *gin.Context) {
	user, list, ts := c.Param("user"), c.Param("list"), c.Param("ts")

	entries, err := s.store.Since(user, list, ts)
	if err != nil {
		abortFor(c, err)

		return
	}

	_, withCaptions := c.GetQuery("captions")

	c.JSON(http.StatusOK, timestampsResponse(entries, withCaptions))
}

type tsResponse struct {
	Timestamp string `json:"timestamp"`
	Caption   string `json:"caption,omitempty"`
}

func timestampsResponse(entries []*Entry, withCaptions bool) []tsResponse {
	out := make([]tsResponse, len(entries))

	for i, e := range entries {
		out[i] = tsResponse{Timestamp: e.Timestamp}
		if withCaptions {
			out[i].Caption = e.Caption
		}
	}

	return out
}

func (s *Server) getEntry(c *gin.Context) {
	user, list, ts := c.Param("user"), c.Param("list"), c.Param("ts")

	entry, err := s.store.Get(user, list, ts)
	if err != nil {
		abortFor(c, err)

		return
	}

	c.JSON(http.StatusOK, entry)
}

// addRequest is the §6.5 "POST /add (JSON body...)" request shape.
type addRequest struct {
	User     string                 `json:"user"`
	List     string                 `json:"list"`
	Ts       string                 `json:"timestamp"`
	Joblist  []JobRef               `json:"joblist"`
	Deps     map[string]DepSnapshot `json:"deps"`
	Caption  string                 `json:"caption"`
	BuildJob string                 `json:"build_job"`
	Flags    []string               `json:"flags"`
}

func (s *Server) postAdd(c *gin.Context) {
	var req addRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithError(http.StatusBadRequest, err) //nolint:errcheck

		return
	}

	authUser, _, _ := c.Request.BasicAuth()

	flags := AddFlags{Update: containsFlag(req.Flags, "update")}

	e := &Entry{
		User:      req.User,
		List:      req.List,
		Timestamp: req.Ts,
		Joblist:   req.Joblist,
		Deps:      req.Deps,
		Caption:   req.Caption,
		BuildJob:  req.BuildJob,
	}

	result, err := s.store.Add(authUser, e, flags)
	if err != nil {
		abortFor(c, err)

		return
	}

	c.JSON(http.StatusOK, result)
}

func containsFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}

	return false
}

func (s *Server) postTruncate(c *gin.Context) {
	user, list, ts := c.Param("user"), c.Param("list"), c.Param("ts")

	result, err := s.store.Truncate(user, list, ts)
	if err != nil {
		abortFor(c, err)

		return
	}

	c.JSON(http.StatusOK, result)
}

// abortFor maps an urd error kind to the §6.5/§7 HTTP status it should
// surface as.
func abortFor(c *gin.Context, err error) {
	switch err {
	case ErrConflict:
		c.AbortWithError(http.StatusConflict, err) //nolint:errcheck
	case ErrPermission:
		c.AbortWithError(http.StatusUnauthorized, err) //nolint:errcheck
	case ErrNoSuchList, ErrNoSuchEntry:
		c.AbortWithError(http.StatusNotFound, err) //nolint:errcheck
	default:
		c.AbortWithError(http.StatusInternalServerError, err) //nolint:errcheck
	}
}
