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

package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/inconshreveable/log15"
	"gopkg.in/tylerb/graceful.v1"

	"github.com/wtsi-ssg/batchjob/resolver"
)

// Server serves the §6.4 job server HTTP surface.
type Server struct {
	router *gin.Engine
	engine *Engine
	srv    *graceful.Server
}

// New returns a Server over engine. Access lines (ginLogFormatter) and
// recovery output go to gin's default writer; logger is not used.
func New(engine *Engine, logger log15.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.LoggerWithFormatter(ginLogFormatter))
	r.Use(gin.Recovery())
	r.Use(secure.New(secure.DefaultConfig()))

	s := &Server{router: r, engine: engine}

	r.GET("/status", s.getStatus)
	r.GET("/status/full", s.getStatus)
	r.POST("/submit", s.postSubmit)
	r.GET("/method2job/:method", s.getMethod2Job)
	r.GET("/list_workdirs", s.getListWorkdirs)
	r.GET("/workdir/:name", s.getWorkdir)
	r.GET("/methods", s.getMethods)
	r.GET("/method_info/:name", s.getMethodInfo)
	r.GET("/config", s.getConfig)
	r.GET("/last_error", s.getLastError)
	r.POST("/abort", s.postAbort)
	r.POST("/update_methods", s.postUpdateMethods)
	r.GET("/jobs_are_current", s.getJobsAreCurrent)
	r.GET("/why_build/:method", s.getWhyBuild)

	return s
}

func ginLogFormatter(p gin.LogFormatterParams) string {
	return p.ClientIP + " - [" + p.Method + " " + p.Path + "] " +
		strconv.Itoa(p.StatusCode) + " " + p.Latency.String() + "\n"
}

const stopTimeout = 10 * time.Second

// Start listens on addr, blocking until a graceful shutdown completes
// (§5 "Cancellation" notwithstanding - this is process shutdown, not job
// abort).
func (s *Server) Start(addr string) error {
	srv := &graceful.Server{
		Timeout: stopTimeout,
		Server:  &http.Server{Addr: addr, Handler: s.router},
	}
	s.srv = srv

	return srv.ListenAndServe()
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop() {
	ch := s.srv.StopChan()
	s.srv.Stop(stopTimeout)
	<-ch
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status())
}

// submitRequest is the §6.4 "POST /submit" form-urlencoded body's decoded
// JSON payload ("json=<setup>").
type submitRequest struct {
	Method     string                 `json:"method"`
	Options    map[string]interface{} `json:"options"`
	Datasets   map[string]interface{} `json:"datasets"`
	Jobs       map[string]interface{} `json:"jobs"`
	Caption    string                 `json:"caption"`
	ForceBuild bool                   `json:"forcebuild"`
	Workdir    string                 `json:"workdir"`
}

func (s *Server) postSubmit(c *gin.Context) {
	var req submitRequest

	// §6.4: "POST /submit (form-urlencoded body with json=<setup>)" - the
	// setup is carried as a form field, not the request body itself.
	raw := c.PostForm("json")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing json form field"})

		return
	}

	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	sub := resolver.Submission{
		Method: req.Method, Options: req.Options, Datasets: req.Datasets, Jobs: req.Jobs,
		Caption: req.Caption, ForceBuild: req.ForceBuild, Workdir: req.Workdir,
	}

	result, err := s.engine.Submit(sub)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})

		return
	}

	resp := gin.H{req.Method: gin.H{"link": result.JobID, "make": result.Make}}

	if !result.Make {
		resp[req.Method].(gin.H)["total_time"] = result.TotalTime.Seconds()
	}

	c.JSON(http.StatusOK, gin.H{"jobs": resp})
}

func (s *Server) getMethod2Job(c *gin.Context) {
	method := c.Param("method")
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	current := c.DefaultQuery("current", "true") != "false"

	id, ok := s.engine.Method2Job(method, offset, current)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such job"})

		return
	}

	c.JSON(http.StatusOK, gin.H{"jobid": id})
}

func (s *Server) getListWorkdirs(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.WorkdirStore().Names())
}

func (s *Server) getWorkdir(c *gin.Context) {
	name := c.Param("name")

	wd, err := s.engine.WorkdirStore().Lookup(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":    wd.Name,
		"slices":  wd.Slices,
		"jobs":    s.engine.DB().WorkdirEntries(name),
	})
}

func (s *Server) getMethods(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Registry().Names())
}

func (s *Server) getMethodInfo(c *gin.Context) {
	name := c.Param("name")

	def, ok := s.engine.Registry().Lookup(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such method"})

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":           def.Name,
		"dataset_inputs": def.DatasetInputs,
		"job_inputs":     def.JobInputs,
		"has_prepare":    def.Prepare != nil,
		"has_analysis":   def.Analysis != nil,
		"has_synthesis":  def.Synthesis != nil,
	})
}

func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"workdirs": s.engine.WorkdirStore().Names(),
		"methods":  s.engine.Registry().Names(),
	})
}

func (s *Server) getLastError(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"last_error": s.engine.LastError()})
}

func (s *Server) postAbort(c *gin.Context) {
	s.engine.Abort()
	c.JSON(http.StatusOK, gin.H{"aborted": true})
}

func (s *Server) postUpdateMethods(c *gin.Context) {
	if err := s.engine.RefreshMethods(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) getJobsAreCurrent(c *gin.Context) {
	raw := c.Query("jobs")

	var ids []string
	if raw != "" {
		ids = strings.Split(raw, "\x00")
	}

	c.JSON(http.StatusOK, s.engine.JobsAreCurrent(ids))
}

func (s *Server) getWhyBuild(c *gin.Context) {
	method := c.Param("method")

	var partial map[string]interface{}
	if err := c.ShouldBindJSON(&partial); err != nil {
		partial = map[string]interface{}{}
	}

	rec, ok, err := s.engine.Explain(method, partial)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	if !ok {
		c.JSON(http.StatusOK, gin.H{"why_build": nil})

		return
	}

	c.JSON(http.StatusOK, gin.H{"why_build": rec})
}
