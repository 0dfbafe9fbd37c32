/*
 * Copyright 2024, 2025 Hewlett Packard Enterprise Development LP
 * Other additional copyright holders may be indicated within.
 *
 * The entirety of this work is licensed under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 *
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ec

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
)

var (
	GET_METHOD    = strings.ToUpper("Get")
	POST_METHOD   = strings.ToUpper("Post")
	PUT_METHOD    = strings.ToUpper("Put")
	PATCH_METHOD  = strings.ToUpper("Patch")
	DELETE_METHOD = strings.ToUpper("Delete")
)

// RequestIdHeader carries the id the controller assigns to each request.
const RequestIdHeader = "X-Request-Id"

// Route
type Route struct {
	Name        string
	Method      string
	Path        string
	HandlerFunc http.HandlerFunc
}

// Routes -
type Routes []Route

// Router -
type Router interface {
	Routes() Routes

	Name() string
	Init() error
	Start() error
}

// Routers -
type Routers []Router

// Controller serves the routes of its routers over HTTP at Addr, a host:port
// listen address.
type Controller struct {
	Name    string
	Addr    string
	Routers Routers
	Mux     *mux.Router

	lock   sync.Mutex
	server *http.Server
	closed bool
}

// ResponseWriter captures a response for requests dispatched with Send.
type ResponseWriter struct {
	Hdr        http.Header
	StatusCode int
	Buffer     *bytes.Buffer
}

func NewResponseWriter() *ResponseWriter {
	return &ResponseWriter{
		Hdr:        http.Header{},
		StatusCode: http.StatusOK,
		Buffer:     new(bytes.Buffer),
	}
}

func (r *ResponseWriter) Header() http.Header         { return r.Hdr }
func (r *ResponseWriter) Write(b []byte) (int, error) { return r.Buffer.Write(b) }
func (r *ResponseWriter) WriteHeader(s int)           { r.StatusCode = s }

// statusRecorder remembers the status written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(s int) {
	r.status = s
	r.ResponseWriter.WriteHeader(s)
}

// logRequests tags every request with an id and logs its outcome.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIdHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIdHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		entry := log.WithFields(log.Fields{
			"request": id,
			"method":  r.Method,
			"uri":     r.RequestURI,
			"status":  rec.status,
			"elapsed": time.Since(start),
		})

		if rec.status >= http.StatusBadRequest {
			entry.Warn("Request failed")
		} else {
			entry.Debug("Request served")
		}
	})
}

// setupRouters initializes every router, registers its routes, and only
// then starts the routers.
func setupRouters(routers Routers) (*mux.Router, error) {
	m := mux.NewRouter().StrictSlash(true)
	m.Use(logRequests)

	for _, router := range routers {
		if err := router.Init(); err != nil {
			return nil, fmt.Errorf("%s failed to initialize: %w", router.Name(), err)
		}

		for _, route := range router.Routes() {
			m.Name(route.Name).Methods(route.Method).Path(route.Path).Handler(route.HandlerFunc)
		}

		log.WithField("router", router.Name()).Debugf("Registered %d routes", len(router.Routes()))
	}

	for _, router := range routers {
		if err := router.Start(); err != nil {
			return nil, fmt.Errorf("%s failed to start: %w", router.Name(), err)
		}
	}

	return m, nil
}

// Init builds the request multiplexer from the controller's routers.
func (c *Controller) Init() error {
	m, err := setupRouters(c.Routers)
	if err != nil {
		log.WithError(err).Errorf("%s failed in setup", c.Name)
		return err
	}

	c.Mux = m
	return nil
}

// Send dispatches a request to the controller's routes without a server.
func (c *Controller) Send(w http.ResponseWriter, r *http.Request) {
	c.Mux.ServeHTTP(w, r)
}

// Handler returns the controller's routes with permissive Cross Origin
// Resource Sharing, so the server may be reached from other web hosts.
func (c *Controller) Handler() http.Handler {
	return cors.AllowAll().Handler(c.Mux)
}

// Serve answers requests arriving on l until Close is called.
func (c *Controller) Serve(l net.Listener) error {
	if c.Mux == nil {
		if err := c.Init(); err != nil {
			return err
		}
	}

	server := &http.Server{Handler: c.Handler()}

	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		l.Close()
		return nil
	}
	c.server = server
	c.lock.Unlock()

	log.Infof("%s serving on %s", c.Name, l.Addr())

	if err := server.Serve(l); err != http.ErrServerClosed {
		return err
	}

	log.Warnf("%s terminated", c.Name)
	return nil
}

// ListenAndServe listens on the controller's address and serves it.
func (c *Controller) ListenAndServe() error {
	l, err := net.Listen("tcp", c.Addr)
	if err != nil {
		return err
	}

	return c.Serve(l)
}

// Close stops the server; a controller closed before it serves never will.
func (c *Controller) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.closed = true
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(context.Background())
}
