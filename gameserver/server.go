// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gameserver serves the game's static files over HTTP so the
// browser can load it from a real origin.
package gameserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
)

const (
	DefaultAddr = ":8080"
	DefaultRoot = "Dungeon_devler"
)

// Options configures the server.
type Options struct {
	Addr string
	// Root is the directory served at "/".
	Root string
	// Listener, when set, is used instead of listening on Addr.
	Listener net.Listener
	// Quiet disables per-request logging.
	Quiet bool
}

// Server is a running static file server.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}
}

// StartServer binds the listener and serves in the background. Binding
// happens before StartServer returns, so a port conflict is reported here.
func StartServer(opts Options) (*Server, error) {
	handler, err := NewHandler(opts)
	if err != nil {
		return nil, err
	}

	l := opts.Listener
	if l == nil {
		addr := opts.Addr
		if addr == "" {
			addr = DefaultAddr
		}
		if l, err = net.Listen("tcp", addr); err != nil {
			return nil, fmt.Errorf("listen %s: %w", addr, err)
		}
	}

	s := &Server{
		httpServer: &http.Server{Handler: handler},
		listener:   l,
		done:       make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		log.Printf("Serving %s on http://%s/", opts.Root, l.Addr())
		err := s.httpServer.Serve(l)
		if err != nil && !errors.Is(err, net.ErrClosed) && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()
	return s, nil
}

// Addr is the address the server listens on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// URL is the base URL of the server, with a trailing slash.
func (s *Server) URL() string {
	addr := s.listener.Addr().(*net.TCPAddr)
	host := addr.IP.String()
	if addr.IP.IsUnspecified() {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s/", net.JoinHostPort(host, fmt.Sprint(addr.Port)))
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	<-s.done
	return nil
}

// NewHandler builds the middleware chain around a file server for
// opts.Root.
func NewHandler(opts Options) (http.Handler, error) {
	root := opts.Root
	if root == "" {
		root = DefaultRoot
	}
	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("game root: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("game root %s is not a directory", root)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok\n"))
	})
	mux.Handle("/", contentTypeMiddleware(http.FileServerFS(os.DirFS(root))))

	handler := http.Handler(mux)
	if !opts.Quiet {
		handler = loggingMiddleware(handler)
	}
	handler = securityMiddleware(handler)
	handler = cacheControlMiddleware(handler)
	return handler, nil
}

// cacheControlMiddleware disables caching so every run sees the files as
// they are on disk.
func cacheControlMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		next.ServeHTTP(w, r)
	})
}

// securityMiddleware adds HTTP security headers to responses. No CSP: the
// game relies on inline handlers.
func securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// contentTypeMiddleware ensures that files are served with the correct MIME type.
func contentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch filepath.Ext(r.URL.Path) {
		case ".js", ".mjs":
			w.Header().Set("Content-Type", "application/javascript")
		case ".css":
			w.Header().Set("Content-Type", "text/css; charset=utf-8")
		case ".html":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		case ".png":
			w.Header().Set("Content-Type", "image/png")
		case ".json":
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
		case ".wav":
			w.Header().Set("Content-Type", "audio/wav")
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs the method and URL path of every incoming HTTP request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("Received request: %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
