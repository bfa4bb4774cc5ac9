// Package cluster gathers usage snapshots from the ranks of a job over
// HTTP. Rank 0 (or a separate process) runs a Coordinator; every rank
// submits through a Client, and rank 0 collects the full set.
package cluster

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/memspace/internal/logger"
	"github.com/samcharles93/memspace/internal/usage"
)

// NewSession returns a fresh gather session id.
func NewSession() string {
	return uuid.NewString()
}

// Coordinator holds in-flight gathers for jobs of a fixed size.
type Coordinator struct {
	size int
	log  logger.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	snaps []usage.Snapshot
	seen  []bool
	count int
	done  chan struct{}
}

func NewCoordinator(size int, log logger.Logger) (*Coordinator, error) {
	if size < 1 {
		return nil, fmt.Errorf("cluster: job size must be positive, got %d", size)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Coordinator{
		size:     size,
		log:      log.With("component", "cluster"),
		sessions: make(map[string]*session),
	}, nil
}

func (c *Coordinator) Register(e *echo.Echo) {
	e.POST("/v1/usage/:session/:rank", c.handleSubmit)
	e.GET("/v1/usage/:session", c.handleCollect)
}

// Pending reports how many sessions are still open.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

func (c *Coordinator) session(id string) *session {
	s, ok := c.sessions[id]
	if !ok {
		s = &session{
			snaps: make([]usage.Snapshot, c.size),
			seen:  make([]bool, c.size),
			done:  make(chan struct{}),
		}
		c.sessions[id] = s
	}
	return s
}

var (
	errDuplicate = errors.New("rank already submitted")
	errRank      = errors.New("rank out of range")
)

func (c *Coordinator) submit(id string, rank int, snap usage.Snapshot) error {
	if rank < 0 || rank >= c.size {
		return fmt.Errorf("%w: %d not in [0, %d)", errRank, rank, c.size)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session(id)
	if s.seen[rank] {
		return fmt.Errorf("%w: %d", errDuplicate, rank)
	}
	s.snaps[rank] = snap
	s.seen[rank] = true
	s.count++
	if s.count == c.size {
		close(s.done)
	}
	return nil
}

func (c *Coordinator) handleSubmit(ctx *echo.Context) error {
	id := ctx.Param("session")
	if _, err := uuid.Parse(id); err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid session id")
	}
	rank, err := strconv.Atoi(ctx.Param("rank"))
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid rank")
	}

	var snap usage.Snapshot
	if err := json.NewDecoder(ctx.Request().Body).Decode(&snap); err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid snapshot: "+err.Error())
	}

	switch err := c.submit(id, rank, snap); {
	case errors.Is(err, errRank):
		return writeError(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, errDuplicate):
		return writeError(ctx, http.StatusConflict, err.Error())
	}
	c.log.Debug("snapshot received", "session", id, "rank", rank)
	return ctx.NoContent(http.StatusAccepted)
}

// handleCollect blocks until every rank of the session has submitted, then
// returns the snapshots in rank order. The session is forgotten either way,
// including when the collector gives up.
func (c *Coordinator) handleCollect(ctx *echo.Context) error {
	id := ctx.Param("session")
	if _, err := uuid.Parse(id); err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid session id")
	}

	c.mu.Lock()
	s := c.session(id)
	c.mu.Unlock()

	select {
	case <-s.done:
	case <-ctx.Request().Context().Done():
		c.forget(id, s)
		c.log.Debug("gather cancelled", "session", id, "received", c.received(s))
		return writeError(ctx, http.StatusRequestTimeout, "gather cancelled")
	}

	c.forget(id, s)
	c.log.Debug("gather complete", "session", id, "ranks", c.size)
	return ctx.JSON(http.StatusOK, s.snaps)
}

// forget drops id if it still refers to s.
func (c *Coordinator) forget(id string, s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions[id] == s {
		delete(c.sessions, id)
	}
}

func (c *Coordinator) received(s *session) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return s.count
}

func writeError(ctx *echo.Context, status int, msg string) error {
	return ctx.JSON(status, map[string]string{"error": msg})
}
