package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/transcript-server/internal/service"
)

// DocumentCounter reports the number of documents in the caption index.
type DocumentCounter interface {
	DocumentCount() (uint64, error)
}

// ClientCounter reports the number of connected event stream clients.
type ClientCounter interface {
	ClientCount() int
}

// HealthDeps are the components checked by the health endpoint.
// Nil stores are reported as degraded; a nil event stream is omitted.
type HealthDeps struct {
	Captions DocumentCounter
	Chunks   service.ChunkLister
	Events   ClientCounter
}

const healthProbeID = "health-probe"

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// severity orders statuses so the overall status is the worst component's.
var severity = map[string]int{statusHealthy: 0, statusDegraded: 1, statusUnhealthy: 2}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	resp := HealthResponse{
		Status: statusHealthy,
		Components: map[string]ComponentHealth{
			"caption_index": s.checkCaptionIndex(),
			"chunk_store":   s.checkChunkStore(ctx),
		},
	}
	if s.health.Events != nil {
		resp.Components["event_stream"] = s.checkEventStream()
	}

	for _, c := range resp.Components {
		if severity[c.Status] > severity[resp.Status] {
			resp.Status = c.Status
		}
	}
	return &HealthOutput{Body: resp}, nil
}

// probe times check. A failing check is unhealthy with failMsg; otherwise
// the component is healthy with okMsg.
func probe(check func() error, failMsg, okMsg string) ComponentHealth {
	start := time.Now()
	err := check()
	h := ComponentHealth{Status: statusHealthy, Latency: time.Since(start).String(), Message: okMsg}
	if err != nil {
		h.Status, h.Message = statusUnhealthy, failMsg
	}
	return h
}

func (s *Server) checkCaptionIndex() ComponentHealth {
	if s.health.Captions == nil {
		return ComponentHealth{Status: statusDegraded, Message: "caption index not configured"}
	}

	var docs uint64
	h := probe(func() (err error) {
		docs, err = s.health.Captions.DocumentCount()
		return err
	}, "caption index unreachable", "")
	if h.Status == statusHealthy {
		h.Message = formatDocumentCount(docs)
	}
	return h
}

// checkChunkStore lists a transcript id that never exists, which still
// round-trips to the backend.
func (s *Server) checkChunkStore(ctx context.Context) ComponentHealth {
	if s.health.Chunks == nil {
		return ComponentHealth{Status: statusDegraded, Message: "chunk store not configured"}
	}

	return probe(func() error {
		_, err := s.health.Chunks.List(ctx, healthProbeID)
		return err
	}, "chunk store read failed", "")
}

func (s *Server) checkEventStream() ComponentHealth {
	return ComponentHealth{
		Status:  statusHealthy,
		Message: plural(uint64(s.health.Events.ClientCount()), "client", "clients") + " connected",
	}
}

func formatDocumentCount(n uint64) string {
	return plural(n, "document", "documents")
}

func plural(n uint64, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.FormatUint(n, 10) + " " + many
}
