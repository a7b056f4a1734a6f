// Metrics recorder for the coaching engine. Purely in-memory, explicitly
// constructed and injected; recording never returns an error because a
// metrics failure must not affect the primary operation.
package service

import (
	"sync"
	"time"
)

// Metric event kinds
const (
	metricContextBuild    = "context_build"
	metricExternalCall    = "external_call"
	metricSessionCreated  = "session_created"
	metricSignedURL       = "signed_url_generated"
	metricConversationEnd = "conversation_end"
)

// caps keep an unbounded process from growing without limit
const (
	maxMetricEvents = 10000
	maxErrorRecords = 500
)

type metricEvent struct {
	Kind       string
	Operation  string // external_call only
	Duration   time.Duration
	ItemCount  int
	OccurredAt time.Time
}

// ErrorRecord is one typed error observation
type ErrorRecord struct {
	Kind           string    `json:"kind"`
	Message        string    `json:"message"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// MetricsSummary aggregates events over a time window
type MetricsSummary struct {
	TotalConversations     int            `json:"total_conversations"`
	AvgConversationSeconds float64        `json:"avg_conversation_seconds"`
	AvgContextBuildMs      float64        `json:"avg_context_build_ms"`
	AvgExternalCallMs      float64        `json:"avg_external_call_ms"`
	TotalSessions          int            `json:"total_sessions"`
	TotalErrors            int            `json:"total_errors"`
	ErrorsByKind           map[string]int `json:"errors_by_kind"`
}

// MetricsService records latencies and outcomes for every pipeline stage.
// All methods are thread-safe and never raise.
type MetricsService struct {
	mu     sync.Mutex
	events []metricEvent
	errs   []ErrorRecord
	now    func() time.Time
}

// NewMetricsService creates a metrics service
func NewMetricsService() *MetricsService {
	return &MetricsService{now: time.Now}
}

func (s *MetricsService) record(e metricEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.OccurredAt = s.now()
	if len(s.events) >= maxMetricEvents {
		s.events = s.events[1:]
	}
	s.events = append(s.events, e)
}

// RecordContextBuild records a completed context assembly
func (s *MetricsService) RecordContextBuild(duration time.Duration, goalCount, journalCount int) {
	s.record(metricEvent{
		Kind:      metricContextBuild,
		Duration:  duration,
		ItemCount: goalCount + journalCount,
	})
}

// RecordExternalCall records the latency of one external API call
func (s *MetricsService) RecordExternalCall(operation string, duration time.Duration) {
	s.record(metricEvent{
		Kind:      metricExternalCall,
		Operation: operation,
		Duration:  duration,
	})
}

// RecordSessionCreated records a successful session creation
func (s *MetricsService) RecordSessionCreated() {
	s.record(metricEvent{Kind: metricSessionCreated})
}

// RecordSignedURL records an issued connection credential
func (s *MetricsService) RecordSignedURL() {
	s.record(metricEvent{Kind: metricSignedURL})
}

// RecordConversationEnd records a saved conversation
func (s *MetricsService) RecordConversationEnd(duration time.Duration, messageCount int) {
	s.record(metricEvent{
		Kind:      metricConversationEnd,
		Duration:  duration,
		ItemCount: messageCount,
	})
}

// RecordError records a typed error observation
func (s *MetricsService) RecordError(kind, message, userID, conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.errs) >= maxErrorRecords {
		s.errs = s.errs[1:]
	}
	s.errs = append(s.errs, ErrorRecord{
		Kind:           kind,
		Message:        message,
		UserID:         userID,
		ConversationID: conversationID,
		OccurredAt:     s.now(),
	})
}

// Aggregate summarizes events, optionally restricted to [start, end].
func (s *MetricsService) Aggregate(start, end *time.Time) MetricsSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	inWindow := func(t time.Time) bool {
		if start != nil && t.Before(*start) {
			return false
		}
		if end != nil && t.After(*end) {
			return false
		}
		return true
	}

	summary := MetricsSummary{ErrorsByKind: map[string]int{}}

	var convTotal, ctxTotal, extTotal time.Duration
	var ctxCount, extCount int

	for _, e := range s.events {
		if !inWindow(e.OccurredAt) {
			continue
		}
		switch e.Kind {
		case metricConversationEnd:
			summary.TotalConversations++
			convTotal += e.Duration
		case metricContextBuild:
			ctxCount++
			ctxTotal += e.Duration
		case metricExternalCall:
			extCount++
			extTotal += e.Duration
		case metricSessionCreated:
			summary.TotalSessions++
		}
	}

	if summary.TotalConversations > 0 {
		summary.AvgConversationSeconds = convTotal.Seconds() / float64(summary.TotalConversations)
	}
	if ctxCount > 0 {
		summary.AvgContextBuildMs = float64(ctxTotal.Milliseconds()) / float64(ctxCount)
	}
	if extCount > 0 {
		summary.AvgExternalCallMs = float64(extTotal.Milliseconds()) / float64(extCount)
	}

	for _, e := range s.errs {
		if !inWindow(e.OccurredAt) {
			continue
		}
		summary.TotalErrors++
		summary.ErrorsByKind[e.Kind]++
	}

	return summary
}

// RecentErrors returns the last k error records regardless of window,
// newest last.
func (s *MetricsService) RecentErrors(k int) []ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if k <= 0 || k > len(s.errs) {
		k = len(s.errs)
	}
	out := make([]ErrorRecord, k)
	copy(out, s.errs[len(s.errs)-k:])
	return out
}
