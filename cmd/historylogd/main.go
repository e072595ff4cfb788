// Command historylogd is the durable persistence side of the audit trail: it
// subscribes to the message-log, message-history, and error-log NATS subjects
// the sync daemons publish on, batches the rows, and flushes them to
// PostgreSQL. It also exposes a small HTTP API for operator tooling to query
// recent message-log entries and current sync status.
package main

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"htngsync/internal/config"
	"htngsync/internal/historylog"
)

func main() {
	natsURL := config.EnvOrDefault("NATS_URL", "nats://localhost:4222")
	pgDSN := config.EnvOrDefault("POSTGRES_DSN",
		"host=localhost port=5432 user=htng password=htng dbname=htngsync sslmode=disable")
	httpAddr := config.EnvOrDefault("HTTP_ADDR", ":8081")

	dbClient, err := historylog.OpenDB(pgDSN)
	if err != nil {
		log.Fatalf("historylogd: %v", err)
	}
	defer dbClient.Close()

	logBatcher := historylog.NewBatcher("message-log", historylog.DefaultMaxBatchSize, historylog.DefaultFlushInterval,
		func(events []historylog.MessageLogEvent) error {
			if err := dbClient.BatchInsertMessageLog(events); err != nil {
				log.Printf("historylogd: message-log batch insert failed: %v", err)
				return err
			}
			log.Printf("historylogd: persisted batch of %d message-log rows", len(events))
			return nil
		})
	defer logBatcher.Stop()

	historyBatcher := historylog.NewBatcher("message-history", historylog.DefaultMaxBatchSize, historylog.DefaultFlushInterval,
		func(events []historylog.MessageHistoryEvent) error {
			if err := dbClient.BatchInsertMessageHistory(events); err != nil {
				log.Printf("historylogd: message-history batch insert failed: %v", err)
				return err
			}
			return nil
		})
	defer historyBatcher.Stop()

	errorBatcher := historylog.NewBatcher("error-log", historylog.DefaultMaxBatchSize, historylog.DefaultFlushInterval,
		func(events []historylog.ErrorLogEvent) error {
			if err := dbClient.BatchInsertErrorLog(events); err != nil {
				log.Printf("historylogd: error-log batch insert failed: %v", err)
				return err
			}
			return nil
		})
	defer errorBatcher.Stop()

	sub, err := historylog.NewSubscriber(natsURL, logBatcher, historyBatcher, errorBatcher)
	if err != nil {
		log.Fatalf("historylogd: could not connect to NATS: %v", err)
	}
	if err := sub.Start(); err != nil {
		log.Fatalf("historylogd: could not subscribe to NATS: %v", err)
	}
	defer sub.Stop()

	rawDB, err := sql.Open("postgres", pgDSN)
	if err != nil {
		log.Fatalf("historylogd: open raw db for http: %v", err)
	}
	defer rawDB.Close()

	mux := http.NewServeMux()
	registerRoutes(mux, rawDB)

	server := &http.Server{
		Addr:         httpAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("historylogd: HTTP API listening on %s", httpAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("historylogd: HTTP server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("historylogd: shutting down")
}

func registerRoutes(mux *http.ServeMux, rawDB *sql.DB) {
	// GET /health — liveness probe
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := rawDB.Ping(); err != nil {
			jsonError(w, "database unreachable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		jsonOK(w, map[string]string{"status": "ok", "service": "historylogd"})
	})

	// GET /message-log — most recent dispatch attempts
	mux.HandleFunc("/message-log", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rows, err := rawDB.Query(`
			SELECT message_id, direction, kind, property_id, COALESCE(hotel_code,''),
			       status, COALESCE(error_kind,''), COALESCE(error_message,''),
			       retry_count, started_at, completed_at
			FROM message_log
			ORDER BY started_at DESC
			LIMIT 200`)
		if err != nil {
			jsonError(w, "query message_log: "+err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()

		type LogRow struct {
			MessageID    string `json:"message_id"`
			Direction    string `json:"direction"`
			Kind         string `json:"kind"`
			PropertyID   int64  `json:"property_id"`
			HotelCode    string `json:"hotel_code"`
			Status       string `json:"status"`
			ErrorKind    string `json:"error_kind"`
			ErrorMessage string `json:"error_message"`
			RetryCount   int    `json:"retry_count"`
			StartedAt    string `json:"started_at"`
			CompletedAt  string `json:"completed_at,omitempty"`
		}
		var results []LogRow
		for rows.Next() {
			var lr LogRow
			var startedAt time.Time
			var completedAt sql.NullTime
			if err := rows.Scan(
				&lr.MessageID, &lr.Direction, &lr.Kind, &lr.PropertyID, &lr.HotelCode,
				&lr.Status, &lr.ErrorKind, &lr.ErrorMessage, &lr.RetryCount, &startedAt, &completedAt,
			); err != nil {
				jsonError(w, "scan message_log: "+err.Error(), http.StatusInternalServerError)
				return
			}
			lr.StartedAt = startedAt.Format(time.RFC3339)
			if completedAt.Valid {
				lr.CompletedAt = completedAt.Time.Format(time.RFC3339)
			}
			results = append(results, lr)
		}
		if results == nil {
			results = []LogRow{}
		}
		jsonOK(w, results)
	})

	// GET /sync-status — current state of every sync stream
	mux.HandleFunc("/sync-status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rows, err := rawDB.Query(`
			SELECT property_id, kind, entity_type, entity_id, state,
			       last_attempt, last_success, retry_count, retry_cap, next_retry_at,
			       COALESCE(last_error,''), records_processed, records_total,
			       success_rate, auto_retry
			FROM sync_status
			ORDER BY property_id, kind, entity_type, entity_id`)
		if err != nil {
			jsonError(w, "query sync_status: "+err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()

		type StatusRow struct {
			PropertyID       int64   `json:"property_id"`
			Kind             string  `json:"kind"`
			EntityType       string  `json:"entity_type"`
			EntityID         string  `json:"entity_id"`
			State            string  `json:"state"`
			LastAttempt      string  `json:"last_attempt,omitempty"`
			LastSuccess      string  `json:"last_success,omitempty"`
			RetryCount       int     `json:"retry_count"`
			RetryCap         int     `json:"retry_cap"`
			NextRetryAt      string  `json:"next_retry_at,omitempty"`
			LastError        string  `json:"last_error,omitempty"`
			RecordsProcessed int64   `json:"records_processed"`
			RecordsTotal     int64   `json:"records_total"`
			SuccessRate      float64 `json:"success_rate"`
			AutoRetry        bool    `json:"auto_retry"`
		}
		var results []StatusRow
		for rows.Next() {
			var sr StatusRow
			var lastAttempt, lastSuccess, nextRetryAt sql.NullTime
			if err := rows.Scan(
				&sr.PropertyID, &sr.Kind, &sr.EntityType, &sr.EntityID, &sr.State,
				&lastAttempt, &lastSuccess, &sr.RetryCount, &sr.RetryCap, &nextRetryAt,
				&sr.LastError, &sr.RecordsProcessed, &sr.RecordsTotal, &sr.SuccessRate, &sr.AutoRetry,
			); err != nil {
				jsonError(w, "scan sync_status: "+err.Error(), http.StatusInternalServerError)
				return
			}
			sr.LastAttempt = formatNullTime(lastAttempt)
			sr.LastSuccess = formatNullTime(lastSuccess)
			sr.NextRetryAt = formatNullTime(nextRetryAt)
			results = append(results, sr)
		}
		if results == nil {
			results = []StatusRow{}
		}
		jsonOK(w, results)
	})
}

func formatNullTime(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format(time.RFC3339)
}

func jsonOK(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
