// simulate fires concurrent booking requests at the API to exercise the
// admission path under contention. Expected outcome for a schedule with
// capacity C and N > C workers: exactly C successes, the rest split between
// schedule_full (409) and system_busy (503) responses, never an overbooking.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/appointment-backend/internal/db"
)

type simConfig struct {
	APIBaseURL  string
	Workers     int
	Attempts    int
	PostgresDSN string
}

type counters struct {
	success   int64
	full      int64
	busy      int64
	other     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (c *counters) record(latency time.Duration, status int) {
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&c.success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&c.full, 1)
	case status == http.StatusServiceUnavailable:
		atomic.AddInt64(&c.busy, 1)
	default:
		atomic.AddInt64(&c.other, 1)
	}

	c.mu.Lock()
	c.latencies = append(c.latencies, latency)
	c.mu.Unlock()
}

func (c *counters) percentiles() (p50, p95 time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.latencies) == 0 {
		return 0, 0
	}
	sorted := make([]time.Duration, len(c.latencies))
	copy(sorted, c.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)*50/100], sorted[len(sorted)*95/100]
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := simConfig{
		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:8080"),
		Workers:     getEnvInt("SIM_WORKERS", 50),
		Attempts:    getEnvInt("SIM_ATTEMPTS", 10),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	scheduleIDs, err := loadOpenSchedules(ctx, pool, 20)
	if err != nil {
		log.Fatalf("load schedules: %v", err)
	}
	if len(scheduleIDs) == 0 {
		log.Fatal("no open schedules found, run cmd/seed first")
	}

	gofakeit.Seed(time.Now().UnixNano())
	log.Printf("starting simulation: %d workers x %d attempts against %d schedules",
		cfg.Workers, cfg.Attempts, len(scheduleIDs))

	client := &http.Client{Timeout: 10 * time.Second}
	var stats counters
	var wg sync.WaitGroup

	start := time.Now()
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < cfg.Attempts; i++ {
				target := scheduleIDs[(worker+i)%len(scheduleIDs)]
				attemptBooking(client, cfg.APIBaseURL, target, &stats)
			}
		}(w)
	}
	wg.Wait()

	p50, p95 := stats.percentiles()
	log.Printf("simulation done in %s", time.Since(start))
	log.Printf("created=%d full=%d busy=%d other=%d p50=%s p95=%s",
		stats.success, stats.full, stats.busy, stats.other, p50, p95)

	if err := verifyNoOverbooking(ctx, pool); err != nil {
		log.Fatalf("INVARIANT VIOLATED: %v", err)
	}
	log.Println("invariant holds: no schedule is overbooked")
}

func attemptBooking(client *http.Client, baseURL string, scheduleID uuid.UUID, stats *counters) {
	payload, _ := json.Marshal(map[string]string{
		"schedule_id": scheduleID.String(),
		"name":        gofakeit.Name(),
		"nic":         gofakeit.Numerify("#########V"),
		"phone":       gofakeit.Phone(),
		"email":       gofakeit.Email(),
		"address":     gofakeit.Address().Address,
	})

	start := time.Now()
	resp, err := client.Post(baseURL+"/bookings", "application/json", bytes.NewReader(payload))
	if err != nil {
		stats.record(time.Since(start), 0)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	stats.record(time.Since(start), resp.StatusCode)
}

func loadOpenSchedules(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `
		SELECT id
		FROM schedules
		WHERE status IN ('AVAILABLE', 'ACTIVE')
		  AND start_at > now()
		ORDER BY start_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// verifyNoOverbooking cross-checks every schedule row against its bookings.
func verifyNoOverbooking(ctx context.Context, pool *pgxpool.Pool) error {
	rows, err := pool.Query(ctx, `
		SELECT s.id, s.capacity, s.available_slots, count(b.id) FILTER (WHERE b.status IN ('PENDING', 'ACTIVE'))
		FROM schedules s
		LEFT JOIN bookings b ON b.schedule_id = s.id
		GROUP BY s.id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var capacity, available, occupied int
		if err := rows.Scan(&id, &capacity, &available, &occupied); err != nil {
			return err
		}
		if occupied > capacity {
			return fmt.Errorf("schedule %s has %d occupying bookings for capacity %d", id, occupied, capacity)
		}
		if available != capacity-occupied {
			return fmt.Errorf("schedule %s slot count drifted: available=%d capacity=%d occupied=%d", id, available, capacity, occupied)
		}
	}
	return rows.Err()
}
