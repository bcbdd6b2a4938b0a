package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/appointment-backend/internal/booking"
	"github.com/clinicdesk/appointment-backend/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), dsn); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	dentists, err := seedDentists(context.Background(), pool, 12)
	if err != nil {
		log.Fatalf("seed dentists: %v", err)
	}
	schedules, err := seedSchedules(context.Background(), pool, dentists, 14)
	if err != nil {
		log.Fatalf("seed schedules: %v", err)
	}
	if err := seedBookings(context.Background(), pool, schedules); err != nil {
		log.Fatalf("seed bookings: %v", err)
	}

	log.Println("seed complete")
}

func seedDentists(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d dentists", count)

	specialties := []string{
		"General Dentistry",
		"Orthodontics",
		"Endodontics",
		"Periodontics",
		"Oral Surgery",
		"Pediatric Dentistry",
		"Prosthodontics",
	}

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		specialty := specialties[gofakeit.Number(0, len(specialties)-1)]
		email := gofakeit.Email()

		_, err := pool.Exec(ctx, `
			INSERT INTO dentists (id, name, specialty, email)
			VALUES ($1, $2, $3, $4)
		`, id, "Dr. "+gofakeit.Name(), specialty, email)
		if err != nil {
			return nil, fmt.Errorf("insert dentist: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// seedSchedules creates morning and afternoon sessions per dentist for the
// next N days.
func seedSchedules(ctx context.Context, pool *pgxpool.Pool, dentists []uuid.UUID, days int) ([]uuid.UUID, error) {
	log.Printf("seeding schedules for %d days", days)

	var ids []uuid.UUID
	today := time.Now().Truncate(24 * time.Hour)

	for day := 0; day < days; day++ {
		date := today.AddDate(0, 0, day)
		for _, dentistID := range dentists {
			for _, session := range [][2]int{{9, 12}, {14, 17}} {
				start := date.Add(time.Duration(session[0]) * time.Hour)
				end := date.Add(time.Duration(session[1]) * time.Hour)
				capacity := gofakeit.Number(4, 10)

				s, err := booking.NewSchedule(dentistID, start, end, capacity)
				if err != nil {
					return nil, err
				}

				_, err = pool.Exec(ctx, `
					INSERT INTO schedules (id, dentist_id, schedule_date, start_at, end_at, capacity, available_slots, status, version)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				`, s.ID, s.DentistID, s.Date, s.StartAt, s.EndAt, s.Capacity, s.AvailableSlots, s.Status, s.Version)
				if err != nil {
					return nil, fmt.Errorf("insert schedule: %w", err)
				}
				ids = append(ids, s.ID)
			}
		}
	}
	return ids, nil
}

// seedBookings fills a random share of the slots on each schedule, keeping
// available_slots and appointment numbers consistent with the bookings.
func seedBookings(ctx context.Context, pool *pgxpool.Pool, schedules []uuid.UUID) error {
	log.Printf("seeding bookings across %d schedules", len(schedules))

	for _, scheduleID := range schedules {
		var capacity int
		if err := pool.QueryRow(ctx, `SELECT capacity FROM schedules WHERE id = $1`, scheduleID).Scan(&capacity); err != nil {
			return fmt.Errorf("read schedule capacity: %w", err)
		}

		taken := gofakeit.Number(0, capacity)
		for n := 1; n <= taken; n++ {
			ref := fmt.Sprintf("APT-%010d", gofakeit.Number(1, 2_000_000_000))
			_, err := pool.Exec(ctx, `
				INSERT INTO bookings (id, reference_id, schedule_id, appointment_no, patient_name, patient_nic, patient_phone, patient_email, patient_address, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`, uuid.New(), ref, scheduleID, n,
				gofakeit.Name(),
				gofakeit.Numerify("#########V"),
				gofakeit.Phone(),
				gofakeit.Email(),
				gofakeit.Address().Address,
				booking.BookingPending)
			if err != nil {
				return fmt.Errorf("insert booking: %w", err)
			}
		}

		status := booking.ScheduleAvailable
		if taken == capacity {
			status = booking.ScheduleFull
		}
		_, err := pool.Exec(ctx, `
			UPDATE schedules SET available_slots = $2, status = $3 WHERE id = $1
		`, scheduleID, capacity-taken, status)
		if err != nil {
			return fmt.Errorf("update schedule occupancy: %w", err)
		}
	}
	return nil
}
