package main

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-slot-scheduling/internal/db"
	"github.com/hackgods/clinic-slot-scheduling/internal/schedule"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func newSeedCommand() *cobra.Command {
	var (
		doctors  int
		patients int
		seed     uint64
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert fake doctors with weekly templates, and patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			if doctors < 0 || patients < 0 {
				return fmt.Errorf("--doctors and --patients must not be negative")
			}

			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.pool.Close()

			faker := gofakeit.New(seed)

			if err := seedDoctors(cmd.Context(), e.pool, faker, e.logger, doctors); err != nil {
				return fmt.Errorf("seed doctors: %w", err)
			}
			if err := seedPatients(cmd.Context(), e.pool, faker, e.logger, patients); err != nil {
				return fmt.Errorf("seed patients: %w", err)
			}

			e.logger.Info().Msg("seed complete")
			return nil
		},
	}

	cmd.Flags().IntVar(&doctors, "doctors", 20, "number of doctors to create")
	cmd.Flags().IntVar(&patients, "patients", 2000, "number of patients to create")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed, 0 picks one at random")

	return cmd
}

// seedDoctors writes each doctor and its template in one transaction so a
// doctor never exists without a schedule.
func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, logger zerolog.Logger, count int) error {
	logger.Info().Int("count", count).Msg("seeding doctors")

	templates := schedule.NewPgRepository(pool)

	return db.WithTx(ctx, pool, func(ctx context.Context) error {
		tx := db.TxFromContext(ctx)
		for i := 0; i < count; i++ {
			id := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO doctors (id, name, specialty, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, "Dr. "+faker.Name(), specialties[faker.Number(0, len(specialties)-1)])
			if err != nil {
				return err
			}

			tpl := &schedule.WeeklyTemplate{DoctorID: id, Days: randomWeek(faker)}
			if err := templates.UpsertTemplate(ctx, tpl); err != nil {
				return err
			}
		}
		return nil
	})
}

// randomWeek works Monday to Friday with a morning block and, on some days,
// an evening block from 14:00 or later. Weekends stay off.
func randomWeek(faker *gofakeit.Faker) schedule.Week {
	var week schedule.Week
	for d := 1; d <= 5; d++ {
		ms := schedule.NewTimeOfDay(faker.Number(8, 10), 0)
		me := schedule.NewTimeOfDay(faker.Number(11, 13), 0)
		day := schedule.DaySchedule{MorningStart: &ms, MorningEnd: &me}

		if faker.Bool() {
			es := schedule.NewTimeOfDay(faker.Number(14, 16), 0)
			ee := schedule.NewTimeOfDay(faker.Number(17, 20), faker.RandomInt([]int{0, 30}))
			day.EveningStart, day.EveningEnd = &es, &ee
		}
		week[d] = day
	}
	return week
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, logger zerolog.Logger, count int) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			batch.Queue(`
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), faker.Name(), faker.Email())
		}

		err := db.WithTx(ctx, pool, func(ctx context.Context) error {
			return db.TxFromContext(ctx).SendBatch(ctx, batch).Close()
		})
		if err != nil {
			return err
		}

		logger.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}
