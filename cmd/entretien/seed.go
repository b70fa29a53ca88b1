package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alecgard/entretien/internal/config"
	"github.com/alecgard/entretien/internal/cycle"
	"github.com/alecgard/entretien/internal/user"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo org chart and a draft review cycle",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func strPtr(s string) *string { return &s }

var demoOrg = []user.ImportRecord{
	{
		EmployeeEmail: "hr@example.com",
		EmployeeName:  "Priya Raman",
		Department:    "People",
		IsAdmin:       true,
	},
	{
		EmployeeEmail: "cto@example.com",
		EmployeeName:  "Marta Osei",
		Department:    "Engineering",
	},
	{
		EmployeeEmail: "lead@example.com",
		EmployeeName:  "Jonas Weber",
		ManagerEmail:  strPtr("cto@example.com"),
		Department:    "Engineering",
	},
	{
		EmployeeEmail: "dev1@example.com",
		EmployeeName:  "Ana Costa",
		ManagerEmail:  strPtr("lead@example.com"),
		Department:    "Engineering",
	},
	{
		EmployeeEmail: "dev2@example.com",
		EmployeeName:  "Tom Brady",
		ManagerEmail:  strPtr("lead@example.com"),
		Department:    "Engineering",
	},
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	userStore := user.NewStore(pool)
	cycleStore := cycle.NewStore(pool)
	cycleService := cycle.NewService(cycleStore)

	// Check if seed has already run.
	existing, err := userStore.List(ctx)
	if err != nil {
		return fmt.Errorf("checking existing users: %w", err)
	}
	if len(existing) > 0 {
		slog.Info("demo data already exists, skipping seed")
		return nil
	}

	importer := user.NewImporter(userStore)
	result, err := importer.Import(ctx, demoOrg)
	if err != nil {
		return fmt.Errorf("importing demo org: %w", err)
	}
	for _, rowErr := range result.Errors {
		slog.Warn("seed row failed", "email", rowErr.Email, "error", rowErr.Error)
	}
	slog.Info("created demo users", "count", result.Created)

	now := time.Now()
	c, err := cycleService.Create(ctx, cycle.CreateCycleInput{
		Name:      fmt.Sprintf("H%d %d", (now.Month()-1)/6+1, now.Year()),
		StartDate: now,
		EndDate:   now.AddDate(0, 6, 0),
	})
	if err != nil {
		return fmt.Errorf("creating demo cycle: %w", err)
	}
	slog.Info("created draft cycle", "id", c.ID, "name", c.Name)

	fmt.Printf("\n=== Demo Data Seeded ===\n")
	fmt.Printf("Users:  %d created\n", result.Created)
	fmt.Printf("Cycle:  %s (draft, %s)\n", c.Name, c.ID)
	fmt.Printf("\nOne-time passwords (each account must rotate on first login):\n")
	for _, cred := range result.Credentials {
		fmt.Printf("  %-22s %s\n", cred.Email, cred.Password)
	}
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl -X POST http://localhost:8080/api/v1/auth/login -d '{\"email\":\"hr@example.com\",\"password\":\"<one-time password>\"}'\n")

	return nil
}
