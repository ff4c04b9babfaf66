package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spigell/uniscan/internal/eligibility"
	pgstore "github.com/spigell/uniscan/internal/store/postgres"
	"go.uber.org/zap"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate a student against a stored admission circular",
	Run: func(cmd *cobra.Command, _ []string) {
		check(cmd)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().String("student", "", "student id")
	checkCmd.Flags().String("circular", "", "admission circular id")
	checkCmd.Flags().String("department", "", "department requirement id (optional)")
	checkCmd.MarkFlagRequired("student")
	checkCmd.MarkFlagRequired("circular")
}

func check(cmd *cobra.Command) {
	ctx := context.Background()
	logger, config := setup(true)

	studentID, err := uuid.Parse(cmd.Flag("student").Value.String())
	if err != nil {
		logger.Fatal("parsing the student id", zap.Error(err))
	}
	circularID, err := uuid.Parse(cmd.Flag("circular").Value.String())
	if err != nil {
		logger.Fatal("parsing the circular id", zap.Error(err))
	}
	var departmentID *uuid.UUID
	if raw := cmd.Flag("department").Value.String(); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			logger.Fatal("parsing the department id", zap.Error(err))
		}
		departmentID = &id
	}

	db, err := connectDatabase(ctx, config.Database)
	if err != nil {
		logger.Fatal("connecting to the database", zap.Error(err))
	}
	defer db.Close()

	st := pgstore.New(db)
	svc := eligibility.NewService(st, st, logger, nil)

	result, err := svc.Check(ctx, studentID, circularID, departmentID)
	if err != nil {
		logger.Fatal("checking eligibility", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Fatal("printing the check", zap.Error(err))
	}
}
