package cmd

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spigell/uniscan/internal/eligibility"
	pgstore "github.com/spigell/uniscan/internal/store/postgres"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

var studentCmd = &cobra.Command{
	Use:   "student",
	Short: "Create or update the academic record of a student",
	Run: func(cmd *cobra.Command, _ []string) {
		student(cmd)
	},
}

func init() {
	rootCmd.AddCommand(studentCmd)

	studentCmd.Flags().String("id", "", "student id (generated when empty)")
	studentCmd.Flags().String("ssc-gpa", "", "SSC GPA")
	studentCmd.Flags().String("hsc-gpa", "", "HSC GPA")
	studentCmd.Flags().String("ssc-year", "", "SSC passing year")
	studentCmd.Flags().String("hsc-year", "", "HSC passing year")
	studentCmd.Flags().String("date-of-birth", "", "date of birth, "+dateLayout)
	studentCmd.Flags().String("nationality", "", "nationality")
}

func student(cmd *cobra.Command) {
	ctx := context.Background()
	logger, config := setup(true)

	flag := func(name string) string { return cmd.Flag(name).Value.String() }

	applicant := eligibility.Applicant{
		ID:          uuid.New(),
		SSCGPA:      flag("ssc-gpa"),
		HSCGPA:      flag("hsc-gpa"),
		SSCYear:     flag("ssc-year"),
		HSCYear:     flag("hsc-year"),
		Nationality: flag("nationality"),
	}
	if raw := flag("id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			logger.Fatal("parsing the student id", zap.Error(err))
		}
		applicant.ID = id
	}
	if raw := flag("date-of-birth"); raw != "" {
		dob, err := time.Parse(dateLayout, raw)
		if err != nil {
			logger.Fatal("parsing the date of birth", zap.Error(err))
		}
		applicant.DateOfBirth = &dob
	}

	db, err := connectDatabase(ctx, config.Database)
	if err != nil {
		logger.Fatal("connecting to the database", zap.Error(err))
	}
	defer db.Close()

	if err := pgstore.New(db).UpsertApplicant(ctx, applicant); err != nil {
		logger.Fatal("saving the student", zap.Error(err))
	}
	logger.Info("student saved", zap.String("student_id", applicant.ID.String()))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(applicant); err != nil {
		logger.Fatal("printing the student", zap.Error(err))
	}
}
