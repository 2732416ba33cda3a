package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/darasa-app/darasa/apps/api/echo"
	"github.com/darasa-app/darasa/core"
	"github.com/darasa-app/darasa/core/assessment"
	"github.com/darasa-app/darasa/core/invite"
	"github.com/darasa-app/darasa/core/student"
	"github.com/darasa-app/darasa/core/user"
	emailsvc "github.com/darasa-app/darasa/services/email"
	logsvc "github.com/darasa-app/darasa/services/logger"
	"github.com/darasa-app/darasa/storage/database"
	sqlxrepos "github.com/darasa-app/darasa/storage/database/sqlx"
)

func main() {
	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(std, core.Conf)
	logger.Enable(!core.Conf.Debug)

	// set up DB
	db, err := database.Open(core.Conf)
	errAndDie(logger, err)
	defer db.Close()

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}

	transactor := database.NewTransactor(db)
	usrRepo := sqlxrepos.NewUserRepository(db)
	studentRepo := sqlxrepos.NewStudentRepository(db)

	usrSvc := user.NewService(usrRepo)
	studentSvc := student.NewService(transactor, studentRepo, usrRepo)
	assessmentSvc := assessment.NewService(transactor, sqlxrepos.NewAssessmentRepository(db), studentRepo)
	inviteSvc := invite.NewService(transactor, sqlxrepos.NewInvitationRepository(db), usrRepo, studentRepo, mailSvc, logger)

	// start API server
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	app := echoapi.NewServer(
		&echoapi.Options{
			Address:       core.Conf.Server.Address(),
			Logger:        logger,
			UserSvc:       usrSvc,
			StudentSvc:    studentSvc,
			AssessmentSvc: assessmentSvc,
			InviteSvc:     inviteSvc,
			Shutdown:      func() { shutdown <- syscall.SIGTERM },
		},
	)
	go app.Start()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = app.Stop(ctx); err != nil {
		logger.Error("stopping server", err)
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
