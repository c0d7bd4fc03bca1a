package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-disguise/core"
	"github.com/trezcool/masomo-disguise/core/disguise"
	"github.com/trezcool/masomo-disguise/core/user"
	logsvc "github.com/trezcool/masomo-disguise/services/logger"
	"github.com/trezcool/masomo-disguise/storage/database"
	sqlxrepos "github.com/trezcool/masomo-disguise/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("setting up database", err)
	}

	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	disguise.InitValidators(validate, translator)

	// set up services
	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo)
	disguiseRepo := sqlxrepos.NewDisguiseRepository(db)
	sets := sqlxrepos.NewNameSetRepository(db)
	disguiseSvc := disguise.NewService(disguise.ServiceDeps{
		Repo:       disguiseRepo,
		NameSets:   sets,
		Reveals:    disguise.NewRevealStore(conf, disguiseRepo),
		Users:      usrSvc,
		Plugins:    disguise.NewDefaultRegistry(validate, sets, conf.Disguise.DefaultAlias),
		Validate:   validate,
		Translator: translator,
		Logger:     logger,
	})

	// start CLI
	cli := commandLine{
		conf:        conf,
		db:          db,
		usrSvc:      usrSvc,
		disguiseSvc: disguiseSvc,
		validate:    validate,
		translator:  translator,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
			log.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
