package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/masomo-disguise/apps/api/echo"
	"github.com/trezcool/masomo-disguise/core"
	"github.com/trezcool/masomo-disguise/core/disguise"
	"github.com/trezcool/masomo-disguise/core/user"
	logsvc "github.com/trezcool/masomo-disguise/services/logger"
	"github.com/trezcool/masomo-disguise/storage/database"
	sqlxrepos "github.com/trezcool/masomo-disguise/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type disguiseServiceParams struct {
	dig.In
	Repo       disguise.Repository
	NameSets   disguise.NameSetRepository
	Reveals    disguise.RevealStore
	Users      disguise.UserGetter
	Plugins    *disguise.Registry
	Validate   *validator.Validate
	Translator ut.Translator
	Logger     core.Logger
}

type serverParams struct {
	dig.In
	Conf        *core.Config
	Logger      core.Logger
	UserSvc     *user.Service
	DisguiseSvc *disguise.Service
	Validate    *validator.Validate
	Translator  ut.Translator
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(context.Background(), db, conf); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	disguise.InitValidators(validate, translator)
	return validate
}

func newDisguiseStores(conf *core.Config, db *sqlx.DB) (disguise.Repository, disguise.RevealStore) {
	repo := sqlxrepos.NewDisguiseRepository(db)
	return repo, disguise.NewRevealStore(conf, repo)
}

func newUserGetter(svc *user.Service) disguise.UserGetter {
	return svc
}

func newRegistry(conf *core.Config, validate *validator.Validate, sets disguise.NameSetRepository) *disguise.Registry {
	return disguise.NewDefaultRegistry(validate, sets, conf.Disguise.DefaultAlias)
}

func newDisguiseService(p disguiseServiceParams) *disguise.Service {
	return disguise.NewService(disguise.ServiceDeps{
		Repo:       p.Repo,
		NameSets:   p.NameSets,
		Reveals:    p.Reveals,
		Users:      p.Users,
		Plugins:    p.Plugins,
		Validate:   p.Validate,
		Translator: p.Translator,
		Logger:     p.Logger,
	})
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:        p.Conf,
		Logger:      p.Logger,
		UserSvc:     p.UserSvc,
		DisguiseSvc: p.DisguiseSvc,
		Validate:    p.Validate,
		Translator:  p.Translator,
	})
}

type NewConfigFunc func() *core.Config

// New returns a new dependency injection dig.Container.
// newConf defaults to core.NewConfig.
func New(newConf ...NewConfigFunc) *dig.Container {
	c := dig.New()

	confFunc := NewConfigFunc(core.NewConfig)
	if len(newConf) > 0 {
		confFunc = newConf[0]
	}

	must(c.Provide(func() *core.Config { return confFunc() }))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(sqlxrepos.NewUserRepository))
	must(c.Provide(newDisguiseStores))
	must(c.Provide(sqlxrepos.NewNameSetRepository))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(user.NewService))
	must(c.Provide(newUserGetter))
	must(c.Provide(newRegistry))
	must(c.Provide(newDisguiseService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
