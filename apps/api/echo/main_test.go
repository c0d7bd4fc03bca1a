package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/masomo-disguise/apps/api/echo"
	"github.com/trezcool/masomo-disguise/core"
	"github.com/trezcool/masomo-disguise/core/disguise"
	"github.com/trezcool/masomo-disguise/core/user"
	logsvc "github.com/trezcool/masomo-disguise/services/logger"
	sqlxrepos "github.com/trezcool/masomo-disguise/storage/database/sqlx"
	"github.com/trezcool/masomo-disguise/testutil"
)

const testPwd = "Sup3r$ecretP@ss"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type fixture struct {
	conf     *core.Config
	db       *sqlx.DB
	app      *echoapi.Server
	usrRepo  user.Repository
	ctxRepo  disguise.Repository
	sets     disguise.NameSetRepository
	svc      *disguise.Service
	admin    user.User
	teacher  user.User
	student  user.User
	adminTkn string
}

// setup builds the fixture; wrapSets may decorate the name set repository used by the disguise service.
func setup(t *testing.T, wrapSets ...func(disguise.NameSetRepository) disguise.NameSetRepository) *fixture {
	t.Helper()

	conf := core.NewTestConfig()
	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	disguise.InitValidators(validate, translator)
	logger := logsvc.NewTestLogger()

	// set up DB & repos
	db := testutil.OpenDB(t)
	f := &fixture{conf: conf, db: db, usrRepo: sqlxrepos.NewUserRepository(db), sets: sqlxrepos.NewNameSetRepository(db)}
	disguiseRepo := sqlxrepos.NewDisguiseRepository(db)
	f.ctxRepo = disguiseRepo
	for _, wrap := range wrapSets {
		f.sets = wrap(f.sets)
	}

	// set up services
	usrSvc := user.NewService(f.usrRepo)
	f.svc = disguise.NewService(disguise.ServiceDeps{
		Repo:       disguiseRepo,
		NameSets:   f.sets,
		Reveals:    disguise.NewRevealStore(conf, disguiseRepo),
		Users:      usrSvc,
		Plugins:    disguise.NewDefaultRegistry(validate, f.sets, conf.Disguise.DefaultAlias),
		Validate:   validate,
		Translator: translator,
		Logger:     logger,
	})

	// set up server
	f.app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:        conf,
		Logger:      logger,
		UserSvc:     usrSvc,
		DisguiseSvc: f.svc,
		Validate:    validate,
		Translator:  translator,
	})
	t.Cleanup(func() { _ = f.app.Close() })

	f.admin = testutil.CreateUser(t, f.usrRepo, "Admin", "admin", "admin@test.cd", testPwd, []string{user.RoleAdmin}, true)
	f.teacher = testutil.CreateUser(t, f.usrRepo, "Teacher", "teacher", "teacher@test.cd", testPwd, []string{user.RoleTeacher}, true)
	f.student = testutil.CreateUser(t, f.usrRepo, "Hero Student", "hero", "hero@test.cd", testPwd, []string{user.RoleStudent}, true)
	f.adminTkn = getToken(t, conf, f.admin)
	return f
}

func (f *fixture) serve(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	f.app.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createContext(t *testing.T, name string) disguise.Context {
	t.Helper()
	return testutil.CreateContext(t, f.ctxRepo, disguise.LevelCourse, name)
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	claims := echoapi.GetUserClaims(conf, usr)
	token, err := echoapi.GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarchallObj(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	t.Helper()
	require.NoErrorf(t, json.Unmarshal(rec.Body.Bytes(), obj), "body: %s", rec.Body.String())
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	l1, ok1 := j1.([]interface{})
	l2, ok2 := j2.([]interface{})
	if !ok1 || !ok2 {
		return false, nil
	}
	return assert.ElementsMatch(t, l1, l2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHttpTests(t *testing.T, f *fixture, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := f.serve(method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}
