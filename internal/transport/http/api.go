package http

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/domain"
)

// API exposes the quiz services as JSON over HTTP.
type API struct {
	catalog  *app.Catalog
	students *app.StudentService
	results  *app.ResultService
	admin    *app.AdminService
	ws       *WSHandler
	log      logrus.FieldLogger
}

func NewAPI(catalog *app.Catalog, students *app.StudentService, results *app.ResultService, admin *app.AdminService, log logrus.FieldLogger) *API {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &API{
		catalog:  catalog,
		students: students,
		results:  results,
		admin:    admin,
		ws:       NewWSHandler(results, log),
		log:      log,
	}
}

// Router builds the route table. /api/questions/bulk is registered ahead of
// /api/questions/{id} so it is not captured as an id.
func (a *API) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(Recover(a.log), Logger(a.log))

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.HandleFunc("/ws/results", a.ws.ServeWS).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/login", a.adminLogin).Methods(http.MethodPost)
	api.HandleFunc("/logout", a.adminLogout).Methods(http.MethodPost)
	api.HandleFunc("/student/login", a.studentLogin).Methods(http.MethodPost)
	api.HandleFunc("/student/results", a.studentResults).Methods(http.MethodGet)

	api.HandleFunc("/tests", a.listTests).Methods(http.MethodGet)
	api.HandleFunc("/tests", a.createTest).Methods(http.MethodPost)
	api.HandleFunc("/tests/{id}", a.updateTest).Methods(http.MethodPut)
	api.HandleFunc("/tests/{id}", a.deleteTest).Methods(http.MethodDelete)

	api.HandleFunc("/questions", a.listQuestions).Methods(http.MethodGet)
	api.HandleFunc("/questions", a.createQuestion).Methods(http.MethodPost)
	api.HandleFunc("/questions/bulk", a.replaceQuestions).Methods(http.MethodPut)
	api.HandleFunc("/questions/{id}", a.updateQuestion).Methods(http.MethodPut)
	api.HandleFunc("/questions/{id}", a.deleteQuestion).Methods(http.MethodDelete)

	api.HandleFunc("/settings", a.getSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", a.saveSettings).Methods(http.MethodPost)

	api.HandleFunc("/results", a.listResults).Methods(http.MethodGet)
	api.HandleFunc("/results", a.recordResult).Methods(http.MethodPost)
	api.HandleFunc("/results", a.deleteResult).Methods(http.MethodDelete)
	api.HandleFunc("/results/clear", a.clearResults).Methods(http.MethodPost)

	api.HandleFunc("/students", a.listStudents).Methods(http.MethodGet)
	api.HandleFunc("/students", a.createStudent).Methods(http.MethodPost)
	api.HandleFunc("/students/{rollno}", a.deleteStudent).Methods(http.MethodDelete)

	api.HandleFunc("/generate", a.generate).Methods(http.MethodPost)
	return router
}

type adminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type adminLoginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token"`
}

func (a *API) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token, err := a.admin.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminLoginResponse{Success: true, Message: "Login successful", Token: token})
}

func (a *API) adminLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.admin.Logout(r.Context(), bearerToken(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

type studentLoginRequest struct {
	RollNo   string `json:"rollno" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type studentLoginResponse struct {
	Success bool                  `json:"success"`
	Student domain.StudentProfile `json:"student"`
}

func (a *API) studentLogin(w http.ResponseWriter, r *http.Request) {
	var req studentLoginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	profile, err := a.students.Login(r.Context(), req.RollNo, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, studentLoginResponse{Success: true, Student: profile})
}

func (a *API) listTests(w http.ResponseWriter, r *http.Request) {
	tests, err := a.catalog.ListTests(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if tests == nil {
		tests = []domain.Test{}
	}
	writeJSON(w, http.StatusOK, tests)
}

type testRequest struct {
	Name            string `json:"name" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
	IsActive        *bool  `json:"is_active"`
}

func (t testRequest) toDomain() domain.Test {
	test := domain.Test{Name: t.Name, DurationMinutes: t.DurationMinutes, IsActive: true}
	if t.IsActive != nil {
		test.IsActive = *t.IsActive
	}
	return test
}

type testResponse struct {
	Success bool        `json:"success"`
	Test    domain.Test `json:"test"`
}

func (a *API) createTest(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if err := a.admin.Authorize(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	var req testRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	test, err := a.admin.CreateTest(r.Context(), token, req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, testResponse{Success: true, Test: test})
}

func (a *API) updateTest(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if err := a.admin.Authorize(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	var req testRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	test, err := a.admin.UpdateTest(r.Context(), token, mux.Vars(r)["id"], req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, testResponse{Success: true, Test: test})
}

func (a *API) deleteTest(w http.ResponseWriter, r *http.Request) {
	if err := a.admin.DeleteTest(r.Context(), bearerToken(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

func (a *API) listQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := a.catalog.Questions(r.Context(), r.URL.Query().Get("test_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if qs == nil {
		qs = []domain.Question{}
	}
	writeJSON(w, http.StatusOK, qs)
}

type questionRequest struct {
	TestID   string         `json:"test_id"`
	Question string         `json:"question" validate:"required"`
	Options  domain.Options `json:"options" validate:"min=2"`
	Answer   string         `json:"answer" validate:"required"`
}

func (q questionRequest) toDomain() domain.Question {
	return domain.Question{TestID: q.TestID, Text: q.Question, Options: q.Options, Answer: q.Answer}
}

type questionResponse struct {
	Success  bool            `json:"success"`
	Question domain.Question `json:"question"`
}

func (a *API) createQuestion(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if err := a.admin.Authorize(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	var req questionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	q, err := a.admin.CreateQuestion(r.Context(), token, req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, questionResponse{Success: true, Question: q})
}

func (a *API) updateQuestion(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if err := a.admin.Authorize(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	var req questionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	q, err := a.admin.UpdateQuestion(r.Context(), token, mux.Vars(r)["id"], req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, questionResponse{Success: true, Question: q})
}

func (a *API) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := a.admin.DeleteQuestion(r.Context(), bearerToken(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

// bulkQuestionsRequest accepts a bare array of questions or {"questions": [...]}.
type bulkQuestionsRequest struct {
	Questions []questionRequest `json:"questions" validate:"dive"`
}

func (b *bulkQuestionsRequest) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimLeft(data, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(data, &b.Questions)
	}
	type wrapped bulkQuestionsRequest
	return json.Unmarshal(data, (*wrapped)(b))
}

type bulkQuestionsResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

func (a *API) replaceQuestions(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if err := a.admin.Authorize(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	var req bulkQuestionsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	qs := make([]domain.Question, len(req.Questions))
	for i, q := range req.Questions {
		qs[i] = q.toDomain()
	}
	count, err := a.admin.ReplaceQuestions(r.Context(), token, qs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkQuestionsResponse{Success: true, Message: "Questions saved", Count: count})
}

func (a *API) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.catalog.Settings(r.Context(), r.URL.Query().Get("test_id")))
}

type settingsRequest struct {
	Duration int `json:"duration" validate:"required,gt=0"`
}

func (a *API) saveSettings(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if err := a.admin.Authorize(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	var req settingsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.admin.SaveSettings(r.Context(), token, domain.Settings{Duration: req.Duration}); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

type resultsResponse struct {
	Statistics domain.Statistics `json:"statistics"`
	Results    []domain.Result   `json:"results"`
}

func (a *API) listResults(w http.ResponseWriter, r *http.Request) {
	a.writeResults(w, r, domain.ResultFilter{
		TestID:    r.URL.Query().Get("test_id"),
		StudentID: r.URL.Query().Get("rollno"),
	})
}

func (a *API) studentResults(w http.ResponseWriter, r *http.Request) {
	rollNo := r.URL.Query().Get("rollno")
	if rollNo == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Success: false, Message: "missing rollno"})
		return
	}
	a.writeResults(w, r, domain.ResultFilter{StudentID: rollNo})
}

func (a *API) writeResults(w http.ResponseWriter, r *http.Request, filter domain.ResultFilter) {
	results, stats, err := a.results.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []domain.Result{}
	}
	writeJSON(w, http.StatusOK, resultsResponse{Statistics: stats, Results: results})
}

type resultRequest struct {
	Name       string `json:"name"`
	RollNo     string `json:"rollno"`
	TestID     string `json:"test_id"`
	AttemptID  string `json:"attempt_id"`
	Score      int    `json:"score" validate:"gte=0"`
	Total      int    `json:"total" validate:"gte=0"`
	Percentage int    `json:"percentage" validate:"gte=0,lte=100"`
	Date       string `json:"date"`
	Time       string `json:"time"`
}

type resultResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Result  domain.Result `json:"result"`
}

func (a *API) recordResult(w http.ResponseWriter, r *http.Request) {
	var req resultRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := a.results.Record(r.Context(), domain.Result{
		AttemptID:  req.AttemptID,
		StudentID:  req.RollNo,
		Name:       req.Name,
		TestID:     req.TestID,
		Score:      req.Score,
		Total:      req.Total,
		Percentage: req.Percentage,
		Date:       req.Date,
		Time:       req.Time,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Success: true, Message: "Result saved", Result: saved})
}

func (a *API) clearResults(w http.ResponseWriter, r *http.Request) {
	if err := a.admin.ClearResults(r.Context(), bearerToken(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true, Message: "All results cleared"})
}

func (a *API) deleteResult(w http.ResponseWriter, r *http.Request) {
	if err := a.admin.DeleteResult(r.Context(), bearerToken(r), r.URL.Query().Get("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

func (a *API) listStudents(w http.ResponseWriter, r *http.Request) {
	students, err := a.admin.ListStudents(r.Context(), bearerToken(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if students == nil {
		students = []domain.Student{}
	}
	writeJSON(w, http.StatusOK, students)
}

type studentRequest struct {
	RollNo   string `json:"rollno" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (a *API) createStudent(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if err := a.admin.Authorize(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	var req studentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := a.admin.CreateStudent(r.Context(), token, req.RollNo, req.Name, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

func (a *API) deleteStudent(w http.ResponseWriter, r *http.Request) {
	if err := a.admin.DeleteStudent(r.Context(), bearerToken(r), mux.Vars(r)["rollno"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

type generateRequest struct {
	Topic  string `json:"topic"`
	Count  int    `json:"count" validate:"gte=0,lte=50"`
	TestID string `json:"test_id"`
}

type generateResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Questions []domain.Question `json:"questions"`
}

func (a *API) generate(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if err := a.admin.Authorize(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	var req generateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	qs, err := a.admin.Generate(r.Context(), token, req.Topic, req.Count, req.TestID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{Success: true, Message: "Questions generated", Questions: qs})
}
