package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/dto"
	"github.com/noah-isme/lms-api/internal/middleware"
	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/internal/service"
)

type courseServiceMock struct {
	detail    *models.CourseDetail
	items     []models.CourseSummary
	hit       bool
	err       error
	lastActor models.Actor
	lastUser  string
	lastID    string
	lastTutor string
	lastQuery dto.CourseQuery
	lastReq   interface{}
	calls     []string
}

func (m *courseServiceMock) record(name string) { m.calls = append(m.calls, name) }

func (m *courseServiceMock) Create(ctx context.Context, tutorUserID string, req dto.CreateCourseRequest) (*models.CourseDetail, error) {
	m.record("create")
	m.lastUser, m.lastReq = tutorUserID, req
	return m.detail, m.err
}

func (m *courseServiceMock) Update(ctx context.Context, tutorUserID, courseID string, req dto.UpdateCourseRequest) (*models.CourseDetail, error) {
	m.record("update")
	m.lastUser, m.lastID, m.lastReq = tutorUserID, courseID, req
	return m.detail, m.err
}

func (m *courseServiceMock) Publish(ctx context.Context, actor models.Actor, courseID string) (*models.CourseDetail, error) {
	m.record("publish")
	m.lastActor, m.lastID = actor, courseID
	return m.detail, m.err
}

func (m *courseServiceMock) Archive(ctx context.Context, actor models.Actor, courseID string) (*models.CourseDetail, error) {
	m.record("archive")
	m.lastActor, m.lastID = actor, courseID
	return m.detail, m.err
}

func (m *courseServiceMock) AssignTutor(ctx context.Context, requesterUserID, courseID, tutorUserID string) (*models.CourseDetail, error) {
	m.record("assign")
	m.lastUser, m.lastID, m.lastTutor = requesterUserID, courseID, tutorUserID
	return m.detail, m.err
}

func (m *courseServiceMock) UnassignTutor(ctx context.Context, requesterUserID, courseID, tutorUserID string) (*models.CourseDetail, error) {
	m.record("unassign")
	m.lastUser, m.lastID, m.lastTutor = requesterUserID, courseID, tutorUserID
	return m.detail, m.err
}

func (m *courseServiceMock) Get(ctx context.Context, actor models.Actor, courseID string) (*models.CourseDetail, bool, error) {
	m.record("get")
	m.lastActor, m.lastID = actor, courseID
	return m.detail, m.hit, m.err
}

func (m *courseServiceMock) List(ctx context.Context, actor models.Actor, query dto.CourseQuery) ([]models.CourseSummary, *models.Pagination, bool, error) {
	m.record("list")
	m.lastActor, m.lastQuery = actor, query
	return m.items, &models.Pagination{Limit: 20, TotalCount: len(m.items)}, m.hit, m.err
}

type enrollmentServiceMock struct {
	enrollment *models.Enrollment
	detail     *models.EnrollmentDetail
	items      []models.EnrollmentDetail
	export     *service.RosterExport
	err        error
	lastActor  models.Actor
	lastUser   string
	lastCourse string
	lastStud   string
	lastStatus models.EnrollmentStatus
	lastFilter models.EnrollmentFilter
	lastFormat string
	calls      []string
}

func (m *enrollmentServiceMock) record(name string) { m.calls = append(m.calls, name) }

func (m *enrollmentServiceMock) Enroll(ctx context.Context, studentUserID, courseID string) (*models.Enrollment, error) {
	m.record("enroll")
	m.lastUser, m.lastCourse = studentUserID, courseID
	return m.enrollment, m.err
}

func (m *enrollmentServiceMock) GetEnrollment(ctx context.Context, actor models.Actor, courseID, studentProfileID string) (*models.EnrollmentDetail, error) {
	m.record("get")
	m.lastActor, m.lastCourse, m.lastStud = actor, courseID, studentProfileID
	return m.detail, m.err
}

func (m *enrollmentServiceMock) UpdateStatus(ctx context.Context, actor models.Actor, courseID, studentProfileID string, status models.EnrollmentStatus) (*models.Enrollment, error) {
	m.record("update")
	m.lastActor, m.lastCourse, m.lastStud, m.lastStatus = actor, courseID, studentProfileID, status
	return m.enrollment, m.err
}

func (m *enrollmentServiceMock) ListByCourse(ctx context.Context, actor models.Actor, courseID string, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	m.record("listByCourse")
	m.lastActor, m.lastCourse, m.lastFilter = actor, courseID, filter
	return m.items, &models.Pagination{Limit: 20, TotalCount: len(m.items)}, m.err
}

func (m *enrollmentServiceMock) ListMine(ctx context.Context, studentUserID string, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	m.record("listMine")
	m.lastUser, m.lastFilter = studentUserID, filter
	return m.items, &models.Pagination{Limit: 20, TotalCount: len(m.items)}, m.err
}

func (m *enrollmentServiceMock) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	m.record("list")
	m.lastFilter = filter
	return m.items, &models.Pagination{Limit: 20, TotalCount: len(m.items)}, m.err
}

func (m *enrollmentServiceMock) ExportRoster(ctx context.Context, actor models.Actor, courseID, format string) (*service.RosterExport, error) {
	m.record("export")
	m.lastActor, m.lastCourse, m.lastFormat = actor, courseID, format
	return m.export, m.err
}

// newTestContext builds a gin context carrying claims for the given role.
func newTestContext(t *testing.T, method, target, body string, role models.UserRole, params gin.Params) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	c.Params = params
	if role != "" {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: role})
	}
	return c, w
}

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
	Error      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}
