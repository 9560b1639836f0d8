package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/internal/repository"
)

// memDB is an in-memory store shared by the repository fakes below.
type memDB struct {
	mu           sync.Mutex
	users        map[string]*models.User
	students     map[string]*models.StudentProfile
	tutors       map[string]*models.TutorProfile
	courses      map[string]*models.Course
	courseTutors map[string][]string
	courseTags   map[string][]string
	categories   map[string]*models.Category
	tags         map[string]*models.Tag
	schedules    map[string]*models.Schedule
	edges        []models.Prerequisite
	enrollments  map[string]*models.Enrollment
	audits       []*models.AuditLog
	auditErr     error
	graphLocks   int
}

func newMemDB() *memDB {
	return &memDB{
		users:        map[string]*models.User{},
		students:     map[string]*models.StudentProfile{},
		tutors:       map[string]*models.TutorProfile{},
		courses:      map[string]*models.Course{},
		courseTutors: map[string][]string{},
		courseTags:   map[string][]string{},
		categories:   map[string]*models.Category{},
		tags:         map[string]*models.Tag{},
		schedules:    map[string]*models.Schedule{},
		enrollments:  map[string]*models.Enrollment{},
	}
}

func enrollmentKey(courseID, studentID string) string {
	return courseID + "|" + studentID
}

func (db *memDB) auditActions() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	actions := make([]string, 0, len(db.audits))
	for _, a := range db.audits {
		actions = append(actions, a.Action)
	}
	return actions
}

// fakeTx serialises units of work, standing in for row locks.
type fakeTx struct {
	mu  sync.Mutex
	err error
}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type fakeUsers struct{ db *memDB }

func (f *fakeUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	user, ok := f.db.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUsers) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.auditErr != nil {
		return f.db.auditErr
	}
	f.db.audits = append(f.db.audits, log)
	return nil
}

type fakeProfiles struct{ db *memDB }

func (f *fakeProfiles) FindStudentByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.StudentProfile, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	student, ok := f.db.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *student
	return &copied, nil
}

func (f *fakeProfiles) FindStudentByUserID(ctx context.Context, exec sqlx.ExtContext, userID string) (*models.StudentProfile, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, student := range f.db.students {
		if student.UserID == userID {
			copied := *student
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeProfiles) FindTutorByUserID(ctx context.Context, exec sqlx.ExtContext, userID string) (*models.TutorProfile, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, tutor := range f.db.tutors {
		if tutor.UserID == userID {
			copied := *tutor
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

type fakeCatalog struct{ db *memDB }

func (f *fakeCatalog) FindCategoryByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Category, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	category, ok := f.db.categories[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *category
	return &copied, nil
}

func (f *fakeCatalog) FindTagsByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Tag, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var tags []models.Tag
	for _, id := range ids {
		if tag, ok := f.db.tags[id]; ok {
			tags = append(tags, *tag)
		}
	}
	return tags, nil
}

type fakeSchedules struct{ db *memDB }

func (f *fakeSchedules) Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	schedule.ID = uuid.NewString()
	copied := *schedule
	f.db.schedules[schedule.ID] = &copied
	return nil
}

func (f *fakeSchedules) Replace(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.schedules[schedule.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *schedule
	f.db.schedules[schedule.ID] = &copied
	return nil
}

func (f *fakeSchedules) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	schedule, ok := f.db.schedules[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *schedule
	return &copied, nil
}

type fakePrerequisites struct{ db *memDB }

func (f *fakePrerequisites) LockGraph(ctx context.Context, exec sqlx.ExtContext) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.graphLocks++
	return nil
}

func (f *fakePrerequisites) ListEdges(ctx context.Context, exec sqlx.ExtContext) ([]models.Prerequisite, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return append([]models.Prerequisite(nil), f.db.edges...), nil
}

func (f *fakePrerequisites) ListPrerequisiteIDs(ctx context.Context, exec sqlx.ExtContext, targetCourseID string) ([]string, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var ids []string
	for _, edge := range f.db.edges {
		if edge.TargetCourseID == targetCourseID {
			ids = append(ids, edge.PrerequisiteCourseID)
		}
	}
	return ids, nil
}

func (f *fakePrerequisites) Add(ctx context.Context, exec sqlx.ExtContext, edge models.Prerequisite) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.edges = append(f.db.edges, edge)
	return nil
}

func (f *fakePrerequisites) DeleteByTarget(ctx context.Context, exec sqlx.ExtContext, targetCourseID string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	kept := f.db.edges[:0]
	for _, edge := range f.db.edges {
		if edge.TargetCourseID != targetCourseID {
			kept = append(kept, edge)
		}
	}
	f.db.edges = kept
	return nil
}

type fakeCourses struct{ db *memDB }

func (f *fakeCourses) Create(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, existing := range f.db.courses {
		if existing.Title == course.Title {
			return &pq.Error{Code: "23505", Constraint: repository.CourseTitleConstraint}
		}
	}
	course.ID = uuid.NewString()
	course.CreatedAt = time.Now().UTC()
	course.UpdatedAt = course.CreatedAt
	copied := *course
	f.db.courses[course.ID] = &copied
	return nil
}

func (f *fakeCourses) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	course, ok := f.db.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *course
	return &copied, nil
}

func (f *fakeCourses) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error) {
	return f.FindByID(ctx, exec, id)
}

func (f *fakeCourses) Update(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for id, existing := range f.db.courses {
		if id != course.ID && existing.Title == course.Title {
			return &pq.Error{Code: "23505", Constraint: repository.CourseTitleConstraint}
		}
	}
	copied := *course
	f.db.courses[course.ID] = &copied
	return nil
}

func (f *fakeCourses) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.CourseStatus) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	course, ok := f.db.courses[id]
	if !ok {
		return sql.ErrNoRows
	}
	course.Status = status
	return nil
}

func (f *fakeCourses) FindRefs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.CourseRef, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var refs []models.CourseRef
	for _, id := range ids {
		if course, ok := f.db.courses[id]; ok {
			refs = append(refs, models.CourseRef{ID: course.ID, Title: course.Title})
		}
	}
	return refs, nil
}

func (f *fakeCourses) ListTutors(ctx context.Context, exec sqlx.ExtContext, courseID string) ([]models.TutorProfile, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var tutors []models.TutorProfile
	for _, id := range f.db.courseTutors[courseID] {
		if tutor, ok := f.db.tutors[id]; ok {
			tutors = append(tutors, *tutor)
		}
	}
	return tutors, nil
}

func (f *fakeCourses) AddTutor(ctx context.Context, exec sqlx.ExtContext, courseID, tutorProfileID string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, id := range f.db.courseTutors[courseID] {
		if id == tutorProfileID {
			return &pq.Error{Code: "23505", Constraint: "course_tutors_pkey"}
		}
	}
	f.db.courseTutors[courseID] = append(f.db.courseTutors[courseID], tutorProfileID)
	return nil
}

func (f *fakeCourses) RemoveTutor(ctx context.Context, exec sqlx.ExtContext, courseID, tutorProfileID string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var kept []string
	for _, id := range f.db.courseTutors[courseID] {
		if id != tutorProfileID {
			kept = append(kept, id)
		}
	}
	f.db.courseTutors[courseID] = kept
	return nil
}

func (f *fakeCourses) ListTags(ctx context.Context, exec sqlx.ExtContext, courseID string) ([]models.Tag, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var tags []models.Tag
	for _, id := range f.db.courseTags[courseID] {
		if tag, ok := f.db.tags[id]; ok {
			tags = append(tags, *tag)
		}
	}
	return tags, nil
}

func (f *fakeCourses) ReplaceTags(ctx context.Context, exec sqlx.ExtContext, courseID string, tagIDs []string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.courseTags[courseID] = append([]string(nil), tagIDs...)
	return nil
}

func (f *fakeCourses) ListPrerequisites(ctx context.Context, exec sqlx.ExtContext, courseID string) ([]models.CourseRef, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var refs []models.CourseRef
	for _, edge := range f.db.edges {
		if edge.TargetCourseID != courseID {
			continue
		}
		if course, ok := f.db.courses[edge.PrerequisiteCourseID]; ok {
			refs = append(refs, models.CourseRef{ID: course.ID, Title: course.Title})
		}
	}
	return refs, nil
}

func (f *fakeCourses) List(ctx context.Context, filter models.CourseFilter, countStatuses []models.EnrollmentStatus) ([]models.CourseSummary, int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var items []models.CourseSummary
	for _, course := range f.db.courses {
		if filter.Status != "" && course.Status != filter.Status {
			continue
		}
		if filter.Title != "" && !strings.Contains(strings.ToLower(course.Title), strings.ToLower(filter.Title)) {
			continue
		}
		items = append(items, models.CourseSummary{Course: *course})
	}
	return items, len(items), nil
}

type fakeEnrollments struct {
	db        *memDB
	createErr error
}

func (f *fakeEnrollments) Find(ctx context.Context, exec sqlx.ExtContext, courseID, studentID string) (*models.Enrollment, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	enrollment, ok := f.db.enrollments[enrollmentKey(courseID, studentID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *enrollment
	return &copied, nil
}

func (f *fakeEnrollments) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, courseID, studentID string) (*models.Enrollment, error) {
	return f.Find(ctx, exec, courseID, studentID)
}

func (f *fakeEnrollments) FindDetail(ctx context.Context, exec sqlx.ExtContext, courseID, studentID string) (*models.EnrollmentDetail, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	enrollment, ok := f.db.enrollments[enrollmentKey(courseID, studentID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := f.db.detail(enrollment)
	return &detail, nil
}

func (db *memDB) detail(enrollment *models.Enrollment) models.EnrollmentDetail {
	detail := models.EnrollmentDetail{Enrollment: *enrollment}
	if student, ok := db.students[enrollment.StudentID]; ok {
		detail.StudentName = student.FullName
		detail.StudentEmail = student.Email
	}
	if course, ok := db.courses[enrollment.CourseID]; ok {
		detail.CourseTitle = course.Title
	}
	return detail
}

func (f *fakeEnrollments) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	key := enrollmentKey(enrollment.CourseID, enrollment.StudentID)
	if _, ok := f.db.enrollments[key]; ok {
		return &pq.Error{Code: "23505", Constraint: repository.EnrollmentKeyConstraint}
	}
	copied := *enrollment
	f.db.enrollments[key] = &copied
	return nil
}

func (f *fakeEnrollments) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	key := enrollmentKey(enrollment.CourseID, enrollment.StudentID)
	if _, ok := f.db.enrollments[key]; !ok {
		return sql.ErrNoRows
	}
	copied := *enrollment
	f.db.enrollments[key] = &copied
	return nil
}

func (f *fakeEnrollments) CountByCourse(ctx context.Context, exec sqlx.ExtContext, courseID string, statuses []models.EnrollmentStatus) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	count := 0
	for _, enrollment := range f.db.enrollments {
		if enrollment.CourseID != courseID {
			continue
		}
		if len(statuses) == 0 {
			count++
			continue
		}
		for _, status := range statuses {
			if enrollment.Status == status {
				count++
				break
			}
		}
	}
	return count, nil
}

func (f *fakeEnrollments) CourseIDsWithStatus(ctx context.Context, exec sqlx.ExtContext, studentID string, status models.EnrollmentStatus, courseIDs []string) ([]string, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var ids []string
	for _, courseID := range courseIDs {
		enrollment, ok := f.db.enrollments[enrollmentKey(courseID, studentID)]
		if ok && enrollment.Status == status {
			ids = append(ids, courseID)
		}
	}
	return ids, nil
}

func (f *fakeEnrollments) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var items []models.EnrollmentDetail
	for _, enrollment := range f.db.enrollments {
		if filter.CourseID != "" && enrollment.CourseID != filter.CourseID {
			continue
		}
		if filter.StudentID != "" && enrollment.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != "" && enrollment.Status != filter.Status {
			continue
		}
		items = append(items, f.db.detail(enrollment))
	}
	return items, len(items), nil
}

func (f *fakeEnrollments) ListAllByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	items, _, err := f.List(ctx, models.EnrollmentFilter{CourseID: courseID})
	return items, err
}

// workflowFixture wires both workflow services over one memDB.
type workflowFixture struct {
	db          *memDB
	tx          *fakeTx
	enrollStore *fakeEnrollments
	cache       *memoryCache
	metrics     *MetricsService
	guard       *DateGuard
	courses     *CourseService
	enrollments *EnrollmentService
}

// fixtureToday is the calendar date the fixture's guard reports.
var fixtureToday = time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	db := newMemDB()
	tx := &fakeTx{}
	metrics := NewMetricsService()
	memCache := newMemoryCache()
	cache := NewCacheService(memCache, metrics, time.Minute, nil, true)
	guard, err := NewDateGuard("UTC")
	if err != nil {
		t.Fatalf("new date guard: %v", err)
	}
	guard.now = func() time.Time { return fixtureToday.Add(10 * time.Hour) }

	courses := &fakeCourses{db: db}
	prerequisites := &fakePrerequisites{db: db}
	schedules := &fakeSchedules{db: db}
	profiles := &fakeProfiles{db: db}
	users := &fakeUsers{db: db}
	enrollStore := &fakeEnrollments{db: db}

	f := &workflowFixture{db: db, tx: tx, enrollStore: enrollStore, cache: memCache, metrics: metrics, guard: guard}
	f.courses = NewCourseService(CourseServiceParams{
		Tx:            tx,
		Courses:       courses,
		Prerequisites: prerequisites,
		Schedules:     schedules,
		Catalog:       &fakeCatalog{db: db},
		Tutors:        profiles,
		Enrollments:   enrollStore,
		Audit:         users,
		Cache:         cache,
		Metrics:       metrics,
	})
	f.enrollments = NewEnrollmentService(EnrollmentServiceParams{
		Tx:            tx,
		Enrollments:   enrollStore,
		Courses:       courses,
		Schedules:     schedules,
		Prerequisites: prerequisites,
		Profiles:      profiles,
		Users:         users,
		Audit:         users,
		Guard:         guard,
		Cache:         cache,
		Metrics:       metrics,
	})
	return f
}

func (f *workflowFixture) addUser(role models.UserRole) *models.User {
	user := &models.User{ID: uuid.NewString(), Email: strings.ToLower(string(role)) + "@example.com", Role: role, Active: true}
	f.db.mu.Lock()
	f.db.users[user.ID] = user
	f.db.mu.Unlock()
	return user
}

func (f *workflowFixture) addStudent(name string) (*models.User, *models.StudentProfile) {
	user := f.addUser(models.RoleStudent)
	profile := &models.StudentProfile{ID: uuid.NewString(), UserID: user.ID, FullName: name, Email: strings.ToLower(name) + "@example.com"}
	f.db.mu.Lock()
	f.db.students[profile.ID] = profile
	f.db.mu.Unlock()
	return user, profile
}

func (f *workflowFixture) addTutor(name string) (*models.User, *models.TutorProfile) {
	user := f.addUser(models.RoleTutor)
	profile := &models.TutorProfile{ID: uuid.NewString(), UserID: user.ID, FullName: name}
	f.db.mu.Lock()
	f.db.tutors[profile.ID] = profile
	f.db.mu.Unlock()
	return user, profile
}

func (f *workflowFixture) addCategory(name string) string {
	category := &models.Category{ID: uuid.NewString(), Name: name}
	f.db.mu.Lock()
	f.db.categories[category.ID] = category
	f.db.mu.Unlock()
	return category.ID
}

func (f *workflowFixture) addTag(name string) string {
	tag := &models.Tag{ID: uuid.NewString(), Name: name}
	f.db.mu.Lock()
	f.db.tags[tag.ID] = tag
	f.db.mu.Unlock()
	return tag.ID
}

type courseSeed struct {
	title    string
	status   models.CourseStatus
	capacity *int
	endDate  time.Time
	tutors   []*models.TutorProfile
}

// seedCourse stores a course directly, bypassing the catalog workflow.
func (f *workflowFixture) seedCourse(seed courseSeed) string {
	if seed.title == "" {
		seed.title = "Course " + uuid.NewString()[:8]
	}
	if seed.status == "" {
		seed.status = models.CourseStatusPublished
	}
	if seed.endDate.IsZero() {
		seed.endDate = fixtureToday.AddDate(0, 1, 0)
	}
	schedule := &models.Schedule{ID: uuid.NewString(), StartDate: seed.endDate.AddDate(0, -2, 0), EndDate: seed.endDate}
	course := &models.Course{
		ID:          uuid.NewString(),
		Title:       seed.title,
		MaxCapacity: seed.capacity,
		Status:      seed.status,
		CategoryID:  f.addCategory("General"),
		ScheduleID:  schedule.ID,
	}
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.schedules[schedule.ID] = schedule
	f.db.courses[course.ID] = course
	for _, tutor := range seed.tutors {
		f.db.courseTutors[course.ID] = append(f.db.courseTutors[course.ID], tutor.ID)
	}
	return course.ID
}

func (f *workflowFixture) seedEnrollment(courseID, studentID string, status models.EnrollmentStatus) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.enrollments[enrollmentKey(courseID, studentID)] = &models.Enrollment{
		CourseID:   courseID,
		StudentID:  studentID,
		Status:     status,
		EnrolledAt: fixtureToday.AddDate(0, -1, 0),
	}
}

func (f *workflowFixture) enrollmentStatus(courseID, studentID string) models.EnrollmentStatus {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if enrollment, ok := f.db.enrollments[enrollmentKey(courseID, studentID)]; ok {
		return enrollment.Status
	}
	return ""
}

func (f *workflowFixture) addEdge(target, prerequisite string) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.edges = append(f.db.edges, models.Prerequisite{TargetCourseID: target, PrerequisiteCourseID: prerequisite})
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

var errBoom = errors.New("boom")
