package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasa-app/darasa/core/assessment"
	"github.com/darasa-app/darasa/core/student"
	"github.com/darasa-app/darasa/core/user"
)

type assessmentApi struct {
	svc        *assessment.Service
	studentSvc *student.Service
	usrSvc     *user.Service
}

func registerAssessmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := assessmentApi{
		svc:        opts.AssessmentSvc,
		studentSvc: opts.StudentSvc,
		usrSvc:     opts.UserSvc,
	}

	staff := roleMiddleware(user.RoleAdmin, user.RoleTeacher)

	ag := g.Group("/assessments", jwt)
	ag.GET("", api.query)
	ag.POST("", api.create, staff)
	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id", api.update, staff)
	ag.DELETE("/:id", api.destroy, roleMiddleware(user.RoleAdmin))
	ag.POST("/:id/submit", api.submit, roleMiddleware(user.RoleStudent))
	ag.GET("/:id/submissions", api.querySubmissions, staff)

	// analytics
	sg := g.Group("/students/:id/scores", jwt)
	sg.GET("", api.scoreHistory)
	sg.GET("/trend", api.scoreTrend)

	bg := g.Group("/batches/:id/analytics", jwt, staff)
	bg.GET("", api.batchAnalytics)
}

// Handlers

func (api *assessmentApi) create(ctx echo.Context) error {
	var data assessment.NewAssessment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssessment")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	a, err := api.svc.Create(ctx.Request().Context(), ctxUsr.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating assessment")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *assessmentApi) query(ctx echo.Context) error {
	scope, err := api.studentScope(ctx)
	if err != nil {
		return err
	}

	filter := new(assessment.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []assessment.Assessment{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)
	filter.Ordering = ordering.Orderings

	var assessments []assessment.Assessment
	// students only see their own batch's assessments; a student with no
	// batch sees nothing
	if scope == nil || scope.BatchID != "" {
		if scope != nil {
			filter.BatchID = scope.BatchID
		}
		if assessments, err = api.svc.Query(ctx.Request().Context(), *filter); err != nil {
			return errors.Wrap(err, "querying assessments")
		}
	}
	if assessments == nil {
		assessments = []assessment.Assessment{}
	}

	pagination := new(Pagination)
	pagination.Bind(ctx)
	start, end := pagination.Slice(len(assessments))

	var results interface{} = assessments[start:end]
	if scope != nil {
		details, err := api.attachSubmissions(ctx, assessments[start:end], scope.ID)
		if err != nil {
			return err
		}
		results = details
	}
	return ctx.JSON(http.StatusOK, PaginatedResponse{
		Count:    len(assessments),
		Page:     pagination.Page,
		PageSize: pagination.PageSize,
		Results:  results,
	})
}

func (api *assessmentApi) retrieve(ctx echo.Context) error {
	scope, err := api.studentScope(ctx)
	if err != nil {
		return err
	}

	a, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting assessment")
	}
	if scope == nil {
		return ctx.JSON(http.StatusOK, a)
	}
	// an assessment outside the student's batch does not exist for them
	if a.BatchID != scope.BatchID {
		return errHttpNotFound
	}

	detail := AssessmentDetail{Assessment: a}
	sub, err := api.svc.GetSubmission(ctx.Request().Context(), a.ID, scope.ID)
	switch errors.Cause(err) {
	case nil:
		detail.IsSubmitted = true
		detail.StudentSubmission = &sub
	case assessment.ErrSubmissionNotFound:
	default:
		return errors.Wrap(err, "getting own submission")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *assessmentApi) update(ctx echo.Context) error {
	var data assessment.UpdateAssessment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAssessment")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	a, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating assessment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assessmentApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting assessment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *assessmentApi) submit(ctx echo.Context) error {
	var data assessment.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	prof, err := api.studentSvc.GetByUserID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "getting student profile")
	}

	sub, err := api.svc.Submit(ctx.Request().Context(), ctx.Param("id"), prof.ID, data)
	if err != nil {
		return errors.Wrap(err, "submitting assessment")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *assessmentApi) querySubmissions(ctx echo.Context) error {
	subs, err := api.svc.QuerySubmissions(ctx.Request().Context(), assessment.SubmissionFilter{AssessmentID: ctx.Param("id")})
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	if subs == nil {
		subs = []assessment.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *assessmentApi) scoreHistory(ctx echo.Context) error {
	prof, err := api.getAccessibleStudent(ctx)
	if err != nil {
		return err
	}

	subs, err := api.svc.ScoreHistory(ctx.Request().Context(), prof.ID)
	if err != nil {
		return errors.Wrap(err, "querying score history")
	}
	average, err := api.svc.AverageScore(ctx.Request().Context(), prof.ID)
	if err != nil {
		return errors.Wrap(err, "computing average score")
	}
	return ctx.JSON(http.StatusOK, ScoreHistoryResponse{
		StudentID:    prof.ID,
		AverageScore: average,
		Submissions:  subs,
	})
}

func (api *assessmentApi) scoreTrend(ctx echo.Context) error {
	prof, err := api.getAccessibleStudent(ctx)
	if err != nil {
		return err
	}

	trend, err := api.svc.ScoreTrend(ctx.Request().Context(), prof.ID)
	if err != nil {
		return errors.Wrap(err, "computing score trend")
	}
	return ctx.JSON(http.StatusOK, trend)
}

// batchAnalytics aggregates a batch's attendance and score figures.
func (api *assessmentApi) batchAnalytics(ctx echo.Context) error {
	c := ctx.Request().Context()
	batchID := ctx.Param("id")

	if _, err := api.studentSvc.GetBatch(c, batchID); err != nil {
		return errors.Wrap(err, "getting batch")
	}

	attendance, err := api.studentSvc.BatchAttendancePercentage(c, batchID)
	if err != nil {
		return errors.Wrap(err, "computing batch attendance")
	}
	averageScore, err := api.svc.BatchAverageScore(c, batchID)
	if err != nil {
		return errors.Wrap(err, "computing batch average score")
	}
	scores, err := api.svc.BatchScores(c, batchID)
	if err != nil {
		return errors.Wrap(err, "computing batch scores")
	}

	limit, _ := strconv.Atoi(ctx.QueryParam("top"))
	if limit < 1 {
		limit = 5
	}
	top, err := api.svc.TopStudents(c, batchID, limit)
	if err != nil {
		return errors.Wrap(err, "computing top students")
	}

	return ctx.JSON(http.StatusOK, BatchAnalyticsResponse{
		BatchID:              batchID,
		AttendancePercentage: attendance,
		AverageScore:         averageScore,
		StudentScores:        scores,
		TopStudents:          top,
	})
}

// studentScope resolves the caller's student profile, nil for staff.
// A student account without a profile gets an empty scope, which matches
// nothing.
func (api *assessmentApi) studentScope(ctx echo.Context) (*student.StudentProfile, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting context claims")
	}
	if claims.IsAdmin || claims.IsTeacher {
		return nil, nil
	}

	prof, err := api.studentSvc.GetByUserID(ctx.Request().Context(), claims.Subject)
	if errors.Cause(err) == student.ErrNotFound {
		return &student.StudentProfile{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "getting student profile")
	}
	return &prof, nil
}

// attachSubmissions wraps assessments with the student's submission status.
func (api *assessmentApi) attachSubmissions(ctx echo.Context, assessments []assessment.Assessment, studentID string) ([]AssessmentDetail, error) {
	subs, err := api.svc.QuerySubmissions(ctx.Request().Context(), assessment.SubmissionFilter{StudentID: studentID})
	if err != nil {
		return nil, errors.Wrap(err, "querying own submissions")
	}
	byAssessment := make(map[string]assessment.Submission, len(subs))
	for _, sub := range subs {
		byAssessment[sub.AssessmentID] = sub
	}

	details := make([]AssessmentDetail, 0, len(assessments))
	for _, a := range assessments {
		detail := AssessmentDetail{Assessment: a}
		if sub, ok := byAssessment[a.ID]; ok {
			sub := sub
			detail.IsSubmitted = true
			detail.StudentSubmission = &sub
		}
		details = append(details, detail)
	}
	return details, nil
}

// getAccessibleStudent resolves :id for staff, or for the student when it
// is their own profile; anyone else gets a 404.
func (api *assessmentApi) getAccessibleStudent(ctx echo.Context) (student.StudentProfile, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return student.StudentProfile{}, errors.Wrap(err, "getting context claims")
	}

	prof, err := api.studentSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return student.StudentProfile{}, errors.Wrap(err, "getting student")
	}
	if claims.IsAdmin || claims.IsTeacher || prof.UserID == claims.Subject {
		return prof, nil
	}
	return student.StudentProfile{}, errHttpNotFound
}

type (
	// AssessmentDetail is the student-facing shape: the assessment plus
	// the caller's own submission status.
	AssessmentDetail struct {
		assessment.Assessment
		IsSubmitted       bool                   `json:"is_submitted"`
		StudentSubmission *assessment.Submission `json:"student_submission,omitempty"`
	}

	ScoreHistoryResponse struct {
		StudentID    string                  `json:"student_id"`
		AverageScore float64                 `json:"average_score"`
		Submissions  []assessment.Submission `json:"submissions"`
	}

	BatchAnalyticsResponse struct {
		BatchID              string                    `json:"batch_id"`
		AttendancePercentage float64                   `json:"attendance_percentage"`
		AverageScore         float64                   `json:"average_score"`
		StudentScores        []assessment.StudentScore `json:"student_scores"`
		TopStudents          []assessment.StudentScore `json:"top_students"`
	}
)
