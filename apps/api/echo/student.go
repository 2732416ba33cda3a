package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasa-app/darasa/core/student"
	"github.com/darasa-app/darasa/core/user"
)

type studentApi struct {
	svc    *student.Service
	usrSvc *user.Service
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := studentApi{
		svc:    opts.StudentSvc,
		usrSvc: opts.UserSvc,
	}

	staff := roleMiddleware(user.RoleAdmin, user.RoleTeacher)

	// batches
	bg := g.Group("/batches", jwt)
	bg.GET("", api.queryBatches)
	bg.POST("", api.createBatch, staff)
	bg.GET("/:id", api.retrieveBatch)
	bg.PUT("/:id", api.updateBatch, staff)
	bg.DELETE("/:id", api.destroyBatch, roleMiddleware(user.RoleAdmin))
	bg.GET("/:id/attendance-report", api.attendanceReport, staff)

	// students
	sg := g.Group("/students", jwt)
	sg.GET("", api.query, staff)
	sg.POST("", api.create, staff)
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update, staff)
	sg.DELETE("/:id", api.destroy, roleMiddleware(user.RoleAdmin))
	sg.GET("/:id/attendance", api.studentAttendance)
	sg.GET("/:id/attendance/trend", api.attendanceTrend)

	// attendance
	ag := g.Group("/attendance", jwt, staff)
	ag.POST("", api.markAttendance)
	ag.POST("/bulk", api.bulkMarkAttendance)
	ag.GET("", api.queryAttendance)
}

// Batch handlers

func (api *studentApi) createBatch(ctx echo.Context) error {
	var data student.NewBatch
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBatch")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	b, err := api.svc.CreateBatch(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating batch")
	}
	return ctx.JSON(http.StatusCreated, b)
}

func (api *studentApi) queryBatches(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	// students only see the batch they belong to
	if !claims.IsAdmin && !claims.IsTeacher {
		prof, err := api.svc.GetByUserID(ctx.Request().Context(), claims.Subject)
		if err != nil && errors.Cause(err) != student.ErrNotFound {
			return errors.Wrap(err, "getting student profile")
		}
		if err != nil || prof.BatchID == "" {
			return ctx.JSON(http.StatusOK, []student.Batch{})
		}
		b, err := api.svc.GetBatch(ctx.Request().Context(), prof.BatchID)
		if err != nil {
			return errors.Wrap(err, "getting batch")
		}
		return ctx.JSON(http.StatusOK, []student.Batch{b})
	}

	batches, err := api.svc.QueryBatches(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying batches")
	}
	if batches == nil {
		batches = []student.Batch{}
	}
	return ctx.JSON(http.StatusOK, batches)
}

func (api *studentApi) retrieveBatch(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	b, err := api.svc.GetBatch(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting batch")
	}
	// another student's batch does not exist for the caller
	if !claims.IsAdmin && !claims.IsTeacher {
		prof, err := api.svc.GetByUserID(ctx.Request().Context(), claims.Subject)
		if err != nil || prof.BatchID != b.ID {
			return errHttpNotFound
		}
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *studentApi) updateBatch(ctx echo.Context) error {
	var data student.UpdateBatch
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateBatch")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	b, err := api.svc.UpdateBatch(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating batch")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *studentApi) destroyBatch(ctx echo.Context) error {
	if err := api.svc.DeleteBatch(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting batch")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) attendanceReport(ctx echo.Context) error {
	year, _ := strconv.Atoi(ctx.QueryParam("year"))
	month, _ := strconv.Atoi(ctx.QueryParam("month"))
	if year == 0 || month < 1 || month > 12 {
		return echo.NewHTTPError(http.StatusBadRequest, "year and month query params are required")
	}

	report, err := api.svc.MonthlyReport(ctx.Request().Context(), ctx.Param("id"), year, month)
	if err != nil {
		return errors.Wrap(err, "building attendance report")
	}
	return ctx.JSON(http.StatusOK, report)
}

// Student handlers

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	prof, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, prof)
}

func (api *studentApi) query(ctx echo.Context) error {
	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.StudentProfile{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)
	filter.Ordering = ordering.Orderings

	profs, err := api.svc.Query(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if profs == nil {
		profs = []student.StudentProfile{}
	}

	pagination := new(Pagination)
	pagination.Bind(ctx)
	start, end := pagination.Slice(len(profs))
	return ctx.JSON(http.StatusOK, PaginatedResponse{
		Count:    len(profs),
		Page:     pagination.Page,
		PageSize: pagination.PageSize,
		Results:  profs[start:end],
	})
}

// retrieve serves staff for any student, and a student for themselves.
func (api *studentApi) retrieve(ctx echo.Context) error {
	prof, err := api.getAccessibleStudent(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, prof)
}

func (api *studentApi) update(ctx echo.Context) error {
	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	prof, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, prof)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) studentAttendance(ctx echo.Context) error {
	prof, err := api.getAccessibleStudent(ctx)
	if err != nil {
		return err
	}

	filter := new(student.AttendanceFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Attendance{})
	}
	filter.StudentID = prof.ID
	filter.BatchID = ""

	records, err := api.svc.QueryAttendance(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	if records == nil {
		records = []student.Attendance{}
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *studentApi) attendanceTrend(ctx echo.Context) error {
	prof, err := api.getAccessibleStudent(ctx)
	if err != nil {
		return err
	}

	trend, err := api.svc.AttendanceTrend(ctx.Request().Context(), prof.ID)
	if err != nil {
		return errors.Wrap(err, "computing attendance trend")
	}
	return ctx.JSON(http.StatusOK, trend)
}

// Attendance handlers

func (api *studentApi) markAttendance(ctx echo.Context) error {
	var data student.NewAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAttendance")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	att, created, err := api.svc.MarkAttendance(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return ctx.JSON(status, att)
}

func (api *studentApi) bulkMarkAttendance(ctx echo.Context) error {
	var data student.BulkAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkAttendance")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	results, err := api.svc.BulkMarkAttendance(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "bulk marking attendance")
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *studentApi) queryAttendance(ctx echo.Context) error {
	filter := new(student.AttendanceFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Attendance{})
	}

	records, err := api.svc.QueryAttendance(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	if records == nil {
		records = []student.Attendance{}
	}
	return ctx.JSON(http.StatusOK, records)
}

// getAccessibleStudent resolves :id for staff, or for the student when it
// is their own profile; anyone else gets a 404.
func (api *studentApi) getAccessibleStudent(ctx echo.Context) (student.StudentProfile, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return student.StudentProfile{}, errors.Wrap(err, "getting context claims")
	}

	prof, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return student.StudentProfile{}, errors.Wrap(err, "getting student")
	}
	if claims.IsAdmin || claims.IsTeacher || prof.UserID == claims.Subject {
		return prof, nil
	}
	return student.StudentProfile{}, errHttpNotFound
}
