package tests

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/darasa-app/darasa/apps/api/echo"
	"github.com/darasa-app/darasa/core/assessment"
	"github.com/darasa-app/darasa/core/user"
)

var quizKey = map[string]interface{}{
	"q1": map[string]interface{}{"correctAnswer": "2", "score": 3},
	"q2": map[string]interface{}{"correctAnswers": []string{"a", "b"}, "score": 2},
}

func createQuiz(t *testing.T, token, batchID string) assessment.Assessment {
	t.Helper()
	rec := do(newAuthRequest(http.MethodPost, "/v1/assessments", token, map[string]interface{}{
		"title":      "Algebra Quiz",
		"test_type":  assessment.TypeQuiz,
		"batch_id":   batchID,
		"answer_key": quizKey,
	}))
	checkCode(t, rec, http.StatusCreated)
	var a assessment.Assessment
	decode(t, rec, &a)
	return a
}

func Test_assessmentApi_create(t *testing.T) {
	teacher := createUser(t, "quizteacher", user.RoleTeacher, true)
	studentUsr := createUser(t, "quizpleb", user.RoleStudent, true)
	batch := createBatch(t, "Quiz Batch")

	rec := do(newAuthRequest(http.MethodPost, "/v1/assessments", getToken(t, studentUsr), map[string]interface{}{
		"title": "Nope", "test_type": assessment.TypeQuiz, "batch_id": batch.ID,
	}))
	checkCode(t, rec, http.StatusForbidden)

	teacherToken := getToken(t, teacher)
	a := createQuiz(t, teacherToken, batch.ID)
	assert.Equal(t, float64(5), a.TotalMarks)

	// the answer key never leaves the server
	insider, _ := createStudent(t, "quizinsider", batch.ID)
	rec = do(newAuthRequest(http.MethodGet, "/v1/assessments/"+a.ID, getToken(t, insider)))
	checkCode(t, rec, http.StatusOK)
	if strings.Contains(rec.Body.String(), "answer_key") || strings.Contains(rec.Body.String(), "correctAnswer") {
		t.Errorf("response leaks the answer key: %s", rec.Body.String())
	}

	// a student account without an enrollment sees no assessments at all
	rec = do(newAuthRequest(http.MethodGet, "/v1/assessments/"+a.ID, getToken(t, studentUsr)))
	checkCode(t, rec, http.StatusNotFound)

	rec = do(newAuthRequest(http.MethodPost, "/v1/assessments", teacherToken, map[string]interface{}{
		"title": "Orphan", "test_type": assessment.TypeQuiz, "batch_id": "nope",
	}))
	checkCode(t, rec, http.StatusNotFound)

	rec = do(newAuthRequest(http.MethodPost, "/v1/assessments", teacherToken, map[string]interface{}{
		"title": "Bad Type", "test_type": "pop-quiz", "batch_id": batch.ID,
	}))
	checkCode(t, rec, http.StatusBadRequest)
}

func Test_assessmentApi_submit(t *testing.T) {
	teacher := createUser(t, "subteacher", user.RoleTeacher, true)
	batch := createBatch(t, "Submit Batch")
	otherBatch := createBatch(t, "Other Submit Batch")
	a := createQuiz(t, getToken(t, teacher), batch.ID)

	stud, _ := createStudent(t, "submitter", batch.ID)
	studToken := getToken(t, stud)

	// teachers do not submit
	rec := do(newAuthRequest(http.MethodPost, "/v1/assessments/"+a.ID+"/submit", getToken(t, teacher), map[string]interface{}{
		"answers": map[string]interface{}{"q1": "2"},
	}))
	checkCode(t, rec, http.StatusForbidden)

	rec = do(newAuthRequest(http.MethodPost, "/v1/assessments/"+a.ID+"/submit", studToken, map[string]interface{}{
		"answers": map[string]interface{}{"q1": "2", "q2": []string{"b", "a"}},
	}))
	checkCode(t, rec, http.StatusCreated)
	var sub assessment.Submission
	decode(t, rec, &sub)
	assert.Equal(t, float64(5), sub.Score)

	// second attempt conflicts and returns the first submission
	rec = do(newAuthRequest(http.MethodPost, "/v1/assessments/"+a.ID+"/submit", studToken, map[string]interface{}{
		"answers": map[string]interface{}{"q1": "3"},
	}))
	checkCode(t, rec, http.StatusConflict)
	var conflict struct {
		Error      string                `json:"error"`
		Submission assessment.Submission `json:"submission"`
	}
	decode(t, rec, &conflict)
	assert.Equal(t, sub.ID, conflict.Submission.ID)
	assert.Equal(t, float64(5), conflict.Submission.Score)

	// wrong batch
	outsider, _ := createStudent(t, "outsider", otherBatch.ID)
	rec = do(newAuthRequest(http.MethodPost, "/v1/assessments/"+a.ID+"/submit", getToken(t, outsider), map[string]interface{}{
		"answers": map[string]interface{}{"q1": "2"},
	}))
	checkCode(t, rec, http.StatusForbidden)

	// staff list submissions
	rec = do(newAuthRequest(http.MethodGet, "/v1/assessments/"+a.ID+"/submissions", getToken(t, teacher)))
	checkCode(t, rec, http.StatusOK)
	var subs []assessment.Submission
	decode(t, rec, &subs)
	assert.Len(t, subs, 1)
}

func Test_assessmentApi_scoresAndAnalytics(t *testing.T) {
	teacher := createUser(t, "anateacher", user.RoleTeacher, true)
	teacherToken := getToken(t, teacher)
	batch := createBatch(t, "Analytics Batch")
	a := createQuiz(t, teacherToken, batch.ID)

	stud, prof := createStudent(t, "anastud", batch.ID)
	studToken := getToken(t, stud)

	rec := do(newAuthRequest(http.MethodPost, "/v1/assessments/"+a.ID+"/submit", studToken, map[string]interface{}{
		"answers": map[string]interface{}{"q1": "2"},
	}))
	checkCode(t, rec, http.StatusCreated)

	// own score history
	rec = do(newAuthRequest(http.MethodGet, "/v1/students/"+prof.ID+"/scores", studToken))
	checkCode(t, rec, http.StatusOK)
	var history echoapi.ScoreHistoryResponse
	decode(t, rec, &history)
	assert.Equal(t, float64(3), history.AverageScore)
	assert.Len(t, history.Submissions, 1)

	rec = do(newAuthRequest(http.MethodGet, "/v1/students/"+prof.ID+"/scores/trend", studToken))
	checkCode(t, rec, http.StatusOK)

	// someone else's history is hidden
	nosy, _ := createStudent(t, "ananosy", batch.ID)
	rec = do(newAuthRequest(http.MethodGet, "/v1/students/"+prof.ID+"/scores", getToken(t, nosy)))
	checkCode(t, rec, http.StatusNotFound)

	// batch analytics are staff only
	rec = do(newAuthRequest(http.MethodGet, "/v1/batches/"+batch.ID+"/analytics", studToken))
	checkCode(t, rec, http.StatusForbidden)

	rec = do(newAuthRequest(http.MethodGet, "/v1/batches/"+batch.ID+"/analytics", teacherToken))
	checkCode(t, rec, http.StatusOK)
	var analytics echoapi.BatchAnalyticsResponse
	decode(t, rec, &analytics)
	assert.Equal(t, batch.ID, analytics.BatchID)
	if assert.Len(t, analytics.StudentScores, 2) {
		assert.Equal(t, prof.ID, analytics.StudentScores[0].StudentID)
	}
}

func Test_assessmentApi_studentScoping(t *testing.T) {
	teacher := createUser(t, "scopeteacher", user.RoleTeacher, true)
	teacherToken := getToken(t, teacher)
	mine := createBatch(t, "Scope Mine")
	other := createBatch(t, "Scope Other")
	a := createQuiz(t, teacherToken, mine.ID)
	foreign := createQuiz(t, teacherToken, other.ID)

	stud, _ := createStudent(t, "scopestud", mine.ID)
	studToken := getToken(t, stud)

	// the listing only surfaces the student's own batch
	rec := do(newAuthRequest(http.MethodGet, "/v1/assessments", studToken))
	checkCode(t, rec, http.StatusOK)
	var page struct {
		Count   int                        `json:"count"`
		Results []echoapi.AssessmentDetail `json:"results"`
	}
	decode(t, rec, &page)
	if assert.Len(t, page.Results, 1) {
		assert.Equal(t, a.ID, page.Results[0].ID)
		assert.False(t, page.Results[0].IsSubmitted)
		assert.Nil(t, page.Results[0].StudentSubmission)
	}

	// filters cannot widen the scope
	rec = do(newAuthRequest(http.MethodGet, "/v1/assessments?batch_id="+other.ID, studToken))
	checkCode(t, rec, http.StatusOK)
	var filtered struct {
		Results []echoapi.AssessmentDetail `json:"results"`
	}
	decode(t, rec, &filtered)
	if assert.Len(t, filtered.Results, 1) {
		assert.Equal(t, a.ID, filtered.Results[0].ID)
	}

	// another batch's assessment does not exist for them
	rec = do(newAuthRequest(http.MethodGet, "/v1/assessments/"+foreign.ID, studToken))
	checkCode(t, rec, http.StatusNotFound)

	// the own submission rides along once submitted
	rec = do(newAuthRequest(http.MethodPost, "/v1/assessments/"+a.ID+"/submit", studToken, map[string]interface{}{
		"answers": map[string]interface{}{"q1": "2"},
	}))
	checkCode(t, rec, http.StatusCreated)

	rec = do(newAuthRequest(http.MethodGet, "/v1/assessments/"+a.ID, studToken))
	checkCode(t, rec, http.StatusOK)
	var detail echoapi.AssessmentDetail
	decode(t, rec, &detail)
	assert.True(t, detail.IsSubmitted)
	if assert.NotNil(t, detail.StudentSubmission) {
		assert.Equal(t, float64(3), detail.StudentSubmission.Score)
	}

	// staff keep full visibility and may reorder
	rec = do(newAuthRequest(http.MethodGet, "/v1/assessments/"+foreign.ID, teacherToken))
	checkCode(t, rec, http.StatusOK)

	rec = do(newAuthRequest(http.MethodPost, "/v1/assessments", teacherToken, map[string]interface{}{
		"title": "Binary Quiz", "test_type": assessment.TypeQuiz, "batch_id": mine.ID,
	}))
	checkCode(t, rec, http.StatusCreated)

	rec = do(newAuthRequest(http.MethodGet, "/v1/assessments?batch_id="+mine.ID+"&ordering=-title", teacherToken))
	checkCode(t, rec, http.StatusOK)
	var ordered struct {
		Results []assessment.Assessment `json:"results"`
	}
	decode(t, rec, &ordered)
	if assert.Len(t, ordered.Results, 2) {
		assert.Equal(t, "Binary Quiz", ordered.Results[0].Title)
		assert.Equal(t, a.Title, ordered.Results[1].Title)
	}
}
