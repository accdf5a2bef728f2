package api

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/lostfound/internal/auth"
	"github.com/erazemk/lostfound/internal/blob"
	"github.com/erazemk/lostfound/internal/db"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/workflow"
)

const testJWTSecret = "test-secret"

var (
	student = auth.Identity{UserID: "u1", Email: "mreyes.a11111111@umak.edu.ph", Name: "Maria Reyes", Role: model.RoleRequestor}
	other   = auth.Identity{UserID: "u2", Email: "jdelacruz.k11223344@umak.edu.ph", Name: "Juan Dela Cruz", Role: model.RoleRequestor}
	office  = auth.Identity{UserID: "admin", Email: "office@umak.edu.ph", Name: "Ana Santos", Role: model.RoleAdmin}
)

type testServer struct {
	*httptest.Server
	t *testing.T
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	database := db.NewTestDB(t)
	images, err := blob.NewLocal(t.TempDir())
	require.NoError(t, err)

	machine := workflow.New(database, workflow.Options{Images: images})
	server := httptest.NewServer(NewRouter(database, machine, images, testJWTSecret))
	t.Cleanup(server.Close)
	return &testServer{Server: server, t: t}
}

func token(t *testing.T, id auth.Identity) string {
	t.Helper()
	tok, err := auth.GenerateToken(testJWTSecret, id, auth.TokenExpiry)
	require.NoError(t, err)
	return tok
}

type response struct {
	Status  int
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []string        `json:"errors"`
}

func (r *response) decode(t *testing.T, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Data, target))
}

// do sends a JSON request as id and decodes the envelope.
func (s *testServer) do(method, path string, id *auth.Identity, body any) *response {
	s.t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if id != nil {
		req.Header.Set("Authorization", "Bearer "+token(s.t, *id))
	}
	return s.send(req)
}

func (s *testServer) send(req *http.Request) *response {
	s.t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	out := &response{Status: resp.StatusCode}
	require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	return out
}

func (s *testServer) report(id auth.Identity, name, status string) (itemID, processID string) {
	s.t.Helper()
	resp := s.do("POST", "/api/items", &id, map[string]any{"name": name, "status": status, "category": "Bags"})
	require.Equal(s.t, http.StatusCreated, resp.Status, resp.Message)
	var ids map[string]string
	resp.decode(s.t, &ids)
	return ids["itemId"], ids["processId"]
}

func TestBlueBackpackFlow(t *testing.T) {
	s := setupTestServer(t)

	itemID, processID := s.report(student, "Blue Backpack", model.ItemStatusLost)

	// Unapproved items are hidden from other students.
	resp := s.do("GET", "/api/items/"+itemID, &other, nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	resp = s.do("GET", "/api/items/"+itemID, &student, nil)
	assert.Equal(t, http.StatusOK, resp.Status)

	resp = s.do("PUT", "/api/items/"+itemID+"/approve", &office, map[string]bool{"approved": true})
	require.Equal(t, http.StatusOK, resp.Status, resp.Message)

	resp = s.do("GET", "/api/items?q=backpack", &other, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var listed []model.Item
	resp.decode(t, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, "A11111111", listed[0].StudentID)

	resp = s.do("POST", "/api/items/process/"+processID+"/questions", &office,
		map[string][]string{"questions": {"What color is the zipper?", "What is inside?"}})
	require.Equal(t, http.StatusOK, resp.Status, resp.Message)

	resp = s.do("GET", "/api/items/process/"+processID+"/questions", &student, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var questions []model.VerificationQuestion
	resp.decode(t, &questions)
	require.Len(t, questions, 2)

	answers := []workflow.Answer{
		{QuestionID: questions[0].ID, Answer: "Red"},
		{QuestionID: questions[1].ID, Answer: "Calculus notes"},
	}

	// Only the owner answers.
	resp = s.do("POST", "/api/items/process/"+processID+"/verify", &other, map[string]any{"answers": answers})
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = s.do("POST", "/api/items/process/"+processID+"/verify", &student, map[string]any{"answers": answers})
	require.Equal(t, http.StatusOK, resp.Status, resp.Errors)
	var p model.Process
	resp.decode(t, &p)
	assert.Equal(t, model.StatusAwaitingReview, p.Status)

	resp = s.do("POST", "/api/items/process/"+processID+"/wrong-answer", &office, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "Incorrect answers. 2 attempt(s) remaining.", resp.Message)

	resp = s.do("POST", "/api/items/process/"+processID+"/verify", &student, map[string]any{"answers": answers})
	require.Equal(t, http.StatusOK, resp.Status, resp.Errors)

	resp = s.do("POST", "/api/items/process/"+processID+"/correct-answer", &office, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	resp.decode(t, &p)
	assert.Equal(t, model.StatusPendingRetrieval, p.Status)

	resp = s.do("PUT", "/api/items/process/"+processID+"/hand-over", &office, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	resp.decode(t, &p)
	assert.Equal(t, model.StatusHandedOver, p.Status)

	resp = s.do("PUT", "/api/items/process/"+processID+"/undo-retrieval", &office, nil)
	assert.Equal(t, http.StatusConflict, resp.Status)
	assert.False(t, resp.Success)

	resp = s.do("GET", "/api/items/pending/user/u1", &student, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var pending []model.Process
	resp.decode(t, &pending)
	assert.Empty(t, pending)
}

func TestSurrenderScan(t *testing.T) {
	s := setupTestServer(t)
	_, processID := s.report(other, "Umbrella", model.ItemStatusFound)

	resp := s.do("POST", "/api/items/process/scan", &office,
		map[string]string{"processId": processID, "type": "lost"})
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "validation failed", resp.Message)
	assert.NotEmpty(t, resp.Errors)

	scan := map[string]string{"processId": processID, "type": "surrender", "timestamp": "2026-03-02T09:00:00Z"}
	resp = s.do("POST", "/api/items/process/scan", &office, scan)
	require.Equal(t, http.StatusOK, resp.Status, resp.Errors)
	assert.Equal(t, "surrender recorded", resp.Message)

	resp = s.do("POST", "/api/items/process/scan", &office, scan)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "item is already pending retrieval", resp.Message)

	resp = s.do("PUT", "/api/items/process/"+processID+"/no-show", &office, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	resp = s.do("PUT", "/api/items/process/"+processID+"/mark-handed-over", &office, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var p model.Process
	resp.decode(t, &p)
	assert.Equal(t, model.StatusHandedOver, p.Status)
}

func TestClaimFlow(t *testing.T) {
	s := setupTestServer(t)
	itemID, processID := s.report(other, "Calculator", model.ItemStatusFound)

	claim := map[string]any{
		"itemId":  itemID,
		"answers": []workflow.ClaimAnswer{{Question: "Brand?", Answer: "Casio"}},
	}

	// The finder cannot claim their own report.
	resp := s.do("POST", "/api/items/process/claim", &other, claim)
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = s.do("POST", "/api/items/process/claim", &student, claim)
	require.Equal(t, http.StatusOK, resp.Status, resp.Errors)

	resp = s.do("POST", "/api/items/process/cancel-claim", &other, map[string]string{"processId": processID})
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = s.do("POST", "/api/items/process/approve-claim", &student, map[string]string{"processId": processID})
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = s.do("POST", "/api/items/process/approve-claim", &office, map[string]string{"processId": processID})
	require.Equal(t, http.StatusOK, resp.Status, resp.Message)
	var p model.Process
	resp.decode(t, &p)
	assert.Equal(t, "u1", p.UserID)
	assert.Nil(t, p.RequestorUserID)

	resp = s.do("POST", "/api/items/process/reject-claim", &office, map[string]string{"processId": processID})
	assert.Equal(t, http.StatusConflict, resp.Status)
}

func TestMatch(t *testing.T) {
	s := setupTestServer(t)
	lostItemID, lostPID := s.report(student, "Wallet", model.ItemStatusLost)
	_, foundPID := s.report(other, "Brown wallet", model.ItemStatusFound)

	resp := s.do("POST", "/api/items/process/match", &office,
		map[string]string{"lostProcessId": foundPID, "foundProcessId": lostPID})
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = s.do("POST", "/api/items/process/match", &office,
		map[string]string{"lostProcessId": lostPID, "foundProcessId": foundPID})
	require.Equal(t, http.StatusOK, resp.Status, resp.Errors)

	resp = s.do("GET", "/api/items/"+lostItemID, &office, nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestSetStatus(t *testing.T) {
	s := setupTestServer(t)
	itemID, _ := s.report(student, "Keys", model.ItemStatusLost)

	resp := s.do("PUT", "/api/items/process/"+itemID+"/status", &office, map[string]string{"status": "misplaced"})
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = s.do("PUT", "/api/items/process/"+itemID+"/status", &office,
		map[string]string{"status": "in_verification", "message": `["Which keychain?"]`})
	require.Equal(t, http.StatusOK, resp.Status, resp.Errors)
	var p model.Process
	resp.decode(t, &p)
	assert.Equal(t, model.StatusInVerification, p.Status)

	resp = s.do("PUT", "/api/items/process/"+itemID+"/status", &office, map[string]string{"status": "rejected"})
	require.Equal(t, http.StatusOK, resp.Status)
	resp = s.do("GET", "/api/items/"+itemID, &office, nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestPendingAccess(t *testing.T) {
	s := setupTestServer(t)
	_, processID := s.report(student, "Jacket", model.ItemStatusLost)

	resp := s.do("GET", "/api/items/pending/user/u1", &other, nil)
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = s.do("GET", "/api/items/pending/all", &office, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var pending []model.Process
	resp.decode(t, &pending)
	assert.Len(t, pending, 1)

	resp = s.do("DELETE", "/api/items/pending/"+processID, &office, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	resp = s.do("DELETE", "/api/items/pending/"+processID, &office, nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestImageUpload(t *testing.T) {
	s := setupTestServer(t)

	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for x := range 40 {
		for y := range 30 {
			img.Set(x, y, color.RGBA{B: 200, A: 255})
		}
	}
	var pngData bytes.Buffer
	require.NoError(t, png.Encode(&pngData, img))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "Blue Backpack"))
	require.NoError(t, mw.WriteField("status", "lost"))
	part, err := mw.CreateFormFile("image", "bag.png")
	require.NoError(t, err)
	_, err = part.Write(pngData.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest("POST", s.URL+"/api/items", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token(t, student))
	resp := s.send(req)
	require.Equal(t, http.StatusCreated, resp.Status, resp.Errors)
	var ids map[string]string
	resp.decode(t, &ids)

	req, err = http.NewRequest("GET", s.URL+"/api/items/"+ids["itemId"]+"/image", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token(t, student))
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusOK, raw.StatusCode)
	assert.Equal(t, "image/jpeg", raw.Header.Get("Content-Type"))
	data, err := io.ReadAll(raw.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte{0xFF, 0xD8}))
}

func TestUnauthenticatedAccess(t *testing.T) {
	s := setupTestServer(t)

	resp := s.do("GET", "/api/items", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.False(t, resp.Success)

	expired, err := auth.GenerateToken(testJWTSecret, student, -auth.TokenExpiry)
	require.NoError(t, err)
	req, err := http.NewRequest("GET", s.URL+"/api/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, s.send(req).Status)
}

func TestRoleBasedAccess(t *testing.T) {
	s := setupTestServer(t)
	itemID, _ := s.report(student, "Notebook", model.ItemStatusLost)

	resp := s.do("DELETE", "/api/items/"+itemID, &student, nil)
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = s.do("PUT", "/api/items/"+itemID+"/details", &other, map[string]string{"name": "Mine now"})
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = s.do("PUT", "/api/items/"+itemID+"/details", &student, map[string]string{"name": "Green notebook"})
	require.Equal(t, http.StatusOK, resp.Status, resp.Errors)
	var item model.Item
	resp.decode(t, &item)
	assert.Equal(t, "Green notebook", item.Name)
}

func TestMeSyncsProfile(t *testing.T) {
	s := setupTestServer(t)

	resp := s.do("GET", "/api/me", &student, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var u model.User
	resp.decode(t, &u)
	assert.Equal(t, "A11111111", u.StudentID)
	assert.False(t, u.IsAdmin)

	resp = s.do("GET", "/api/me", &office, nil)
	resp.decode(t, &u)
	assert.True(t, u.IsAdmin)
}

func TestResponsesUseCamelCaseKeys(t *testing.T) {
	s := setupTestServer(t)
	itemID, processID := s.report(other, "Calculator", model.ItemStatusFound)

	resp := s.do("POST", "/api/items/process/claim", &student, map[string]any{
		"itemId":  itemID,
		"answers": []workflow.ClaimAnswer{{Question: "Brand?", Answer: "Casio", AdditionalInfo: "Scratch on lid"}},
	})
	require.Equal(t, http.StatusOK, resp.Status, resp.Errors)
	var process map[string]any
	resp.decode(t, &process)
	assert.Equal(t, itemID, process["itemId"])
	assert.Equal(t, "u1", process["requestorUserId"])
	assert.Contains(t, process, "verificationAttempts")
	assert.NotContains(t, process, "item_id")

	resp = s.do("GET", "/api/items/process/"+processID+"/questions", &student, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var questions []map[string]any
	resp.decode(t, &questions)
	require.Len(t, questions, 1)
	assert.Equal(t, processID, questions[0]["processId"])
	assert.Equal(t, "Scratch on lid", questions[0]["additionalInfo"])

	resp = s.do("GET", "/api/items/"+itemID, &other, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var item map[string]any
	resp.decode(t, &item)
	assert.Equal(t, "u2", item["reporterId"])
	assert.Contains(t, item, "additionalDescriptions")

	resp = s.do("GET", "/api/me", &student, nil)
	var me map[string]any
	resp.decode(t, &me)
	assert.Equal(t, "Maria Reyes", me["displayName"])
	assert.Equal(t, "A11111111", me["studentId"])
}
