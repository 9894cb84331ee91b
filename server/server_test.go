package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wudi/docketkit/account"
	"github.com/wudi/docketkit/audit"
	"github.com/wudi/docketkit/champion"
	"github.com/wudi/docketkit/compliance"
	"github.com/wudi/docketkit/configcard"
	"github.com/wudi/docketkit/intake"
	"github.com/wudi/docketkit/mail"
	"github.com/wudi/docketkit/ocr"
	"github.com/wudi/docketkit/pipeline"
	"github.com/wudi/docketkit/security"
	"github.com/wudi/docketkit/server"
	"github.com/wudi/docketkit/stock"
	"github.com/wudi/docketkit/storage"
	"github.com/wudi/docketkit/store"
	"github.com/wudi/docketkit/team"
)

type fixture struct {
	handler http.Handler
	store   *store.Store
	company store.Company
	owner   store.User
	staff   store.User
	token   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	aw := audit.NewStoreWriter(st)
	accounts := account.NewService(account.Config{SessionTTL: time.Hour, BcryptCost: bcrypt.MinCost}, st, aw, nil)
	c, owner, err := accounts.CreateCompany(ctx, account.Signup{
		BusinessName: "Harbour Cafe", BusinessType: "cafe", Email: "ana@harbour.test", FullName: "Ana Owner", Password: "owner-pass",
	})
	require.NoError(t, err)
	staff, err := st.CreateUser(ctx, store.User{Email: "sam@harbour.test"})
	require.NoError(t, err)
	require.NoError(t, st.AddMembership(ctx, store.Membership{CompanyID: c.ID, UserID: staff.ID, Role: account.RoleStaff}))

	bucket, err := storage.NewFSBucket(t.TempDir(), "delivery-dockets")
	require.NoError(t, err)
	limits := security.DefaultLimits()
	cfg := pipeline.DefaultConfig()
	cfg.BatchDelay = time.Millisecond
	cfg.ThumbnailSize = 0
	proc, err := pipeline.New(cfg, pipeline.Deps{
		Uploader: intake.NewUploader(bucket, limits, 0, nil),
		Engine:   ocr.NoopEngine{},
		Store:    st,
		Audit:    aw,
		Limits:   limits,
	})
	require.NoError(t, err)

	outbox := &mail.Outbox{}
	mailCfg := mail.DefaultConfig()
	srv := server.New(server.Deps{
		Store:       st,
		Accounts:    accounts,
		Team:        team.NewService(st, accounts, aw, outbox, mailCfg, nil),
		Processor:   proc,
		Audit:       aw,
		ConfigCards: configcard.NewService(st, accounts, aw, nil),
		Champion:    champion.NewService(st, accounts, aw, outbox, mailCfg, nil),
		Compliance:  compliance.NewService(st, accounts, compliance.DefaultRules(), aw, nil),
		Stock:       stock.NewService(st, accounts, stock.DefaultConfig(), nil),
		Limits:      limits,
	}, "test")

	f := &fixture{handler: srv.Handler(), store: st, company: c, owner: owner, staff: staff}
	var login struct{ Token string }
	rec := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ANA@harbour.test", "password": "owner-pass"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)
	f.token = login.Token
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) upload(t *testing.T, path string, fields map[string]string, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for field, name := range files {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		require.NoError(t, png.Encode(part, image.NewGray(image.Rect(0, 0, 8, 8))))
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) server.ErrorBody {
	t.Helper()
	var body server.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{intake.ErrNoFiles, http.StatusBadRequest},
		{fmt.Errorf("upload: %w", security.ErrTooLarge), http.StatusBadRequest},
		{fmt.Errorf("%w: bad", account.ErrInvalidInput), http.StatusBadRequest},
		{account.ErrUnauthorized, http.StatusUnauthorized},
		{account.ErrForbidden, http.StatusForbidden},
		{configcard.ErrCardNotFound, http.StatusNotFound},
		{team.ErrExpired, http.StatusGone},
		{champion.ErrOwnerInvitePending, http.StatusConflict},
		{fmt.Errorf("department: %w", store.ErrConflict), http.StatusConflict},
		{champion.ErrRewardUnavailable, http.StatusBadRequest},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got, _ := server.StatusOf(tc.err); got != tc.want {
			t.Fatalf("StatusOf(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/companies/"+f.company.ID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/companies/"+f.company.ID, "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ana@harbour.test", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid email or password", decodeError(t, rec).Error)

	rec = f.do(t, http.MethodGet, "/api/companies/"+f.company.ID, f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var c store.Company
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, "Harbour Cafe", c.Name)

	rec = f.do(t, http.MethodPost, "/api/auth/logout", f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/companies/"+f.company.ID, f.token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadDocket(t *testing.T) {
	f := newFixture(t)
	rec := f.upload(t, "/api/upload-docket", map[string]string{"clientId": f.company.ID}, map[string]string{"file": "docket 1.png"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res pipeline.SingleResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Contains(t, res.FilePath, "-docket_1.png")

	r, err := f.store.GetDeliveryRecord(context.Background(), f.company.ID, res.DeliveryRecordID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, r.ProcessingStatus)

	rec = f.upload(t, "/api/upload-docket", map[string]string{"clientId": f.company.ID}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required fields", decodeError(t, rec).Error)
}

func TestBulkProcess(t *testing.T) {
	f := newFixture(t)
	fields := map[string]string{"clientId": f.company.ID, "userId": f.owner.ID, "batchSize": "1"}

	rec := f.upload(t, "/api/bulk-process-dockets", fields, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No files provided for processing", decodeError(t, rec).Error)

	rec = f.upload(t, "/api/bulk-process-dockets", map[string]string{"clientId": f.company.ID}, map[string]string{"file_0": "a.png"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	bad := map[string]string{"clientId": f.company.ID, "userId": f.owner.ID, "processingPriority": "urgent"}
	rec = f.upload(t, "/api/bulk-process-dockets", bad, map[string]string{"file_0": "a.png"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid processing priority", decodeError(t, rec).Error)

	many := map[string]string{}
	for i := range security.DefaultLimits().MaxFilesPerRequest + 1 {
		many[fmt.Sprintf("file_%d", i)] = fmt.Sprintf("d%d.png", i)
	}
	rec = f.upload(t, "/api/bulk-process-dockets", fields, many)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Too many files", decodeError(t, rec).Error)

	rec = f.upload(t, "/api/bulk-process-dockets", fields, map[string]string{"file_0": "a.png", "file_1": "b.png"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Success bool
		Message string
		Results pipeline.Summary
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Equal(t, "Bulk processing completed: 2/2 files processed successfully", out.Message)
	assert.Equal(t, 2, out.Results.Uploaded)
	assert.Len(t, out.Results.DeliveryRecords, 2)
	assert.Equal(t, pipeline.PriorityMedium, out.Results.Priority)

	rec = f.do(t, http.MethodGet, "/api/bulk-process-dockets?clientId="+f.company.ID, f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Stats         pipeline.Stats
		RecentUploads []store.DeliveryRecord
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Stats.TotalBulkRecords)
	assert.Len(t, stats.RecentUploads, 2)

	rec = f.do(t, http.MethodGet, "/api/audit-logs?clientId="+f.company.ID+"&action="+audit.ActionBulkCompleted, f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, strings.Count(rec.Body.String(), audit.ActionBulkCompleted))
}

func TestBulkProcessStream(t *testing.T) {
	f := newFixture(t)
	fields := map[string]string{"clientId": f.company.ID, "userId": f.owner.ID}
	rec := f.upload(t, "/api/bulk-process-dockets?stream=true", fields, map[string]string{"file_1": "a.png"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "event:run_start")
	assert.Contains(t, body, "event:file_done")
	assert.Contains(t, body, "event:summary")
	assert.Contains(t, body, `"runId":"`)
	assert.Contains(t, body, `"status":"`)
	assert.NotContains(t, body, `"RunID"`)
}

func TestTenantRoutes(t *testing.T) {
	f := newFixture(t)
	q := "?clientId=" + f.company.ID

	rec := f.do(t, http.MethodGet, "/api/config/configcards", f.token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/config/configcards"+q, f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"configCards"`)

	rec = f.do(t, http.MethodPost, "/api/config/configcards/user-profile/validate"+q, f.token, map[string]any{"nickname": "x"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"valid":false`)

	rec = f.do(t, http.MethodPost, "/api/config/departments"+q, f.token, map[string]string{"name": "Kitchen"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/api/config/departments"+q, f.token, map[string]string{"name": "Kitchen"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/stock/items"+q, f.token, stock.ItemRequest{Name: "Milk", UnitCost: 2, ParLevelLow: 5})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodGet, "/api/stock/dashboard"+q, f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/compliance-alerts"+q, f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/delivery-records/missing"+q, f.token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTeamInviteFlow(t *testing.T) {
	f := newFixture(t)
	q := "?clientId=" + f.company.ID
	rec := f.do(t, http.MethodPost, "/api/team/invite", f.token, team.InviteRequest{CompanyID: f.company.ID, Email: "lee@harbour.test", Role: "superuser"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/team/invite", f.token, team.InviteRequest{CompanyID: f.company.ID, Email: "lee@harbour.test", Role: account.RoleManager})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Invitation    store.Invitation
		InvitationURL string
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	token := out.InvitationURL[strings.Index(out.InvitationURL, "token=")+len("token="):]

	rec = f.do(t, http.MethodPost, "/api/team/invite", f.token, team.InviteRequest{CompanyID: f.company.ID, Email: "lee@harbour.test", Role: account.RoleManager})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/team/invite"+q, f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lee@harbour.test")

	rec = f.do(t, http.MethodPost, "/api/team/accept", "", team.AcceptRequest{Token: token, FullName: "Lee", Password: "lee-password"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/api/team/accept", "", team.AcceptRequest{Token: token, FullName: "Lee", Password: "lee-password"})
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/team/invite"+q+"&invitationId="+out.Invitation.ID, f.token, nil)
	assert.Equal(t, http.StatusGone, rec.Code)
}
