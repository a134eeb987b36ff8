package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/gleh/internal/model"
	"github.com/hitoshi/gleh/internal/user"
)

// mockProfileService はProfileServiceInterfaceのテスト用実装。
type mockProfileService struct {
	profile     *user.Profile
	lastAboutMe *string
	lastGender  *string
}

func (m *mockProfileService) GetProfile(ctx context.Context, u *model.User) (*user.Profile, error) {
	return m.profile, nil
}

func (m *mockProfileService) UpdateProfile(ctx context.Context, u *model.User, aboutMe, gender, pronouns *string) error {
	m.lastAboutMe = aboutMe
	m.lastGender = gender
	return nil
}

// mockAvatarService はAvatarServiceInterfaceのテスト用実装。
type mockAvatarService struct {
	uploadErr    error
	lastFilename string
	resolved     map[string]string
}

func (m *mockAvatarService) Upload(ctx context.Context, userID int64, filename string, data []byte) (string, error) {
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	m.lastFilename = filename
	return "/avatars/7_" + filename, nil
}

func (m *mockAvatarService) Resolve(filename string) (string, bool) {
	path, ok := m.resolved[filename]
	return path, ok
}

func newTestProfileHandler(service ProfileServiceInterface, avatarSvc AvatarServiceInterface) *ProfileHandler {
	return NewProfileHandler(service, avatarSvc, 5242880, discardLogger())
}

func TestGetProfileRequiresAuth(t *testing.T) {
	h := newTestProfileHandler(&mockProfileService{}, &mockAvatarService{})

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	rec := httptest.NewRecorder()
	h.GetProfile(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestGetProfile(t *testing.T) {
	service := &mockProfileService{profile: &user.Profile{
		User: user.ProfileUser{Username: "alice", Avatar: "/static/avatars/default_avatar.svg"},
		CoursesCompleted: []user.CourseSummary{
			{UID: "abc123", Title: "Go入門", Status: "Completed"},
		},
	}}
	h := newTestProfileHandler(service, &mockAvatarService{})

	req := withTestUser(httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	rec := httptest.NewRecorder()
	h.GetProfile(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body user.Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if body.User.Username != "alice" {
		t.Errorf("username = %q", body.User.Username)
	}
	if len(body.CoursesCompleted) != 1 {
		t.Errorf("completed = %d, want 1", len(body.CoursesCompleted))
	}
}

func TestUpdateProfilePartial(t *testing.T) {
	service := &mockProfileService{}
	h := newTestProfileHandler(service, &mockAvatarService{})

	req := withTestUser(httptest.NewRequest(http.MethodPost, "/api/profile",
		strings.NewReader(`{"about_me": "Goを勉強中"}`)))
	rec := httptest.NewRecorder()
	h.UpdateProfile(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if service.lastAboutMe == nil || *service.lastAboutMe != "Goを勉強中" {
		t.Errorf("aboutMe = %v", service.lastAboutMe)
	}
	// キーが欠落した項目はnilのまま渡される
	if service.lastGender != nil {
		t.Errorf("gender = %v, want nil", service.lastGender)
	}
}

// multipartBody はavatarフィールド付きのmultipartボディを構築する。
func multipartBody(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile("avatar", filename)
	if err != nil {
		t.Fatalf("multipartの構築に失敗: %v", err)
	}
	fw.Write(data)
	mw.Close()
	return buf, mw.FormDataContentType()
}

func TestUploadAvatar(t *testing.T) {
	avatarSvc := &mockAvatarService{}
	h := newTestProfileHandler(&mockProfileService{}, avatarSvc)

	buf, contentType := multipartBody(t, "me.png", []byte("fake-image"))
	req := withTestUser(httptest.NewRequest(http.MethodPost, "/api/profile/avatar", buf))
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.UploadAvatar(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if body["avatar_url"] != "/avatars/7_me.png" {
		t.Errorf("avatar_url = %q", body["avatar_url"])
	}
	if avatarSvc.lastFilename != "me.png" {
		t.Errorf("filename = %q", avatarSvc.lastFilename)
	}
}

func TestUploadAvatarRejectedByService(t *testing.T) {
	avatarSvc := &mockAvatarService{
		uploadErr: &user.UploadError{Reason: "許可されていないファイル形式です"},
	}
	h := newTestProfileHandler(&mockProfileService{}, avatarSvc)

	buf, contentType := multipartBody(t, "evil.svg", []byte("<svg/>"))
	req := withTestUser(httptest.NewRequest(http.MethodPost, "/api/profile/avatar", buf))
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.UploadAvatar(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "UPLOAD_REJECTED") {
		t.Errorf("エラーコードがUPLOAD_REJECTEDではない: %s", rec.Body.String())
	}
}

func TestUploadAvatarWithoutFile(t *testing.T) {
	h := newTestProfileHandler(&mockProfileService{}, &mockAvatarService{})

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	mw.Close()

	req := withTestUser(httptest.NewRequest(http.MethodPost, "/api/profile/avatar", buf))
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	h.UploadAvatar(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
