package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/voicecounsel/internal/api"
	"github.com/zhouzirui/voicecounsel/internal/auth"
	"github.com/zhouzirui/voicecounsel/internal/auth/authtest"
	"github.com/zhouzirui/voicecounsel/internal/config"
	"github.com/zhouzirui/voicecounsel/internal/media"
	"github.com/zhouzirui/voicecounsel/internal/model/counseling"
	"github.com/zhouzirui/voicecounsel/internal/model/photo"
)

func newClient(t *testing.T, handler http.HandlerFunc) *api.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return api.NewClient(srv.URL+"/", srv.Client())
}

func TestLoginSendsBasicAuthAndParsesCookie(t *testing.T) {
	token := authtest.Token(t, "user@example.com", time.Now().Add(time.Hour))

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)
		email, password, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "user@example.com", email)
		assert.Equal(t, "secret", password)

		http.SetCookie(w, &http.Cookie{Name: "other", Value: "x"})
		http.SetCookie(w, &http.Cookie{Name: "authToken", Value: token, Path: "/"})
		w.WriteHeader(http.StatusOK)
	})

	session, err := client.Login(context.Background(), "user@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, token, session.Token)
	assert.Equal(t, "user@example.com", session.User().Email)
	assert.NoError(t, session.Valid(time.Now()))
}

func TestLoginFailures(t *testing.T) {
	t.Run("rejected credentials", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
		})

		_, err := client.Login(context.Background(), "user@example.com", "wrong")
		var statusErr *api.StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
		assert.Equal(t, "bad credentials", statusErr.Body)
		assert.Equal(t, "The email or password is incorrect.", api.UserMessage(err))
		assert.Equal(t, http.StatusUnauthorized, api.HTTPStatus(err))
	})

	t.Run("missing cookie", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		_, err := client.Login(context.Background(), "user@example.com", "secret")
		require.ErrorIs(t, err, api.ErrMissingCookie)
	})

	t.Run("malformed token", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.SetCookie(w, &http.Cookie{Name: "authToken", Value: "not-a-jwt"})
		})

		_, err := client.Login(context.Background(), "user@example.com", "secret")
		var payloadErr *api.PayloadError
		require.ErrorAs(t, err, &payloadErr)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})
}

func TestSignupLogsInAutomatically(t *testing.T) {
	token := authtest.Token(t, "new@example.com", time.Now().Add(time.Hour))
	var calls []string

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		switch r.URL.Path {
		case "/auth/signup":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "new@example.com", body["email"])
			assert.Equal(t, "pw", body["password"])
			w.WriteHeader(http.StatusCreated)
		case "/auth/login":
			http.SetCookie(w, &http.Cookie{Name: "authToken", Value: token})
		}
	})

	session, err := client.Signup(context.Background(), "new@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, token, session.Token)
	assert.Equal(t, []string{"/auth/signup", "/auth/login"}, calls)
}

func TestSignupFailures(t *testing.T) {
	t.Run("signup rejected", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		})

		_, err := client.Signup(context.Background(), "dup@example.com", "pw")
		var statusErr *api.StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, api.OpSignup, statusErr.Op)
		assert.Equal(t, "Something went wrong while signing up.", api.UserMessage(err))
	})

	t.Run("login after signup fails", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/auth/login" {
				w.WriteHeader(http.StatusInternalServerError)
			}
		})

		_, err := client.Signup(context.Background(), "new@example.com", "pw")
		require.ErrorIs(t, err, api.ErrLoginAfterSignup)
		assert.Equal(t, "Your account was created, but signing in failed. Please sign in.", api.UserMessage(err))
	})
}

func TestCounselingStatusAttachesCookie(t *testing.T) {
	session := authtest.Session(t, "user@example.com")

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("authToken"); assert.NoError(t, err) {
			assert.Equal(t, session.Token, cookie.Value)
		}
		_, _ = io.WriteString(w, `{"hasInitialCounseling":true,"counselingDate":"2025-01-02","counselingId":"c-1"}`)
	})

	status, err := client.CounselingStatus(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, counseling.Status{HasInitialCounseling: true, CounselingDate: "2025-01-02", CounselingID: "c-1"}, status)
}

func TestAnonymousRequestsCarryNoCookie(t *testing.T) {
	var hits atomic.Int32
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Empty(t, r.Cookies())
		_, _ = io.WriteString(w, `{"hasInitialCounseling":false}`)
	})

	status, err := client.CounselingStatus(context.Background(), auth.Session{})
	require.NoError(t, err)
	assert.False(t, status.HasInitialCounseling)
	// 空会话照常发送，由后端决定是否拒绝
	assert.Equal(t, int32(1), hits.Load())
}

func TestSendVoice(t *testing.T) {
	session := authtest.Session(t, "user@example.com")
	recording := media.NewRecording([]byte("user-audio"), "audio/webm")
	reply := media.EncodeAudio([]byte("assistant-audio"))

	t.Run("first exchange omits session id", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			var raw map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
			assert.Equal(t, media.EncodeAudio([]byte("user-audio")), raw["user_audio_base64"])
			_, hasSession := raw["session_id"]
			assert.False(t, hasSession)

			_ = json.NewEncoder(w).Encode(counseling.VoiceResponse{AssistantAudioBase64: reply, SessionID: "abc"})
		})

		result, err := client.SendVoice(context.Background(), session, recording, "")
		require.NoError(t, err)
		assert.Equal(t, counseling.ExchangeResult{SessionID: "abc", AudioPayload: reply}, result)
	})

	t.Run("follow-up carries session id and completion", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			var req counseling.VoiceRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "abc", req.SessionID)
			_, _ = io.WriteString(w, `{"assistant_audio_base64":"`+reply+`","session_id":"abc","is_complete":true}`)
		})

		result, err := client.SendVoice(context.Background(), session, recording, "abc")
		require.NoError(t, err)
		assert.True(t, result.IsComplete)
	})

	t.Run("server error", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := client.SendVoice(context.Background(), session, recording, "")
		var statusErr *api.StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
		assert.Equal(t, "Sending your voice message failed. Please try again.", api.UserMessage(err))
		assert.Equal(t, http.StatusBadGateway, api.HTTPStatus(err))
	})

	malformed := map[string]string{
		"not json":      `<html>`,
		"empty audio":   `{"assistant_audio_base64":""}`,
		"invalid audio": `{"assistant_audio_base64":"@@@"}`,
	}
	for name, body := range malformed {
		t.Run(name, func(t *testing.T) {
			client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			})

			_, err := client.SendVoice(context.Background(), session, recording, "")
			var payloadErr *api.PayloadError
			require.ErrorAs(t, err, &payloadErr)
			assert.Equal(t, api.OpVoice, payloadErr.Op)
		})
	}

	t.Run("empty recording is not sent", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("unexpected request")
		})

		_, err := client.SendVoice(context.Background(), session, counseling.Recording{}, "")
		require.ErrorIs(t, err, media.ErrNoAudio)
	})
}

func TestSendVoiceTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := api.NewClient(srv.URL, nil)
	_, err := client.SendVoice(context.Background(), auth.Session{}, media.NewRecording([]byte("a"), ""), "")

	var transportErr *api.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "Could not reach the server. Check your connection and try again.", api.UserMessage(err))
}

func TestClientTimeoutFromConfig(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	client := api.NewClientFromConfig(
		config.APIConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond},
		config.AuthConfig{CookieName: "session"},
	)
	assert.Equal(t, "session", client.CookieName())

	_, err := client.CounselingStatus(context.Background(), auth.Session{})
	var transportErr *api.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, api.OpStatus, transportErr.Op)
}

func TestUploadPhotoSendsMultipart(t *testing.T) {
	session := authtest.Session(t, "user@example.com")
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 'd', 'a', 't', 'a'}

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/photo/upload", r.URL.Path)
		file, header, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()

		assert.Equal(t, "photo.jpg", header.Filename)
		assert.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))
		data, err := io.ReadAll(file)
		assert.NoError(t, err)
		assert.Equal(t, jpeg, data)

		_, _ = io.WriteString(w, `{"imageUrl":"https://cdn.example.com/p.jpg","text":"a calm lake"}`)
	})

	result, err := client.UploadPhoto(context.Background(), session, photo.Photo{Data: jpeg})
	require.NoError(t, err)
	assert.Equal(t, photo.UploadResult{ImageURL: "https://cdn.example.com/p.jpg", Text: "a calm lake"}, result)
}

func TestUserMessageFallbacks(t *testing.T) {
	assert.Empty(t, api.UserMessage(nil))
	assert.Equal(t, "Please sign in again.", api.UserMessage(api.ErrUnauthenticated))
	assert.Equal(t, "Please sign in again.", api.UserMessage(&api.StatusError{Op: api.OpStatus, StatusCode: http.StatusUnauthorized}))
	assert.Equal(t, "Something went wrong. Please try again.", api.UserMessage(errors.New("boom")))
	assert.Equal(t, http.StatusUnauthorized, api.HTTPStatus(api.ErrUnauthenticated))
	assert.Equal(t, http.StatusGatewayTimeout, api.HTTPStatus(context.DeadlineExceeded))
}
